package labor_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/labor-ledger/idgen"
	"github.com/warp/labor-ledger/labor"
	"github.com/warp/labor-ledger/ledger"
	"github.com/warp/labor-ledger/store/memory"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

const (
	projA ledger.ProjectID = "proj_001"
	projB ledger.ProjectID = "proj_002"

	empHourly ledger.EmployeeID = "emp_003" // 25.50/h
	empSalary ledger.EmployeeID = "emp_001" // 85000/yr, 40h
	empDesign ledger.EmployeeID = "emp_004" // 35.00/h
)

type harness struct {
	mem        *memory.TxMemory
	store      labor.TxStore
	ledger     *ledger.Ledger
	calc       *labor.Calculator
	entries    *labor.TimeEntries
	reconciler *labor.Reconciler
	summary    *labor.Summary
}

func newHarness(t *testing.T, opts ...labor.Option) *harness {
	t.Helper()
	mem := memory.NewTxMemory()
	seed(t, mem)
	return newHarnessOn(mem, mem, opts...)
}

// newHarnessOn wires the engine onto store, with mem as directory.
func newHarnessOn(mem *memory.TxMemory, store labor.TxStore, opts ...labor.Option) *harness {
	ids := idgen.ULID{}
	l := ledger.New(store, ids, ledger.WithBudgets(mem))
	calc := labor.NewCalculator(labor.NewCompensation(mem))
	entries := labor.NewTimeEntries(store, mem, mem, ids)
	return &harness{
		mem:        mem,
		store:      store,
		ledger:     l,
		calc:       calc,
		entries:    entries,
		reconciler: labor.NewReconciler(store, entries, calc, l, opts...),
		summary:    labor.NewSummary(entries, calc, l),
	}
}

func seed(t *testing.T, mem *memory.TxMemory) {
	t.Helper()
	ctx := context.Background()
	for _, e := range []labor.Employee{
		{ID: empSalary, Name: "John Smith", Department: "Management", PaymentType: labor.PaymentSalary, AnnualSalary: dec("85000"), HoursPerWeek: 40, IsActive: true},
		{ID: empHourly, Name: "Michael Davis", Department: "Construction", PaymentType: labor.PaymentHourly, HourlyRate: dec("25.50"), HoursPerWeek: 35, IsActive: true},
		{ID: empDesign, Name: "Jessica Wilson", Department: "Design", PaymentType: labor.PaymentHourly, HourlyRate: dec("35.00"), HoursPerWeek: 30, IsActive: true},
	} {
		require.NoError(t, mem.SaveEmployee(ctx, e))
	}
	require.NoError(t, mem.SaveProject(ctx, labor.Project{ID: projA, Name: "Kitchen Remodel", HasBudget: true, Budget: dec("10000")}))
	require.NoError(t, mem.SaveProject(ctx, labor.Project{ID: projB, Name: "Office Fitout"}))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func (h *harness) log(t *testing.T, emp ledger.EmployeeID, proj ledger.ProjectID, hours string) labor.TimeEntry {
	t.Helper()
	e, err := h.reconciler.AddTimeEntry(context.Background(), labor.NewTimeEntry{
		ProjectID:   proj,
		EmployeeID:  emp,
		Hours:       dec(hours),
		Billable:    true,
		Description: "framing",
	})
	require.NoError(t, err)
	return e
}

func (h *harness) entrySum(t *testing.T, id ledger.TimeEntryID) decimal.Decimal {
	t.Helper()
	sum, err := h.ledger.SumForTimeEntry(context.Background(), id)
	require.NoError(t, err)
	return sum
}

func (h *harness) records(t *testing.T, id ledger.TimeEntryID) []ledger.ExpenseRecord {
	t.Helper()
	recs, err := h.ledger.Query(context.Background(), ledger.ExpenseFilter{TimeEntryID: id})
	require.NoError(t, err)
	return recs
}

// assertInvariant checks ledger sum == LaborCost(current emp, hours).
func (h *harness) assertInvariant(t *testing.T, id ledger.TimeEntryID) {
	t.Helper()
	ctx := context.Background()
	e, err := h.store.GetTimeEntry(ctx, id)
	require.NoError(t, err)

	want := decimal.Zero
	if e != nil {
		want, err = h.calc.LaborCost(ctx, e.EmployeeID, e.Hours)
		require.NoError(t, err)
	}
	got := h.entrySum(t, id)
	assert.True(t, want.Equal(got), "ledger sum %s != labor cost %s for %s", got, want, id)
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

// =============================================================================
// FAULT INJECTION
// =============================================================================

var errCommit = errors.New("commit failed: connection reset")

// flakyTx fails the next n transactions after fn ran, so every write fn
// made is rolled back.
type flakyTx struct {
	*memory.TxMemory

	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyTx) WithTx(ctx context.Context, fn func(labor.Store) error) error {
	f.mu.Lock()
	f.calls++
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()

	return f.TxMemory.WithTx(ctx, func(s labor.Store) error {
		if err := fn(s); err != nil {
			return err
		}
		if fail {
			return errCommit
		}
		return nil
	})
}

// racingTx lets a competing writer commit right before the first
// transaction, as a second instance without the shared lock would.
type racingTx struct {
	*memory.TxMemory

	once  sync.Once
	race  func()
	calls int
}

func (r *racingTx) WithTx(ctx context.Context, fn func(labor.Store) error) error {
	r.calls++
	r.once.Do(r.race)
	return r.TxMemory.WithTx(ctx, fn)
}

// departed is the seeded directory minus one employee who has left.
type departed struct {
	*memory.TxMemory
	gone ledger.EmployeeID
}

func (d departed) LookupEmployee(ctx context.Context, id ledger.EmployeeID) (*labor.Employee, error) {
	if id == d.gone {
		return nil, nil
	}
	return d.TxMemory.LookupEmployee(ctx, id)
}
