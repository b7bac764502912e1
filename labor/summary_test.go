package labor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/labor-ledger/labor"
	"github.com/warp/labor-ledger/ledger"
)

func TestSummary_TotalsAndBreakdowns(t *testing.T) {
	// GIVEN: Michael 8h billable + 2h non-billable, John 4.5h billable on A
	// THEN: Hours split by billable flag; cost and breakdowns priced live

	h := newHarness(t)
	ctx := context.Background()
	h.log(t, empHourly, projA, "8")
	h.log(t, empSalary, projA, "4.5")
	h.log(t, empDesign, projB, "3") // other project, ignored
	_, err := h.reconciler.AddTimeEntry(ctx, labor.NewTimeEntry{ProjectID: projA, EmployeeID: empHourly, Hours: dec("2"), Billable: false})
	require.NoError(t, err)

	sum, err := h.summary.ProjectTimeSummary(ctx, projA)
	require.NoError(t, err)

	assert.Equal(t, projA, sum.ProjectID)
	assert.Equal(t, 3, sum.EntryCount)
	assertDec(t, "14.5", sum.TotalHours)
	assertDec(t, "12.5", sum.BillableHours)
	assertDec(t, "2", sum.NonBillableHours)
	assert.Equal(t, "438.89", sum.TotalLaborCost.StringFixed(2)) // 255.00 + 183.89

	require.Len(t, sum.Employees, 2)
	assert.Equal(t, "John Smith", sum.Employees[0].Name)
	assert.Equal(t, "Michael Davis", sum.Employees[1].Name)
	assertDec(t, "10", sum.Employees[1].Hours)
	assertDec(t, "255.00", sum.Employees[1].Cost)

	require.Len(t, sum.Departments, 2)
	assert.Equal(t, "Construction", sum.Departments[0].Department)
	assert.Equal(t, "Management", sum.Departments[1].Department)
}

func TestSummary_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.log(t, empHourly, projA, "8")
	h.log(t, empDesign, projA, "2")
	h.log(t, empSalary, projA, "1")

	first, err := h.summary.ProjectTimeSummary(ctx, projA)
	require.NoError(t, err)
	second, err := h.summary.ProjectTimeSummary(ctx, projA)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSummary_EmptyProject(t *testing.T) {
	h := newHarness(t)

	sum, err := h.summary.ProjectTimeSummary(context.Background(), projB)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.EntryCount)
	assert.True(t, sum.TotalLaborCost.IsZero())
	assert.Empty(t, sum.Employees)
}

func TestSummary_IndependentOfLedger(t *testing.T) {
	// GIVEN: A manual labor expense on the project
	// THEN: The summary ignores it; it is computed from time entries only

	h := newHarness(t)
	ctx := context.Background()
	h.log(t, empHourly, projA, "8")
	_, err := h.ledger.Append(ctx, ledger.ExpenseRecord{ProjectID: projA, ExpenseType: ledger.ExpenseLabor, Amount: dec("999"), Description: "crew bonus"})
	require.NoError(t, err)

	sum, err := h.summary.ProjectTimeSummary(ctx, projA)
	require.NoError(t, err)
	assertDec(t, "204.00", sum.TotalLaborCost)

	audit, err := h.summary.Audit(ctx, projA)
	require.NoError(t, err)
	assert.True(t, audit.Consistent())
	assertDec(t, "999", audit.ManualLaborCost)
}

func TestSummary_UnknownEmployee(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Written straight to the store: the reconciler would refuse it.
	e, err := h.entries.Add(ctx, labor.NewTimeEntry{ProjectID: projA, EmployeeID: "emp_gone", Hours: dec("3"), Billable: true})
	require.NoError(t, err)

	sum, err := h.summary.ProjectTimeSummary(ctx, projA)
	require.NoError(t, err)
	require.Len(t, sum.Employees, 1)
	assert.Equal(t, labor.UnknownEmployee, sum.Employees[0].Name)
	assert.Equal(t, labor.DefaultDepartment, sum.Employees[0].Department)
	assert.True(t, sum.TotalLaborCost.IsZero())

	view, err := h.entries.GetView(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, labor.UnknownEmployee, view.EmployeeName)
	assert.Equal(t, "Kitchen Remodel", view.ProjectName)
}

func TestAudit_ConsistentAfterLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	kept := h.log(t, empHourly, projA, "8")
	gone := h.log(t, empSalary, projA, "4.5")
	_, err := h.reconciler.EditTimeEntry(ctx, kept.ID, labor.TimeEntryPatch{Hours: decPtr("5")})
	require.NoError(t, err)
	_, err = h.reconciler.DeleteTimeEntry(ctx, gone.ID)
	require.NoError(t, err)

	audit, err := h.summary.Audit(ctx, projA)
	require.NoError(t, err)

	assert.True(t, audit.Consistent(), "drift: %+v", audit.Drift)
	assert.Equal(t, 2, audit.CheckedEntries)
	assertDec(t, "127.50", audit.SummaryLaborCost)
	assertDec(t, "127.50", audit.LedgerLaborCost)
}

func TestAudit_DetectsInjectedDrift(t *testing.T) {
	// GIVEN: A labor record written behind the reconciler's back
	// WHEN: Audit runs
	// THEN: The entry is reported with expected vs recorded amounts

	h := newHarness(t)
	ctx := context.Background()
	e := h.log(t, empHourly, projA, "8")

	_, err := h.ledger.Append(ctx, ledger.ExpenseRecord{
		ProjectID:   projA,
		ExpenseType: ledger.ExpenseLabor,
		Amount:      dec("10"),
		TimeEntryID: e.ID,
	})
	require.NoError(t, err)

	audit, err := h.summary.Audit(ctx, projA)
	require.NoError(t, err)

	assert.False(t, audit.Consistent())
	assertDec(t, "10", audit.Difference)
	require.Len(t, audit.Drift, 1)
	assert.Equal(t, e.ID, audit.Drift[0].TimeEntryID)
	assertDec(t, "204.00", audit.Drift[0].Expected)
	assertDec(t, "214.00", audit.Drift[0].Recorded)
	assert.True(t, audit.Drift[0].Active)
}

func TestAudit_DeleteAfterRateChangeLeavesResidual(t *testing.T) {
	// GIVEN: Michael logs 8h at 25.50 (204.00), then his rate rises to 30.00
	// WHEN: The entry is deleted (offset priced at today's rate, -240.00)
	// THEN: Audit reports the removed entry with its -36.00 residual

	h := newHarness(t)
	ctx := context.Background()
	e := h.log(t, empHourly, projA, "8")

	require.NoError(t, h.mem.SaveEmployee(ctx, labor.Employee{
		ID: empHourly, Name: "Michael Davis", Department: "Construction",
		PaymentType: labor.PaymentHourly, HourlyRate: dec("30"), HoursPerWeek: 35, IsActive: true,
	}))
	deleted, err := h.reconciler.DeleteTimeEntry(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	audit, err := h.summary.Audit(ctx, projA)
	require.NoError(t, err)

	assert.False(t, audit.Consistent())
	assert.Equal(t, 1, audit.CheckedEntries)
	assert.True(t, audit.SummaryLaborCost.IsZero())
	assertDec(t, "-36", audit.LedgerLaborCost)
	assertDec(t, "-36", audit.Difference)

	require.Len(t, audit.Drift, 1)
	drift := audit.Drift[0]
	assert.Equal(t, e.ID, drift.TimeEntryID)
	assert.False(t, drift.Active)
	assertDec(t, "0", drift.Expected)
	assertDec(t, "-36", drift.Recorded)
}
