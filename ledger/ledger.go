/*
ledger.go - Append-only project expense ledger

PURPOSE:
  The Ledger is the immutable source of truth for project spend. Every
  labor charge, labor adjustment, material purchase and reversal is a
  record here. Totals are always computed by summing records; there is
  no stored "spent" column that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, records cannot be modified
  3. AUDITABLE: Every change is traceable to an actor and a description
  4. OWNED: Records linked to a time entry are written only by the
     labor reconciler; manual reversal refuses them

CORRECTIONS:
  A wrong manual expense is not edited. Reverse() appends the negated
  record pointing at the original via ReversesID; both stay in the ledger.

EXAMPLE FLOW:
  1. Crew logs 8h at $25.50:         labor   +204.00  (time-ABC)
  2. Entry edited to 5h:             labor    -76.50  (time-ABC)
  3. Lumber delivered:               material +1200.00
  4. Lumber invoice was duplicated:  material -1200.00 (reverses 3)

  labor for time-ABC: 127.50 == 25.50 * 5

SEE ALSO:
  - store.go: Low-level persistence interface
  - labor/reconciler.go: Writes the labor records
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/labor-ledger/lock"
	"github.com/warp/labor-ledger/metrics"
)

// RecordPrefix is the ID prefix of expense records.
const RecordPrefix = "exp"

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store   Store
	ids     IDGenerator
	budgets Budgets
	locker  lock.Locker
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

type Option func(*Ledger)

// WithBudgets lets ProjectTotals report budget and remaining amounts.
func WithBudgets(b Budgets) Option { return func(l *Ledger) { l.budgets = b } }

// WithLocker serializes reversals of the same record.
func WithLocker(lk lock.Locker) Option { return func(l *Ledger) { l.locker = lk } }

func WithMetrics(m *metrics.Metrics) Option { return func(l *Ledger) { l.metrics = m } }

func WithLogger(log *zap.Logger) Option { return func(l *Ledger) { l.log = log } }

func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

func New(store Store, ids IDGenerator, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		ids:    ids,
		locker: lock.NewKeyed(),
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// =============================================================================
// WRITES
// =============================================================================

// Append validates rec, assigns its ID and CreatedAt and persists it.
func (l *Ledger) Append(ctx context.Context, rec ExpenseRecord) (ExpenseRecord, error) {
	rec, err := l.AppendTo(ctx, l.store, rec)
	if err != nil {
		return ExpenseRecord{}, err
	}
	l.Committed(rec)
	return rec, nil
}

// AppendTo is Append against an explicit store, typically the
// transactional view handed out by a TxStore. The write is not counted
// until the caller reports it through Committed.
func (l *Ledger) AppendTo(ctx context.Context, s Store, rec ExpenseRecord) (ExpenseRecord, error) {
	rec, err := l.prepare(rec)
	if err != nil {
		return ExpenseRecord{}, err
	}
	if err := s.Append(ctx, rec); err != nil {
		return ExpenseRecord{}, err
	}
	return rec, nil
}

// Committed counts records whose transaction has committed.
func (l *Ledger) Committed(recs ...ExpenseRecord) {
	for _, rec := range recs {
		l.metrics.ObserveRecord(string(rec.ExpenseType))
	}
}

func (l *Ledger) prepare(rec ExpenseRecord) (ExpenseRecord, error) {
	if rec.ProjectID == "" {
		return rec, Invalid("project_id", "is required")
	}
	if !rec.ExpenseType.Valid() {
		return rec, Invalid("expense_type", fmt.Sprintf("unknown type %q", rec.ExpenseType))
	}
	now := l.now().UTC()
	if rec.Date.IsZero() {
		rec.Date = truncateDay(now)
	}
	if rec.AddedBy == "" {
		rec.AddedBy = SystemActor
	}
	rec.ID = RecordID(l.ids.GenerateID(RecordPrefix))
	rec.CreatedAt = now
	return rec, nil
}

// Reverse cancels a manual record by appending its negation.
// Labor records tied to a time entry are refused: the reconciler owns them.
func (l *Ledger) Reverse(ctx context.Context, id RecordID, actor string) (ExpenseRecord, error) {
	held, err := l.locker.Obtain(ctx, "expense:"+string(id))
	if err != nil {
		if errors.Is(err, lock.ErrNotObtained) {
			return ExpenseRecord{}, fmt.Errorf("%w: expense %s", ErrLockNotObtained, id)
		}
		return ExpenseRecord{}, err
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			l.log.Warn("failed to release expense lock", zap.String("expense_id", string(id)), zap.Error(err))
		}
	}()

	orig, err := l.store.GetRecord(ctx, id)
	if err != nil {
		return ExpenseRecord{}, err
	}
	if orig == nil {
		return ExpenseRecord{}, NotFound("expense", string(id))
	}
	if orig.IsLinked() {
		return ExpenseRecord{}, fmt.Errorf("%w: %s belongs to %s", ErrLinkedRecord, id, orig.TimeEntryID)
	}
	if orig.IsReversal() {
		return ExpenseRecord{}, Invalid("expense_id", "a reversal cannot be reversed")
	}
	reversed, err := l.store.IsReversed(ctx, id)
	if err != nil {
		return ExpenseRecord{}, err
	}
	if reversed {
		return ExpenseRecord{}, fmt.Errorf("%w: %s", ErrAlreadyReversed, id)
	}

	rec, err := l.Append(ctx, ExpenseRecord{
		ProjectID:   orig.ProjectID,
		ExpenseType: orig.ExpenseType,
		Amount:      orig.Amount.Neg(),
		Date:        truncateDay(l.now().UTC()),
		Description: "Reversal: " + orig.Description,
		AddedBy:     actor,
		ReversesID:  orig.ID,
	})
	if errors.Is(err, ErrDuplicate) {
		return ExpenseRecord{}, fmt.Errorf("%w: %s", ErrAlreadyReversed, id)
	}
	if err != nil {
		return ExpenseRecord{}, err
	}

	l.log.Info("expense reversed",
		zap.String("expense_id", string(id)),
		zap.String("reversal_id", string(rec.ID)),
		zap.String("amount", rec.Amount.String()),
	)
	return rec, nil
}

// =============================================================================
// READS
// =============================================================================

// Query returns matching records for reporting.
func (l *Ledger) Query(ctx context.Context, filter ExpenseFilter) ([]ExpenseRecord, error) {
	return l.store.Query(ctx, filter)
}

// SumForTimeEntry is the running labor total recorded for one time entry.
func (l *Ledger) SumForTimeEntry(ctx context.Context, id TimeEntryID) (decimal.Decimal, error) {
	recs, err := l.store.Query(ctx, ExpenseFilter{TimeEntryID: id})
	if err != nil {
		return decimal.Zero, err
	}
	return Sum(recs), nil
}

// ProjectTotals sums a project's records by type and stores the result as
// the latest cost-basis snapshot when the store supports it.
func (l *Ledger) ProjectTotals(ctx context.Context, projectID ProjectID) (CostBasis, error) {
	recs, err := l.store.Query(ctx, ExpenseFilter{ProjectID: projectID})
	if err != nil {
		return CostBasis{}, err
	}
	cb := NewCostBasis(projectID, recs)
	cb.TakenAt = l.now().UTC()

	if l.budgets != nil {
		budget, ok, err := l.budgets.ProjectBudget(ctx, projectID)
		if err != nil {
			return CostBasis{}, err
		}
		if ok {
			cb = cb.WithBudget(budget)
		}
	}

	if ss, ok := l.store.(SnapshotStore); ok {
		if err := ss.SaveSnapshot(ctx, cb); err != nil {
			return CostBasis{}, fmt.Errorf("save cost snapshot: %w", err)
		}
	}
	return cb, nil
}

// LatestSnapshot returns the last stored cost basis, or nil.
func (l *Ledger) LatestSnapshot(ctx context.Context, projectID ProjectID) (*CostBasis, error) {
	ss, ok := l.store.(SnapshotStore)
	if !ok {
		return nil, nil
	}
	return ss.LatestSnapshot(ctx, projectID)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
