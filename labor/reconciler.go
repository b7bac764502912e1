/*
reconciler.go - Time Entry Reconciler

PURPOSE:
  The only writer of labor records. Every create, edit and delete of a
  time entry is paired with the ledger records that keep

      sum(ledger amounts for entry) == LaborCost(employee, hours)

  true, and both halves commit in one transaction.

STATE MACHINE (per time entry id):
  Nonexistent --create--> Active --edit*--> Active --delete--> Removed
  Ledger history survives every transition.

PRICING:
  create:  +LaborCost(emp, hours)
  edit:    LaborCost(newEmp, newHours) - LaborCost(oldEmp, oldHours)
           appended whenever hours or employee changed (even if it nets 0)
  move:    -oldCost on the old project, +newCost on the new project
  delete:  -LaborCost(emp, hours)

CONCURRENCY:
  Edits and deletes of one id run under a per-id lock. Everything that
  needs a lookup (current entry, employee, project, rates) happens
  before the transaction; inside it there are only writes. The update
  and delete are version-checked, so a writer that bypassed the lock is
  detected at commit and the operation is recomputed from fresh state.

FAILURE POLICY:
  - ErrConcurrentModification: re-read and recompute, up to maxAttempts,
    then *ConflictError
  - Any other transaction failure: *ConsistencyError, retried once,
    then surfaced
  - Validation / not found: returned immediately
*/
package labor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/warp/labor-ledger/ledger"
	"github.com/warp/labor-ledger/lock"
	"github.com/warp/labor-ledger/metrics"
)

const (
	// DefaultMaxAttempts bounds recomputation after a version conflict.
	DefaultMaxAttempts = 3

	opLog    = "log"
	opUpdate = "update"
	opDelete = "delete"

	tracerName = "github.com/warp/labor-ledger/labor"
)

type Reconciler struct {
	store       TxStore
	entries     *TimeEntries
	calc        *Calculator
	ledger      *ledger.Ledger
	locker      lock.Locker
	metrics     *metrics.Metrics
	log         *zap.Logger
	tracer      trace.Tracer
	maxAttempts int
}

type Option func(*Reconciler)

// WithLocker replaces the in-process keyed lock, e.g. with a Redis lock
// shared by every instance.
func WithLocker(lk lock.Locker) Option { return func(r *Reconciler) { r.locker = lk } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *Reconciler) { r.metrics = m } }

func WithLogger(log *zap.Logger) Option { return func(r *Reconciler) { r.log = log } }

func WithTracer(t trace.Tracer) Option { return func(r *Reconciler) { r.tracer = t } }

// WithMaxAttempts sets how often a conflicting edit or delete is
// recomputed. Values < 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(r *Reconciler) {
		if n >= 1 {
			r.maxAttempts = n
		}
	}
}

// NewReconciler wires the reconciler. entries must read and write
// through store.
func NewReconciler(store TxStore, entries *TimeEntries, calc *Calculator, l *ledger.Ledger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:       store,
		entries:     entries,
		calc:        calc,
		ledger:      l,
		locker:      lock.NewKeyed(),
		log:         zap.NewNop(),
		tracer:      otel.Tracer(tracerName),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// =============================================================================
// CREATE
// =============================================================================

// AddTimeEntry persists a new entry and its labor charge atomically.
func (r *Reconciler) AddTimeEntry(ctx context.Context, in NewTimeEntry) (entry TimeEntry, err error) {
	ctx, done := r.begin(ctx, opLog, "")
	defer func() { done(entry.ID, err) }()

	e, err := r.entries.build(in)
	if err != nil {
		return TimeEntry{}, err
	}
	emp, err := r.requireEmployee(ctx, e.EmployeeID)
	if err != nil {
		return TimeEntry{}, err
	}
	if _, err := r.requireProject(ctx, e.ProjectID); err != nil {
		return TimeEntry{}, err
	}
	cost, err := r.calc.LaborCost(ctx, e.EmployeeID, e.Hours)
	if err != nil {
		return TimeEntry{}, err
	}

	rec := ledger.ExpenseRecord{
		ProjectID:   e.ProjectID,
		ExpenseType: ledger.ExpenseLabor,
		Amount:      cost,
		Date:        e.Date,
		Description: fmt.Sprintf("Labor: %s - %s hours - %s", emp.Name, e.Hours, e.Description),
		AddedBy:     ledger.SystemActor,
		TimeEntryID: e.ID,
	}

	err = r.commit(ctx, opLog, e.ID, func(s Store) ([]ledger.ExpenseRecord, error) {
		if err := s.InsertTimeEntry(ctx, e); err != nil {
			return nil, err
		}
		return r.appendAll(ctx, s, rec)
	})
	if err != nil {
		return TimeEntry{}, err
	}

	r.log.Info("time entry logged",
		zap.String("time_entry_id", string(e.ID)),
		zap.String("project_id", string(e.ProjectID)),
		zap.String("employee_id", string(e.EmployeeID)),
		zap.String("hours", e.Hours.String()),
		zap.String("cost", cost.String()),
	)
	return e, nil
}

// =============================================================================
// EDIT
// =============================================================================

// EditTimeEntry applies patch and appends the labor adjustment for it.
func (r *Reconciler) EditTimeEntry(ctx context.Context, id ledger.TimeEntryID, patch TimeEntryPatch) (entry TimeEntry, err error) {
	ctx, done := r.begin(ctx, opUpdate, id)
	defer func() { done(id, err) }()

	release, err := r.acquire(ctx, id)
	if err != nil {
		return TimeEntry{}, err
	}
	defer release()

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		entry, err = r.editOnce(ctx, id, patch)
		if !errors.Is(err, ledger.ErrConcurrentModification) {
			return entry, err
		}
		lastErr = err
		r.retried(ctx, opUpdate, id, "conflict", attempt, err)
	}
	return TimeEntry{}, &ledger.ConflictError{TimeEntryID: id, Attempts: r.maxAttempts, Err: lastErr}
}

func (r *Reconciler) editOnce(ctx context.Context, id ledger.TimeEntryID, patch TimeEntryPatch) (TimeEntry, error) {
	cur, err := r.entries.Get(ctx, id)
	if err != nil {
		return TimeEntry{}, err
	}
	next, err := r.entries.merge(*cur, patch)
	if err != nil {
		return TimeEntry{}, err
	}

	recs, err := r.adjustments(ctx, *cur, next)
	if err != nil {
		return TimeEntry{}, err
	}

	err = r.commit(ctx, opUpdate, id, func(s Store) ([]ledger.ExpenseRecord, error) {
		if err := s.UpdateTimeEntry(ctx, next, cur.Version); err != nil {
			return nil, err
		}
		return r.appendAll(ctx, s, recs...)
	})
	if err != nil {
		return TimeEntry{}, err
	}

	fields := []zap.Field{
		zap.String("time_entry_id", string(id)),
		zap.Int64("version", next.Version),
		zap.Int("ledger_records", len(recs)),
	}
	for _, rec := range recs {
		fields = append(fields, zap.String("amount:"+string(rec.ProjectID), rec.Amount.String()))
	}
	r.log.Info("time entry updated", fields...)
	return next, nil
}

// adjustments prices the move from cur to next.
func (r *Reconciler) adjustments(ctx context.Context, cur, next TimeEntry) ([]ledger.ExpenseRecord, error) {
	movedProject := next.ProjectID != cur.ProjectID
	changedEmployee := next.EmployeeID != cur.EmployeeID
	changedHours := !next.Hours.Equal(cur.Hours)

	if !movedProject && !changedEmployee && !changedHours {
		return nil, nil
	}

	// A new employee must exist; the current one may have left the directory.
	var name string
	if changedEmployee {
		emp, err := r.requireEmployee(ctx, next.EmployeeID)
		if err != nil {
			return nil, err
		}
		name = emp.Name
	} else {
		var err error
		if name, err = r.employeeName(ctx, next.EmployeeID); err != nil {
			return nil, err
		}
	}
	if movedProject {
		if _, err := r.requireProject(ctx, next.ProjectID); err != nil {
			return nil, err
		}
	}

	oldCost, err := r.calc.LaborCost(ctx, cur.EmployeeID, cur.Hours)
	if err != nil {
		return nil, err
	}
	newCost, err := r.calc.LaborCost(ctx, next.EmployeeID, next.Hours)
	if err != nil {
		return nil, err
	}

	date := next.Date
	if movedProject {
		return []ledger.ExpenseRecord{
			{
				ProjectID:   cur.ProjectID,
				ExpenseType: ledger.ExpenseLabor,
				Amount:      oldCost.Neg(),
				Date:        date,
				Description: fmt.Sprintf("Labor moved to %s: %s - %s hours - %s", next.ProjectID, name, cur.Hours, cur.Description),
				AddedBy:     ledger.SystemActor,
				TimeEntryID: cur.ID,
			},
			{
				ProjectID:   next.ProjectID,
				ExpenseType: ledger.ExpenseLabor,
				Amount:      newCost,
				Date:        date,
				Description: fmt.Sprintf("Labor moved from %s: %s - %s hours - %s", cur.ProjectID, name, next.Hours, next.Description),
				AddedBy:     ledger.SystemActor,
				TimeEntryID: cur.ID,
			},
		}, nil
	}

	return []ledger.ExpenseRecord{{
		ProjectID:   next.ProjectID,
		ExpenseType: ledger.ExpenseLabor,
		Amount:      newCost.Sub(oldCost),
		Date:        date,
		Description: fmt.Sprintf("Labor adjustment: %s - %s hours - %s", name, next.Hours.Sub(cur.Hours), next.Description),
		AddedBy:     ledger.SystemActor,
		TimeEntryID: cur.ID,
	}}, nil
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteTimeEntry removes the entry and appends the offsetting charge.
// An unknown id is (false, nil).
func (r *Reconciler) DeleteTimeEntry(ctx context.Context, id ledger.TimeEntryID) (deleted bool, err error) {
	ctx, done := r.begin(ctx, opDelete, id)
	defer func() { done(id, err) }()

	release, err := r.acquire(ctx, id)
	if err != nil {
		return false, err
	}
	defer release()

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		deleted, err = r.deleteOnce(ctx, id)
		if !errors.Is(err, ledger.ErrConcurrentModification) {
			return deleted, err
		}
		lastErr = err
		r.retried(ctx, opDelete, id, "conflict", attempt, err)
	}
	return false, &ledger.ConflictError{TimeEntryID: id, Attempts: r.maxAttempts, Err: lastErr}
}

func (r *Reconciler) deleteOnce(ctx context.Context, id ledger.TimeEntryID) (bool, error) {
	cur, err := r.store.GetTimeEntry(ctx, id)
	if err != nil {
		return false, err
	}
	if cur == nil {
		return false, nil
	}

	cost, err := r.calc.LaborCost(ctx, cur.EmployeeID, cur.Hours)
	if err != nil {
		return false, err
	}
	name, err := r.employeeName(ctx, cur.EmployeeID)
	if err != nil {
		return false, err
	}

	rec := ledger.ExpenseRecord{
		ProjectID:   cur.ProjectID,
		ExpenseType: ledger.ExpenseLabor,
		Amount:      cost.Neg(),
		Date:        cur.Date,
		Description: fmt.Sprintf("Removed labor: %s - %s hours - %s", name, cur.Hours, cur.Description),
		AddedBy:     ledger.SystemActor,
		TimeEntryID: cur.ID,
	}

	err = r.commit(ctx, opDelete, id, func(s Store) ([]ledger.ExpenseRecord, error) {
		appended, err := r.appendAll(ctx, s, rec)
		if err != nil {
			return nil, err
		}
		return appended, s.DeleteTimeEntry(ctx, id, cur.Version)
	})
	if errors.Is(err, ledger.ErrNotFound) {
		// Removed by a writer outside the lock between read and commit.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	r.log.Info("time entry deleted",
		zap.String("time_entry_id", string(id)),
		zap.String("amount", rec.Amount.String()),
	)
	return true, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// commit runs fn in one transaction. Failures that are not business
// outcomes become a *ConsistencyError and are retried once. The records
// fn appended are counted only once their transaction has committed.
func (r *Reconciler) commit(ctx context.Context, op string, id ledger.TimeEntryID, fn func(Store) ([]ledger.ExpenseRecord, error)) error {
	var appended []ledger.ExpenseRecord
	tx := func(s Store) error {
		var err error
		appended, err = fn(s)
		return err
	}

	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		err = r.store.WithTx(ctx, tx)
		if err == nil {
			r.ledger.Committed(appended...)
			return nil
		}
		if isDomainError(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = &ledger.ConsistencyError{Op: op, TimeEntryID: id, Err: err}
		if attempt == 1 {
			r.retried(ctx, op, id, "consistency", attempt, err)
		}
	}
	return err
}

func (r *Reconciler) appendAll(ctx context.Context, s Store, recs ...ledger.ExpenseRecord) ([]ledger.ExpenseRecord, error) {
	out := make([]ledger.ExpenseRecord, 0, len(recs))
	for _, rec := range recs {
		stored, err := r.ledger.AppendTo(ctx, s, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

func isDomainError(err error) bool {
	return errors.Is(err, ledger.ErrValidation) ||
		errors.Is(err, ledger.ErrNotFound) ||
		errors.Is(err, ledger.ErrConcurrentModification) ||
		errors.Is(err, ledger.ErrDuplicate)
}

// acquire takes the per-entry lock. The returned func releases it even
// if ctx has been cancelled meanwhile.
func (r *Reconciler) acquire(ctx context.Context, id ledger.TimeEntryID) (func(), error) {
	held, err := r.locker.Obtain(ctx, "time-entry:"+string(id))
	if err != nil {
		if errors.Is(err, lock.ErrNotObtained) {
			return nil, fmt.Errorf("%w: time entry %s: %w", ledger.ErrLockNotObtained, id, err)
		}
		return nil, err
	}
	return func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			r.log.Warn("failed to release time entry lock", zap.String("time_entry_id", string(id)), zap.Error(err))
		}
	}, nil
}

func (r *Reconciler) requireEmployee(ctx context.Context, id ledger.EmployeeID) (*Employee, error) {
	emp, err := r.entries.employees.LookupEmployee(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup employee %s: %w", id, err)
	}
	if emp == nil {
		return nil, ledger.NotFound("employee", string(id))
	}
	return emp, nil
}

func (r *Reconciler) requireProject(ctx context.Context, id ledger.ProjectID) (*Project, error) {
	p, err := r.entries.projects.LookupProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup project %s: %w", id, err)
	}
	if p == nil {
		return nil, ledger.NotFound("project", string(id))
	}
	return p, nil
}

// employeeName tolerates employees removed from the directory.
func (r *Reconciler) employeeName(ctx context.Context, id ledger.EmployeeID) (string, error) {
	emp, err := r.entries.employees.LookupEmployee(ctx, id)
	if err != nil {
		return "", fmt.Errorf("lookup employee %s: %w", id, err)
	}
	if emp == nil {
		return UnknownEmployee, nil
	}
	return emp.Name, nil
}

// begin opens the operation span and returns the func that closes it
// with metrics and, on failure, a log line.
func (r *Reconciler) begin(ctx context.Context, op string, id ledger.TimeEntryID) (context.Context, func(ledger.TimeEntryID, error)) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "labor.reconciler."+op,
		trace.WithAttributes(attribute.String("labor.op", op)))

	return ctx, func(id ledger.TimeEntryID, err error) {
		outcome := ledger.Outcome(err)
		if id != "" {
			span.SetAttributes(attribute.String("labor.time_entry_id", string(id)))
		}
		span.SetAttributes(attribute.String("labor.outcome", outcome))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()

		r.metrics.ObserveOperation(op, outcome, time.Since(start))
		if err != nil && !ledger.IsClientError(err) && !ledger.IsNotFound(err) {
			r.log.Warn("time entry operation failed",
				zap.String("op", op),
				zap.String("time_entry_id", string(id)),
				zap.String("outcome", outcome),
				zap.Error(err),
			)
		}
	}
}

func (r *Reconciler) retried(ctx context.Context, op string, id ledger.TimeEntryID, reason string, attempt int, err error) {
	r.metrics.ObserveRetry(op, reason)
	trace.SpanFromContext(ctx).AddEvent("retry", trace.WithAttributes(
		attribute.String("reason", reason),
		attribute.Int("attempt", attempt),
	))
	r.log.Debug("retrying time entry operation",
		zap.String("op", op),
		zap.String("time_entry_id", string(id)),
		zap.String("reason", reason),
		zap.Int("attempt", attempt),
		zap.Error(err),
	)
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Entries exposes the read side that shares this reconciler's store.
func (r *Reconciler) Entries() *TimeEntries { return r.entries }

// Ledger exposes the ledger the reconciler writes labor records to.
func (r *Reconciler) Ledger() *ledger.Ledger { return r.ledger }
