/*
timeentry.go - Time Entry Store

PURPOSE:
  CRUD over logged time. Entries are validated here and persisted through
  a TimeEntryStore; names are attached only when a view is requested.

  This type does NOT touch the ledger. Mutations that must keep labor
  cost in step go through the Reconciler, which reuses the validation and
  merge rules below inside its own transaction.

LIFECYCLE:
  Nonexistent --Add--> Active(v1) --Edit--> Active(v2) ... --Delete--> Removed
*/
package labor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/labor-ledger/ledger"
)

const (
	UnknownEmployee = "Unknown Employee"
	UnknownProject  = "Unknown Project"
)

type TimeEntries struct {
	store     TimeEntryStore
	employees EmployeeDirectory
	projects  ProjectStore
	ids       ledger.IDGenerator
	now       func() time.Time
}

func NewTimeEntries(store TimeEntryStore, employees EmployeeDirectory, projects ProjectStore, ids ledger.IDGenerator) *TimeEntries {
	return &TimeEntries{
		store:     store,
		employees: employees,
		projects:  projects,
		ids:       ids,
		now:       time.Now,
	}
}

// =============================================================================
// WRITES
// =============================================================================

// Add validates and persists a new entry. hours <= 0 persists nothing.
func (t *TimeEntries) Add(ctx context.Context, in NewTimeEntry) (TimeEntry, error) {
	e, err := t.build(in)
	if err != nil {
		return TimeEntry{}, err
	}
	if err := t.store.InsertTimeEntry(ctx, e); err != nil {
		return TimeEntry{}, err
	}
	return e, nil
}

// Edit merges patch onto the stored entry. The write is version-checked.
func (t *TimeEntries) Edit(ctx context.Context, id ledger.TimeEntryID, patch TimeEntryPatch) (TimeEntry, error) {
	cur, err := t.Get(ctx, id)
	if err != nil {
		return TimeEntry{}, err
	}
	next, err := t.merge(*cur, patch)
	if err != nil {
		return TimeEntry{}, err
	}
	if err := t.store.UpdateTimeEntry(ctx, next, cur.Version); err != nil {
		return TimeEntry{}, err
	}
	return next, nil
}

// Delete removes the entry. An unknown id is (false, nil).
func (t *TimeEntries) Delete(ctx context.Context, id ledger.TimeEntryID) (bool, error) {
	cur, err := t.store.GetTimeEntry(ctx, id)
	if err != nil || cur == nil {
		return false, err
	}
	if err := t.store.DeleteTimeEntry(ctx, id, cur.Version); err != nil {
		return false, err
	}
	return true, nil
}

// build turns create input into a fresh version-1 entry.
func (t *TimeEntries) build(in NewTimeEntry) (TimeEntry, error) {
	now := t.now().UTC()
	date := in.Date
	if date.IsZero() {
		date = now
	}
	e := TimeEntry{
		ProjectID:   in.ProjectID,
		EmployeeID:  in.EmployeeID,
		Date:        truncateDay(date),
		Hours:       in.Hours,
		Billable:    in.Billable,
		Description: in.Description,
		TaskID:      in.TaskID,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validateEntry(e); err != nil {
		return TimeEntry{}, err
	}
	e.ID = ledger.TimeEntryID(t.ids.GenerateID(TimeEntryPrefix))
	return e, nil
}

// merge applies patch to cur and returns the next version.
func (t *TimeEntries) merge(cur TimeEntry, patch TimeEntryPatch) (TimeEntry, error) {
	next := patch.Apply(cur)
	next.Date = truncateDay(next.Date)
	if err := validateEntry(next); err != nil {
		return TimeEntry{}, err
	}
	next.Version = cur.Version + 1
	next.UpdatedAt = t.now().UTC()
	return next, nil
}

func validateEntry(e TimeEntry) error {
	if e.ProjectID == "" {
		return ledger.Invalid("project_id", "is required")
	}
	if e.EmployeeID == "" {
		return ledger.Invalid("employee_id", "is required")
	}
	if !e.Hours.GreaterThan(decimal.Zero) {
		return ledger.Invalid("hours", "must be greater than 0")
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

// Get returns the entry or a NotFoundError.
func (t *TimeEntries) Get(ctx context.Context, id ledger.TimeEntryID) (*TimeEntry, error) {
	e, err := t.store.GetTimeEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ledger.NotFound("time entry", string(id))
	}
	return e, nil
}

func (t *TimeEntries) GetView(ctx context.Context, id ledger.TimeEntryID) (*TimeEntryView, error) {
	e, err := t.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	views, err := t.views(ctx, []TimeEntry{*e})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (t *TimeEntries) List(ctx context.Context) ([]TimeEntry, error) {
	return t.store.ListTimeEntries(ctx, TimeEntryFilter{})
}

func (t *TimeEntries) ListByProject(ctx context.Context, id ledger.ProjectID) ([]TimeEntry, error) {
	return t.store.ListTimeEntries(ctx, TimeEntryFilter{ProjectID: id})
}

func (t *TimeEntries) ListByEmployee(ctx context.Context, id ledger.EmployeeID) ([]TimeEntry, error) {
	return t.store.ListTimeEntries(ctx, TimeEntryFilter{EmployeeID: id})
}

// ListViews returns matching entries with names resolved.
func (t *TimeEntries) ListViews(ctx context.Context, filter TimeEntryFilter) ([]TimeEntryView, error) {
	entries, err := t.store.ListTimeEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	return t.views(ctx, entries)
}

// views resolves each distinct employee and project once.
func (t *TimeEntries) views(ctx context.Context, entries []TimeEntry) ([]TimeEntryView, error) {
	empNames := make(map[ledger.EmployeeID]string)
	projNames := make(map[ledger.ProjectID]string)

	out := make([]TimeEntryView, 0, len(entries))
	for _, e := range entries {
		name, ok := empNames[e.EmployeeID]
		if !ok {
			emp, err := t.employees.LookupEmployee(ctx, e.EmployeeID)
			if err != nil {
				return nil, err
			}
			name = UnknownEmployee
			if emp != nil {
				name = emp.Name
			}
			empNames[e.EmployeeID] = name
		}

		pname, ok := projNames[e.ProjectID]
		if !ok {
			proj, err := t.projects.LookupProject(ctx, e.ProjectID)
			if err != nil {
				return nil, err
			}
			pname = UnknownProject
			if proj != nil {
				pname = proj.Name
			}
			projNames[e.ProjectID] = pname
		}

		out = append(out, TimeEntryView{TimeEntry: e, EmployeeName: name, ProjectName: pname})
	}
	return out, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
