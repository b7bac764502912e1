/*
store.go - Collaborator and persistence interfaces for the labor engine

PURPOSE:
  The engine never talks to a database directly. It consumes:
    - EmployeeDirectory: who the employee is and how they are paid
    - ProjectStore:      project names, budgets, ledger partition keys
    - TimeEntryStore:    raw logged-time records
    - TxStore:           one transaction spanning time entries AND ledger

ATOMICITY:
  WithTx hands fn a Store bound to a single database transaction. The
  time entry write and its expense record are both made through that
  Store, so they commit or roll back together.

VERSIONING:
  UpdateTimeEntry and DeleteTimeEntry take the version the caller read.
  If the stored version moved on, they return
  ledger.ErrConcurrentModification and write nothing.

IMPLEMENTATIONS:
  - store/sqlstore: SQLite / Postgres
  - store/memory:   In-memory
*/
package labor

import (
	"context"

	"github.com/warp/labor-ledger/ledger"
)

// EmployeeDirectory resolves employees. Missing employees are nil, nil.
type EmployeeDirectory interface {
	LookupEmployee(ctx context.Context, id ledger.EmployeeID) (*Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
}

// ProjectStore resolves projects. Missing projects are nil, nil.
type ProjectStore interface {
	LookupProject(ctx context.Context, id ledger.ProjectID) (*Project, error)
}

// TimeEntryStore persists time entries.
type TimeEntryStore interface {
	InsertTimeEntry(ctx context.Context, e TimeEntry) error

	// GetTimeEntry returns nil, nil when the entry doesn't exist.
	GetTimeEntry(ctx context.Context, id ledger.TimeEntryID) (*TimeEntry, error)

	// ListTimeEntries returns matching entries ordered by date, then ID.
	ListTimeEntries(ctx context.Context, filter TimeEntryFilter) ([]TimeEntry, error)

	// UpdateTimeEntry stores e with e.Version = expectedVersion + 1.
	UpdateTimeEntry(ctx context.Context, e TimeEntry, expectedVersion int64) error

	// DeleteTimeEntry removes the entry if its version still matches.
	DeleteTimeEntry(ctx context.Context, id ledger.TimeEntryID, expectedVersion int64) error
}

// Store is everything the reconciler writes through.
type Store interface {
	TimeEntryStore
	ledger.Store
}

// TxStore runs fn inside one transaction. fn returning an error rolls
// back every write made through the Store it was given.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
