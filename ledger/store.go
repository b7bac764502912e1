/*
store.go - Persistence interfaces for expense records

PURPOSE:
  Defines the boundary between ledger logic and the database. The
  Store is append-only: there is no Update and no Delete.

KEY INTERFACES:
  Store:         Record persistence (append, query, lookup)
  SnapshotStore: Cost-basis snapshots written by ProjectTotals
  Budgets:       Optional project budget lookup

IMPLEMENTATIONS:
  - store/sqlstore: SQLite (dev) and Postgres (prod)
  - store/memory:   In-memory for tests and demos

SEE ALSO:
  - ledger.go: Higher-level operations on top of Store
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store handles persistence of expense records.
// IMPORTANT: Store is APPEND-ONLY. Corrections are new records.
type Store interface {
	// Append persists a fully-populated record (ID and CreatedAt set).
	Append(ctx context.Context, rec ExpenseRecord) error

	// Query returns matching records ordered by CreatedAt, then ID.
	Query(ctx context.Context, filter ExpenseFilter) ([]ExpenseRecord, error)

	// GetRecord returns nil, nil when the record doesn't exist.
	GetRecord(ctx context.Context, id RecordID) (*ExpenseRecord, error)

	// IsReversed reports whether a reversal record points at id.
	IsReversed(ctx context.Context, id RecordID) (bool, error)
}

// SnapshotStore persists cost-basis snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap CostBasis) error
	LatestSnapshot(ctx context.Context, projectID ProjectID) (*CostBasis, error)
}

// Budgets resolves a project's budget. ok is false when the project has none.
type Budgets interface {
	ProjectBudget(ctx context.Context, projectID ProjectID) (budget decimal.Decimal, ok bool, err error)
}

// IDGenerator produces opaque "{PREFIX}-{RANDOM}" identifiers.
type IDGenerator interface {
	GenerateID(prefix string) string
}
