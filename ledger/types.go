/*
Package ledger provides the project expense ledger.

PURPOSE:
  The ledger is the append-only source of truth for what a project has
  cost. Labor, material, overhead and every other spend is an
  ExpenseRecord. Records are never modified; a correction is a new record
  with the opposite sign.

KEY CONCEPTS IN THIS FILE (types.go):
  - ExpenseRecord: An immutable, signed monetary entry
  - ExpenseType: labor, material, overhead, ...
  - ExpenseFilter: Query shape for reporting
  - CostBasis: Per-type totals snapshot for a project
  - Typed identifiers shared with the labor package

DESIGN PRINCIPLES:
  1. Immutability: Records are never modified, only offset
  2. Precision: decimal.Decimal everywhere, no rounding in the engine
  3. Type Safety: Distinct ID types for projects, entries, records
  4. Auditability: Every record carries who added it and why

SEE ALSO:
  - ledger.go: Append / Query / Totals / Reverse
  - store.go: Persistence interfaces
  - labor/reconciler.go: Keeps labor records in step with time entries
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProjectID string
type EmployeeID string
type TimeEntryID string
type RecordID string

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// =============================================================================
// EXPENSE TYPE
// =============================================================================

type ExpenseType string

const (
	ExpenseLabor         ExpenseType = "labor"
	ExpenseMaterial      ExpenseType = "material"
	ExpenseOverhead      ExpenseType = "overhead"
	ExpenseEquipment     ExpenseType = "equipment"
	ExpenseSubcontractor ExpenseType = "subcontractor"
	ExpenseOther         ExpenseType = "other"
)

// ExpenseTypes lists every accepted type, in display order.
var ExpenseTypes = []ExpenseType{
	ExpenseLabor,
	ExpenseMaterial,
	ExpenseOverhead,
	ExpenseEquipment,
	ExpenseSubcontractor,
	ExpenseOther,
}

func (t ExpenseType) Valid() bool {
	for _, known := range ExpenseTypes {
		if t == known {
			return true
		}
	}
	return false
}

// SystemActor is the AddedBy value of records written by the engine itself.
const SystemActor = "system"

// =============================================================================
// EXPENSE RECORD - Immutable signed entry
// =============================================================================

type ExpenseRecord struct {
	ID          RecordID
	ProjectID   ProjectID
	ExpenseType ExpenseType
	Amount      decimal.Decimal // signed
	Date        time.Time
	Description string
	AddedBy     string

	// TimeEntryID links labor records to the time entry they price.
	// Records with a TimeEntryID are owned by the reconciler.
	TimeEntryID TimeEntryID

	// ReversesID is set on records that cancel a manual record.
	ReversesID RecordID

	CreatedAt time.Time
}

// IsLinked reports whether the record belongs to a time entry.
func (r ExpenseRecord) IsLinked() bool { return r.TimeEntryID != "" }

// IsReversal reports whether the record cancels another record.
func (r ExpenseRecord) IsReversal() bool { return r.ReversesID != "" }

// Sum adds up the amounts of records.
func Sum(records []ExpenseRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}

// =============================================================================
// QUERY
// =============================================================================

// ExpenseFilter selects records. Zero-valued fields do not filter.
type ExpenseFilter struct {
	ProjectID   ProjectID
	Types       []ExpenseType
	TimeEntryID TimeEntryID
	From        *time.Time // inclusive, by record date
	To          *time.Time // inclusive, by record date
}

// Matches applies the filter to a single record.
func (f ExpenseFilter) Matches(r ExpenseRecord) bool {
	if f.ProjectID != "" && r.ProjectID != f.ProjectID {
		return false
	}
	if f.TimeEntryID != "" && r.TimeEntryID != f.TimeEntryID {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if r.ExpenseType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && r.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && r.Date.After(*f.To) {
		return false
	}
	return true
}

// =============================================================================
// COST BASIS - Totals snapshot for a project
// =============================================================================

type CostBasis struct {
	ProjectID ProjectID
	Labor     decimal.Decimal
	Material  decimal.Decimal
	Overhead  decimal.Decimal
	Other     decimal.Decimal // equipment, subcontractor, other
	Total     decimal.Decimal

	// ByType keeps the raw per-type sums.
	ByType map[ExpenseType]decimal.Decimal

	// Budget is only meaningful when HasBudget is true.
	HasBudget bool
	Budget    decimal.Decimal
	Remaining decimal.Decimal

	RecordCount int
	TakenAt     time.Time
}

// NewCostBasis folds records into per-type totals.
func NewCostBasis(projectID ProjectID, records []ExpenseRecord) CostBasis {
	cb := CostBasis{
		ProjectID:   projectID,
		Labor:       decimal.Zero,
		Material:    decimal.Zero,
		Overhead:    decimal.Zero,
		Other:       decimal.Zero,
		Total:       decimal.Zero,
		ByType:      make(map[ExpenseType]decimal.Decimal),
		RecordCount: len(records),
	}
	for _, r := range records {
		cb.ByType[r.ExpenseType] = cb.ByType[r.ExpenseType].Add(r.Amount)
		switch r.ExpenseType {
		case ExpenseLabor:
			cb.Labor = cb.Labor.Add(r.Amount)
		case ExpenseMaterial:
			cb.Material = cb.Material.Add(r.Amount)
		case ExpenseOverhead:
			cb.Overhead = cb.Overhead.Add(r.Amount)
		default:
			cb.Other = cb.Other.Add(r.Amount)
		}
		cb.Total = cb.Total.Add(r.Amount)
	}
	return cb
}

// WithBudget attaches the project budget and the remaining amount.
func (cb CostBasis) WithBudget(budget decimal.Decimal) CostBasis {
	cb.HasBudget = true
	cb.Budget = budget
	cb.Remaining = budget.Sub(cb.Total)
	return cb
}
