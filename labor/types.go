// Package labor turns logged employee time into project labor cost.
//
// It owns the compensation model (hourly vs salaried pay normalized to
// $/hour), the time entry store, the reconciler that keeps the expense
// ledger in step with every time entry mutation, and the read-only
// summary used for reporting.
package labor

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/labor-ledger/ledger"
)

// =============================================================================
// EMPLOYEE - Read-only, owned by the employee directory
// =============================================================================

type PaymentType string

const (
	PaymentHourly PaymentType = "hourly"
	PaymentSalary PaymentType = "salary"
)

func (p PaymentType) Valid() bool { return p == PaymentHourly || p == PaymentSalary }

type Employee struct {
	ID           ledger.EmployeeID
	Name         string
	Email        string
	Position     string
	Department   string
	PaymentType  PaymentType
	HourlyRate   decimal.Decimal // used iff hourly
	AnnualSalary decimal.Decimal // used iff salary
	HoursPerWeek int
	IsActive     bool
	CreatedAt    time.Time
}

// =============================================================================
// PROJECT - Read-only, owned by the project store
// =============================================================================

type Project struct {
	ID         ledger.ProjectID
	Name       string
	ClientName string
	Status     string
	HasBudget  bool
	Budget     decimal.Decimal
	CreatedAt  time.Time
}

// =============================================================================
// TIME ENTRY
// =============================================================================

// TimeEntryPrefix is the ID prefix of time entries.
const TimeEntryPrefix = "time"

type TimeEntry struct {
	ID          ledger.TimeEntryID
	ProjectID   ledger.ProjectID
	EmployeeID  ledger.EmployeeID
	Date        time.Time
	Hours       decimal.Decimal
	Billable    bool
	Description string
	TaskID      string // optional

	// Version is the optimistic concurrency token. It starts at 1 and is
	// bumped by every committed update.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TimeEntryView is a TimeEntry with names resolved at read time.
// It is never persisted.
type TimeEntryView struct {
	TimeEntry
	EmployeeName string
	ProjectName  string
}

// NewTimeEntry is the input of the create path.
type NewTimeEntry struct {
	ProjectID   ledger.ProjectID
	EmployeeID  ledger.EmployeeID
	Date        time.Time // zero means today
	Hours       decimal.Decimal
	Billable    bool
	Description string
	TaskID      string
}

// TimeEntryPatch carries the fields an edit provides. Nil means unchanged.
type TimeEntryPatch struct {
	ProjectID   *ledger.ProjectID
	EmployeeID  *ledger.EmployeeID
	Date        *time.Time
	Hours       *decimal.Decimal
	Billable    *bool
	Description *string
	TaskID      *string
}

// IsEmpty reports whether the patch changes nothing.
func (p TimeEntryPatch) IsEmpty() bool {
	return p.ProjectID == nil && p.EmployeeID == nil && p.Date == nil &&
		p.Hours == nil && p.Billable == nil && p.Description == nil && p.TaskID == nil
}

// Apply merges the patch onto e and returns the result. e is not modified.
func (p TimeEntryPatch) Apply(e TimeEntry) TimeEntry {
	next := e
	if p.ProjectID != nil {
		next.ProjectID = *p.ProjectID
	}
	if p.EmployeeID != nil {
		next.EmployeeID = *p.EmployeeID
	}
	if p.Date != nil {
		next.Date = *p.Date
	}
	if p.Hours != nil {
		next.Hours = *p.Hours
	}
	if p.Billable != nil {
		next.Billable = *p.Billable
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.TaskID != nil {
		next.TaskID = *p.TaskID
	}
	return next
}

// TimeEntryFilter selects time entries. Zero-valued fields do not filter.
type TimeEntryFilter struct {
	ProjectID  ledger.ProjectID
	EmployeeID ledger.EmployeeID
	From       *time.Time // inclusive, by entry date
	To         *time.Time // inclusive, by entry date
}

func (f TimeEntryFilter) Matches(e TimeEntry) bool {
	if f.ProjectID != "" && e.ProjectID != f.ProjectID {
		return false
	}
	if f.EmployeeID != "" && e.EmployeeID != f.EmployeeID {
		return false
	}
	if f.From != nil && e.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Date.After(*f.To) {
		return false
	}
	return true
}

// =============================================================================
// SUMMARY
// =============================================================================

type TimeSummary struct {
	ProjectID        ledger.ProjectID
	TotalHours       decimal.Decimal
	BillableHours    decimal.Decimal
	NonBillableHours decimal.Decimal
	TotalLaborCost   decimal.Decimal
	EntryCount       int
	Employees        []EmployeeBreakdown
	Departments      []DepartmentBreakdown
}

type EmployeeBreakdown struct {
	EmployeeID ledger.EmployeeID
	Name       string
	Department string
	Hours      decimal.Decimal
	Cost       decimal.Decimal
}

type DepartmentBreakdown struct {
	Department string
	Hours      decimal.Decimal
	Cost       decimal.Decimal
}

// =============================================================================
// COST REPORT - Labor cost across projects
// =============================================================================

// CostReportFilter narrows the cost report. Department matches the
// employee's current department; entries of unknown employees never match it.
type CostReportFilter struct {
	TimeEntryFilter
	Department string
}

type CostReport struct {
	Filter             CostReportFilter
	TotalHours         decimal.Decimal
	BillableHours      decimal.Decimal
	TotalLaborCost     decimal.Decimal
	BillablePercentage decimal.Decimal // 0 when there are no hours
	AverageHourlyCost  decimal.Decimal // 0 when there are no hours
	EntryCount         int
	ProjectCount       int

	// Projects holds the TopProjects most expensive projects, then one
	// OtherProjects row for the rest when it is positive.
	Projects      []ProjectCost
	Departments   []DepartmentBreakdown // most expensive first
	TopDepartment DepartmentShare
	Lines         []CostLine
}

type ProjectCost struct {
	ProjectID ledger.ProjectID // empty on the OtherProjects row
	Name      string
	Hours     decimal.Decimal
	Cost      decimal.Decimal
}

// DepartmentShare is a department's part of the report's labor cost.
type DepartmentShare struct {
	Department string
	Cost       decimal.Decimal
	Percentage decimal.Decimal
}

// CostLine is one priced time entry of the report.
type CostLine struct {
	TimeEntryView
	Department string
	HourlyRate decimal.Decimal
	Cost       decimal.Decimal
}

// DepartmentStats is the headcount and average hourly cost of active
// employees in one department.
type DepartmentStats struct {
	Department        string
	Headcount         int
	TotalHourlyCost   decimal.Decimal
	AverageHourlyCost decimal.Decimal
}

// =============================================================================
// AUDIT
// =============================================================================

// AuditReport compares the live summary against the ledger for a project.
// Manual labor records (no time entry) are reported apart and excluded
// from Difference.
type AuditReport struct {
	ProjectID        ledger.ProjectID
	SummaryLaborCost decimal.Decimal
	LedgerLaborCost  decimal.Decimal
	ManualLaborCost  decimal.Decimal
	Difference       decimal.Decimal // ledger - summary
	Drift            []EntryDrift
	CheckedEntries   int
	CheckedAt        time.Time
}

// Consistent reports whether ledger and summary agree everywhere.
func (r AuditReport) Consistent() bool {
	return r.Difference.IsZero() && len(r.Drift) == 0
}

// EntryDrift is one time entry whose ledger sum differs from its cost.
// Expected is zero for entries that no longer exist in the project.
type EntryDrift struct {
	TimeEntryID ledger.TimeEntryID
	Expected    decimal.Decimal
	Recorded    decimal.Decimal
	Active      bool
}
