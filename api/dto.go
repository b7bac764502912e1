/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the labor and ledger types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Small response wrappers

MONEY AND HOURS:
  Decimals are serialized as JSON strings ("127.5") and accepted as either
  strings or numbers. No rounding happens on the way out.

VALIDATION:
  Request bodies for employees, projects, time entries and expenses are
  parsed by the factory package, which owns the validation rules.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/factory.go: Request body schemas
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/labor-ledger/labor"
	"github.com/warp/labor-ledger/ledger"
)

// =============================================================================
// EMPLOYEES & PROJECTS
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Position     string          `json:"position"`
	Department   string          `json:"department"`
	PaymentType  string          `json:"payment_type"`
	HourlyRate   decimal.Decimal `json:"hourly_rate"`
	AnnualSalary decimal.Decimal `json:"annual_salary"`
	HoursPerWeek int             `json:"hours_per_week"`
	IsActive     bool            `json:"is_active"`
	HourlyCost   decimal.Decimal `json:"hourly_cost"`
	CreatedAt    string          `json:"created_at,omitempty"`
}

func toEmployeeDTO(e labor.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:           string(e.ID),
		Name:         e.Name,
		Email:        e.Email,
		Position:     e.Position,
		Department:   e.Department,
		PaymentType:  string(e.PaymentType),
		HourlyRate:   e.HourlyRate,
		AnnualSalary: e.AnnualSalary,
		HoursPerWeek: e.HoursPerWeek,
		IsActive:     e.IsActive,
		HourlyCost:   labor.HourlyRate(e),
		CreatedAt:    formatTimestamp(e.CreatedAt),
	}
}

// DepartmentStatsDTO is one row of GET /api/departments/stats.
type DepartmentStatsDTO struct {
	Department        string          `json:"department"`
	Headcount         int             `json:"headcount"`
	TotalHourlyCost   decimal.Decimal `json:"total_hourly_cost"`
	AverageHourlyCost decimal.Decimal `json:"average_hourly_cost"`
}

// ProjectDTO represents a project in API responses.
type ProjectDTO struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	ClientName string           `json:"client_name"`
	Status     string           `json:"status"`
	Budget     *decimal.Decimal `json:"budget,omitempty"`
	CreatedAt  string           `json:"created_at,omitempty"`
}

func toProjectDTO(p labor.Project) ProjectDTO {
	dto := ProjectDTO{
		ID:         string(p.ID),
		Name:       p.Name,
		ClientName: p.ClientName,
		Status:     p.Status,
		CreatedAt:  formatTimestamp(p.CreatedAt),
	}
	if p.HasBudget {
		b := p.Budget
		dto.Budget = &b
	}
	return dto
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

// TimeEntryDTO is a time entry with employee and project names resolved.
type TimeEntryDTO struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"project_id"`
	ProjectName  string          `json:"project_name"`
	EmployeeID   string          `json:"employee_id"`
	EmployeeName string          `json:"employee_name"`
	Date         string          `json:"date"`
	Hours        decimal.Decimal `json:"hours"`
	Billable     bool            `json:"billable"`
	Description  string          `json:"description"`
	TaskID       string          `json:"task_id,omitempty"`
	Version      int64           `json:"version"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
}

func toTimeEntryDTO(v labor.TimeEntryView) TimeEntryDTO {
	return TimeEntryDTO{
		ID:           string(v.ID),
		ProjectID:    string(v.ProjectID),
		ProjectName:  v.ProjectName,
		EmployeeID:   string(v.EmployeeID),
		EmployeeName: v.EmployeeName,
		Date:         v.Date.Format(ledger.DateLayout),
		Hours:        v.Hours,
		Billable:     v.Billable,
		Description:  v.Description,
		TaskID:       v.TaskID,
		Version:      v.Version,
		CreatedAt:    formatTimestamp(v.CreatedAt),
		UpdatedAt:    formatTimestamp(v.UpdatedAt),
	}
}

// DeleteTimeEntryResponse reports whether anything was removed.
type DeleteTimeEntryResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// =============================================================================
// LEDGER
// =============================================================================

// ExpenseDTO represents a ledger record.
type ExpenseDTO struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	ExpenseType string          `json:"expense_type"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	AddedBy     string          `json:"added_by"`
	TimeEntryID string          `json:"time_entry_id,omitempty"`
	ReversesID  string          `json:"reverses_id,omitempty"`
	CreatedAt   string          `json:"created_at"`
}

func toExpenseDTO(r ledger.ExpenseRecord) ExpenseDTO {
	return ExpenseDTO{
		ID:          string(r.ID),
		ProjectID:   string(r.ProjectID),
		ExpenseType: string(r.ExpenseType),
		Amount:      r.Amount,
		Date:        r.Date.Format(ledger.DateLayout),
		Description: r.Description,
		AddedBy:     r.AddedBy,
		TimeEntryID: string(r.TimeEntryID),
		ReversesID:  string(r.ReversesID),
		CreatedAt:   formatTimestamp(r.CreatedAt),
	}
}

// ReverseExpenseRequest names who reverses a manual expense.
type ReverseExpenseRequest struct {
	Actor string `json:"actor"`
}

// CostBasisDTO is the per-type total of a project's ledger.
type CostBasisDTO struct {
	ProjectID   string                     `json:"project_id"`
	Labor       decimal.Decimal            `json:"labor"`
	Material    decimal.Decimal            `json:"material"`
	Overhead    decimal.Decimal            `json:"overhead"`
	Other       decimal.Decimal            `json:"other"`
	Total       decimal.Decimal            `json:"total"`
	ByType      map[string]decimal.Decimal `json:"by_type"`
	Budget      *decimal.Decimal           `json:"budget,omitempty"`
	Remaining   *decimal.Decimal           `json:"remaining,omitempty"`
	RecordCount int                        `json:"record_count"`
	TakenAt     string                     `json:"taken_at"`
}

func toCostBasisDTO(cb ledger.CostBasis) CostBasisDTO {
	dto := CostBasisDTO{
		ProjectID:   string(cb.ProjectID),
		Labor:       cb.Labor,
		Material:    cb.Material,
		Overhead:    cb.Overhead,
		Other:       cb.Other,
		Total:       cb.Total,
		ByType:      make(map[string]decimal.Decimal, len(cb.ByType)),
		RecordCount: cb.RecordCount,
		TakenAt:     formatTimestamp(cb.TakenAt),
	}
	for t, amount := range cb.ByType {
		dto.ByType[string(t)] = amount
	}
	if cb.HasBudget {
		budget, remaining := cb.Budget, cb.Remaining
		dto.Budget = &budget
		dto.Remaining = &remaining
	}
	return dto
}

// =============================================================================
// SUMMARY & AUDIT
// =============================================================================

type TimeSummaryDTO struct {
	ProjectID        string                   `json:"project_id"`
	TotalHours       decimal.Decimal          `json:"total_hours"`
	BillableHours    decimal.Decimal          `json:"billable_hours"`
	NonBillableHours decimal.Decimal          `json:"non_billable_hours"`
	TotalLaborCost   decimal.Decimal          `json:"total_labor_cost"`
	EntryCount       int                      `json:"entry_count"`
	Employees        []EmployeeBreakdownDTO   `json:"employees"`
	Departments      []DepartmentBreakdownDTO `json:"departments"`
}

type EmployeeBreakdownDTO struct {
	EmployeeID string          `json:"employee_id"`
	Name       string          `json:"name"`
	Department string          `json:"department"`
	Hours      decimal.Decimal `json:"hours"`
	Cost       decimal.Decimal `json:"cost"`
}

type DepartmentBreakdownDTO struct {
	Department string          `json:"department"`
	Hours      decimal.Decimal `json:"hours"`
	Cost       decimal.Decimal `json:"cost"`
}

func toTimeSummaryDTO(s labor.TimeSummary) TimeSummaryDTO {
	dto := TimeSummaryDTO{
		ProjectID:        string(s.ProjectID),
		TotalHours:       s.TotalHours,
		BillableHours:    s.BillableHours,
		NonBillableHours: s.NonBillableHours,
		TotalLaborCost:   s.TotalLaborCost,
		EntryCount:       s.EntryCount,
		Employees:        make([]EmployeeBreakdownDTO, len(s.Employees)),
		Departments:      make([]DepartmentBreakdownDTO, len(s.Departments)),
	}
	for i, e := range s.Employees {
		dto.Employees[i] = EmployeeBreakdownDTO{
			EmployeeID: string(e.EmployeeID),
			Name:       e.Name,
			Department: e.Department,
			Hours:      e.Hours,
			Cost:       e.Cost,
		}
	}
	for i, d := range s.Departments {
		dto.Departments[i] = DepartmentBreakdownDTO{Department: d.Department, Hours: d.Hours, Cost: d.Cost}
	}
	return dto
}

// AuditDTO compares the live summary with the ledger.
type AuditDTO struct {
	ProjectID        string          `json:"project_id"`
	Consistent       bool            `json:"consistent"`
	SummaryLaborCost decimal.Decimal `json:"summary_labor_cost"`
	LedgerLaborCost  decimal.Decimal `json:"ledger_labor_cost"`
	ManualLaborCost  decimal.Decimal `json:"manual_labor_cost"`
	Difference       decimal.Decimal `json:"difference"`
	CheckedEntries   int             `json:"checked_entries"`
	Drift            []EntryDriftDTO `json:"drift"`
	CheckedAt        string          `json:"checked_at"`
}

type EntryDriftDTO struct {
	TimeEntryID string          `json:"time_entry_id"`
	Expected    decimal.Decimal `json:"expected"`
	Recorded    decimal.Decimal `json:"recorded"`
	Active      bool            `json:"active"`
}

func toAuditDTO(r labor.AuditReport) AuditDTO {
	dto := AuditDTO{
		ProjectID:        string(r.ProjectID),
		Consistent:       r.Consistent(),
		SummaryLaborCost: r.SummaryLaborCost,
		LedgerLaborCost:  r.LedgerLaborCost,
		ManualLaborCost:  r.ManualLaborCost,
		Difference:       r.Difference,
		CheckedEntries:   r.CheckedEntries,
		Drift:            make([]EntryDriftDTO, len(r.Drift)),
		CheckedAt:        formatTimestamp(r.CheckedAt),
	}
	for i, d := range r.Drift {
		dto.Drift[i] = EntryDriftDTO{
			TimeEntryID: string(d.TimeEntryID),
			Expected:    d.Expected,
			Recorded:    d.Recorded,
			Active:      d.Active,
		}
	}
	return dto
}

// =============================================================================
// COST REPORT
// =============================================================================

// CostReportDTO is the body of GET /api/reports/labor-cost.
type CostReportDTO struct {
	Filter             CostReportFilterDTO      `json:"filter"`
	TotalHours         decimal.Decimal          `json:"total_hours"`
	BillableHours      decimal.Decimal          `json:"billable_hours"`
	TotalLaborCost     decimal.Decimal          `json:"total_labor_cost"`
	BillablePercentage decimal.Decimal          `json:"billable_percentage"`
	AverageHourlyCost  decimal.Decimal          `json:"average_hourly_cost"`
	EntryCount         int                      `json:"entry_count"`
	ProjectCount       int                      `json:"project_count"`
	Projects           []ProjectCostDTO         `json:"projects"`
	Departments        []DepartmentBreakdownDTO `json:"departments"`
	TopDepartment      DepartmentShareDTO       `json:"top_department"`
	Entries            []CostLineDTO            `json:"entries"`
}

type CostReportFilterDTO struct {
	ProjectID  string `json:"project_id,omitempty"`
	EmployeeID string `json:"employee_id,omitempty"`
	Department string `json:"department,omitempty"`
	StartDate  string `json:"start_date,omitempty"`
	EndDate    string `json:"end_date,omitempty"`
}

type ProjectCostDTO struct {
	ProjectID string          `json:"project_id,omitempty"`
	Name      string          `json:"name"`
	Hours     decimal.Decimal `json:"hours"`
	Cost      decimal.Decimal `json:"cost"`
}

type DepartmentShareDTO struct {
	Department string          `json:"department"`
	Cost       decimal.Decimal `json:"cost"`
	Percentage decimal.Decimal `json:"percentage"`
}

// CostLineDTO is a time entry with its department, rate and cost.
type CostLineDTO struct {
	TimeEntryDTO
	Department string          `json:"department"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	Cost       decimal.Decimal `json:"cost"`
}

func toCostReportDTO(rep labor.CostReport) CostReportDTO {
	dto := CostReportDTO{
		Filter: CostReportFilterDTO{
			ProjectID:  string(rep.Filter.ProjectID),
			EmployeeID: string(rep.Filter.EmployeeID),
			Department: rep.Filter.Department,
		},
		TotalHours:         rep.TotalHours,
		BillableHours:      rep.BillableHours,
		TotalLaborCost:     rep.TotalLaborCost,
		BillablePercentage: rep.BillablePercentage,
		AverageHourlyCost:  rep.AverageHourlyCost,
		EntryCount:         rep.EntryCount,
		ProjectCount:       rep.ProjectCount,
		Projects:           make([]ProjectCostDTO, len(rep.Projects)),
		Departments:        make([]DepartmentBreakdownDTO, len(rep.Departments)),
		TopDepartment: DepartmentShareDTO{
			Department: rep.TopDepartment.Department,
			Cost:       rep.TopDepartment.Cost,
			Percentage: rep.TopDepartment.Percentage,
		},
		Entries: make([]CostLineDTO, len(rep.Lines)),
	}
	if rep.Filter.From != nil {
		dto.Filter.StartDate = rep.Filter.From.Format(ledger.DateLayout)
	}
	if rep.Filter.To != nil {
		dto.Filter.EndDate = rep.Filter.To.Format(ledger.DateLayout)
	}
	for i, p := range rep.Projects {
		dto.Projects[i] = ProjectCostDTO{ProjectID: string(p.ProjectID), Name: p.Name, Hours: p.Hours, Cost: p.Cost}
	}
	for i, d := range rep.Departments {
		dto.Departments[i] = DepartmentBreakdownDTO{Department: d.Department, Hours: d.Hours, Cost: d.Cost}
	}
	for i, l := range rep.Lines {
		dto.Entries[i] = CostLineDTO{
			TimeEntryDTO: toTimeEntryDTO(l.TimeEntryView),
			Department:   l.Department,
			HourlyRate:   l.HourlyRate,
			Cost:         l.Cost,
		}
	}
	return dto
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
