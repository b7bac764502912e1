/*
Package factory provides JSON to Go conversion of labor inputs.

PURPOSE:
  Converts JSON request bodies into labor.Employee, labor.Project,
  labor.NewTimeEntry, labor.TimeEntryPatch and ledger.ExpenseRecord values.
  Structural rules (required fields, enums, ranges) are declared as
  validator tags; the factory also applies the defaults the engine expects
  so callers never hand it a half-filled struct.

JSON SCHEMA (employee):
  {
    "name": "Michael Davis",
    "email": "michael@example.com",
    "position": "Carpenter",
    "department": "Construction",
    "payment_type": "hourly",
    "hourly_rate": "25.50",
    "hours_per_week": 35
  }

KEY FEATURES:
  - Pay scheme normalization: hourly zeroes the salary, salary zeroes the rate
  - Defaults: payment_type hourly, 40 hours/week, department "Other", active
  - Time entries default to today and billable
  - Cost report query strings share the same date rules as bodies
  - Every failure is a *ledger.ValidationError naming the JSON field

USAGE:
  f := factory.New(idgen.ULID{})
  emp, err := f.ParseEmployee(body)
  entry, err := f.ParseTimeEntry(body)

SEE ALSO:
  - labor/types.go: Domain types produced here
  - api/handlers.go: The only caller
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/labor-ledger/labor"
	"github.com/warp/labor-ledger/ledger"
)

// ID prefixes assigned when the body carries no id.
const (
	EmployeePrefix = "emp"
	ProjectPrefix  = "proj"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// EmployeeJSON is the JSON representation of an employee.
type EmployeeJSON struct {
	ID           string           `json:"id,omitempty"`
	Name         string           `json:"name" validate:"required,max=200"`
	Email        string           `json:"email,omitempty" validate:"omitempty,email"`
	Position     string           `json:"position,omitempty"`
	Department   string           `json:"department,omitempty"`
	PaymentType  string           `json:"payment_type,omitempty" validate:"omitempty,oneof=hourly salary"`
	HourlyRate   *decimal.Decimal `json:"hourly_rate,omitempty"`
	AnnualSalary *decimal.Decimal `json:"annual_salary,omitempty"`
	HoursPerWeek *int             `json:"hours_per_week,omitempty" validate:"omitempty,min=1,max=168"`
	IsActive     *bool            `json:"is_active,omitempty"`
}

// ProjectJSON is the JSON representation of a project.
type ProjectJSON struct {
	ID         string           `json:"id,omitempty"`
	Name       string           `json:"name" validate:"required,max=200"`
	ClientName string           `json:"client_name,omitempty"`
	Status     string           `json:"status,omitempty" validate:"omitempty,oneof=active pending completed on_hold cancelled"`
	Budget     *decimal.Decimal `json:"budget,omitempty"`
}

// TimeEntryJSON is the create body of a time entry.
type TimeEntryJSON struct {
	ProjectID   string          `json:"project_id" validate:"required"`
	EmployeeID  string          `json:"employee_id" validate:"required"`
	Date        string          `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Hours       decimal.Decimal `json:"hours"`
	Billable    *bool           `json:"billable,omitempty"`
	Description string          `json:"description,omitempty" validate:"max=2000"`
	TaskID      string          `json:"task_id,omitempty"`
}

// TimeEntryPatchJSON is the edit body. Absent fields stay unchanged.
type TimeEntryPatchJSON struct {
	ProjectID   *string          `json:"project_id,omitempty" validate:"omitempty,min=1"`
	EmployeeID  *string          `json:"employee_id,omitempty" validate:"omitempty,min=1"`
	Date        *string          `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Hours       *decimal.Decimal `json:"hours,omitempty"`
	Billable    *bool            `json:"billable,omitempty"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=2000"`
	TaskID      *string          `json:"task_id,omitempty"`
}

// ExpenseJSON is a manual expense. A manual labor expense is never linked
// to a time entry; linked records are written by the reconciler only.
type ExpenseJSON struct {
	ExpenseType string          `json:"expense_type" validate:"required,oneof=labor material overhead equipment subcontractor other"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Description string          `json:"description,omitempty" validate:"max=2000"`
	AddedBy     string          `json:"added_by,omitempty"`
}

// =============================================================================
// FACTORY
// =============================================================================

// Factory converts JSON bodies to domain values.
type Factory struct {
	validate *validator.Validate
	ids      ledger.IDGenerator
	now      func() time.Time
}

// New creates a factory. ids assigns employee and project IDs when the
// body has none.
func New(ids ledger.IDGenerator) *Factory {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names, not Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Factory{validate: v, ids: ids, now: time.Now}
}

// ParseEmployee parses and normalizes an employee body.
func (f *Factory) ParseEmployee(data []byte) (labor.Employee, error) {
	var ej EmployeeJSON
	if err := f.decode(data, &ej); err != nil {
		return labor.Employee{}, err
	}
	return f.Employee(ej)
}

// Employee normalizes the pay scheme: only the field matching the payment
// type is kept, the other is zeroed.
func (f *Factory) Employee(ej EmployeeJSON) (labor.Employee, error) {
	if err := f.check(ej); err != nil {
		return labor.Employee{}, err
	}

	emp := labor.Employee{
		ID:           ledger.EmployeeID(ej.ID),
		Name:         strings.TrimSpace(ej.Name),
		Email:        ej.Email,
		Position:     ej.Position,
		Department:   ej.Department,
		PaymentType:  labor.PaymentType(ej.PaymentType),
		HoursPerWeek: labor.StandardHoursPerWeek,
		IsActive:     true,
		CreatedAt:    f.now(),
	}
	if emp.PaymentType == "" {
		emp.PaymentType = labor.PaymentHourly
	}
	if emp.Department == "" {
		emp.Department = labor.DefaultDepartment
	}
	if ej.HoursPerWeek != nil {
		emp.HoursPerWeek = *ej.HoursPerWeek
	}
	if ej.IsActive != nil {
		emp.IsActive = *ej.IsActive
	}

	switch emp.PaymentType {
	case labor.PaymentHourly:
		if ej.HourlyRate != nil {
			emp.HourlyRate = *ej.HourlyRate
		}
		if emp.HourlyRate.IsNegative() {
			return labor.Employee{}, ledger.Invalid("hourly_rate", "must not be negative")
		}
	case labor.PaymentSalary:
		if ej.AnnualSalary != nil {
			emp.AnnualSalary = *ej.AnnualSalary
		}
		if emp.AnnualSalary.IsNegative() {
			return labor.Employee{}, ledger.Invalid("annual_salary", "must not be negative")
		}
	}

	if emp.ID == "" {
		emp.ID = ledger.EmployeeID(f.ids.GenerateID(EmployeePrefix))
	}
	return emp, nil
}

// ParseProject parses a project body.
func (f *Factory) ParseProject(data []byte) (labor.Project, error) {
	var pj ProjectJSON
	if err := f.decode(data, &pj); err != nil {
		return labor.Project{}, err
	}
	if err := f.check(pj); err != nil {
		return labor.Project{}, err
	}

	p := labor.Project{
		ID:         ledger.ProjectID(pj.ID),
		Name:       strings.TrimSpace(pj.Name),
		ClientName: pj.ClientName,
		Status:     pj.Status,
		CreatedAt:  f.now(),
	}
	if p.Status == "" {
		p.Status = "active"
	}
	if pj.Budget != nil {
		if pj.Budget.IsNegative() {
			return labor.Project{}, ledger.Invalid("budget", "must not be negative")
		}
		p.HasBudget = true
		p.Budget = *pj.Budget
	}
	if p.ID == "" {
		p.ID = ledger.ProjectID(f.ids.GenerateID(ProjectPrefix))
	}
	return p, nil
}

// ParseTimeEntry parses a create body. Billable defaults to true and an
// absent date means today (applied by the store).
func (f *Factory) ParseTimeEntry(data []byte) (labor.NewTimeEntry, error) {
	var tj TimeEntryJSON
	if err := f.decode(data, &tj); err != nil {
		return labor.NewTimeEntry{}, err
	}
	if err := f.check(tj); err != nil {
		return labor.NewTimeEntry{}, err
	}
	if !tj.Hours.IsPositive() {
		return labor.NewTimeEntry{}, ledger.Invalid("hours", "must be greater than zero")
	}

	in := labor.NewTimeEntry{
		ProjectID:   ledger.ProjectID(tj.ProjectID),
		EmployeeID:  ledger.EmployeeID(tj.EmployeeID),
		Hours:       tj.Hours,
		Billable:    true,
		Description: tj.Description,
		TaskID:      tj.TaskID,
	}
	if tj.Billable != nil {
		in.Billable = *tj.Billable
	}
	if tj.Date != "" {
		d, _ := time.Parse(ledger.DateLayout, tj.Date) // format checked by the validator
		in.Date = d
	}
	return in, nil
}

// ParseTimeEntryPatch parses an edit body. An empty patch is rejected.
func (f *Factory) ParseTimeEntryPatch(data []byte) (labor.TimeEntryPatch, error) {
	var pj TimeEntryPatchJSON
	if err := f.decode(data, &pj); err != nil {
		return labor.TimeEntryPatch{}, err
	}
	if err := f.check(pj); err != nil {
		return labor.TimeEntryPatch{}, err
	}

	var patch labor.TimeEntryPatch
	if pj.ProjectID != nil {
		id := ledger.ProjectID(*pj.ProjectID)
		patch.ProjectID = &id
	}
	if pj.EmployeeID != nil {
		id := ledger.EmployeeID(*pj.EmployeeID)
		patch.EmployeeID = &id
	}
	if pj.Date != nil {
		d, _ := time.Parse(ledger.DateLayout, *pj.Date)
		patch.Date = &d
	}
	if pj.Hours != nil {
		if !pj.Hours.IsPositive() {
			return labor.TimeEntryPatch{}, ledger.Invalid("hours", "must be greater than zero")
		}
		patch.Hours = pj.Hours
	}
	patch.Billable = pj.Billable
	patch.Description = pj.Description
	patch.TaskID = pj.TaskID

	if patch.IsEmpty() {
		return labor.TimeEntryPatch{}, ledger.Invalid("", "no fields to update")
	}
	return patch, nil
}

// ParseExpense parses a manual expense for projectID. actor is used when
// the body names no author.
func (f *Factory) ParseExpense(projectID ledger.ProjectID, actor string, data []byte) (ledger.ExpenseRecord, error) {
	var ej ExpenseJSON
	if err := f.decode(data, &ej); err != nil {
		return ledger.ExpenseRecord{}, err
	}
	if err := f.check(ej); err != nil {
		return ledger.ExpenseRecord{}, err
	}
	if ej.Amount.IsZero() {
		return ledger.ExpenseRecord{}, ledger.Invalid("amount", "must not be zero")
	}

	rec := ledger.ExpenseRecord{
		ProjectID:   projectID,
		ExpenseType: ledger.ExpenseType(ej.ExpenseType),
		Amount:      ej.Amount,
		Description: ej.Description,
		AddedBy:     ej.AddedBy,
	}
	if rec.AddedBy == "" {
		rec.AddedBy = actor
	}
	if ej.Date != "" {
		rec.Date, _ = time.Parse(ledger.DateLayout, ej.Date)
	}
	return rec, nil
}

// =============================================================================
// QUERY STRINGS
// =============================================================================

// CostReportQuery is the query string of the labor cost report.
// Field names follow the json tags so errors name the query parameter.
type CostReportQuery struct {
	ProjectID  string `json:"project_id"`
	EmployeeID string `json:"employee_id"`
	Department string `json:"department"`
	StartDate  string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate    string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// ParseCostReportQuery builds a cost report filter. Dates are inclusive.
func (f *Factory) ParseCostReportQuery(q url.Values) (labor.CostReportFilter, error) {
	cq := CostReportQuery{
		ProjectID:  strings.TrimSpace(q.Get("project_id")),
		EmployeeID: strings.TrimSpace(q.Get("employee_id")),
		Department: strings.TrimSpace(q.Get("department")),
		StartDate:  strings.TrimSpace(q.Get("start_date")),
		EndDate:    strings.TrimSpace(q.Get("end_date")),
	}
	if err := f.check(cq); err != nil {
		return labor.CostReportFilter{}, err
	}

	filter := labor.CostReportFilter{
		TimeEntryFilter: labor.TimeEntryFilter{
			ProjectID:  ledger.ProjectID(cq.ProjectID),
			EmployeeID: ledger.EmployeeID(cq.EmployeeID),
		},
		Department: cq.Department,
	}
	if cq.StartDate != "" {
		d, _ := time.Parse(ledger.DateLayout, cq.StartDate)
		filter.From = &d
	}
	if cq.EndDate != "" {
		d, _ := time.Parse(ledger.DateLayout, cq.EndDate)
		filter.To = &d
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return labor.CostReportFilter{}, ledger.Invalid("end_date", "must not be before start_date")
	}
	return filter, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func (f *Factory) decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return ledger.Invalid(typeErr.Field, fmt.Sprintf("expected %s", typeErr.Type))
		}
		return ledger.Invalid("", fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

// check runs the validator and reports the first failing field.
func (f *Factory) check(v any) error {
	err := f.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ledger.Invalid("", err.Error())
	}
	fe := verrs[0]
	return ledger.Invalid(fe.Field(), describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "email":
		return "must be a valid email address"
	case "datetime":
		return fmt.Sprintf("must be a date in %s format", fe.Param())
	case "min", "max":
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
