/*
compensation.go - Employee Compensation Model

PURPOSE:
  Normalizes two pay schemes into one hourly cost so every labor charge
  is computed the same way.

FORMULAS:
  hourly: rate = HourlyRate
  salary: rate = AnnualSalary / (52 * HoursPerWeek)
          HoursPerWeek <= 0 is treated as the standard 40

  85,000 / (52 * 40) = 40.865384615...

MISSING EMPLOYEES:
  An employee the directory no longer knows costs 0/hour. Directory I/O
  errors are returned; they are never folded into the 0 fallback.
*/
package labor

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/labor-ledger/ledger"
)

const (
	// StandardHoursPerWeek replaces a missing or non-positive weekly schedule.
	StandardHoursPerWeek = 40

	// WeeksPerYear is the divisor that turns salary into weekly pay.
	WeeksPerYear = 52
)

var weeksPerYear = decimal.NewFromInt(WeeksPerYear)

// HourlyRate returns the employee's cost per hour. Pure; no rounding.
func HourlyRate(emp Employee) decimal.Decimal {
	if emp.PaymentType == PaymentSalary {
		hpw := emp.HoursPerWeek
		if hpw <= 0 {
			hpw = StandardHoursPerWeek
		}
		return emp.AnnualSalary.Div(weeksPerYear.Mul(decimal.NewFromInt(int64(hpw))))
	}
	return emp.HourlyRate
}

// Compensation resolves hourly cost through the employee directory.
type Compensation struct {
	directory EmployeeDirectory
}

func NewCompensation(directory EmployeeDirectory) *Compensation {
	return &Compensation{directory: directory}
}

// HourlyCost is HourlyRate of the looked-up employee, or 0 if unknown.
func (c *Compensation) HourlyCost(ctx context.Context, id ledger.EmployeeID) (decimal.Decimal, error) {
	emp, err := c.directory.LookupEmployee(ctx, id)
	if err != nil {
		return decimal.Zero, fmt.Errorf("lookup employee %s: %w", id, err)
	}
	if emp == nil {
		return decimal.Zero, nil
	}
	return HourlyRate(*emp), nil
}

// DepartmentStatistics groups active employees by department, sorted by name.
// Employees without a department are counted under "Other".
func (c *Compensation) DepartmentStatistics(ctx context.Context) ([]DepartmentStats, error) {
	emps, err := c.directory.ListEmployees(ctx)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}

	byDept := make(map[string]*DepartmentStats)
	for _, emp := range emps {
		if !emp.IsActive {
			continue
		}
		dept := emp.Department
		if dept == "" {
			dept = DefaultDepartment
		}
		st, ok := byDept[dept]
		if !ok {
			st = &DepartmentStats{Department: dept}
			byDept[dept] = st
		}
		st.Headcount++
		st.TotalHourlyCost = st.TotalHourlyCost.Add(HourlyRate(emp))
	}

	out := make([]DepartmentStats, 0, len(byDept))
	for _, st := range byDept {
		st.AverageHourlyCost = st.TotalHourlyCost.Div(decimal.NewFromInt(int64(st.Headcount)))
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Department < out[j].Department })
	return out, nil
}

// DefaultDepartment is used for employees with no department on record.
const DefaultDepartment = "Other"
