/*
summary.go - Summary Aggregator

PURPOSE:
  Reporting view of a project's logged time. Hours and labor cost come
  from the time entries priced by the Calculator, never from the ledger,
  so a summary is only as stale as the employee directory.

  Audit closes the loop: it compares that live figure against the labor
  records actually in the ledger and lists every entry whose recorded
  sum disagrees with its current cost.

  CostReport is the cross-project view: entries filtered by project,
  employee, department and date range, priced the same way, with the
  most expensive projects and departments.

DETERMINISM:
  Breakdowns are sorted (employees by name then id, departments by name)
  so two calls with no mutation in between return identical results.
*/
package labor

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/labor-ledger/ledger"
)

type Summary struct {
	entries *TimeEntries
	calc    *Calculator
	ledger  *ledger.Ledger
	now     func() time.Time
}

func NewSummary(entries *TimeEntries, calc *Calculator, l *ledger.Ledger) *Summary {
	return &Summary{entries: entries, calc: calc, ledger: l, now: time.Now}
}

type pricedEntry struct {
	TimeEntry
	Cost decimal.Decimal
}

// ProjectTimeSummary totals the project's hours and labor cost.
func (s *Summary) ProjectTimeSummary(ctx context.Context, projectID ledger.ProjectID) (TimeSummary, error) {
	priced, err := s.price(ctx, projectID)
	if err != nil {
		return TimeSummary{}, err
	}
	return s.summarize(ctx, projectID, priced)
}

func (s *Summary) price(ctx context.Context, projectID ledger.ProjectID) ([]pricedEntry, error) {
	entries, err := s.entries.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]pricedEntry, 0, len(entries))
	for _, e := range entries {
		cost, err := s.calc.LaborCost(ctx, e.EmployeeID, e.Hours)
		if err != nil {
			return nil, err
		}
		out = append(out, pricedEntry{TimeEntry: e, Cost: cost})
	}
	return out, nil
}

func (s *Summary) summarize(ctx context.Context, projectID ledger.ProjectID, priced []pricedEntry) (TimeSummary, error) {
	sum := TimeSummary{
		ProjectID:        projectID,
		TotalHours:       decimal.Zero,
		BillableHours:    decimal.Zero,
		NonBillableHours: decimal.Zero,
		TotalLaborCost:   decimal.Zero,
		EntryCount:       len(priced),
		Employees:        []EmployeeBreakdown{},
		Departments:      []DepartmentBreakdown{},
	}

	byEmp := make(map[ledger.EmployeeID]*EmployeeBreakdown)
	byDept := make(map[string]*DepartmentBreakdown)

	for _, p := range priced {
		sum.TotalHours = sum.TotalHours.Add(p.Hours)
		if p.Billable {
			sum.BillableHours = sum.BillableHours.Add(p.Hours)
		} else {
			sum.NonBillableHours = sum.NonBillableHours.Add(p.Hours)
		}
		sum.TotalLaborCost = sum.TotalLaborCost.Add(p.Cost)

		eb, ok := byEmp[p.EmployeeID]
		if !ok {
			emp, err := s.entries.employees.LookupEmployee(ctx, p.EmployeeID)
			if err != nil {
				return TimeSummary{}, err
			}
			eb = &EmployeeBreakdown{EmployeeID: p.EmployeeID, Name: UnknownEmployee, Department: DefaultDepartment}
			if emp != nil {
				eb.Name = emp.Name
				if emp.Department != "" {
					eb.Department = emp.Department
				}
			}
			byEmp[p.EmployeeID] = eb
		}
		eb.Hours = eb.Hours.Add(p.Hours)
		eb.Cost = eb.Cost.Add(p.Cost)

		db, ok := byDept[eb.Department]
		if !ok {
			db = &DepartmentBreakdown{Department: eb.Department}
			byDept[eb.Department] = db
		}
		db.Hours = db.Hours.Add(p.Hours)
		db.Cost = db.Cost.Add(p.Cost)
	}

	for _, eb := range byEmp {
		sum.Employees = append(sum.Employees, *eb)
	}
	sort.Slice(sum.Employees, func(i, j int) bool {
		a, b := sum.Employees[i], sum.Employees[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.EmployeeID < b.EmployeeID
	})

	for _, db := range byDept {
		sum.Departments = append(sum.Departments, *db)
	}
	sort.Slice(sum.Departments, func(i, j int) bool {
		return sum.Departments[i].Department < sum.Departments[j].Department
	})
	return sum, nil
}

// =============================================================================
// AUDIT
// =============================================================================

// Audit checks the ledger's labor records for projectID against the live
// cost of the project's time entries. Entries no longer active in the
// project (deleted, or moved elsewhere) are expected to net to zero here.
func (s *Summary) Audit(ctx context.Context, projectID ledger.ProjectID) (AuditReport, error) {
	priced, err := s.price(ctx, projectID)
	if err != nil {
		return AuditReport{}, err
	}
	recs, err := s.ledger.Query(ctx, ledger.ExpenseFilter{
		ProjectID: projectID,
		Types:     []ledger.ExpenseType{ledger.ExpenseLabor},
	})
	if err != nil {
		return AuditReport{}, err
	}

	report := AuditReport{
		ProjectID:        projectID,
		SummaryLaborCost: decimal.Zero,
		LedgerLaborCost:  decimal.Zero,
		ManualLaborCost:  decimal.Zero,
		Drift:            []EntryDrift{},
		CheckedAt:        s.now().UTC(),
	}

	expected := make(map[ledger.TimeEntryID]decimal.Decimal, len(priced))
	for _, p := range priced {
		expected[p.ID] = p.Cost
		report.SummaryLaborCost = report.SummaryLaborCost.Add(p.Cost)
	}

	recorded := make(map[ledger.TimeEntryID]decimal.Decimal)
	for _, rec := range recs {
		if !rec.IsLinked() {
			report.ManualLaborCost = report.ManualLaborCost.Add(rec.Amount)
			continue
		}
		recorded[rec.TimeEntryID] = recorded[rec.TimeEntryID].Add(rec.Amount)
		report.LedgerLaborCost = report.LedgerLaborCost.Add(rec.Amount)
	}

	ids := make(map[ledger.TimeEntryID]struct{}, len(expected)+len(recorded))
	for id := range expected {
		ids[id] = struct{}{}
	}
	for id := range recorded {
		ids[id] = struct{}{}
	}
	report.CheckedEntries = len(ids)

	for id := range ids {
		want, active := expected[id]
		got := recorded[id]
		if !got.Equal(want) {
			report.Drift = append(report.Drift, EntryDrift{
				TimeEntryID: id,
				Expected:    want,
				Recorded:    got,
				Active:      active,
			})
		}
	}
	sort.Slice(report.Drift, func(i, j int) bool {
		return report.Drift[i].TimeEntryID < report.Drift[j].TimeEntryID
	})

	report.Difference = report.LedgerLaborCost.Sub(report.SummaryLaborCost)
	return report, nil
}

// =============================================================================
// COST REPORT
// =============================================================================

const (
	// TopProjects is how many projects the cost report lists by name.
	TopProjects = 5
	// OtherProjects labels the row that sums every project past TopProjects.
	OtherProjects = "Other"
	// NoDepartment names the top department of an empty report.
	NoDepartment = "None"
)

var hundred = decimal.NewFromInt(100)

// CostReport prices every entry matching filter, across projects, at the
// employees' current rates.
func (s *Summary) CostReport(ctx context.Context, filter CostReportFilter) (CostReport, error) {
	views, err := s.entries.ListViews(ctx, filter.TimeEntryFilter)
	if err != nil {
		return CostReport{}, err
	}

	rep := CostReport{
		Filter:         filter,
		TotalHours:     decimal.Zero,
		BillableHours:  decimal.Zero,
		TotalLaborCost: decimal.Zero,
		Projects:       []ProjectCost{},
		Departments:    []DepartmentBreakdown{},
		Lines:          []CostLine{},
	}

	emps := make(map[ledger.EmployeeID]*Employee)
	byProject := make(map[ledger.ProjectID]*ProjectCost)
	byDept := make(map[string]*DepartmentBreakdown)

	for _, v := range views {
		emp, seen := emps[v.EmployeeID]
		if !seen {
			if emp, err = s.entries.employees.LookupEmployee(ctx, v.EmployeeID); err != nil {
				return CostReport{}, err
			}
			emps[v.EmployeeID] = emp
		}
		if filter.Department != "" && (emp == nil || emp.Department != filter.Department) {
			continue
		}

		line := CostLine{TimeEntryView: v, Department: DefaultDepartment, HourlyRate: decimal.Zero}
		if emp != nil {
			line.HourlyRate = HourlyRate(*emp)
			if emp.Department != "" {
				line.Department = emp.Department
			}
		}
		if line.Cost, err = s.calc.LaborCost(ctx, v.EmployeeID, v.Hours); err != nil {
			return CostReport{}, err
		}
		rep.Lines = append(rep.Lines, line)

		rep.TotalHours = rep.TotalHours.Add(v.Hours)
		if v.Billable {
			rep.BillableHours = rep.BillableHours.Add(v.Hours)
		}
		rep.TotalLaborCost = rep.TotalLaborCost.Add(line.Cost)

		pc, ok := byProject[v.ProjectID]
		if !ok {
			pc = &ProjectCost{ProjectID: v.ProjectID, Name: v.ProjectName}
			byProject[v.ProjectID] = pc
		}
		pc.Hours = pc.Hours.Add(v.Hours)
		pc.Cost = pc.Cost.Add(line.Cost)

		db, ok := byDept[line.Department]
		if !ok {
			db = &DepartmentBreakdown{Department: line.Department}
			byDept[line.Department] = db
		}
		db.Hours = db.Hours.Add(v.Hours)
		db.Cost = db.Cost.Add(line.Cost)
	}

	rep.EntryCount = len(rep.Lines)
	rep.ProjectCount = len(byProject)
	rep.BillablePercentage = percentOf(rep.BillableHours, rep.TotalHours)
	rep.AverageHourlyCost = decimal.Zero
	if !rep.TotalHours.IsZero() {
		rep.AverageHourlyCost = rep.TotalLaborCost.Div(rep.TotalHours)
	}

	projects := make([]ProjectCost, 0, len(byProject))
	for _, pc := range byProject {
		projects = append(projects, *pc)
	}
	sort.Slice(projects, func(i, j int) bool {
		a, b := projects[i], projects[j]
		if !a.Cost.Equal(b.Cost) {
			return a.Cost.GreaterThan(b.Cost)
		}
		return a.ProjectID < b.ProjectID
	})
	if len(projects) > TopProjects {
		other := ProjectCost{Name: OtherProjects, Hours: decimal.Zero, Cost: decimal.Zero}
		for _, pc := range projects[TopProjects:] {
			other.Hours = other.Hours.Add(pc.Hours)
			other.Cost = other.Cost.Add(pc.Cost)
		}
		projects = projects[:TopProjects]
		if other.Cost.IsPositive() {
			projects = append(projects, other)
		}
	}
	rep.Projects = projects

	for _, db := range byDept {
		rep.Departments = append(rep.Departments, *db)
	}
	sort.Slice(rep.Departments, func(i, j int) bool {
		a, b := rep.Departments[i], rep.Departments[j]
		if !a.Cost.Equal(b.Cost) {
			return a.Cost.GreaterThan(b.Cost)
		}
		return a.Department < b.Department
	})

	rep.TopDepartment = DepartmentShare{Department: NoDepartment, Cost: decimal.Zero, Percentage: decimal.Zero}
	if len(rep.Departments) > 0 {
		top := rep.Departments[0]
		rep.TopDepartment = DepartmentShare{
			Department: top.Department,
			Cost:       top.Cost,
			Percentage: percentOf(top.Cost, rep.TotalLaborCost),
		}
	}
	return rep, nil
}

// percentOf is part/whole*100, or 0 when whole is zero.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole)
}
