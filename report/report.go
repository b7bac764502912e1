/*
report.go - Spreadsheet exports of labor summaries

PURPOSE:
  Renders a labor.TimeSummary or a labor.CostReport as an .xlsx workbook
  for people who live in spreadsheets.

  TimeSummary:
    Summary      project totals (hours, billable split, labor cost)
    Employees    one row per employee, same order as the summary
    Departments  one row per department

  LaborCost:
    Summary      filters and totals (billable %, average cost, top department)
    Projects     most expensive projects, then "Other"
    Departments  one row per department, most expensive first
    Entries      every priced time entry

  Values are written as numbers; the two-decimal money format is a cell
  style, so the workbook keeps full precision and only the display rounds.

SEE ALSO:
  - labor/summary.go: Produces the TimeSummary
  - api/handlers.go:  GET /api/projects/{id}/time-summary.xlsx,
                      GET /api/reports/labor-cost.xlsx
*/
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/labor-ledger/labor"
	"github.com/warp/labor-ledger/ledger"
)

const (
	SheetSummary     = "Summary"
	SheetEmployees   = "Employees"
	SheetDepartments = "Departments"
	SheetProjects    = "Projects"
	SheetEntries     = "Entries"

	// ContentType is the MIME type of the workbook.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Built-in excelize number formats.
const (
	numFmtHours = 2 // 0.00
	numFmtMoney = 4 // #,##0.00
	numFmtDate  = 14
)

// TimeSummary writes the workbook for s to w.
func TimeSummary(w io.Writer, projectName string, s labor.TimeSummary) error {
	f := excelize.NewFile()
	defer f.Close()

	b, err := newBook(f, SheetEmployees, SheetDepartments)
	if err != nil {
		return err
	}

	if err := b.summary(projectName, s); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}
	if err := b.employees(s.Employees); err != nil {
		return fmt.Errorf("employees sheet: %w", err)
	}
	if err := b.departments(s.Departments); err != nil {
		return fmt.Errorf("departments sheet: %w", err)
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

// LaborCost writes the cost report workbook for rep to w.
func LaborCost(w io.Writer, rep labor.CostReport) error {
	f := excelize.NewFile()
	defer f.Close()

	b, err := newBook(f, SheetProjects, SheetDepartments, SheetEntries)
	if err != nil {
		return err
	}

	if err := b.costSummary(rep); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}
	if err := b.projects(rep.Projects); err != nil {
		return fmt.Errorf("projects sheet: %w", err)
	}
	if err := b.departments(rep.Departments); err != nil {
		return fmt.Errorf("departments sheet: %w", err)
	}
	if err := b.lines(rep.Lines); err != nil {
		return fmt.Errorf("entries sheet: %w", err)
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

type book struct {
	f                        *excelize.File
	bold, hours, money, date int
}

// newBook renames the default sheet to SheetSummary and adds sheets after it.
func newBook(f *excelize.File, sheets ...string) (*book, error) {
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}
	for _, name := range sheets {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	b := &book{f: f}
	var err error
	if b.bold, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return nil, err
	}
	if b.hours, err = f.NewStyle(&excelize.Style{NumFmt: numFmtHours}); err != nil {
		return nil, err
	}
	if b.money, err = f.NewStyle(&excelize.Style{NumFmt: numFmtMoney}); err != nil {
		return nil, err
	}
	if b.date, err = f.NewStyle(&excelize.Style{NumFmt: numFmtDate}); err != nil {
		return nil, err
	}
	return b, nil
}

type labeled struct {
	label string
	value any
	style int
}

// pairs writes label/value rows into columns A and B of SheetSummary.
func (b *book) pairs(rows []labeled) error {
	for i, r := range rows {
		row := i + 1
		if err := b.f.SetSheetRow(SheetSummary, cell(1, row), &[]any{r.label, r.value}); err != nil {
			return err
		}
		if err := b.f.SetCellStyle(SheetSummary, cell(1, row), cell(1, row), b.bold); err != nil {
			return err
		}
		if r.style != 0 {
			if err := b.f.SetCellStyle(SheetSummary, cell(2, row), cell(2, row), r.style); err != nil {
				return err
			}
		}
	}
	return b.f.SetColWidth(SheetSummary, "A", "B", 22)
}

func (b *book) summary(projectName string, s labor.TimeSummary) error {
	return b.pairs([]labeled{
		{"Project", projectName, 0},
		{"Project ID", string(s.ProjectID), 0},
		{"Entries", s.EntryCount, 0},
		{"Total Hours", num(s.TotalHours), b.hours},
		{"Billable Hours", num(s.BillableHours), b.hours},
		{"Non-billable Hours", num(s.NonBillableHours), b.hours},
		{"Total Labor Cost", num(s.TotalLaborCost), b.money},
	})
}

func (b *book) costSummary(rep labor.CostReport) error {
	f := rep.Filter
	return b.pairs([]labeled{
		{"Project", string(f.ProjectID), 0},
		{"Employee", string(f.EmployeeID), 0},
		{"Department", f.Department, 0},
		{"From", dateOrEmpty(f.From), 0},
		{"To", dateOrEmpty(f.To), 0},
		{"Entries", rep.EntryCount, 0},
		{"Projects", rep.ProjectCount, 0},
		{"Total Hours", num(rep.TotalHours), b.hours},
		{"Billable Hours", num(rep.BillableHours), b.hours},
		{"Billable %", num(rep.BillablePercentage), b.hours},
		{"Total Labor Cost", num(rep.TotalLaborCost), b.money},
		{"Average Hourly Cost", num(rep.AverageHourlyCost), b.money},
		{"Top Department", rep.TopDepartment.Department, 0},
		{"Top Department Cost", num(rep.TopDepartment.Cost), b.money},
		{"Top Department %", num(rep.TopDepartment.Percentage), b.hours},
	})
}

func (b *book) projects(list []labor.ProjectCost) error {
	if err := b.header(SheetProjects, "Project ID", "Project", "Hours", "Cost"); err != nil {
		return err
	}
	for i, p := range list {
		values := []any{string(p.ProjectID), p.Name, num(p.Hours), num(p.Cost)}
		if err := b.f.SetSheetRow(SheetProjects, cell(1, i+2), &values); err != nil {
			return err
		}
	}
	if n := len(list); n > 0 {
		if err := b.f.SetCellStyle(SheetProjects, cell(3, 2), cell(3, n+1), b.hours); err != nil {
			return err
		}
		if err := b.f.SetCellStyle(SheetProjects, cell(4, 2), cell(4, n+1), b.money); err != nil {
			return err
		}
	}
	return b.f.SetColWidth(SheetProjects, "A", "D", 18)
}

func (b *book) lines(list []labor.CostLine) error {
	if err := b.header(SheetEntries, "Date", "Project", "Employee", "Department", "Hours", "Billable", "Rate", "Cost", "Description"); err != nil {
		return err
	}
	for i, l := range list {
		values := []any{l.Date, l.ProjectName, l.EmployeeName, l.Department, num(l.Hours), l.Billable, num(l.HourlyRate), num(l.Cost), l.Description}
		if err := b.f.SetSheetRow(SheetEntries, cell(1, i+2), &values); err != nil {
			return err
		}
	}
	if n := len(list); n > 0 {
		last := n + 1
		for _, st := range []struct{ col, style int }{{1, b.date}, {5, b.hours}, {7, b.money}, {8, b.money}} {
			if err := b.f.SetCellStyle(SheetEntries, cell(st.col, 2), cell(st.col, last), st.style); err != nil {
				return err
			}
		}
	}
	return b.f.SetColWidth(SheetEntries, "A", "I", 16)
}

func (b *book) employees(list []labor.EmployeeBreakdown) error {
	if err := b.header(SheetEmployees, "Employee ID", "Name", "Department", "Hours", "Cost"); err != nil {
		return err
	}
	for i, e := range list {
		row := i + 2
		values := []any{string(e.EmployeeID), e.Name, e.Department, num(e.Hours), num(e.Cost)}
		if err := b.f.SetSheetRow(SheetEmployees, cell(1, row), &values); err != nil {
			return err
		}
	}
	if n := len(list); n > 0 {
		if err := b.f.SetCellStyle(SheetEmployees, cell(4, 2), cell(4, n+1), b.hours); err != nil {
			return err
		}
		if err := b.f.SetCellStyle(SheetEmployees, cell(5, 2), cell(5, n+1), b.money); err != nil {
			return err
		}
	}
	return b.f.SetColWidth(SheetEmployees, "A", "E", 18)
}

func (b *book) departments(list []labor.DepartmentBreakdown) error {
	if err := b.header(SheetDepartments, "Department", "Hours", "Cost"); err != nil {
		return err
	}
	for i, d := range list {
		values := []any{d.Department, num(d.Hours), num(d.Cost)}
		if err := b.f.SetSheetRow(SheetDepartments, cell(1, i+2), &values); err != nil {
			return err
		}
	}
	if n := len(list); n > 0 {
		if err := b.f.SetCellStyle(SheetDepartments, cell(2, 2), cell(2, n+1), b.hours); err != nil {
			return err
		}
		if err := b.f.SetCellStyle(SheetDepartments, cell(3, 2), cell(3, n+1), b.money); err != nil {
			return err
		}
	}
	return b.f.SetColWidth(SheetDepartments, "A", "C", 18)
}

func (b *book) header(sheet string, titles ...string) error {
	values := make([]any, len(titles))
	for i, t := range titles {
		values[i] = t
	}
	if err := b.f.SetSheetRow(sheet, "A1", &values); err != nil {
		return err
	}
	return b.f.SetCellStyle(sheet, "A1", cell(len(titles), 1), b.bold)
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func num(d decimal.Decimal) float64 { return d.InexactFloat64() }

func dateOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(ledger.DateLayout)
}
