package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/labor-ledger/labor"
	"github.com/warp/labor-ledger/report"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTimeSummary_Workbook(t *testing.T) {
	// GIVEN: A summary with two employees in one department
	// WHEN: Rendered to xlsx
	// THEN: Every sheet carries the figures at full precision

	s := labor.TimeSummary{
		ProjectID:        "proj_001",
		TotalHours:       d("14.5"),
		BillableHours:    d("12.5"),
		NonBillableHours: d("2"),
		TotalLaborCost:   d("438.89"),
		EntryCount:       3,
		Employees: []labor.EmployeeBreakdown{
			{EmployeeID: "emp_001", Name: "John Smith", Department: "Management", Hours: d("4.5"), Cost: d("183.89")},
			{EmployeeID: "emp_003", Name: "Michael Davis", Department: "Management", Hours: d("10"), Cost: d("255")},
		},
		Departments: []labor.DepartmentBreakdown{
			{Department: "Management", Hours: d("14.5"), Cost: d("438.89")},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, report.TimeSummary(&buf, "Kitchen Remodel", s))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{report.SheetSummary, report.SheetEmployees, report.SheetDepartments}, f.GetSheetList())

	raw := excelize.Options{RawCellValue: true}
	get := func(sheet, cell string) string {
		v, err := f.GetCellValue(sheet, cell, raw)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, "Kitchen Remodel", get(report.SheetSummary, "B1"))
	assert.Equal(t, "14.5", get(report.SheetSummary, "B4"))
	assert.Equal(t, "438.89", get(report.SheetSummary, "B7"))

	assert.Equal(t, "Name", get(report.SheetEmployees, "B1"))
	assert.Equal(t, "Michael Davis", get(report.SheetEmployees, "B3"))
	assert.Equal(t, "183.89", get(report.SheetEmployees, "E2"))

	assert.Equal(t, "Management", get(report.SheetDepartments, "A2"))
	assert.Equal(t, "438.89", get(report.SheetDepartments, "C2"))
}

func TestTimeSummary_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.TimeSummary(&buf, "Empty", labor.TimeSummary{ProjectID: "proj_x"}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(report.SheetEmployees)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestLaborCost_Workbook(t *testing.T) {
	// GIVEN: A cost report over two projects
	// WHEN: Rendered to xlsx
	// THEN: Filters, totals, ranked projects and entry lines land on their sheets

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rep := labor.CostReport{
		Filter:             labor.CostReportFilter{TimeEntryFilter: labor.TimeEntryFilter{From: &from}, Department: "Construction"},
		TotalHours:         d("10"),
		BillableHours:      d("8"),
		TotalLaborCost:     d("255"),
		BillablePercentage: d("80"),
		AverageHourlyCost:  d("25.5"),
		EntryCount:         2,
		ProjectCount:       2,
		Projects: []labor.ProjectCost{
			{ProjectID: "proj_001", Name: "Kitchen Remodel", Hours: d("8"), Cost: d("204")},
			{ProjectID: "proj_002", Name: "Office Fitout", Hours: d("2"), Cost: d("51")},
		},
		Departments:   []labor.DepartmentBreakdown{{Department: "Construction", Hours: d("10"), Cost: d("255")}},
		TopDepartment: labor.DepartmentShare{Department: "Construction", Cost: d("255"), Percentage: d("100")},
		Lines: []labor.CostLine{{
			TimeEntryView: labor.TimeEntryView{
				TimeEntry:    labor.TimeEntry{ID: "time-1", ProjectID: "proj_001", Date: from, Hours: d("8"), Billable: true},
				EmployeeName: "Michael Davis",
				ProjectName:  "Kitchen Remodel",
			},
			Department: "Construction",
			HourlyRate: d("25.5"),
			Cost:       d("204"),
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, report.LaborCost(&buf, rep))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t,
		[]string{report.SheetSummary, report.SheetProjects, report.SheetDepartments, report.SheetEntries},
		f.GetSheetList())

	raw := excelize.Options{RawCellValue: true}
	get := func(sheet, cell string) string {
		v, err := f.GetCellValue(sheet, cell, raw)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, "Construction", get(report.SheetSummary, "B3"))
	assert.Equal(t, "2025-03-01", get(report.SheetSummary, "B4"))
	assert.Equal(t, "80", get(report.SheetSummary, "B10"))
	assert.Equal(t, "255", get(report.SheetSummary, "B11"))
	assert.Equal(t, "Construction", get(report.SheetSummary, "B13"))

	assert.Equal(t, "Kitchen Remodel", get(report.SheetProjects, "B2"))
	assert.Equal(t, "51", get(report.SheetProjects, "D3"))

	assert.Equal(t, "Michael Davis", get(report.SheetEntries, "C2"))
	assert.Equal(t, "204", get(report.SheetEntries, "H2"))
}
