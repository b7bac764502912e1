package labor_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/labor-ledger/labor"
	"github.com/warp/labor-ledger/ledger"
)

func day(s string) time.Time {
	d, err := time.Parse(ledger.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func dayPtr(s string) *time.Time {
	d := day(s)
	return &d
}

// reportHarness logs:
//
//	Michael 8h   on A, 2025-03-01, billable      204.00
//	John    4.5h on A, 2025-03-05, billable      183.89
//	Jessica 2h   on B, 2025-03-10, non-billable   70.00
func reportHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	ctx := context.Background()
	for _, in := range []labor.NewTimeEntry{
		{ProjectID: projA, EmployeeID: empHourly, Date: day("2025-03-01"), Hours: dec("8"), Billable: true},
		{ProjectID: projA, EmployeeID: empSalary, Date: day("2025-03-05"), Hours: dec("4.5"), Billable: true},
		{ProjectID: projB, EmployeeID: empDesign, Date: day("2025-03-10"), Hours: dec("2"), Billable: false},
	} {
		_, err := h.reconciler.AddTimeEntry(ctx, in)
		require.NoError(t, err)
	}
	return h
}

func TestCostReport_AllEntries(t *testing.T) {
	// GIVEN: Three entries on two projects by three departments
	// WHEN: The report runs without filters
	// THEN: Totals, shares and rankings cover every entry

	h := reportHarness(t)

	rep, err := h.summary.CostReport(context.Background(), labor.CostReportFilter{})
	require.NoError(t, err)

	assert.Equal(t, 3, rep.EntryCount)
	assert.Equal(t, 2, rep.ProjectCount)
	assertDec(t, "14.5", rep.TotalHours)
	assertDec(t, "12.5", rep.BillableHours)
	assert.Equal(t, "457.89", rep.TotalLaborCost.StringFixed(2))
	assert.Equal(t, "86.21", rep.BillablePercentage.StringFixed(2))
	assert.Equal(t, "31.58", rep.AverageHourlyCost.StringFixed(2))

	require.Len(t, rep.Projects, 2)
	assert.Equal(t, projA, rep.Projects[0].ProjectID)
	assert.Equal(t, "Kitchen Remodel", rep.Projects[0].Name)
	assert.Equal(t, "387.89", rep.Projects[0].Cost.StringFixed(2))
	assertDec(t, "70", rep.Projects[1].Cost)

	require.Len(t, rep.Departments, 3)
	assert.Equal(t, "Construction", rep.Departments[0].Department)
	assert.Equal(t, "Management", rep.Departments[1].Department)
	assert.Equal(t, "Design", rep.Departments[2].Department)

	assert.Equal(t, "Construction", rep.TopDepartment.Department)
	assertDec(t, "204", rep.TopDepartment.Cost)
	assert.Equal(t, "44.55", rep.TopDepartment.Percentage.StringFixed(2))

	require.Len(t, rep.Lines, 3)
	assert.Equal(t, "Michael Davis", rep.Lines[0].EmployeeName)
	assertDec(t, "25.50", rep.Lines[0].HourlyRate)
	assertDec(t, "204", rep.Lines[0].Cost)
}

func TestCostReport_Filters(t *testing.T) {
	h := reportHarness(t)

	tests := []struct {
		name   string
		filter labor.CostReportFilter
		want   []ledger.EmployeeID
	}{
		{"project", labor.CostReportFilter{TimeEntryFilter: labor.TimeEntryFilter{ProjectID: projB}}, []ledger.EmployeeID{empDesign}},
		{"employee", labor.CostReportFilter{TimeEntryFilter: labor.TimeEntryFilter{EmployeeID: empSalary}}, []ledger.EmployeeID{empSalary}},
		{"department", labor.CostReportFilter{Department: "Construction"}, []ledger.EmployeeID{empHourly}},
		{"from", labor.CostReportFilter{TimeEntryFilter: labor.TimeEntryFilter{From: dayPtr("2025-03-05")}}, []ledger.EmployeeID{empSalary, empDesign}},
		{"to", labor.CostReportFilter{TimeEntryFilter: labor.TimeEntryFilter{To: dayPtr("2025-03-05")}}, []ledger.EmployeeID{empHourly, empSalary}},
		{"single day", labor.CostReportFilter{TimeEntryFilter: labor.TimeEntryFilter{From: dayPtr("2025-03-05"), To: dayPtr("2025-03-05")}}, []ledger.EmployeeID{empSalary}},
		{"project and department", labor.CostReportFilter{TimeEntryFilter: labor.TimeEntryFilter{ProjectID: projA}, Department: "Design"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep, err := h.summary.CostReport(context.Background(), tt.filter)
			require.NoError(t, err)

			var got []ledger.EmployeeID
			for _, l := range rep.Lines {
				got = append(got, l.EmployeeID)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want), rep.EntryCount)
		})
	}
}

func TestCostReport_NoHours(t *testing.T) {
	// GIVEN: A filter that matches nothing
	// THEN: Every ratio is zero and there is no top department

	h := reportHarness(t)

	rep, err := h.summary.CostReport(context.Background(), labor.CostReportFilter{Department: "Accounting"})
	require.NoError(t, err)

	assert.Zero(t, rep.EntryCount)
	assert.Zero(t, rep.ProjectCount)
	assert.True(t, rep.TotalHours.IsZero())
	assert.True(t, rep.TotalLaborCost.IsZero())
	assert.True(t, rep.BillablePercentage.IsZero())
	assert.True(t, rep.AverageHourlyCost.IsZero())
	assert.Empty(t, rep.Projects)
	assert.Empty(t, rep.Departments)
	assert.Equal(t, labor.NoDepartment, rep.TopDepartment.Department)
	assert.True(t, rep.TopDepartment.Percentage.IsZero())
}

func TestCostReport_OtherProjects(t *testing.T) {
	// GIVEN: Jessica (35/h) logs 1h..7h on seven projects
	// WHEN: The report ranks projects
	// THEN: The five most expensive are listed and the two cheapest are summed

	h := newHarness(t)
	ctx := context.Background()
	for i := 1; i <= 7; i++ {
		id := ledger.ProjectID(fmt.Sprintf("proj_1%02d", i))
		require.NoError(t, h.mem.SaveProject(ctx, labor.Project{ID: id, Name: fmt.Sprintf("Site %d", i)}))
		h.log(t, empDesign, id, fmt.Sprint(i))
	}

	rep, err := h.summary.CostReport(ctx, labor.CostReportFilter{})
	require.NoError(t, err)

	assert.Equal(t, 7, rep.ProjectCount)
	require.Len(t, rep.Projects, labor.TopProjects+1)
	assert.Equal(t, "Site 7", rep.Projects[0].Name)
	assert.Equal(t, "Site 3", rep.Projects[4].Name)

	other := rep.Projects[labor.TopProjects]
	assert.Equal(t, labor.OtherProjects, other.Name)
	assert.Empty(t, other.ProjectID)
	assertDec(t, "3", other.Hours)
	assertDec(t, "105", other.Cost)
}
