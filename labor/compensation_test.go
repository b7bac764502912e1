package labor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/labor-ledger/labor"
	"github.com/warp/labor-ledger/ledger"
	"github.com/warp/labor-ledger/store/memory"
)

func TestHourlyRate_Hourly(t *testing.T) {
	rate := labor.HourlyRate(labor.Employee{PaymentType: labor.PaymentHourly, HourlyRate: dec("25.50")})
	assertDec(t, "25.50", rate)
}

func TestHourlyRate_Salary(t *testing.T) {
	// GIVEN: 85,000/yr at 40h/week
	// THEN: 85000 / (52*40) = 40.8653846...

	rate := labor.HourlyRate(labor.Employee{PaymentType: labor.PaymentSalary, AnnualSalary: dec("85000"), HoursPerWeek: 40})

	assert.Equal(t, "40.87", rate.StringFixed(2))
	assert.True(t, rate.Mul(dec("2080")).Round(6).Equal(dec("85000")))
}

func TestHourlyRate_SalaryDefaultsTo40Hours(t *testing.T) {
	for _, hpw := range []int{0, -5} {
		rate := labor.HourlyRate(labor.Employee{PaymentType: labor.PaymentSalary, AnnualSalary: dec("104000"), HoursPerWeek: hpw})
		assertDec(t, "50", rate)
	}
}

func TestHourlyRate_SalaryPartTime(t *testing.T) {
	rate := labor.HourlyRate(labor.Employee{PaymentType: labor.PaymentSalary, AnnualSalary: dec("52000"), HoursPerWeek: 20})
	assertDec(t, "50", rate)
}

func TestCompensation_MissingEmployeeCostsZero(t *testing.T) {
	// GIVEN: An employee id the directory doesn't know
	// THEN: Hourly cost is 0 and there is no error

	comp := labor.NewCompensation(memory.NewMemory())

	rate, err := comp.HourlyCost(context.Background(), "emp_missing")
	require.NoError(t, err)
	assert.True(t, rate.IsZero())
}

type brokenDirectory struct{}

var errDirectory = errors.New("directory unavailable")

func (brokenDirectory) LookupEmployee(context.Context, ledger.EmployeeID) (*labor.Employee, error) {
	return nil, errDirectory
}

func (brokenDirectory) ListEmployees(context.Context) ([]labor.Employee, error) {
	return nil, errDirectory
}

func TestCompensation_DirectoryErrorIsReturned(t *testing.T) {
	comp := labor.NewCompensation(brokenDirectory{})

	_, err := comp.HourlyCost(context.Background(), empHourly)
	assert.ErrorIs(t, err, errDirectory)

	_, err = comp.DepartmentStatistics(context.Background())
	assert.ErrorIs(t, err, errDirectory)
}

func TestCalculator_LaborCost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cost, err := h.calc.LaborCost(ctx, empHourly, dec("8"))
	require.NoError(t, err)
	assertDec(t, "204.00", cost)

	neg, err := h.calc.LaborCost(ctx, empHourly, dec("-3"))
	require.NoError(t, err)
	assertDec(t, "-76.50", neg)

	salaried, err := h.calc.LaborCost(ctx, empSalary, dec("4.5"))
	require.NoError(t, err)
	assert.Equal(t, "183.89", salaried.StringFixed(2))
}

func TestCompensation_DepartmentStatistics(t *testing.T) {
	// GIVEN: Seeded staff plus an inactive engineer and one with no department
	// THEN: Only active employees count, grouped and sorted by department

	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.mem.SaveEmployee(ctx, labor.Employee{ID: "emp_x", Name: "Gone", Department: "Engineering", PaymentType: labor.PaymentHourly, HourlyRate: dec("99")}))
	require.NoError(t, h.mem.SaveEmployee(ctx, labor.Employee{ID: "emp_y", Name: "Floater", PaymentType: labor.PaymentHourly, HourlyRate: dec("20"), IsActive: true}))
	require.NoError(t, h.mem.SaveEmployee(ctx, labor.Employee{ID: "emp_z", Name: "Helper", Department: "Construction", PaymentType: labor.PaymentHourly, HourlyRate: dec("30.50"), IsActive: true}))

	stats, err := labor.NewCompensation(h.mem).DepartmentStatistics(ctx)
	require.NoError(t, err)

	var names []string
	for _, s := range stats {
		names = append(names, s.Department)
	}
	assert.Equal(t, []string{"Construction", "Design", "Management", "Other"}, names)

	construction := stats[0]
	assert.Equal(t, 2, construction.Headcount)
	assertDec(t, "56", construction.TotalHourlyCost)
	assertDec(t, "28", construction.AverageHourlyCost)
	assert.Equal(t, 1, stats[3].Headcount)
}
