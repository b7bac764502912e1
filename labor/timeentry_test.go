package labor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/labor-ledger/labor"
	"github.com/warp/labor-ledger/ledger"
)

func TestTimeEntries_RoundTrip(t *testing.T) {
	// GIVEN: An entry logged through the reconciler
	// WHEN: It is read back by id
	// THEN: hours, employee and project match

	h := newHarness(t)
	ctx := context.Background()
	date := time.Date(2025, time.March, 14, 15, 30, 0, 0, time.UTC)

	e, err := h.reconciler.AddTimeEntry(ctx, labor.NewTimeEntry{
		ProjectID:  projA,
		EmployeeID: empHourly,
		Date:       date,
		Hours:      dec("7.25"),
		Billable:   true,
		TaskID:     "task-9",
	})
	require.NoError(t, err)

	got, err := h.entries.Get(ctx, e.ID)
	require.NoError(t, err)
	assertDec(t, "7.25", got.Hours)
	assert.Equal(t, empHourly, got.EmployeeID)
	assert.Equal(t, projA, got.ProjectID)
	assert.Equal(t, "task-9", got.TaskID)
	assert.Equal(t, "2025-03-14", got.Date.Format(ledger.DateLayout))

	view, err := h.entries.GetView(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Michael Davis", view.EmployeeName)
	assert.Equal(t, "Kitchen Remodel", view.ProjectName)
}

func TestTimeEntries_GetUnknown(t *testing.T) {
	h := newHarness(t)

	_, err := h.entries.Get(context.Background(), "time-404")
	assert.True(t, ledger.IsNotFound(err))
}

func TestTimeEntries_AddRejectsNonPositiveHours(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.entries.Add(ctx, labor.NewTimeEntry{ProjectID: projA, EmployeeID: empHourly, Hours: dec("0")})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = h.entries.Add(ctx, labor.NewTimeEntry{EmployeeID: empHourly, Hours: dec("1")})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	all, err := h.entries.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTimeEntries_ListFilters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.log(t, empHourly, projA, "1")
	h.log(t, empHourly, projB, "2")
	h.log(t, empDesign, projA, "3")

	byProject, err := h.entries.ListByProject(ctx, projA)
	require.NoError(t, err)
	assert.Len(t, byProject, 2)

	byEmployee, err := h.entries.ListByEmployee(ctx, empHourly)
	require.NoError(t, err)
	assert.Len(t, byEmployee, 2)

	all, err := h.entries.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	views, err := h.entries.ListViews(ctx, labor.TimeEntryFilter{ProjectID: projB})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Office Fitout", views[0].ProjectName)
}

func TestTimeEntries_EditAndDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e, err := h.entries.Add(ctx, labor.NewTimeEntry{ProjectID: projA, EmployeeID: empHourly, Hours: dec("4")})
	require.NoError(t, err)

	edited, err := h.entries.Edit(ctx, e.ID, labor.TimeEntryPatch{Hours: decPtr("6")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), edited.Version)
	assert.Equal(t, e.CreatedAt, edited.CreatedAt)

	_, err = h.entries.Edit(ctx, "time-404", labor.TimeEntryPatch{Hours: decPtr("6")})
	assert.True(t, ledger.IsNotFound(err))

	ok, err := h.entries.Delete(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.entries.Delete(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTimeEntryPatch_Apply(t *testing.T) {
	base := labor.TimeEntry{ID: "time-1", ProjectID: projA, EmployeeID: empHourly, Hours: dec("8"), Billable: true}
	assert.True(t, labor.TimeEntryPatch{}.IsEmpty())

	desc := "rework"
	next := labor.TimeEntryPatch{Description: &desc}.Apply(base)

	assert.Equal(t, "rework", next.Description)
	assert.Equal(t, base.Hours, next.Hours)
	assert.Equal(t, "", base.Description, "base must not be modified")
}
