package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/labor-ledger/labor"
	"github.com/warp/labor-ledger/ledger"
	"github.com/warp/labor-ledger/store/memory"
)

func entry(id string, version int64) labor.TimeEntry {
	return labor.TimeEntry{
		ID:         ledger.TimeEntryID(id),
		ProjectID:  "proj_001",
		EmployeeID: "emp_001",
		Date:       time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		Hours:      decimal.NewFromInt(8),
		Version:    version,
	}
}

func record(id string, at time.Time) ledger.ExpenseRecord {
	return ledger.ExpenseRecord{
		ID:          ledger.RecordID(id),
		ProjectID:   "proj_001",
		ExpenseType: ledger.ExpenseMaterial,
		Amount:      decimal.NewFromInt(100),
		CreatedAt:   at,
	}
}

func TestTxMemory_RollbackOnError(t *testing.T) {
	// GIVEN: A transaction that inserts an entry and a record, then fails
	// THEN: Neither write is visible afterwards

	ctx := context.Background()
	m := memory.NewTxMemory()
	boom := errors.New("boom")

	err := m.WithTx(ctx, func(s labor.Store) error {
		require.NoError(t, s.InsertTimeEntry(ctx, entry("time-1", 1)))
		require.NoError(t, s.Append(ctx, record("exp-1", time.Now())))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := m.GetTimeEntry(ctx, "time-1")
	require.NoError(t, err)
	assert.Nil(t, got)
	rec, err := m.GetRecord(ctx, "exp-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestTxMemory_CommitOnSuccess(t *testing.T) {
	ctx := context.Background()
	m := memory.NewTxMemory()

	err := m.WithTx(ctx, func(s labor.Store) error {
		if err := s.InsertTimeEntry(ctx, entry("time-1", 1)); err != nil {
			return err
		}
		return s.Append(ctx, record("exp-1", time.Now()))
	})
	require.NoError(t, err)

	got, err := m.GetTimeEntry(ctx, "time-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	recs, err := m.Query(ctx, ledger.ExpenseFilter{ProjectID: "proj_001"})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestMemory_VersionCheck(t *testing.T) {
	ctx := context.Background()
	m := memory.NewMemory()
	require.NoError(t, m.InsertTimeEntry(ctx, entry("time-1", 1)))

	next := entry("time-1", 2)
	next.Hours = decimal.NewFromInt(5)
	require.NoError(t, m.UpdateTimeEntry(ctx, next, 1))

	err := m.UpdateTimeEntry(ctx, next, 1)
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)

	err = m.DeleteTimeEntry(ctx, "time-1", 1)
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)

	err = m.DeleteTimeEntry(ctx, "time-404", 1)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	require.NoError(t, m.DeleteTimeEntry(ctx, "time-1", 2))
}

func TestMemory_AppendOrderingAndUniqueness(t *testing.T) {
	ctx := context.Background()
	m := memory.NewMemory()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.Append(ctx, record("exp-b", base.Add(time.Second))))
	require.NoError(t, m.Append(ctx, record("exp-a", base)))
	assert.ErrorIs(t, m.Append(ctx, record("exp-a", base)), ledger.ErrDuplicate)

	recs, err := m.Query(ctx, ledger.ExpenseFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, ledger.RecordID("exp-a"), recs[0].ID)

	got, err := m.GetRecord(ctx, "exp-b")
	require.NoError(t, err)
	assert.Equal(t, ledger.RecordID("exp-b"), got.ID)
}

func TestMemory_SingleReversal(t *testing.T) {
	ctx := context.Background()
	m := memory.NewMemory()
	now := time.Now()
	require.NoError(t, m.Append(ctx, record("exp-1", now)))

	rev := record("exp-2", now.Add(time.Millisecond))
	rev.ReversesID = "exp-1"
	require.NoError(t, m.Append(ctx, rev))

	again := record("exp-3", now.Add(2*time.Millisecond))
	again.ReversesID = "exp-1"
	assert.ErrorIs(t, m.Append(ctx, again), ledger.ErrDuplicate)

	reversed, err := m.IsReversed(ctx, "exp-1")
	require.NoError(t, err)
	assert.True(t, reversed)
}

func TestMemory_ProjectBudgetAndReset(t *testing.T) {
	ctx := context.Background()
	m := memory.NewMemory()
	require.NoError(t, m.SaveProject(ctx, labor.Project{ID: "proj_001", HasBudget: true, Budget: decimal.NewFromInt(5000)}))
	require.NoError(t, m.SaveProject(ctx, labor.Project{ID: "proj_002"}))

	b, ok, err := m.ProjectBudget(ctx, "proj_001")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, b.Equal(decimal.NewFromInt(5000)))

	_, ok, err = m.ProjectBudget(ctx, "proj_002")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Reset(ctx))
	projects, err := m.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)
}
