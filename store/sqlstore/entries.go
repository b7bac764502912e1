package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/labor-ledger/labor"
	"github.com/warp/labor-ledger/ledger"
)

// =============================================================================
// TIME ENTRY STORE (labor.TimeEntryStore interface)
// =============================================================================

const entryColumns = `id, project_id, employee_id, date, hours, billable, description, task_id, version, created_at, updated_at`

func (c *conn) InsertTimeEntry(ctx context.Context, e labor.TimeEntry) error {
	_, err := c.exec(ctx, `
		INSERT INTO time_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID),
		string(e.ProjectID),
		string(e.EmployeeID),
		formatDate(e.Date),
		e.Hours,
		e.Billable,
		e.Description,
		nullString(e.TaskID),
		e.Version,
		formatTime(e.CreatedAt),
		formatTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert time entry: %w", classify(err))
	}
	return nil
}

func (c *conn) GetTimeEntry(ctx context.Context, id ledger.TimeEntryID) (*labor.TimeEntry, error) {
	entries, err := c.queryEntries(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (c *conn) ListTimeEntries(ctx context.Context, filter labor.TimeEntryFilter) ([]labor.TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE 1=1`
	var args []any
	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, string(filter.ProjectID))
	}
	if filter.EmployeeID != "" {
		query += ` AND employee_id = ?`
		args = append(args, string(filter.EmployeeID))
	}
	if filter.From != nil {
		query += ` AND date >= ?`
		args = append(args, formatDate(*filter.From))
	}
	if filter.To != nil {
		query += ` AND date <= ?`
		args = append(args, formatDate(*filter.To))
	}
	query += ` ORDER BY date ASC, id ASC`
	return c.queryEntries(ctx, query, args...)
}

func (c *conn) UpdateTimeEntry(ctx context.Context, e labor.TimeEntry, expectedVersion int64) error {
	res, err := c.exec(ctx, `
		UPDATE time_entries
		SET project_id = ?, employee_id = ?, date = ?, hours = ?, billable = ?,
		    description = ?, task_id = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(e.ProjectID),
		string(e.EmployeeID),
		formatDate(e.Date),
		e.Hours,
		e.Billable,
		e.Description,
		nullString(e.TaskID),
		expectedVersion+1,
		formatTime(e.UpdatedAt),
		string(e.ID),
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update time entry: %w", classify(err))
	}
	return c.checkVersioned(ctx, res, e.ID)
}

func (c *conn) DeleteTimeEntry(ctx context.Context, id ledger.TimeEntryID, expectedVersion int64) error {
	res, err := c.exec(ctx, `DELETE FROM time_entries WHERE id = ? AND version = ?`, string(id), expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to delete time entry: %w", classify(err))
	}
	return c.checkVersioned(ctx, res, id)
}

// checkVersioned turns "0 rows affected" into the reason why.
func (c *conn) checkVersioned(ctx context.Context, res sql.Result, id ledger.TimeEntryID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = c.queryRow(ctx, `SELECT 1 FROM time_entries WHERE id = ?`, string(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.NotFound("time entry", string(id))
	}
	if err != nil {
		return err
	}
	return ledger.ErrConcurrentModification
}

func (c *conn) queryEntries(ctx context.Context, query string, args ...any) ([]labor.TimeEntry, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query time entries: %w", err)
	}
	defer rows.Close()

	entries := []labor.TimeEntry{}
	for rows.Next() {
		var (
			e                      labor.TimeEntry
			id, projID, empID      string
			hours                  decimal.Decimal
			taskID                 sql.NullString
			date, created, updated dbTime
		)
		if err := rows.Scan(&id, &projID, &empID, &date, &hours, &e.Billable, &e.Description,
			&taskID, &e.Version, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan time entry: %w", err)
		}
		e.ID = ledger.TimeEntryID(id)
		e.ProjectID = ledger.ProjectID(projID)
		e.EmployeeID = ledger.EmployeeID(empID)
		e.Date = date.Time
		e.Hours = hours
		e.TaskID = taskID.String
		e.CreatedAt = created.Time
		e.UpdatedAt = updated.Time
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
