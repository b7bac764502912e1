package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/labor-ledger/ledger"
)

// =============================================================================
// EXPENSE LEDGER (ledger.Store interface)
// =============================================================================

const expenseColumns = `id, project_id, expense_type, amount, date, description, added_by, time_entry_id, reverses_id, created_at`

// Append adds a record to the ledger. Append-only.
func (c *conn) Append(ctx context.Context, rec ledger.ExpenseRecord) error {
	_, err := c.exec(ctx, `
		INSERT INTO expenses (`+expenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.ID),
		string(rec.ProjectID),
		string(rec.ExpenseType),
		rec.Amount,
		formatDate(rec.Date),
		rec.Description,
		rec.AddedBy,
		nullString(string(rec.TimeEntryID)),
		nullString(string(rec.ReversesID)),
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append expense: %w", classify(err))
	}
	return nil
}

func (c *conn) Query(ctx context.Context, filter ledger.ExpenseFilter) ([]ledger.ExpenseRecord, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE 1=1`
	var args []any
	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, string(filter.ProjectID))
	}
	if filter.TimeEntryID != "" {
		query += ` AND time_entry_id = ?`
		args = append(args, string(filter.TimeEntryID))
	}
	if len(filter.Types) > 0 {
		query += ` AND expense_type IN (?` + strings.Repeat(`, ?`, len(filter.Types)-1) + `)`
		for _, t := range filter.Types {
			args = append(args, string(t))
		}
	}
	if filter.From != nil {
		query += ` AND date >= ?`
		args = append(args, formatDate(*filter.From))
	}
	if filter.To != nil {
		query += ` AND date <= ?`
		args = append(args, formatDate(*filter.To))
	}
	query += ` ORDER BY created_at ASC, id ASC`
	return c.queryExpenses(ctx, query, args...)
}

func (c *conn) GetRecord(ctx context.Context, id ledger.RecordID) (*ledger.ExpenseRecord, error) {
	recs, err := c.queryExpenses(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// IsReversed checks if a record has already been reversed.
func (c *conn) IsReversed(ctx context.Context, id ledger.RecordID) (bool, error) {
	var count int
	err := c.queryRow(ctx, `SELECT COUNT(*) FROM expenses WHERE reverses_id = ?`, string(id)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (c *conn) queryExpenses(ctx context.Context, query string, args ...any) ([]ledger.ExpenseRecord, error) {
	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	recs := []ledger.ExpenseRecord{}
	for rows.Next() {
		var (
			r                     ledger.ExpenseRecord
			id, projID, expType   string
			amount                decimal.Decimal
			timeEntryID, reverses sql.NullString
			date, created         dbTime
		)
		if err := rows.Scan(&id, &projID, &expType, &amount, &date, &r.Description, &r.AddedBy,
			&timeEntryID, &reverses, &created); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		r.ID = ledger.RecordID(id)
		r.ProjectID = ledger.ProjectID(projID)
		r.ExpenseType = ledger.ExpenseType(expType)
		r.Amount = amount
		r.Date = date.Time
		r.TimeEntryID = ledger.TimeEntryID(timeEntryID.String)
		r.ReversesID = ledger.RecordID(reverses.String)
		r.CreatedAt = created.Time
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// =============================================================================
// SNAPSHOT STORE (ledger.SnapshotStore interface)
// =============================================================================

// SaveSnapshot keeps the latest cost basis per project.
func (c *conn) SaveSnapshot(ctx context.Context, snap ledger.CostBasis) error {
	byType, err := json.Marshal(snap.ByType)
	if err != nil {
		return err
	}
	var budget, remaining decimal.NullDecimal
	if snap.HasBudget {
		budget = decimal.NewNullDecimal(snap.Budget)
		remaining = decimal.NewNullDecimal(snap.Remaining)
	}

	_, err = c.exec(ctx, `
		INSERT INTO cost_snapshots
		(project_id, labor, material, overhead, other, total, by_type_json, budget, remaining, record_count, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id) DO UPDATE SET
			labor = excluded.labor,
			material = excluded.material,
			overhead = excluded.overhead,
			other = excluded.other,
			total = excluded.total,
			by_type_json = excluded.by_type_json,
			budget = excluded.budget,
			remaining = excluded.remaining,
			record_count = excluded.record_count,
			taken_at = excluded.taken_at`,
		string(snap.ProjectID),
		snap.Labor,
		snap.Material,
		snap.Overhead,
		snap.Other,
		snap.Total,
		string(byType),
		budget,
		remaining,
		snap.RecordCount,
		formatTime(snap.TakenAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (c *conn) LatestSnapshot(ctx context.Context, projectID ledger.ProjectID) (*ledger.CostBasis, error) {
	var (
		snap              ledger.CostBasis
		byType            string
		budget, remaining decimal.NullDecimal
		taken             dbTime
	)
	err := c.queryRow(ctx, `
		SELECT labor, material, overhead, other, total, by_type_json, budget, remaining, record_count, taken_at
		FROM cost_snapshots WHERE project_id = ?`, string(projectID),
	).Scan(&snap.Labor, &snap.Material, &snap.Overhead, &snap.Other, &snap.Total,
		&byType, &budget, &remaining, &snap.RecordCount, &taken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	if err := json.Unmarshal([]byte(byType), &snap.ByType); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	snap.ProjectID = projectID
	snap.HasBudget = budget.Valid
	snap.Budget = budget.Decimal
	snap.Remaining = remaining.Decimal
	snap.TakenAt = taken.Time
	return &snap, nil
}
