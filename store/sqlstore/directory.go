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
// EMPLOYEE DIRECTORY
// =============================================================================

const employeeColumns = `id, name, email, position, department, payment_type, hourly_rate, annual_salary, hours_per_week, is_active, created_at`

// SaveEmployee creates or replaces an employee.
func (s *Store) SaveEmployee(ctx context.Context, emp labor.Employee) error {
	_, err := s.exec(ctx, `
		INSERT INTO employees (`+employeeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			position = excluded.position,
			department = excluded.department,
			payment_type = excluded.payment_type,
			hourly_rate = excluded.hourly_rate,
			annual_salary = excluded.annual_salary,
			hours_per_week = excluded.hours_per_week,
			is_active = excluded.is_active`,
		string(emp.ID),
		emp.Name,
		emp.Email,
		emp.Position,
		emp.Department,
		string(emp.PaymentType),
		emp.HourlyRate,
		emp.AnnualSalary,
		emp.HoursPerWeek,
		emp.IsActive,
		formatTime(emp.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", classify(err))
	}
	return nil
}

func (s *Store) LookupEmployee(ctx context.Context, id ledger.EmployeeID) (*labor.Employee, error) {
	emps, err := s.queryEmployees(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(emps) == 0 {
		return nil, nil
	}
	return &emps[0], nil
}

// ListEmployees returns every employee ordered by name, then ID.
func (s *Store) ListEmployees(ctx context.Context) ([]labor.Employee, error) {
	return s.queryEmployees(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY name ASC, id ASC`)
}

func (s *Store) queryEmployees(ctx context.Context, query string, args ...any) ([]labor.Employee, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	emps := []labor.Employee{}
	for rows.Next() {
		var (
			e           labor.Employee
			id, payType string
			created     dbTime
		)
		if err := rows.Scan(&id, &e.Name, &e.Email, &e.Position, &e.Department, &payType,
			&e.HourlyRate, &e.AnnualSalary, &e.HoursPerWeek, &e.IsActive, &created); err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		e.ID = ledger.EmployeeID(id)
		e.PaymentType = labor.PaymentType(payType)
		e.CreatedAt = created.Time
		emps = append(emps, e)
	}
	return emps, rows.Err()
}

// =============================================================================
// PROJECT STORE
// =============================================================================

const projectColumns = `id, name, client_name, status, budget, created_at`

// SaveProject creates or replaces a project.
func (s *Store) SaveProject(ctx context.Context, p labor.Project) error {
	var budget decimal.NullDecimal
	if p.HasBudget {
		budget = decimal.NewNullDecimal(p.Budget)
	}
	_, err := s.exec(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			client_name = excluded.client_name,
			status = excluded.status,
			budget = excluded.budget`,
		string(p.ID),
		p.Name,
		p.ClientName,
		p.Status,
		budget,
		formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save project: %w", classify(err))
	}
	return nil
}

func (s *Store) LookupProject(ctx context.Context, id ledger.ProjectID) (*labor.Project, error) {
	projects, err := s.queryProjects(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, nil
	}
	return &projects[0], nil
}

// ListProjects returns every project ordered by ID.
func (s *Store) ListProjects(ctx context.Context) ([]labor.Project, error) {
	return s.queryProjects(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY id ASC`)
}

// ProjectBudget implements ledger.Budgets.
func (s *Store) ProjectBudget(ctx context.Context, id ledger.ProjectID) (decimal.Decimal, bool, error) {
	var budget decimal.NullDecimal
	err := s.queryRow(ctx, `SELECT budget FROM projects WHERE id = ?`, string(id)).Scan(&budget)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to load budget: %w", err)
	}
	return budget.Decimal, budget.Valid, nil
}

func (s *Store) queryProjects(ctx context.Context, query string, args ...any) ([]labor.Project, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []labor.Project{}
	for rows.Next() {
		var (
			p       labor.Project
			id      string
			budget  decimal.NullDecimal
			created dbTime
		)
		if err := rows.Scan(&id, &p.Name, &p.ClientName, &p.Status, &budget, &created); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.ID = ledger.ProjectID(id)
		p.HasBudget = budget.Valid
		p.Budget = budget.Decimal
		p.CreatedAt = created.Time
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
