/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for demos. Every scenario starts from the same company: four
	employees (two salaried, two hourly) and three projects. Time is logged
	through the reconciler, so the ledger is built exactly as it would be
	in production.

AVAILABLE SCENARIOS:

	sample-data:     The company plus four logged time entries
	edit-history:    Entries edited, moved between projects and deleted
	manual-expenses: Sample data plus material costs, one of them reversed

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create employees and projects
 3. Log, edit or delete time through the reconciler
 4. Optionally append and reverse manual expenses

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "edit-history"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxx(ctx, h)
 3. Add it to the 'loaders' map

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Endpoint handlers
  - labor/reconciler.go: How time becomes ledger records
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/labor-ledger/labor"
	"github.com/warp/labor-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "sample-data",
		Name:        "Sample Data",
		Description: "Four employees, three projects and a few days of logged time",
	},
	{
		ID:          "edit-history",
		Name:        "Edit History",
		Description: "Time entries corrected, moved to another project and deleted; every change is in the ledger",
	},
	{
		ID:          "manual-expenses",
		Name:        "Manual Expenses",
		Description: "Sample data plus material costs, one of them reversed",
	},
}

var loaders = map[string]func(context.Context, *Handler) error{
	"sample-data":     loadSampleData,
	"edit-history":    loadEditHistory,
	"manual-expenses": loadManualExpenses,
}

// Sample company IDs.
const (
	EmpJohn    ledger.EmployeeID = "emp_001"
	EmpSarah   ledger.EmployeeID = "emp_002"
	EmpMichael ledger.EmployeeID = "emp_003"
	EmpJessica ledger.EmployeeID = "emp_004"

	ProjSample1   ledger.ProjectID = "proj_001"
	ProjSample2   ledger.ProjectID = "proj_002"
	ProjCompleted ledger.ProjectID = "proj_003"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) time.Time {
	t, _ := time.Parse(ledger.DateLayout, s)
	return t
}

func sampleEmployees() []labor.Employee {
	return []labor.Employee{
		{ID: EmpJohn, Name: "John Smith", Email: "john.smith@akc.com", Position: "Project Manager", Department: "Management",
			PaymentType: labor.PaymentSalary, AnnualSalary: d("85000"), HoursPerWeek: 40, IsActive: true, CreatedAt: day("2023-01-15")},
		{ID: EmpSarah, Name: "Sarah Johnson", Email: "sarah.johnson@akc.com", Position: "Lead Engineer", Department: "Engineering",
			PaymentType: labor.PaymentSalary, AnnualSalary: d("95000"), HoursPerWeek: 40, IsActive: true, CreatedAt: day("2023-02-01")},
		{ID: EmpMichael, Name: "Michael Davis", Email: "michael.davis@akc.com", Position: "Construction Worker", Department: "Construction",
			PaymentType: labor.PaymentHourly, HourlyRate: d("25.50"), HoursPerWeek: 35, IsActive: true, CreatedAt: day("2023-03-10")},
		{ID: EmpJessica, Name: "Jessica Wilson", Email: "jessica.wilson@akc.com", Position: "Designer", Department: "Design",
			PaymentType: labor.PaymentHourly, HourlyRate: d("35.00"), HoursPerWeek: 30, IsActive: true, CreatedAt: day("2023-04-05")},
	}
}

func sampleProjects() []labor.Project {
	return []labor.Project{
		{ID: ProjSample1, Name: "Sample Project 1", ClientName: "Sample Client", Status: "active",
			HasBudget: true, Budget: d("50000"), CreatedAt: day("2023-01-01")},
		{ID: ProjSample2, Name: "Sample Project 2", ClientName: "Test Client", Status: "pending",
			HasBudget: true, Budget: d("75000"), CreatedAt: day("2023-02-15")},
		{ID: ProjCompleted, Name: "Completed Example", ClientName: "Example Corp", Status: "completed",
			HasBudget: true, Budget: d("100000"), CreatedAt: day("2022-06-01")},
	}
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the id of the last loaded scenario.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": current})
}

// LoadScenario resets the store and loads a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, "Invalid request body", ledger.Invalid("", err.Error()))
		return
	}

	if err := h.Load(r.Context(), req.ScenarioID); err != nil {
		h.fail(w, r, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "loaded",
		"scenario_id": req.ScenarioID,
	})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Reset(r.Context()); err != nil {
		h.fail(w, r, "Failed to reset store", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Load resets the store and runs the named scenario.
func (h *Handler) Load(ctx context.Context, id string) error {
	load, ok := loaders[id]
	if !ok {
		return ledger.Invalid("scenario_id", fmt.Sprintf("unknown scenario %q", id))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := load(ctx, h); err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}
	h.currentScenario = id
	h.log.Info("scenario loaded", zap.String("scenario_id", id))
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func seedCompany(ctx context.Context, h *Handler) error {
	for _, e := range sampleEmployees() {
		if err := h.store.SaveEmployee(ctx, e); err != nil {
			return err
		}
	}
	for _, p := range sampleProjects() {
		if err := h.store.SaveProject(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func sampleEntries() []labor.NewTimeEntry {
	return []labor.NewTimeEntry{
		{ProjectID: ProjSample1, EmployeeID: EmpMichael, Date: day("2023-03-01"), Hours: d("8"), Billable: true,
			Description: "Site preparation and initial groundwork"},
		{ProjectID: ProjSample2, EmployeeID: EmpJohn, Date: day("2023-03-02"), Hours: d("6"), Billable: true,
			Description: "Client meeting and project planning"},
		{ProjectID: ProjCompleted, EmployeeID: EmpJessica, Date: day("2023-03-03"), Hours: d("4"), Billable: false,
			Description: "Final inspection and project review"},
		{ProjectID: ProjSample1, EmployeeID: EmpSarah, Date: day("2023-03-01"), Hours: d("7.5"), Billable: true,
			Description: "Electrical work for main floor"},
	}
}

func loadSampleData(ctx context.Context, h *Handler) error {
	if err := seedCompany(ctx, h); err != nil {
		return err
	}
	for _, in := range sampleEntries() {
		if _, err := h.reconciler.AddTimeEntry(ctx, in); err != nil {
			return err
		}
	}
	return nil
}

// loadEditHistory walks through every kind of correction:
// Michael's 8h become 5h, John's meeting moves to Sample Project 1, and
// Jessica's inspection is deleted. Every step leaves its record.
func loadEditHistory(ctx context.Context, h *Handler) error {
	if err := seedCompany(ctx, h); err != nil {
		return err
	}

	logged := make([]labor.TimeEntry, 0, 3)
	for _, in := range sampleEntries()[:3] {
		e, err := h.reconciler.AddTimeEntry(ctx, in)
		if err != nil {
			return err
		}
		logged = append(logged, e)
	}

	five := d("5")
	if _, err := h.reconciler.EditTimeEntry(ctx, logged[0].ID, labor.TimeEntryPatch{Hours: &five}); err != nil {
		return err
	}

	moved := ProjSample1
	fourHalf := d("4.5")
	if _, err := h.reconciler.EditTimeEntry(ctx, logged[1].ID, labor.TimeEntryPatch{ProjectID: &moved, Hours: &fourHalf}); err != nil {
		return err
	}

	if _, err := h.reconciler.DeleteTimeEntry(ctx, logged[2].ID); err != nil {
		return err
	}
	return nil
}

func loadManualExpenses(ctx context.Context, h *Handler) error {
	if err := loadSampleData(ctx, h); err != nil {
		return err
	}

	lumber, err := h.ledger.Append(ctx, ledger.ExpenseRecord{
		ProjectID: ProjSample1, ExpenseType: ledger.ExpenseMaterial, Amount: d("1200"),
		Date: day("2023-03-02"), Description: "Lumber delivery", AddedBy: "scenario",
	})
	if err != nil {
		return err
	}
	if _, err := h.ledger.Append(ctx, ledger.ExpenseRecord{
		ProjectID: ProjSample1, ExpenseType: ledger.ExpenseEquipment, Amount: d("350"),
		Date: day("2023-03-02"), Description: "Excavator rental", AddedBy: "scenario",
	}); err != nil {
		return err
	}
	// The lumber was returned.
	_, err = h.ledger.Reverse(ctx, lumber.ID, "scenario")
	return err
}
