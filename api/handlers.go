/*
handlers.go - HTTP API handlers for the labor-cost ledger

PURPOSE:
  Exposes the labor engine via REST API. Handles HTTP request/response and
  JSON serialization, and delegates to the reconciler, summary and ledger.
  No business rule lives here.

ENDPOINTS:
  Employees:
    GET    /api/employees                       List employees (+ hourly cost)
    POST   /api/employees                       Create employee
    GET    /api/employees/{id}                  Get employee
    GET    /api/employees/{id}/time-entries     Entries logged by employee
    GET    /api/departments/stats               Department statistics

  Projects:
    GET    /api/projects                        List projects
    POST   /api/projects                        Create project
    GET    /api/projects/{id}/time-entries      Entries logged on project
    GET    /api/projects/{id}/time-summary      Hours and labor cost summary
    GET    /api/projects/{id}/time-summary.xlsx Same, as a spreadsheet
    GET    /api/projects/{id}/expenses          Ledger records (?type=, ?time_entry_id=)
    POST   /api/projects/{id}/expenses          Append manual expense
    GET    /api/projects/{id}/totals            Cost basis
    GET    /api/projects/{id}/audit             Summary vs ledger audit
    POST   /api/expenses/{id}/reverse           Reverse a manual expense

  Reports:
    GET    /api/reports/labor-cost              Labor cost across projects
                                                (?project_id=, ?employee_id=, ?department=,
                                                 ?start_date=, ?end_date=)
    GET    /api/reports/labor-cost.xlsx         Same, as a spreadsheet

  Time entries:
    GET    /api/time-entries                    List all
    POST   /api/time-entries                    Log time
    GET    /api/time-entries/{id}               Get
    PUT    /api/time-entries/{id}               Edit
    DELETE /api/time-entries/{id}               Delete

ERROR HANDLING:
  Errors are returned as JSON with an HTTP status derived from the ledger
  error kind:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Concurrent modification, lock busy, already reversed, linked record
  - 503: Consistency failure (nothing was written, safe to retry)
  - 500: Internal errors
  Each failed request is logged once, here.

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo data loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/labor-ledger/factory"
	"github.com/warp/labor-ledger/idgen"
	"github.com/warp/labor-ledger/labor"
	"github.com/warp/labor-ledger/ledger"
	"github.com/warp/labor-ledger/lock"
	"github.com/warp/labor-ledger/logger"
	"github.com/warp/labor-ledger/metrics"
	"github.com/warp/labor-ledger/report"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the storage the API runs on. Both store/sqlstore.Store and
// store/memory.TxMemory satisfy it.
type Backend interface {
	labor.TxStore
	labor.EmployeeDirectory
	labor.ProjectStore
	ledger.Budgets

	SaveEmployee(ctx context.Context, emp labor.Employee) error
	SaveProject(ctx context.Context, p labor.Project) error
	ListProjects(ctx context.Context) ([]labor.Project, error)

	// Reset clears all data. Used by scenarios only.
	Reset(ctx context.Context) error
}

// Options tune the engine behind the handler. Zero values are fine.
type Options struct {
	Locker      lock.Locker
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	MaxAttempts int
	IDs         ledger.IDGenerator
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	store      Backend
	ledger     *ledger.Ledger
	entries    *labor.TimeEntries
	comp       *labor.Compensation
	reconciler *labor.Reconciler
	summary    *labor.Summary
	factory    *factory.Factory
	log        *zap.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the labor engine on store and returns its HTTP handler.
func NewHandler(store Backend, opts Options) *Handler {
	ids := opts.IDs
	if ids == nil {
		ids = idgen.ULID{}
	}
	locker := opts.Locker
	if locker == nil {
		locker = lock.NewKeyed()
	}
	log := logger.Named(opts.Logger, "api")

	l := ledger.New(store, ids,
		ledger.WithBudgets(store),
		ledger.WithLocker(locker),
		ledger.WithMetrics(opts.Metrics),
		ledger.WithLogger(logger.Named(opts.Logger, "ledger")),
	)
	comp := labor.NewCompensation(store)
	calc := labor.NewCalculator(comp)
	entries := labor.NewTimeEntries(store, store, store, ids)

	return &Handler{
		store:   store,
		ledger:  l,
		entries: entries,
		comp:    comp,
		reconciler: labor.NewReconciler(store, entries, calc, l,
			labor.WithLocker(locker),
			labor.WithMetrics(opts.Metrics),
			labor.WithLogger(logger.Named(opts.Logger, "reconciler")),
			labor.WithMaxAttempts(opts.MaxAttempts),
		),
		summary: labor.NewSummary(entries, calc, l),
		factory: factory.New(ids),
		log:     log,
	}
}

// Reconciler exposes the engine, e.g. for scenario loaders and tests.
func (h *Handler) Reconciler() *labor.Reconciler { return h.reconciler }

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees with their normalized hourly cost.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.store.ListEmployees(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := ledger.EmployeeID(chi.URLParam(r, "id"))

	emp, err := h.store.LookupEmployee(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get employee", err)
		return
	}
	if emp == nil {
		h.fail(w, r, "Employee not found", ledger.NotFound("employee", string(id)))
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

// CreateEmployee creates an employee. The factory normalizes the pay scheme.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	emp, err := h.factory.ParseEmployee(body)
	if err != nil {
		h.fail(w, r, "Invalid employee", err)
		return
	}
	if err := h.store.SaveEmployee(r.Context(), emp); err != nil {
		h.fail(w, r, "Failed to create employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// ListEmployeeTimeEntries returns the entries an employee logged.
func (h *Handler) ListEmployeeTimeEntries(w http.ResponseWriter, r *http.Request) {
	id := ledger.EmployeeID(chi.URLParam(r, "id"))
	h.listViews(w, r, labor.TimeEntryFilter{EmployeeID: id})
}

// DepartmentStats returns headcount and hourly cost per department.
func (h *Handler) DepartmentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.comp.DepartmentStatistics(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to compute department statistics", err)
		return
	}

	dtos := make([]DepartmentStatsDTO, len(stats))
	for i, s := range stats {
		dtos[i] = DepartmentStatsDTO{
			Department:        s.Department,
			Headcount:         s.Headcount,
			TotalHourlyCost:   s.TotalHourlyCost,
			AverageHourlyCost: s.AverageHourlyCost,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PROJECT HANDLERS
// =============================================================================

// ListProjects returns all projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list projects", err)
		return
	}

	dtos := make([]ProjectDTO, len(projects))
	for i, p := range projects {
		dtos[i] = toProjectDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateProject creates a project.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	p, err := h.factory.ParseProject(body)
	if err != nil {
		h.fail(w, r, "Invalid project", err)
		return
	}
	if err := h.store.SaveProject(r.Context(), p); err != nil {
		h.fail(w, r, "Failed to create project", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectDTO(p))
}

// ListProjectTimeEntries returns the entries logged on a project.
func (h *Handler) ListProjectTimeEntries(w http.ResponseWriter, r *http.Request) {
	id, ok := h.project(w, r)
	if !ok {
		return
	}
	h.listViews(w, r, labor.TimeEntryFilter{ProjectID: id})
}

// GetTimeSummary returns hours and labor cost for a project, computed
// from its time entries.
func (h *Handler) GetTimeSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := h.project(w, r)
	if !ok {
		return
	}
	s, err := h.summary.ProjectTimeSummary(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to compute time summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toTimeSummaryDTO(s))
}

// ExportTimeSummary returns the project summary as an xlsx workbook.
func (h *Handler) ExportTimeSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := ledger.ProjectID(chi.URLParam(r, "id"))
	p, err := h.store.LookupProject(ctx, id)
	if err != nil {
		h.fail(w, r, "Failed to get project", err)
		return
	}
	if p == nil {
		h.fail(w, r, "Project not found", ledger.NotFound("project", string(id)))
		return
	}

	s, err := h.summary.ProjectTimeSummary(ctx, id)
	if err != nil {
		h.fail(w, r, "Failed to compute time summary", err)
		return
	}

	var buf bytes.Buffer
	if err := report.TimeSummary(&buf, p.Name, s); err != nil {
		h.fail(w, r, "Failed to render workbook", err)
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="time-summary-%s.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// ListExpenses returns a project's ledger records, oldest first.
// Optional filters: ?type=labor&type=material, ?time_entry_id=.
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	id, ok := h.project(w, r)
	if !ok {
		return
	}

	filter := ledger.ExpenseFilter{
		ProjectID:   id,
		TimeEntryID: ledger.TimeEntryID(r.URL.Query().Get("time_entry_id")),
	}
	for _, raw := range r.URL.Query()["type"] {
		for _, t := range strings.Split(raw, ",") {
			et := ledger.ExpenseType(strings.TrimSpace(t))
			if !et.Valid() {
				h.fail(w, r, "Invalid expense type", ledger.Invalid("type", fmt.Sprintf("unknown type %q", t)))
				return
			}
			filter.Types = append(filter.Types, et)
		}
	}

	recs, err := h.ledger.Query(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "Failed to query expenses", err)
		return
	}
	dtos := make([]ExpenseDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = toExpenseDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateExpense appends a manual expense to a project's ledger.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := h.project(w, r)
	if !ok {
		return
	}
	body, err := readBody(r)
	if err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	rec, err := h.factory.ParseExpense(id, actor(r), body)
	if err != nil {
		h.fail(w, r, "Invalid expense", err)
		return
	}
	rec, err = h.ledger.Append(r.Context(), rec)
	if err != nil {
		h.fail(w, r, "Failed to append expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(rec))
}

// GetTotals returns the project's cost basis and stores it as the latest
// snapshot.
func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	id, ok := h.project(w, r)
	if !ok {
		return
	}
	cb, err := h.ledger.ProjectTotals(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to compute totals", err)
		return
	}
	writeJSON(w, http.StatusOK, toCostBasisDTO(cb))
}

// GetAudit compares the summary with the ledger for a project.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.project(w, r)
	if !ok {
		return
	}
	audit, err := h.summary.Audit(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to audit project", err)
		return
	}
	if !audit.Consistent() {
		h.log.Warn("ledger drift detected",
			zap.String("project_id", string(id)),
			zap.String("difference", audit.Difference.String()),
			zap.Int("drifted_entries", len(audit.Drift)),
		)
	}
	writeJSON(w, http.StatusOK, toAuditDTO(audit))
}

// ReverseExpense cancels a manual expense with an offsetting record.
func (h *Handler) ReverseExpense(w http.ResponseWriter, r *http.Request) {
	id := ledger.RecordID(chi.URLParam(r, "id"))

	var req ReverseExpenseRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			h.fail(w, r, "Invalid request body", ledger.Invalid("", err.Error()))
			return
		}
	}
	who := req.Actor
	if who == "" {
		who = actor(r)
	}

	rec, err := h.ledger.Reverse(r.Context(), id, who)
	if err != nil {
		h.fail(w, r, "Failed to reverse expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(rec))
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// LaborCostReport returns labor cost across projects for the filters given
// in the query string.
func (h *Handler) LaborCostReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.costReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toCostReportDTO(rep))
}

// ExportLaborCostReport renders the same report as an xlsx workbook.
func (h *Handler) ExportLaborCostReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.costReport(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.LaborCost(&buf, rep); err != nil {
		h.fail(w, r, "Failed to render workbook", err)
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="labor-cost.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) costReport(w http.ResponseWriter, r *http.Request) (labor.CostReport, bool) {
	filter, err := h.factory.ParseCostReportQuery(r.URL.Query())
	if err != nil {
		h.fail(w, r, "Invalid report filter", err)
		return labor.CostReport{}, false
	}
	rep, err := h.summary.CostReport(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "Failed to compute cost report", err)
		return labor.CostReport{}, false
	}
	return rep, true
}

// =============================================================================
// TIME ENTRY HANDLERS
// =============================================================================

// ListTimeEntries returns every time entry.
func (h *Handler) ListTimeEntries(w http.ResponseWriter, r *http.Request) {
	h.listViews(w, r, labor.TimeEntryFilter{})
}

// CreateTimeEntry logs time and charges the project's ledger.
func (h *Handler) CreateTimeEntry(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	in, err := h.factory.ParseTimeEntry(body)
	if err != nil {
		h.fail(w, r, "Invalid time entry", err)
		return
	}

	e, err := h.reconciler.AddTimeEntry(r.Context(), in)
	if err != nil {
		h.fail(w, r, "Failed to log time", err)
		return
	}
	h.writeView(w, r, e.ID, http.StatusCreated)
}

// GetTimeEntry returns one entry with names resolved.
func (h *Handler) GetTimeEntry(w http.ResponseWriter, r *http.Request) {
	h.writeView(w, r, ledger.TimeEntryID(chi.URLParam(r, "id")), http.StatusOK)
}

// UpdateTimeEntry edits an entry and books the cost difference.
func (h *Handler) UpdateTimeEntry(w http.ResponseWriter, r *http.Request) {
	id := ledger.TimeEntryID(chi.URLParam(r, "id"))
	body, err := readBody(r)
	if err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	patch, err := h.factory.ParseTimeEntryPatch(body)
	if err != nil {
		h.fail(w, r, "Invalid time entry", err)
		return
	}

	if _, err := h.reconciler.EditTimeEntry(r.Context(), id, patch); err != nil {
		h.fail(w, r, "Failed to update time entry", err)
		return
	}
	h.writeView(w, r, id, http.StatusOK)
}

// DeleteTimeEntry removes an entry and books the offsetting labor record.
// Deleting an unknown entry is not an error.
func (h *Handler) DeleteTimeEntry(w http.ResponseWriter, r *http.Request) {
	id := ledger.TimeEntryID(chi.URLParam(r, "id"))

	deleted, err := h.reconciler.DeleteTimeEntry(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to delete time entry", err)
		return
	}
	status := http.StatusOK
	if !deleted {
		status = http.StatusNotFound
	}
	writeJSON(w, status, DeleteTimeEntryResponse{ID: string(id), Deleted: deleted})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) listViews(w http.ResponseWriter, r *http.Request, filter labor.TimeEntryFilter) {
	views, err := h.entries.ListViews(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "Failed to list time entries", err)
		return
	}
	dtos := make([]TimeEntryDTO, len(views))
	for i, v := range views {
		dtos[i] = toTimeEntryDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) writeView(w http.ResponseWriter, r *http.Request, id ledger.TimeEntryID, status int) {
	v, err := h.entries.GetView(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get time entry", err)
		return
	}
	writeJSON(w, status, toTimeEntryDTO(*v))
}

// project resolves the {id} URL parameter to an existing project.
func (h *Handler) project(w http.ResponseWriter, r *http.Request) (ledger.ProjectID, bool) {
	id := ledger.ProjectID(chi.URLParam(r, "id"))
	p, err := h.store.LookupProject(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get project", err)
		return "", false
	}
	if p == nil {
		h.fail(w, r, "Project not found", ledger.NotFound("project", string(id)))
		return "", false
	}
	return id, true
}

// fail maps err to a status, logs it once and writes the error body.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("outcome", ledger.Outcome(err)),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.log.Error(message, fields...)
	} else {
		h.log.Debug(message, fields...)
	}
	writeError(w, status, message, err)
}

// statusFor maps ledger error kinds onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrConsistency):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrConcurrentModification),
		errors.Is(err, ledger.ErrLockNotObtained),
		errors.Is(err, ledger.ErrAlreadyReversed),
		errors.Is(err, ledger.ErrLinkedRecord),
		errors.Is(err, ledger.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBodyBytes {
		return nil, ledger.Invalid("", "request body too large")
	}
	return body, nil
}

// actor names the caller for AddedBy. There is no authentication, so the
// X-User header is taken at face value.
func actor(r *http.Request) string {
	if u := strings.TrimSpace(r.Header.Get("X-User")); u != "" {
		return u
	}
	return "api"
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
