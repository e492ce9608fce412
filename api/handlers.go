/*
handlers.go - HTTP API handlers for the balance ledger engine

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine; no balance arithmetic
  lives here.

ENDPOINTS:
  Assignments:
    POST   /api/assignments                     Create/update a timeline write
    DELETE /api/assignments/{id}                Destroy an assignment

  Balances:
    POST   /api/employees/{id}/balances         Create one ledger entry
    GET    /api/employees/{id}/balances         List a category's ledger
    DELETE /api/balances/{id}                   Destroy one ledger entry
    GET    /api/employees/{id}/overview         Period overview aggregation

  Contract boundaries:
    POST   /api/employees/{id}/contract-end     Apply a contract end
    POST   /api/employees/{id}/rehire           Unwind the reset bridge

  Admin:
    GET    /api/categories                      List categories
    GET    /api/recompute/runs                  Recompute run audit trail

ERROR HANDLING:
  Errors map to HTTP status by classification:
  - 400: validation failures
  - 404: unknown employee/category/policy/assignment
  - 409: duplicate assignment at the same date
  - 423: deletion blocked by dependent rows
  - 500: everything else
  Assignment writes answer 201 (created), 200 (updated in place) or
  205 (merged into a neighbor, no new identity).

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/avincentLoyco/yalty-backend-sub001/engine"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     engine.TxStore
	Lifecycle *engine.LifecycleManager
	Contracts *engine.ContractHandler
	Factory   *engine.EntryFactory
	Overview  *engine.OverviewAggregator
	Recompute *engine.RecomputeOrchestrator
	Runner    engine.TaskRunner
}

func NewHandler(store engine.TxStore, lifecycle *engine.LifecycleManager, contracts *engine.ContractHandler, factory *engine.EntryFactory, overview *engine.OverviewAggregator, recompute *engine.RecomputeOrchestrator, runner engine.TaskRunner) *Handler {
	return &Handler{
		Store:     store,
		Lifecycle: lifecycle,
		Contracts: contracts,
		Factory:   factory,
		Overview:  overview,
		Recompute: recompute,
		Runner:    runner,
	}
}

// =============================================================================
// ASSIGNMENT HANDLERS
// =============================================================================

// CreateAssignment applies one timeline write.
// POST /api/assignments
func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req AssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	effectiveAt, err := engine.ParseDate(req.EffectiveAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_at", err)
		return
	}

	in := engine.AssignmentInput{
		EmployeeID:  req.EmployeeID,
		Kind:        engine.ResourceKind(req.ResourceKind),
		ResourceID:  req.ResourceID,
		CategoryID:  req.CategoryID,
		EffectiveAt: effectiveAt,
	}
	if req.OccupationRate != 0 {
		in.OccupationRate = decimal.NewFromFloat(req.OccupationRate)
	}

	result, err := h.Lifecycle.CreateOrUpdateAssignment(r.Context(), in)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, int(result.Status), toAssignmentDTO(result.Assignment))
}

// DeleteAssignment destroys one assignment and recomputes downstream.
// DELETE /api/assignments/{id}
func (h *Handler) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Lifecycle.DestroyAssignment(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// CreateBalanceEntry creates one ledger entry in its own transaction.
// POST /api/employees/{id}/balances
func (h *Handler) CreateBalanceEntry(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")

	var req BalanceEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	effectiveAt, err := engine.ParseDate(req.EffectiveAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_at", err)
		return
	}

	in := engine.EntryInput{
		EmployeeID:   employeeID,
		CategoryID:   req.CategoryID,
		AccountID:    req.AccountID,
		AssignmentID: req.AssignmentID,
		PolicyID:     req.PolicyID,
		Kind:         engine.EntryKind(req.Kind),
		EffectiveAt:  effectiveAt,
		TimeOffID:    req.TimeOffID,
	}
	if req.ValidityDate != "" {
		validity, err := engine.ParseDate(req.ValidityDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid validity_date", err)
			return
		}
		in.ValidityDate = &validity
	}
	if req.ResourceAmount != nil {
		amount := engine.NewMinutes(*req.ResourceAmount)
		in.ResourceAmount = &amount
	}
	if req.ManualAmount != nil {
		amount := engine.NewMinutes(*req.ManualAmount)
		in.ManualAmount = &amount
	}

	var entry *engine.BalanceEntry
	err = h.Store.WithTx(r.Context(), func(tx engine.Store) error {
		var txErr error
		entry, txErr = h.Factory.CreateEntry(r.Context(), tx, in)
		return txErr
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTOs([]engine.BalanceEntry{*entry})[0])
}

// ListBalances returns a category's full ledger with running balances.
// GET /api/employees/{id}/balances?category_id=...
func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	categoryID := r.URL.Query().Get("category_id")
	if categoryID == "" {
		writeError(w, http.StatusBadRequest, "category_id is required", nil)
		return
	}

	entries, err := h.Store.EntriesByCategory(r.Context(), employeeID, categoryID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// DeleteBalanceEntry destroys one entry; update=false skips recompute.
// DELETE /api/balances/{id}?update=false
func (h *Handler) DeleteBalanceEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	update := r.URL.Query().Get("update") != "false"

	if err := h.Lifecycle.DestroyEntry(r.Context(), id, update); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetOverview returns per-period summaries for one employee.
// GET /api/employees/{id}/overview?category_id=...
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	categoryID := r.URL.Query().Get("category_id")

	overviews, err := h.Overview.Overview(r.Context(), employeeID, categoryID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOverviewDTOs(overviews))
}

// =============================================================================
// CONTRACT BOUNDARY HANDLERS
// =============================================================================

// ContractEnd applies a contract end (optionally moving an earlier one).
// POST /api/employees/{id}/contract-end
func (h *Handler) ContractEnd(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")

	var req ContractEndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	endDate, err := engine.ParseDate(req.ContractEndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid contract_end_date", err)
		return
	}
	var oldEndDate *engine.Date
	if req.OldContractEndDate != "" {
		old, err := engine.ParseDate(req.OldContractEndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid old_contract_end_date", err)
			return
		}
		oldEndDate = &old
	}
	var nextHireDate *engine.Date
	if req.NextHireDate != "" {
		next, err := engine.ParseDate(req.NextHireDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid next_hire_date", err)
			return
		}
		nextHireDate = &next
	}

	if err := h.Contracts.HandleContractEnd(r.Context(), employeeID, endDate, oldEndDate, nextHireDate); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rehire unwinds the reset bridge before the new hire date.
// POST /api/employees/{id}/rehire
func (h *Handler) Rehire(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")

	var req RehireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	hireDate, err := engine.ParseDate(req.HireDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hire_date", err)
		return
	}

	if err := h.Contracts.HandleRehire(r.Context(), employeeID, hireDate); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ListCategories returns all configured categories.
// GET /api/categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Store.Categories(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list categories", err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// ListRecomputeRuns returns the recompute audit trail.
// GET /api/recompute/runs?status=failed
func (h *Handler) ListRecomputeRuns(w http.ResponseWriter, r *http.Request) {
	rs, ok := h.Store.(engine.RunStore)
	if !ok {
		writeJSON(w, http.StatusOK, []RunDTO{})
		return
	}

	status := engine.RunStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = engine.RunCompleted
	}
	runs, err := rs.RunsByStatus(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		dto := RunDTO{
			ID:         run.ID,
			EmployeeID: run.EmployeeID,
			CategoryID: run.CategoryID,
			Status:     string(run.Status),
			Entries:    run.Entries,
			Error:      run.Error,
			StartedAt:  run.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if run.FinishedAt != nil {
			dto.FinishedAt = run.FinishedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

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

// writeEngineError maps engine error classes to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	var vErr *engine.ValidationError
	if errors.As(err, &vErr) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Fields: vErr.Fields})
		return
	}

	switch {
	case errors.Is(err, engine.ErrDuplicateAssignment):
		writeError(w, http.StatusConflict, "Duplicate assignment", err)
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, engine.ErrLockedResource):
		writeError(w, http.StatusLocked, "Resource has dependents", err)
	case errors.Is(err, engine.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
