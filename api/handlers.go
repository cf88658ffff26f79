/*
handlers.go - HTTP API handlers for the collections engine

PURPOSE:
  Exposes the collections engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Debts:
    GET    /api/debts                   List all debts
    GET    /api/debts/{id}              Get debt details
    GET    /api/debts/{id}/transitions  Legal destinations from the debt's state

  Follow-ups:
    POST   /api/follow-ups              Record a collector follow-up

  Authorization requests:
    GET    /api/authorization-requests              List requests (?status=pending)
    GET    /api/authorization-requests/{id}         Get one request
    POST   /api/authorization-requests/{id}/resolve Approve or reject

  Admin:
    POST   /api/admin/daily-update       Trigger a daily update run
    GET    /api/admin/daily-update/runs  Past run audit records

  Scenarios:
    GET    /api/scenarios               List demo scenarios
    POST   /api/scenarios/load          Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Debt or request not found
  - 409: Conflict (illegal transition, already resolved, stale state)
  - 500: Internal errors

  The domain's client-fault classifier decides 4xx vs 5xx; handlers never
  match on error strings.

SECURITY NOTE:
  Currently NO authentication or authorization middleware. Collector and
  supervisor identities arrive in request bodies.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"errors"
	"net/http"
	"time"

	"encoding/json"

	"github.com/go-chi/chi/v5"

	"github.com/warp/collections-engine/collections"
	"github.com/warp/collections-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	FollowUps *collections.FollowUpService
	Auth      *collections.AuthorizationService
	Daily     *collections.DailyUpdateService
	Validator *collections.TransitionValidator

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler wires the domain services on top of the store.
func NewHandler(store *sqlite.Store) *Handler {
	validator := &collections.TransitionValidator{Graph: store}
	return &Handler{
		Store:     store,
		Validator: validator,
		FollowUps: &collections.FollowUpService{
			Debts:     store,
			Rules:     store,
			Requests:  store,
			FollowUps: store,
			Validator: validator,
			Selector:  &collections.RuleSelector{},
			Assigner:  &collections.SupervisorAssigner{Directory: store},
		},
		Auth:  &collections.AuthorizationService{Debts: store, Requests: store},
		Daily: &collections.DailyUpdateService{Debts: store, Validator: validator},
	}
}

// =============================================================================
// DEBT HANDLERS
// =============================================================================

// ListDebts returns all debts.
func (h *Handler) ListDebts(w http.ResponseWriter, r *http.Request) {
	debts, err := h.Store.ListDebts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list debts", err)
		return
	}

	dtos := make([]DebtDTO, len(debts))
	for i, d := range debts {
		dtos[i] = toDebtDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetDebt returns a single debt with its installments.
func (h *Handler) GetDebt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	debt, err := h.Store.GetDebt(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get debt", err)
		return
	}
	writeJSON(w, http.StatusOK, toDebtDTO(debt))
}

// GetDebtTransitions returns the legal destinations from the debt's current
// state, for UI affordances.
func (h *Handler) GetDebtTransitions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	debt, err := h.Store.GetDebt(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get debt", err)
		return
	}

	edges, err := h.Store.EdgesFrom(r.Context(), debt.State)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load transitions", err)
		return
	}

	dtos := make([]TransitionEdgeDTO, len(edges))
	for i, e := range edges {
		dtos[i] = TransitionEdgeDTO{
			Origin:                string(e.Origin),
			Destination:           string(e.Destination),
			RequiresAuthorization: e.RequiresAuthorization,
			Description:           e.Description,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// FOLLOW-UP HANDLERS
// =============================================================================

// CreateFollowUp records one collector action against a batch of debts.
func (h *Handler) CreateFollowUp(w http.ResponseWriter, r *http.Request) {
	var req CreateFollowUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.CollectorID == "" || req.ManagementTypeID == "" || len(req.DebtIDs) == 0 {
		writeError(w, http.StatusBadRequest,
			"collector_id, management_type_id and debt_ids are required", nil)
		return
	}

	input := collections.CreateFollowUpInput{
		CollectorID:      req.CollectorID,
		SubjectID:        req.SubjectID,
		DebtIDs:          req.DebtIDs,
		ManagementTypeID: req.ManagementTypeID,
		Note:             req.Note,
	}
	if req.NextFollowUpAt != nil {
		at, err := time.Parse(time.RFC3339, *req.NextFollowUpAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid next_follow_up_at", err)
			return
		}
		input.NextFollowUpAt = &at
	}

	result, err := h.FollowUps.CreateFollowUp(r.Context(), input)
	if err != nil {
		writeDomainError(w, "Failed to create follow-up", err)
		return
	}

	resp := FollowUpResponseDTO{
		FollowUpID: result.FollowUpID,
		Outcomes:   make([]DebtOutcomeDTO, len(result.Outcomes)),
		Requests:   toRequestDTOs(result.Requests),
	}
	for i, o := range result.Outcomes {
		resp.Outcomes[i] = DebtOutcomeDTO{
			DebtID:                    o.DebtID,
			PreviousState:             string(o.PreviousState),
			NewState:                  string(o.NewState),
			AuthorizationPending:      o.AuthorizationPending,
			EdgeRequiresAuthorization: o.EdgeRequiresAuthorization,
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// =============================================================================
// AUTHORIZATION REQUEST HANDLERS
// =============================================================================

// ListRequests returns authorization requests, optionally filtered by
// ?status=pending.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	var (
		requests []*collections.AuthorizationRequest
		err      error
	)
	if r.URL.Query().Get("status") == "pending" {
		requests, err = h.Store.ListPendingRequests(r.Context())
	} else {
		requests, err = h.Store.ListRequests(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list requests", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(requests))
}

// GetRequest returns a single authorization request.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, err := h.Store.GetRequest(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get request", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ResolveRequest applies a supervisor's approve/reject decision.
func (h *Handler) ResolveRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body ResolveRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.SupervisorID == "" {
		writeError(w, http.StatusBadRequest, "supervisor_id is required", nil)
		return
	}

	result, err := h.Auth.Resolve(r.Context(), id, body.SupervisorID, body.Approve, body.Comment)
	if err != nil {
		writeDomainError(w, "Failed to resolve request", err)
		return
	}

	resp := ResolutionResponseDTO{
		RequestID:   result.RequestID,
		Status:      string(result.Status),
		DebtUpdated: result.DebtUpdated,
	}
	if result.NewDebtState != nil {
		s := string(*result.NewDebtState)
		resp.NewDebtState = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerDailyUpdate runs the daily interest and aging sweep immediately and
// records an audit row.
func (h *Handler) TriggerDailyUpdate(w http.ResponseWriter, r *http.Request) {
	var body DailyUpdateRequestDTO
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	referenceDate := time.Now()
	if body.ReferenceDate != nil {
		parsed, err := time.Parse("2006-01-02", *body.ReferenceDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid reference_date, want YYYY-MM-DD", err)
			return
		}
		referenceDate = parsed
	}

	summary, runErr := h.Daily.Run(r.Context(), referenceDate)
	recordDailyRun(r.Context(), h.Store, summary, runErr)
	if runErr != nil {
		writeError(w, http.StatusInternalServerError, "Daily update failed", runErr)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// ListDailyRuns returns the audit records of past runs, newest first.
func (h *Handler) ListDailyRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListDailyRuns(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]DailyRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toDailyRunDTO(run)
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

// writeDomainError maps a domain fault to its HTTP status.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case collections.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, collections.ErrAlreadyResolved),
		isConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case collections.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func isConflict(err error) bool {
	var transition *collections.TransitionNotAllowedError
	var stale *collections.StaleOriginStateError
	return errors.As(err, &transition) || errors.As(err, &stale)
}
