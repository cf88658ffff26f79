/*
handlers_test.go - HTTP-level tests over a real router and in-memory database

Each test boots the full stack (sqlite store, domain services, chi router)
and talks to it through httptest, so routing, JSON codecs and status mapping
are all exercised together.
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/collections-engine/api"
	"github.com/warp/collections-engine/collections"
	"github.com/warp/collections-engine/store/sqlite"
)

// =============================================================================
// TEST HARNESS
// =============================================================================

type harness struct {
	store   *sqlite.Store
	handler *api.Handler
	server  *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	handler := api.NewHandler(store)
	server := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(func() {
		server.Close()
		_ = store.Close()
	})
	return &harness{store: store, handler: handler, server: server}
}

func (h *harness) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(h.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("GET %s: decode: %v", path, err)
		}
	}
	return resp.StatusCode
}

func (h *harness) post(t *testing.T, path string, body any, out any) int {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(h.server.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("POST %s: decode: %v", path, err)
		}
	}
	return resp.StatusCode
}

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (h *harness) seedManagedDebt(t *testing.T, id, collector, principal string) *collections.Debt {
	t.Helper()
	debt, err := collections.NewDebt(id, "creditor-1", "subject-1", []collections.Installment{
		{ID: id + "-i-1", Number: 1,
			DueDate:              time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
			OriginalPrincipal:    mustDec(principal),
			OutstandingPrincipal: mustDec(principal),
			State:                collections.InstallmentOverdue},
	})
	if err != nil {
		t.Fatalf("NewDebt: %v", err)
	}
	debt.State = collections.StateInManagement
	debt.AssignedCollectorID = &collector
	debt.RecalculateTotals()
	if err := h.store.SaveDebt(context.Background(), debt); err != nil {
		t.Fatalf("SaveDebt: %v", err)
	}
	return debt
}

func (h *harness) seedEdge(t *testing.T, origin, destination collections.DebtState, auth bool) {
	t.Helper()
	err := h.store.SaveEdge(context.Background(), collections.TransitionEdge{
		Origin: origin, Destination: destination, RequiresAuthorization: auth,
	})
	if err != nil {
		t.Fatalf("SaveEdge: %v", err)
	}
}

func (h *harness) seedRule(t *testing.T, rule sqlite.RuleRecord) {
	t.Helper()
	if err := h.store.SaveRule(context.Background(), rule); err != nil {
		t.Fatalf("SaveRule: %v", err)
	}
}

func strRef(s string) *string { return &s }

// =============================================================================
// DEBT ENDPOINTS
// =============================================================================

func TestGetDebt(t *testing.T) {
	h := newHarness(t)
	h.seedManagedDebt(t, "d-1", "collector-1", "1000")

	var dto struct {
		ID           string `json:"id"`
		State        string `json:"state"`
		TotalDebt    string `json:"total_debt"`
		Installments []struct {
			State string `json:"state"`
		} `json:"installments"`
	}
	status := h.get(t, "/api/debts/d-1", &dto)

	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if dto.ID != "d-1" || dto.State != "in_management" {
		t.Errorf("unexpected body %+v", dto)
	}
	if dto.TotalDebt != "1000" {
		t.Errorf("total_debt: expected the exact decimal string, got %q", dto.TotalDebt)
	}
	if len(dto.Installments) != 1 || dto.Installments[0].State != "overdue" {
		t.Errorf("unexpected installments %+v", dto.Installments)
	}
}

func TestGetDebt_NotFound(t *testing.T) {
	h := newHarness(t)

	if status := h.get(t, "/api/debts/d-missing", nil); status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", status)
	}
}

func TestGetDebtTransitions(t *testing.T) {
	h := newHarness(t)
	h.seedManagedDebt(t, "d-1", "collector-1", "1000")
	h.seedEdge(t, collections.StateInManagement, collections.StateSuspended, false)
	h.seedEdge(t, collections.StateInManagement, collections.StateJudicialized, true)
	h.seedEdge(t, collections.StateNew, collections.StateInManagement, false)

	var edges []struct {
		Destination           string `json:"destination"`
		RequiresAuthorization bool   `json:"requires_authorization"`
	}
	status := h.get(t, "/api/debts/d-1/transitions", &edges)

	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(edges) != 2 {
		t.Fatalf("expected 2 edges from in_management, got %d", len(edges))
	}
}

// =============================================================================
// FOLLOW-UP ENDPOINT
// =============================================================================

func TestCreateFollowUp_AppliesTransition(t *testing.T) {
	// GIVEN: A managed debt and a rule moving it to suspended on contact
	// WHEN: The collector posts a follow-up
	// THEN: 201 with the outcome, and the stored debt has moved

	h := newHarness(t)
	h.seedManagedDebt(t, "d-1", "collector-1", "1000")
	h.seedEdge(t, collections.StateInManagement, collections.StateSuspended, false)
	h.seedRule(t, sqlite.RuleRecord{
		ID: "r-1", ManagementTypeID: "mgmt-pause",
		OriginState:      strRef("in_management"),
		DestinationState: strRef("suspended"),
		Priority:         1, Active: true,
	})

	var resp struct {
		FollowUpID string `json:"follow_up_id"`
		Outcomes   []struct {
			DebtID   string `json:"debt_id"`
			NewState string `json:"new_state"`
		} `json:"outcomes"`
	}
	status := h.post(t, "/api/follow-ups", map[string]any{
		"collector_id":       "collector-1",
		"subject_id":         "subject-1",
		"debt_ids":           []string{"d-1"},
		"management_type_id": "mgmt-pause",
		"note":               "debtor requested a pause",
	}, &resp)

	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	if resp.FollowUpID == "" {
		t.Error("expected a follow-up id")
	}
	if len(resp.Outcomes) != 1 || resp.Outcomes[0].NewState != "suspended" {
		t.Errorf("unexpected outcomes %+v", resp.Outcomes)
	}

	debt, err := h.store.GetDebt(context.Background(), "d-1")
	if err != nil {
		t.Fatalf("GetDebt: %v", err)
	}
	if debt.State != collections.StateSuspended {
		t.Errorf("stored debt: expected suspended, got %s", debt.State)
	}
}

func TestCreateFollowUp_DefersBehindAuthorization(t *testing.T) {
	h := newHarness(t)
	h.seedManagedDebt(t, "d-1", "collector-1", "150000")
	h.seedEdge(t, collections.StateInManagement, collections.StateJudicialized, true)
	h.seedRule(t, sqlite.RuleRecord{
		ID: "r-legal", ManagementTypeID: "mgmt-legal",
		OriginState:           strRef("in_management"),
		DestinationState:      strRef("judicialized"),
		RequiresAuthorization: true,
		Priority:              1, Active: true,
	})
	if err := h.store.SaveSupervisor(context.Background(), collections.Supervisor{ID: "sup-a", Active: true}); err != nil {
		t.Fatalf("SaveSupervisor: %v", err)
	}

	var resp struct {
		Outcomes []struct {
			AuthorizationPending bool `json:"authorization_pending"`
		} `json:"outcomes"`
		Requests []struct {
			Status   string `json:"status"`
			Priority string `json:"priority"`
		} `json:"authorization_requests"`
	}
	status := h.post(t, "/api/follow-ups", map[string]any{
		"collector_id":       "collector-1",
		"debt_ids":           []string{"d-1"},
		"management_type_id": "mgmt-legal",
	}, &resp)

	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	if len(resp.Outcomes) != 1 || !resp.Outcomes[0].AuthorizationPending {
		t.Errorf("expected a pending outcome, got %+v", resp.Outcomes)
	}
	if len(resp.Requests) != 1 || resp.Requests[0].Status != "pending" ||
		resp.Requests[0].Priority != "high" {
		t.Errorf("unexpected requests %+v", resp.Requests)
	}
}

func TestCreateFollowUp_ValidationAndFaultMapping(t *testing.T) {
	h := newHarness(t)
	h.seedManagedDebt(t, "d-1", "collector-owner", "1000")

	// Missing required fields.
	status := h.post(t, "/api/follow-ups", map[string]any{"collector_id": "c-1"}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("missing fields: expected 400, got %d", status)
	}

	// Unknown debt.
	status = h.post(t, "/api/follow-ups", map[string]any{
		"collector_id":       "collector-owner",
		"debt_ids":           []string{"d-missing"},
		"management_type_id": "mgmt-call",
	}, nil)
	if status != http.StatusNotFound {
		t.Errorf("unknown debt: expected 404, got %d", status)
	}

	// Wrong collector.
	status = h.post(t, "/api/follow-ups", map[string]any{
		"collector_id":       "collector-imposter",
		"debt_ids":           []string{"d-1"},
		"management_type_id": "mgmt-call",
	}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("wrong collector: expected 400, got %d", status)
	}
}

func TestCreateFollowUp_IllegalTransitionIsConflict(t *testing.T) {
	h := newHarness(t)
	h.seedManagedDebt(t, "d-1", "collector-1", "1000")
	// Rule exists, graph edge does not.
	h.seedRule(t, sqlite.RuleRecord{
		ID: "r-1", ManagementTypeID: "mgmt-pause",
		DestinationState: strRef("suspended"),
		Priority:         1, Active: true,
	})

	status := h.post(t, "/api/follow-ups", map[string]any{
		"collector_id":       "collector-1",
		"debt_ids":           []string{"d-1"},
		"management_type_id": "mgmt-pause",
	}, nil)
	if status != http.StatusConflict {
		t.Errorf("expected 409, got %d", status)
	}
}

// =============================================================================
// AUTHORIZATION REQUEST ENDPOINTS
// =============================================================================

// seedPendingRequest walks the real follow-up flow so the request row matches
// production shape exactly.
func (h *harness) seedPendingRequest(t *testing.T) string {
	t.Helper()
	h.seedManagedDebt(t, "d-1", "collector-1", "150000")
	h.seedEdge(t, collections.StateInManagement, collections.StateJudicialized, true)
	h.seedRule(t, sqlite.RuleRecord{
		ID: "r-legal", ManagementTypeID: "mgmt-legal",
		DestinationState:      strRef("judicialized"),
		RequiresAuthorization: true,
		Priority:              1, Active: true,
	})
	if err := h.store.SaveSupervisor(context.Background(), collections.Supervisor{ID: "sup-a", Active: true}); err != nil {
		t.Fatalf("SaveSupervisor: %v", err)
	}

	var resp struct {
		Requests []struct {
			ID string `json:"id"`
		} `json:"authorization_requests"`
	}
	status := h.post(t, "/api/follow-ups", map[string]any{
		"collector_id":       "collector-1",
		"debt_ids":           []string{"d-1"},
		"management_type_id": "mgmt-legal",
	}, &resp)
	if status != http.StatusCreated || len(resp.Requests) != 1 {
		t.Fatalf("seeding request failed: status %d, requests %+v", status, resp.Requests)
	}
	return resp.Requests[0].ID
}

func TestResolveRequest_Approve(t *testing.T) {
	h := newHarness(t)
	reqID := h.seedPendingRequest(t)

	var resp struct {
		Status       string  `json:"status"`
		DebtUpdated  bool    `json:"debt_updated"`
		NewDebtState *string `json:"new_debt_state"`
	}
	status := h.post(t, "/api/authorization-requests/"+reqID+"/resolve", map[string]any{
		"supervisor_id": "sup-a",
		"approve":       true,
		"comment":       "granted",
	}, &resp)

	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if resp.Status != "approved" || !resp.DebtUpdated {
		t.Errorf("unexpected body %+v", resp)
	}
	if resp.NewDebtState == nil || *resp.NewDebtState != "judicialized" {
		t.Errorf("expected new_debt_state judicialized, got %v", resp.NewDebtState)
	}
}

func TestResolveRequest_FaultMapping(t *testing.T) {
	h := newHarness(t)
	reqID := h.seedPendingRequest(t)

	// Missing supervisor id.
	status := h.post(t, "/api/authorization-requests/"+reqID+"/resolve",
		map[string]any{"approve": true}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("missing supervisor: expected 400, got %d", status)
	}

	// Wrong supervisor.
	status = h.post(t, "/api/authorization-requests/"+reqID+"/resolve",
		map[string]any{"supervisor_id": "sup-imposter", "approve": true}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("wrong supervisor: expected 400, got %d", status)
	}

	// Unknown request.
	status = h.post(t, "/api/authorization-requests/auth-missing/resolve",
		map[string]any{"supervisor_id": "sup-a", "approve": true}, nil)
	if status != http.StatusNotFound {
		t.Errorf("unknown request: expected 404, got %d", status)
	}

	// Double resolution conflicts.
	if s := h.post(t, "/api/authorization-requests/"+reqID+"/resolve",
		map[string]any{"supervisor_id": "sup-a", "approve": false, "comment": "no"}, nil); s != http.StatusOK {
		t.Fatalf("first resolution: expected 200, got %d", s)
	}
	status = h.post(t, "/api/authorization-requests/"+reqID+"/resolve",
		map[string]any{"supervisor_id": "sup-a", "approve": true}, nil)
	if status != http.StatusConflict {
		t.Errorf("double resolution: expected 409, got %d", status)
	}
}

func TestListRequests_PendingFilter(t *testing.T) {
	h := newHarness(t)
	reqID := h.seedPendingRequest(t)

	var pending []struct {
		ID string `json:"id"`
	}
	if status := h.get(t, "/api/authorization-requests?status=pending", &pending); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(pending) != 1 || pending[0].ID != reqID {
		t.Errorf("unexpected pending list %+v", pending)
	}

	if s := h.post(t, "/api/authorization-requests/"+reqID+"/resolve",
		map[string]any{"supervisor_id": "sup-a", "approve": false}, nil); s != http.StatusOK {
		t.Fatalf("resolve: expected 200, got %d", s)
	}

	pending = nil
	h.get(t, "/api/authorization-requests?status=pending", &pending)
	if len(pending) != 0 {
		t.Errorf("expected empty pending list, got %+v", pending)
	}

	var all []struct {
		Status string `json:"status"`
	}
	h.get(t, "/api/authorization-requests", &all)
	if len(all) != 1 || all[0].Status != "rejected" {
		t.Errorf("unexpected full list %+v", all)
	}
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

func TestTriggerDailyUpdate(t *testing.T) {
	// GIVEN: An accruing debt 10 days past the requested reference date
	// WHEN: The admin endpoint runs the sweep for that date
	// THEN: The summary reports the interest and an audit row is recorded

	h := newHarness(t)
	debt := h.seedManagedDebt(t, "d-1", "collector-1", "1000")
	rate := mustDec("10")
	debt.MoratoryAnnualRate = &rate
	if err := h.store.SaveDebt(context.Background(), debt); err != nil {
		t.Fatalf("SaveDebt: %v", err)
	}

	var summary struct {
		ReferenceDate         string `json:"reference_date"`
		DebtsProcessed        int    `json:"debts_processed"`
		DebtsWithInterest     int    `json:"debts_with_interest"`
		MoratoryInterestTotal string `json:"moratory_interest_total"`
	}
	status := h.post(t, "/api/admin/daily-update",
		map[string]any{"reference_date": "2026-01-11"}, &summary)

	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if summary.ReferenceDate != "2026-01-11" || summary.DebtsProcessed != 1 ||
		summary.DebtsWithInterest != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}

	var runs []struct {
		Status string `json:"status"`
	}
	if s := h.get(t, "/api/admin/daily-update/runs", &runs); s != http.StatusOK {
		t.Fatalf("runs: expected 200, got %d", s)
	}
	if len(runs) != 1 || runs[0].Status != "completed" {
		t.Errorf("unexpected runs %+v", runs)
	}
}

func TestTriggerDailyUpdate_BadReferenceDate(t *testing.T) {
	h := newHarness(t)

	status := h.post(t, "/api/admin/daily-update",
		map[string]any{"reference_date": "11-01-2026"}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", status)
	}
}
