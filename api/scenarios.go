/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates supervisors, the
	allowed-transition graph, transition rules, and debts with installments
	that demonstrate specific features.

AVAILABLE SCENARIOS:

	starter-portfolio:   Fresh debts awaiting first contact
	overdue-interest:    Overdue installments with rates; run the daily
	                     update to watch interest accrue
	authorization-queue: High-value debts whose rules defer transitions
	                     behind supervisor approval
	agreement-expiry:    An expired payment agreement that the daily update
	                     moves back into management

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Seed supervisors and the transition graph
 3. Seed transition rules (conditions as JSON)
 4. Seed debts with installments

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "overdue-interest"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - factory/condition.go: Condition JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/collections-engine/collections"
	"github.com/warp/collections-engine/store/sqlite"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "starter-portfolio",
		Name:        "Starter Portfolio",
		Description: "Fresh debts in the 'new' state awaiting first contact",
	},
	{
		ID:          "overdue-interest",
		Name:        "Overdue Interest",
		Description: "Overdue installments with moratory and punitive rates; trigger the daily update to accrue",
	},
	{
		ID:          "authorization-queue",
		Name:        "Authorization Queue",
		Description: "High-value debts whose rules defer state changes behind supervisor approval",
	},
	{
		ID:          "agreement-expiry",
		Name:        "Agreement Expiry",
		Description: "A payment agreement past its expiration; the daily update returns the debt to management",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "starter-portfolio":
		err = h.loadStarterPortfolioScenario(ctx)
	case "overdue-interest":
		err = h.loadOverdueInterestScenario(ctx)
	case "authorization-queue":
		err = h.loadAuthorizationQueueScenario(ctx)
	case "agreement-expiry":
		err = h.loadAgreementExpiryScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SHARED SEED DATA
// =============================================================================

// seedBaseline installs the supervisors and the transition graph every
// scenario shares.
func (h *Handler) seedBaseline(ctx context.Context) error {
	supervisors := []collections.Supervisor{
		{ID: "sup-001", Name: "Marta Reyes", Email: "marta@example.com", Active: true},
		{ID: "sup-002", Name: "Diego Fuentes", Email: "diego@example.com", Active: true},
	}
	for _, sup := range supervisors {
		if err := h.Store.SaveSupervisor(ctx, sup); err != nil {
			return err
		}
	}

	edges := []collections.TransitionEdge{
		{Origin: collections.StateNew, Destination: collections.StateInManagement, Description: "first contact"},
		{Origin: collections.StateInManagement, Destination: collections.StateWithAgreement, Description: "payment agreement reached"},
		{Origin: collections.StateInManagement, Destination: collections.StateJudicialized, RequiresAuthorization: true, Description: "escalate to legal"},
		{Origin: collections.StateInManagement, Destination: collections.StateUncollectible, RequiresAuthorization: true, Description: "write off"},
		{Origin: collections.StateInManagement, Destination: collections.StateSuspended, Description: "pause management"},
		{Origin: collections.StateInManagement, Destination: collections.StateCancelled, Description: "debt settled"},
		{Origin: collections.StateWithAgreement, Destination: collections.StateInManagement, Description: "agreement broken or expired"},
		{Origin: collections.StateWithAgreement, Destination: collections.StateCancelled, Description: "agreement completed"},
		{Origin: collections.StateSuspended, Destination: collections.StateInManagement, Description: "resume management"},
		{Origin: collections.StateJudicialized, Destination: collections.StateCancelled, Description: "court settlement"},
	}
	for _, e := range edges {
		if err := h.Store.SaveEdge(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// seedRule stores one rule with its condition already in JSON form.
func (h *Handler) seedRule(ctx context.Context, rule sqlite.RuleRecord) error {
	return h.Store.SaveRule(ctx, rule)
}

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// seedDebt builds and saves a debt with evenly split installments.
func (h *Handler) seedDebt(ctx context.Context, id, subjectID string, principal string, installmentCount int, firstDue time.Time, overdueCount int, opts func(*collections.Debt)) error {
	total := decimal.RequireFromString(principal)
	per := total.Div(decimal.NewFromInt(int64(installmentCount))).Round(2)

	installments := make([]collections.Installment, 0, installmentCount)
	for i := 0; i < installmentCount; i++ {
		state := collections.InstallmentPending
		if i < overdueCount {
			state = collections.InstallmentOverdue
		}
		installments = append(installments, collections.Installment{
			ID:                      fmt.Sprintf("%s-inst-%d", id, i+1),
			Number:                  i + 1,
			DueDate:                 firstDue.AddDate(0, i, 0),
			OriginalPrincipal:       per,
			OutstandingPrincipal:    per,
			AccruedMoratoryInterest: decimal.Zero,
			AccruedPunitiveInterest: decimal.Zero,
			State:                   state,
		})
	}

	debt, err := collections.NewDebt(id, "creditor-001", subjectID, installments)
	if err != nil {
		return err
	}
	if opts != nil {
		opts(debt)
	}
	debt.RecalculateTotals()
	return h.Store.SaveDebt(ctx, debt)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadStarterPortfolioScenario(ctx context.Context) error {
	if err := h.seedBaseline(ctx); err != nil {
		return err
	}

	// Unconditional rule: a "first contact" follow-up moves new debts into
	// management.
	if err := h.seedRule(ctx, sqlite.RuleRecord{
		ID:               "rule-first-contact",
		ManagementTypeID: "mgmt-first-contact",
		OriginState:      strPtr(string(collections.StateNew)),
		DestinationState: strPtr(string(collections.StateInManagement)),
		Priority:         10,
		Active:           true,
	}); err != nil {
		return err
	}

	now := time.Now().UTC()
	assignedAt := now.AddDate(0, 0, -3)

	debts := []struct {
		id, subject string
		principal   string
	}{
		{"debt-101", "subject-001", "15000"},
		{"debt-102", "subject-001", "4200.50"},
		{"debt-103", "subject-002", "870"},
	}
	for _, d := range debts {
		err := h.seedDebt(ctx, d.id, d.subject, d.principal, 6, now.AddDate(0, 1, 0), 0,
			func(debt *collections.Debt) {
				debt.AssignedCollectorID = strPtr("collector-001")
				debt.CollectorAssignedAt = &assignedAt
			})
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadOverdueInterestScenario(ctx context.Context) error {
	if err := h.seedBaseline(ctx); err != nil {
		return err
	}

	now := time.Now().UTC()
	assignedAt := now.AddDate(0, 0, -45)

	// Two installments already a month+ overdue, annual rates set, so the
	// next daily update accrues both interest kinds.
	err := h.seedDebt(ctx, "debt-201", "subject-003", "24000", 12, now.AddDate(0, -2, 0), 2,
		func(debt *collections.Debt) {
			debt.State = collections.StateInManagement
			debt.AssignedCollectorID = strPtr("collector-001")
			debt.CollectorAssignedAt = &assignedAt
			debt.MoratoryAnnualRate = decPtr("12.5")
			debt.PunitiveAnnualRate = decPtr("6")
		})
	if err != nil {
		return err
	}

	// A small debt with only the moratory rate configured.
	return h.seedDebt(ctx, "debt-202", "subject-004", "1000", 4, now.AddDate(0, 0, -10), 1,
		func(debt *collections.Debt) {
			debt.State = collections.StateInManagement
			debt.AssignedCollectorID = strPtr("collector-002")
			debt.CollectorAssignedAt = &assignedAt
			debt.MoratoryAnnualRate = decPtr("10")
		})
}

func (h *Handler) loadAuthorizationQueueScenario(ctx context.Context) error {
	if err := h.seedBaseline(ctx); err != nil {
		return err
	}

	// Escalation to legal always needs a supervisor; high-value debts make
	// the resulting requests high priority.
	escalateCondition := `{"field": "total_debt", "operator": "gte", "value": 50000}`
	if err := h.seedRule(ctx, sqlite.RuleRecord{
		ID:                    "rule-escalate-legal",
		ManagementTypeID:      "mgmt-escalate",
		OriginState:           strPtr(string(collections.StateInManagement)),
		DestinationState:      strPtr(string(collections.StateJudicialized)),
		RequiresAuthorization: true,
		ConditionJSON:         escalateCondition,
		Priority:              20,
		Active:                true,
	}); err != nil {
		return err
	}

	// Fallback: below the threshold the same management type just suspends.
	if err := h.seedRule(ctx, sqlite.RuleRecord{
		ID:               "rule-escalate-suspend",
		ManagementTypeID: "mgmt-escalate",
		OriginState:      strPtr(string(collections.StateInManagement)),
		DestinationState: strPtr(string(collections.StateSuspended)),
		Priority:         5,
		Active:           true,
	}); err != nil {
		return err
	}

	now := time.Now().UTC()
	assignedAt := now.AddDate(0, 0, -90)

	// Above the 100,000 threshold: its authorization request will be High.
	err := h.seedDebt(ctx, "debt-301", "subject-005", "150000", 24, now.AddDate(0, -6, 0), 6,
		func(debt *collections.Debt) {
			debt.State = collections.StateInManagement
			debt.AssignedCollectorID = strPtr("collector-001")
			debt.CollectorAssignedAt = &assignedAt
			debt.MoratoryAnnualRate = decPtr("15")
		})
	if err != nil {
		return err
	}

	// Below the condition threshold: the fallback rule suspends it instead.
	return h.seedDebt(ctx, "debt-302", "subject-005", "30000", 12, now.AddDate(0, -4, 0), 4,
		func(debt *collections.Debt) {
			debt.State = collections.StateInManagement
			debt.AssignedCollectorID = strPtr("collector-001")
			debt.CollectorAssignedAt = &assignedAt
		})
}

func (h *Handler) loadAgreementExpiryScenario(ctx context.Context) error {
	if err := h.seedBaseline(ctx); err != nil {
		return err
	}

	now := time.Now().UTC()
	assignedAt := now.AddDate(0, -3, 0)
	expiredYesterday := now.AddDate(0, 0, -2)
	scheduled := decimal.RequireFromString("500")

	return h.seedDebt(ctx, "debt-401", "subject-006", "9000", 6, now.AddDate(0, -1, 0), 0,
		func(debt *collections.Debt) {
			debt.State = collections.StateWithAgreement
			debt.AssignedCollectorID = strPtr("collector-002")
			debt.CollectorAssignedAt = &assignedAt
			debt.AgreementExpiration = &expiredYesterday
			for i := range debt.Installments {
				debt.Installments[i].State = collections.InstallmentUnderAgreement
				debt.Installments[i].ScheduledAmount = &scheduled
			}
		})
}
