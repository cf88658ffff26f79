package collections_test

import (
	"errors"
	"testing"
	"time"

	"github.com/warp/collections-engine/collections"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func statePtr(s collections.DebtState) *collections.DebtState { return &s }

func managedDebt(t *testing.T, id string, principal string) *collections.Debt {
	t.Helper()
	debt, err := collections.NewDebt(id, "c-1", "s-1", []collections.Installment{
		overdueInstallment(id+"-i-1", principal, day(2026, time.January, 1)),
	})
	if err != nil {
		t.Fatalf("NewDebt: %v", err)
	}
	debt.State = collections.StateInManagement
	debt.RecalculateTotals()
	return debt
}

// =============================================================================
// RULE SELECTION
// =============================================================================

func TestRuleSelector_FiltersTypeOriginAndActive(t *testing.T) {
	// GIVEN: Rules for other types, other origins, and one inactive
	// WHEN: Selection runs
	// THEN: Only the matching active rule survives

	debt := managedDebt(t, "d-1", "1000")
	rules := []collections.TransitionRule{
		{ID: "r-other-type", ManagementTypeID: "mgmt-other", Priority: 100, Active: true},
		{ID: "r-other-origin", ManagementTypeID: "mgmt-call",
			OriginState: statePtr(collections.StateNew), Priority: 100, Active: true},
		{ID: "r-inactive", ManagementTypeID: "mgmt-call", Priority: 100, Active: false},
		{ID: "r-match", ManagementTypeID: "mgmt-call",
			OriginState:      statePtr(collections.StateInManagement),
			DestinationState: statePtr(collections.StateSuspended),
			Priority:         1, Active: true},
	}

	selector := &collections.RuleSelector{}
	rule, err := selector.Select(debt, "mgmt-call", rules)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if rule == nil || rule.ID != "r-match" {
		t.Fatalf("expected r-match, got %+v", rule)
	}
}

func TestRuleSelector_NilOriginMatchesAnyState(t *testing.T) {
	debt := managedDebt(t, "d-1", "1000")
	rules := []collections.TransitionRule{
		{ID: "r-any", ManagementTypeID: "mgmt-call", Priority: 1, Active: true},
	}

	selector := &collections.RuleSelector{}
	rule, err := selector.Select(debt, "mgmt-call", rules)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if rule == nil || rule.ID != "r-any" {
		t.Fatalf("expected r-any, got %+v", rule)
	}
}

func TestRuleSelector_HighestPriorityWins(t *testing.T) {
	debt := managedDebt(t, "d-1", "1000")
	rules := []collections.TransitionRule{
		{ID: "r-low", ManagementTypeID: "mgmt-call", Priority: 1, Active: true},
		{ID: "r-high", ManagementTypeID: "mgmt-call", Priority: 50, Active: true},
		{ID: "r-mid", ManagementTypeID: "mgmt-call", Priority: 10, Active: true},
	}

	selector := &collections.RuleSelector{}
	rule, err := selector.Select(debt, "mgmt-call", rules)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if rule.ID != "r-high" {
		t.Errorf("expected r-high, got %s", rule.ID)
	}
}

func TestRuleSelector_TieBreaksByRuleID(t *testing.T) {
	// GIVEN: Two applicable rules with equal priority
	// WHEN: Selection runs
	// THEN: The lexically smaller rule ID wins, regardless of slice order

	debt := managedDebt(t, "d-1", "1000")
	rules := []collections.TransitionRule{
		{ID: "r-bbb", ManagementTypeID: "mgmt-call", Priority: 10, Active: true},
		{ID: "r-aaa", ManagementTypeID: "mgmt-call", Priority: 10, Active: true},
	}

	selector := &collections.RuleSelector{}
	rule, err := selector.Select(debt, "mgmt-call", rules)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if rule.ID != "r-aaa" {
		t.Errorf("expected r-aaa by tie-break, got %s", rule.ID)
	}
}

func TestRuleSelector_ConditionGatesApplicability(t *testing.T) {
	// GIVEN: A high-priority rule whose condition the debt fails, and an
	//        unconditional low-priority fallback
	// WHEN: Selection runs
	// THEN: The fallback wins

	debt := managedDebt(t, "d-1", "1000") // total well below 50000
	rules := []collections.TransitionRule{
		{ID: "r-big", ManagementTypeID: "mgmt-call", Priority: 50, Active: true,
			Condition: collections.Comparison{
				Field: collections.FieldTotalDebt, Op: collections.OpGte,
				Value: collections.NumberValue(dec("50000")),
			}},
		{ID: "r-fallback", ManagementTypeID: "mgmt-call", Priority: 1, Active: true},
	}

	selector := &collections.RuleSelector{}
	rule, err := selector.Select(debt, "mgmt-call", rules)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if rule.ID != "r-fallback" {
		t.Errorf("expected r-fallback, got %s", rule.ID)
	}
}

func TestRuleSelector_NoApplicableRuleReturnsNil(t *testing.T) {
	debt := managedDebt(t, "d-1", "1000")

	selector := &collections.RuleSelector{}
	rule, err := selector.Select(debt, "mgmt-call", nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if rule != nil {
		t.Errorf("expected nil rule, got %s", rule.ID)
	}
}

func TestRuleSelector_MalformedConditionAbortsSelection(t *testing.T) {
	// GIVEN: A rule whose condition orders against a text field
	// WHEN: Selection runs
	// THEN: The fault propagates instead of being treated as a non-match

	debt := managedDebt(t, "d-1", "1000")
	rules := []collections.TransitionRule{
		{ID: "r-bad", ManagementTypeID: "mgmt-call", Priority: 1, Active: true,
			Condition: collections.Comparison{
				Field: collections.FieldCurrentState, Op: collections.OpGt,
				Value: collections.NumberValue(dec("1")),
			}},
	}

	selector := &collections.RuleSelector{}
	_, err := selector.Select(debt, "mgmt-call", rules)
	if !errors.Is(err, collections.ErrMalformedCondition) {
		t.Errorf("expected ErrMalformedCondition, got %v", err)
	}
}

// =============================================================================
// RULE CONTEXT CONSTRUCTION
// =============================================================================

func TestBuildRuleContext(t *testing.T) {
	// GIVEN: A debt with an agreement expiring in 5 days and a collector
	// WHEN: The rule context is built
	// THEN: Every advertised field carries the snapshot value

	ref := day(2026, time.March, 10)
	exp := day(2026, time.March, 15)
	collector := "collector-9"

	debt := managedDebt(t, "d-1", "1000")
	debt.State = collections.StateWithAgreement
	debt.AssignedCollectorID = &collector
	debt.AgreementExpiration = &exp
	debt.DaysOverdue = 12

	ctx := collections.BuildRuleContext(debt, ref)

	if got := ctx.Get(collections.FieldCurrentState); got.Text != "with_agreement" {
		t.Errorf("current_state: got %q", got.Text)
	}
	if got := ctx.Get(collections.FieldHasAgreement); !got.Bool {
		t.Error("has_agreement: expected true")
	}
	if got := ctx.Get(collections.FieldDaysOverdue); !got.Number.Equal(dec("12")) {
		t.Errorf("days_overdue: got %s", got.Number)
	}
	if got := ctx.Get(collections.FieldAgreementExpiresDays); !got.Number.Equal(dec("5")) {
		t.Errorf("agreement_expires_in_days: got %s", got.Number)
	}
	if got := ctx.Get(collections.FieldAssignedCollectorID); got.Text != "collector-9" {
		t.Errorf("assigned_collector_id: got %q", got.Text)
	}
}

func TestBuildRuleContext_AbsentOptionalsReadAsNull(t *testing.T) {
	debt := managedDebt(t, "d-1", "1000")
	ctx := collections.BuildRuleContext(debt, day(2026, time.March, 10))

	if got := ctx.Get(collections.FieldAgreementExpiresDays); got.Kind != collections.KindNull {
		t.Error("agreement_expires_in_days should be null without an agreement")
	}
	if got := ctx.Get(collections.FieldScheduledAmount); got.Kind != collections.KindNull {
		t.Error("scheduled_amount should be null without a schedule")
	}
}

// =============================================================================
// DESTINATION RESOLUTION
// =============================================================================

func TestDestinationFor(t *testing.T) {
	debt := managedDebt(t, "d-1", "1000")

	with := collections.TransitionRule{
		DestinationState: statePtr(collections.StateSuspended),
	}
	if got := with.DestinationFor(debt); got != collections.StateSuspended {
		t.Errorf("expected suspended, got %s", got)
	}

	// Nil destination keeps the current state.
	without := collections.TransitionRule{}
	if got := without.DestinationFor(debt); got != collections.StateInManagement {
		t.Errorf("expected in_management, got %s", got)
	}
}
