/*
rules.go - Transition rules and priority-based selection

PURPOSE:
  A TransitionRule is a configured policy row: for a given follow-up
  (management) type and origin state, it names the destination state, whether
  the change needs supervisor authorization, and a priority. Rules may carry
  a condition tree (condition.go) evaluated against a snapshot of the debt.

SELECTION:
  1. Filter to active rules for the management type
  2. Match origin state (a nil origin matches any current state)
  3. Evaluate the rule's condition, if any, against the debt context
  4. Highest priority wins; ties break by rule ID ascending

  The explicit ID tie-break replaces reliance on repository ordering, which
  is only as stable as the upstream query's ORDER BY.

SEE ALSO:
  - condition.go: Condition evaluation
  - transitions.go: Legality of the selected destination
  - followup.go: The orchestrator consuming the selection
*/
package collections

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TRANSITION RULE - A configured policy row, consumed read-only
// =============================================================================

type TransitionRule struct {
	ID               string
	ManagementTypeID string

	// OriginState nil matches any current state.
	OriginState *DebtState

	// DestinationState nil means the state is left unchanged.
	DestinationState *DebtState

	// RequiresAuthorization gates the workflow branch in followup.go.
	// Independent of the allowed-transition edge's own flag, which is
	// informational only.
	RequiresAuthorization bool

	// Condition nil means unconditionally applicable. Rules whose configured
	// condition was not a parseable tree arrive here with nil (legacy
	// free-form objects are treated as "no constraint").
	Condition Condition

	Priority int
	Active   bool
}

// DestinationFor resolves the rule's destination for a debt: the configured
// destination, or the debt's current state when none is set.
func (r TransitionRule) DestinationFor(d *Debt) DebtState {
	if r.DestinationState != nil {
		return *r.DestinationState
	}
	return d.State
}

// =============================================================================
// RULE CONTEXT CONSTRUCTION
// =============================================================================

// Context field names read by rule conditions.
const (
	FieldCurrentState          = "current_state"
	FieldTotalDebt             = "total_debt"
	FieldOutstandingPrincipal  = "outstanding_principal"
	FieldDaysOverdue           = "days_overdue"
	FieldDaysInManagement      = "days_in_management"
	FieldAssignedCollectorID   = "assigned_collector_id"
	FieldHasAgreement          = "has_agreement"
	FieldAgreementExpiresDays  = "agreement_expires_in_days"
	FieldMoratoryInterestTotal = "moratory_interest_total"
	FieldPunitiveInterestTotal = "punitive_interest_total"
	FieldCollectionCosts       = "collection_costs"
	FieldScheduledAmount       = "scheduled_amount"
)

// BuildRuleContext snapshots the debt into the flat context conditions read.
// The snapshot is taken once per selection; conditions never see the live
// aggregate. The reference date anchors the agreement-expiration field.
func BuildRuleContext(d *Debt, ref time.Time) RuleContext {
	ctx := RuleContext{
		FieldCurrentState:          TextValue(string(d.State)),
		FieldTotalDebt:             NumberValue(d.TotalDebt),
		FieldOutstandingPrincipal:  NumberValue(d.OutstandingPrincipalTotal),
		FieldDaysOverdue:           NumberValueFromInt(d.DaysOverdue),
		FieldDaysInManagement:      NumberValueFromInt(d.DaysInManagement),
		FieldHasAgreement:          BoolValue(d.State == StateWithAgreement),
		FieldMoratoryInterestTotal: NumberValue(d.MoratoryInterestTotal),
		FieldPunitiveInterestTotal: NumberValue(d.PunitiveInterestTotal),
		FieldCollectionCosts:       NumberValue(d.CollectionCosts),
	}

	if d.AssignedCollectorID != nil {
		ctx[FieldAssignedCollectorID] = TextValue(*d.AssignedCollectorID)
	}
	if d.AgreementExpiration != nil {
		// Days until expiration, negative once expired.
		ctx[FieldAgreementExpiresDays] = NumberValueFromInt(DaysBetween(ref, *d.AgreementExpiration))
	}
	if sched := firstScheduledAmount(d); sched != nil {
		ctx[FieldScheduledAmount] = NumberValue(*sched)
	}

	return ctx
}

// firstScheduledAmount returns the scheduled amount of the first unpaid
// installment carrying one.
func firstScheduledAmount(d *Debt) *decimal.Decimal {
	for _, inst := range d.Installments {
		if inst.State == InstallmentPaid {
			continue
		}
		if inst.ScheduledAmount != nil {
			return inst.ScheduledAmount
		}
	}
	return nil
}

// =============================================================================
// RULE SELECTOR
// =============================================================================

type RuleSelector struct {
	// Now overrides the clock for tests. Nil means time.Now.
	Now func() time.Time
}

// Select resolves the single best applicable rule for the debt and management
// type, or nil when no rule applies. A malformed condition aborts selection
// with ErrMalformedCondition; it is never treated as a silent non-match.
func (rs *RuleSelector) Select(d *Debt, managementTypeID string, rules []TransitionRule) (*TransitionRule, error) {
	now := time.Now()
	if rs.Now != nil {
		now = rs.Now()
	}
	ctx := BuildRuleContext(d, now)

	var best *TransitionRule
	for i := range rules {
		rule := &rules[i]

		if !rule.Active || rule.ManagementTypeID != managementTypeID {
			continue
		}
		if rule.OriginState != nil && *rule.OriginState != d.State {
			continue
		}

		if rule.Condition != nil {
			ok, err := rule.Condition.Evaluate(ctx)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
			}
			if !ok {
				continue
			}
		}

		if best == nil ||
			rule.Priority > best.Priority ||
			(rule.Priority == best.Priority && rule.ID < best.ID) {
			best = rule
		}
	}

	return best, nil
}
