/*
followup.go - The "create follow-up" orchestration flow

PURPOSE:
  Processes one collector action (a follow-up of a given management type)
  against a batch of the subject's debts:

  1. Load each debt; fail on missing or not-assigned-to-caller
  2. Load the active rules for the management type
  3. Per debt: select the applicable rule, validate the destination against
     the allowed-transition graph (an illegal edge fails the WHOLE call),
     then either apply the state change immediately or defer it behind an
     authorization request
  4. Create exactly ONE FollowUp record for the whole call
  5. Create an AuthorizationRequest per deferred debt, round-robin assigning
     a supervisor; an empty supervisor pool is swallowed and the request is
     persisted unassigned

PARTIAL-FAILURE GAP (known):
  Steps 3-5 are not one transaction. A crash between them can leave an
  immediately-applied debt persisted without its FollowUp record. Per-object
  validation always precedes that object's persistence.

SEE ALSO:
  - rules.go, transitions.go, authorization.go: The composed leaf services
*/
package collections

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// INPUT / OUTPUT CONTRACTS
// =============================================================================

type CreateFollowUpInput struct {
	CollectorID      string
	SubjectID        string
	DebtIDs          []string
	ManagementTypeID string
	Note             string
	NextFollowUpAt   *time.Time
}

// DebtOutcome is the per-debt result of a follow-up call.
type DebtOutcome struct {
	DebtID        string
	PreviousState DebtState
	NewState      DebtState

	// AuthorizationPending is true when the state change was deferred behind
	// an authorization request (the debt's state is unchanged for now).
	AuthorizationPending bool

	// EdgeRequiresAuthorization mirrors the graph edge's informational flag.
	EdgeRequiresAuthorization bool
}

type FollowUpResult struct {
	FollowUpID string
	Outcomes   []DebtOutcome
	Requests   []*AuthorizationRequest
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

type FollowUpService struct {
	Debts     DebtRepository
	Rules     RuleRepository
	Requests  AuthorizationRequestRepository
	FollowUps FollowUpRepository
	Validator *TransitionValidator
	Selector  *RuleSelector
	Assigner  *SupervisorAssigner

	// Now overrides the clock for tests. Nil means time.Now.
	Now func() time.Time
}

func (fs *FollowUpService) now() time.Time {
	if fs.Now != nil {
		return fs.Now()
	}
	return time.Now()
}

// deferredTransition is a debt whose rule demanded authorization.
type deferredTransition struct {
	debt        *Debt
	destination DebtState
}

// CreateFollowUp runs the whole flow. Debts are processed sequentially; the
// first invalid transition fails the call before anything else is persisted
// for that debt.
func (fs *FollowUpService) CreateFollowUp(ctx context.Context, in CreateFollowUpInput) (*FollowUpResult, error) {
	now := fs.now()

	// 1. Load and authorize every debt up front.
	debts := make([]*Debt, 0, len(in.DebtIDs))
	for _, id := range in.DebtIDs {
		debt, err := fs.Debts.GetDebt(ctx, id)
		if err != nil {
			return nil, err
		}
		if debt.AssignedCollectorID == nil || *debt.AssignedCollectorID != in.CollectorID {
			return nil, &NotAssignedError{DebtID: id, CollectorID: in.CollectorID}
		}
		debts = append(debts, debt)
	}

	// 2. Load the active rules once for the whole batch.
	rules, err := fs.Rules.ActiveRulesByManagementType(ctx, in.ManagementTypeID)
	if err != nil {
		return nil, err
	}

	// 3. Select and validate per debt; apply immediately or defer.
	var (
		outcomes []DebtOutcome
		deferred []deferredTransition
	)
	for _, debt := range debts {
		rule, err := fs.Selector.Select(debt, in.ManagementTypeID, rules)
		if err != nil {
			return nil, err
		}

		outcome := DebtOutcome{
			DebtID:        debt.ID,
			PreviousState: debt.State,
			NewState:      debt.State,
		}

		if rule == nil {
			outcomes = append(outcomes, outcome)
			continue
		}

		destination := rule.DestinationFor(debt)
		check, err := fs.Validator.Validate(ctx, debt.State, destination)
		if err != nil {
			return nil, err
		}
		if !check.Allowed {
			return nil, &TransitionNotAllowedError{Origin: debt.State, Destination: destination}
		}
		outcome.EdgeRequiresAuthorization = check.RequiresAuthorization

		if rule.RequiresAuthorization {
			outcome.AuthorizationPending = true
			deferred = append(deferred, deferredTransition{debt: debt, destination: destination})
			outcomes = append(outcomes, outcome)
			continue
		}

		debt.State = destination
		if err := fs.Debts.SaveDebt(ctx, debt); err != nil {
			return nil, err
		}
		outcome.NewState = destination
		outcomes = append(outcomes, outcome)
	}

	// 4. One FollowUp record for the whole call.
	followUp := &FollowUp{
		ID:               fmt.Sprintf("fu-%d", time.Now().UnixNano()),
		CollectorID:      in.CollectorID,
		SubjectID:        in.SubjectID,
		ManagementTypeID: in.ManagementTypeID,
		OccurredAt:       now,
		Note:             in.Note,
		NeedsFollowUp:    in.NextFollowUpAt != nil,
		NextFollowUpAt:   in.NextFollowUpAt,
	}
	if err := fs.FollowUps.CreateFollowUp(ctx, followUp); err != nil {
		return nil, err
	}

	// 5. Authorization requests for the deferred debts.
	var requests []*AuthorizationRequest
	for _, def := range deferred {
		req := NewAuthorizationRequest(followUp.ID, def.debt, def.destination, in.CollectorID, in.Note, now)

		sup, err := fs.Assigner.Assign(ctx)
		switch {
		case err == nil:
			req.AssignedSupervisorID = &sup.ID
		case IsNoSupervisors(err):
			// Persist unassigned rather than failing the call.
		default:
			return nil, err
		}

		if err := fs.Requests.CreateRequest(ctx, req); err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}

	return &FollowUpResult{
		FollowUpID: followUp.ID,
		Outcomes:   outcomes,
		Requests:   requests,
	}, nil
}
