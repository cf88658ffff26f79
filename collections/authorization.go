/*
authorization.go - Authorization request workflow

PURPOSE:
  Risky transitions (those whose selected rule demands authorization) are
  deferred behind an AuthorizationRequest. The request has a three-way
  terminal resolution reachable only from Pending:

      Pending -> Approved   (debt moved to the recorded destination state)
      Pending -> Rejected   (debt untouched)
      Pending -> Expired    (debt untouched; swept by the scheduler)

  Attempting any resolution from a terminal state fails.

RESOLUTION GUARDS (in order):
  1. Request exists
  2. Resolver is the assigned supervisor
  3. Request is still Pending
  4. On approval only: the debt is still in the recorded origin state
     (stale-authorization guard)

SUPERVISOR ASSIGNMENT:
  Round-robin over the active pool using a rotation cursor persisted by the
  SupervisorDirectory. An empty pool is ErrNoSupervisorsAvailable; the
  follow-up orchestrator swallows that and persists the request unassigned,
  everywhere else it is fatal.

SEE ALSO:
  - followup.go: Creates requests and derives their priority
  - api/scheduler.go: Expires stale pending requests
*/
package collections

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// AUTHORIZATION REQUEST - Entity with a 3-way terminal resolution
// =============================================================================

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
	RequestExpired  RequestStatus = "expired"
)

type AuthorizationRequest struct {
	ID         string
	FollowUpID string
	DebtID     string

	// The transition this request gates. Origin is recorded at creation so
	// approval can detect a debt that has since moved on.
	OriginState      DebtState
	DestinationState DebtState

	RequestingCollectorID string
	AssignedSupervisorID  *string

	Status   RequestStatus
	Priority RequestPriority

	RequestedAt       time.Time
	ResolvedAt        *time.Time
	RequesterComment  string
	SupervisorComment string
}

// NewAuthorizationRequest creates a Pending request with priority derived
// from the debt total.
func NewAuthorizationRequest(followUpID string, d *Debt, destination DebtState, collectorID, comment string, at time.Time) *AuthorizationRequest {
	return &AuthorizationRequest{
		ID:                    fmt.Sprintf("auth-%d", time.Now().UnixNano()),
		FollowUpID:            followUpID,
		DebtID:                d.ID,
		OriginState:           d.State,
		DestinationState:      destination,
		RequestingCollectorID: collectorID,
		Status:                RequestPending,
		Priority:              PriorityForAmount(d.TotalDebt),
		RequestedAt:           at,
		RequesterComment:      comment,
	}
}

func (r *AuthorizationRequest) resolve(status RequestStatus, comment string) error {
	if r.Status != RequestPending {
		return ErrAlreadyResolved
	}
	now := time.Now()
	r.Status = status
	r.ResolvedAt = &now
	r.SupervisorComment = comment
	return nil
}

// Approve marks the request approved. Fails unless Pending.
func (r *AuthorizationRequest) Approve(comment string) error {
	return r.resolve(RequestApproved, comment)
}

// Reject marks the request rejected. Fails unless Pending.
func (r *AuthorizationRequest) Reject(comment string) error {
	return r.resolve(RequestRejected, comment)
}

// Expire marks the request expired. Fails unless Pending.
func (r *AuthorizationRequest) Expire() error {
	return r.resolve(RequestExpired, "")
}

// =============================================================================
// SUPERVISOR ASSIGNER - Round-robin over the active pool
// =============================================================================

type SupervisorAssigner struct {
	Directory SupervisorDirectory
}

// Assign picks the next supervisor in rotation. The cursor is advanced even
// across restarts because the directory persists it.
func (sa *SupervisorAssigner) Assign(ctx context.Context) (*Supervisor, error) {
	pool, err := sa.Directory.ActiveSupervisors(ctx)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, ErrNoSupervisorsAvailable
	}

	idx, err := sa.Directory.NextAssignmentIndex(ctx)
	if err != nil {
		return nil, err
	}

	sup := pool[idx%len(pool)]
	return &sup, nil
}

// =============================================================================
// RESOLUTION USE CASE
// =============================================================================

type AuthorizationService struct {
	Debts    DebtRepository
	Requests AuthorizationRequestRepository
}

// ResolutionResult reports what a resolution did.
type ResolutionResult struct {
	RequestID    string
	Status       RequestStatus
	DebtUpdated  bool
	NewDebtState *DebtState
}

// Resolve applies a supervisor's decision to a pending request. On approval
// the debt is moved to the recorded destination state and persisted before
// the request; on rejection the debt is left untouched.
func (as *AuthorizationService) Resolve(ctx context.Context, requestID, supervisorID string, approve bool, comment string) (*ResolutionResult, error) {
	req, err := as.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if req.AssignedSupervisorID == nil || *req.AssignedSupervisorID != supervisorID {
		assigned := ""
		if req.AssignedSupervisorID != nil {
			assigned = *req.AssignedSupervisorID
		}
		return nil, &SupervisorMismatchError{RequestID: requestID, SupervisorID: supervisorID, AssignedID: assigned}
	}

	if req.Status != RequestPending {
		return nil, ErrAlreadyResolved
	}

	if !approve {
		if err := req.Reject(comment); err != nil {
			return nil, err
		}
		if err := as.Requests.UpdateRequest(ctx, req); err != nil {
			return nil, err
		}
		return &ResolutionResult{RequestID: req.ID, Status: req.Status}, nil
	}

	debt, err := as.Debts.GetDebt(ctx, req.DebtID)
	if err != nil {
		return nil, err
	}
	if debt.State != req.OriginState {
		return nil, &StaleOriginStateError{
			RequestID: req.ID,
			DebtID:    debt.ID,
			Expected:  req.OriginState,
			Actual:    debt.State,
		}
	}

	if err := req.Approve(comment); err != nil {
		return nil, err
	}

	debt.State = req.DestinationState
	if err := as.Debts.SaveDebt(ctx, debt); err != nil {
		return nil, err
	}
	if err := as.Requests.UpdateRequest(ctx, req); err != nil {
		return nil, err
	}

	newState := debt.State
	return &ResolutionResult{
		RequestID:    req.ID,
		Status:       req.Status,
		DebtUpdated:  true,
		NewDebtState: &newState,
	}, nil
}

// ExpireStale expires every pending request created before the cutoff.
// Returns the number of requests expired.
func (as *AuthorizationService) ExpireStale(ctx context.Context, cutoff time.Time) (int, error) {
	pending, err := as.Requests.ListPendingRequests(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, req := range pending {
		if !req.RequestedAt.Before(cutoff) {
			continue
		}
		if err := req.Expire(); err != nil {
			// Raced with a concurrent resolution; leave it be.
			continue
		}
		if err := as.Requests.UpdateRequest(ctx, req); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}
