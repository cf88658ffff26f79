/*
errors.go - Centralized error types for the collection engine

PURPOSE:
  All domain faults in one place. Faults are raised synchronously as errors,
  not status codes; the HTTP layer maps them. Each fault carries a stable,
  human-readable reason and is raised before any partial persistence of the
  object that failed validation.

ERROR CATEGORIES:
  1. Not-found errors - missing debt or authorization request
  2. Validation errors - ownership, legality, workflow-state violations
  3. Configuration errors - malformed rule conditions

USAGE:
  Callers branch with errors.Is():

    if errors.Is(err, collections.ErrTransitionNotAllowed) {
        // reject the whole follow-up call
    }

SEE ALSO:
  - followup.go, authorization.go: Raise most of these
  - api/handlers.go: Maps them to HTTP status codes
*/
package collections

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDebtNotFound is returned when a referenced debt doesn't exist.
	ErrDebtNotFound = errors.New("debt not found")

	// ErrRequestNotFound is returned when a referenced authorization request
	// doesn't exist.
	ErrRequestNotFound = errors.New("authorization request not found")

	// ErrDebtNotAssigned is returned when the calling collector is not the
	// debt's assigned collector.
	ErrDebtNotAssigned = errors.New("debt not assigned to collector")

	// ErrTransitionNotAllowed is returned when the allowed-transition graph
	// has no edge for the requested state change.
	ErrTransitionNotAllowed = errors.New("transition not permitted")

	// ErrSupervisorMismatch is returned when the resolving supervisor is not
	// the request's assigned supervisor.
	ErrSupervisorMismatch = errors.New("supervisor not authorized to resolve request")

	// ErrAlreadyResolved is returned when resolving a non-pending request.
	// Approved, Rejected and Expired are terminal.
	ErrAlreadyResolved = errors.New("authorization request already resolved")

	// ErrStaleOriginState is returned on approval when the debt has moved on
	// since the authorization was requested.
	ErrStaleOriginState = errors.New("debt no longer in origin state")

	// ErrMalformedCondition is returned for a condition tree with an unknown
	// operator, bad arity, or an unevaluable comparison.
	ErrMalformedCondition = errors.New("malformed rule condition")

	// ErrNoSupervisorsAvailable is returned when the active supervisor pool
	// is empty. Swallowed during follow-up creation (the request is persisted
	// unassigned); fatal everywhere else.
	ErrNoSupervisorsAvailable = errors.New("no active supervisors available")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotAssignedError reports an ownership mismatch on a specific debt.
type NotAssignedError struct {
	DebtID      string
	CollectorID string
}

func (e *NotAssignedError) Error() string {
	return fmt.Sprintf("debt %s not assigned to collector %s", e.DebtID, e.CollectorID)
}

func (e *NotAssignedError) Unwrap() error { return ErrDebtNotAssigned }

// TransitionNotAllowedError reports the missing edge.
type TransitionNotAllowedError struct {
	Origin      DebtState
	Destination DebtState
}

func (e *TransitionNotAllowedError) Error() string {
	return fmt.Sprintf("transition not permitted: %s -> %s", e.Origin, e.Destination)
}

func (e *TransitionNotAllowedError) Unwrap() error { return ErrTransitionNotAllowed }

// SupervisorMismatchError reports who tried to resolve and who was assigned.
type SupervisorMismatchError struct {
	RequestID    string
	SupervisorID string
	AssignedID   string // empty when the request was never assigned
}

func (e *SupervisorMismatchError) Error() string {
	if e.AssignedID == "" {
		return fmt.Sprintf("supervisor %s cannot resolve unassigned request %s", e.SupervisorID, e.RequestID)
	}
	return fmt.Sprintf("supervisor %s cannot resolve request %s assigned to %s",
		e.SupervisorID, e.RequestID, e.AssignedID)
}

func (e *SupervisorMismatchError) Unwrap() error { return ErrSupervisorMismatch }

// StaleOriginStateError reports the stale-authorization guard firing.
type StaleOriginStateError struct {
	RequestID string
	DebtID    string
	Expected  DebtState
	Actual    DebtState
}

func (e *StaleOriginStateError) Error() string {
	return fmt.Sprintf("debt %s no longer in origin state for request %s: expected %s, now %s",
		e.DebtID, e.RequestID, e.Expected, e.Actual)
}

func (e *StaleOriginStateError) Unwrap() error { return ErrStaleOriginState }

// MalformedConditionError explains what is wrong with a condition tree.
type MalformedConditionError struct {
	Reason string
}

func (e *MalformedConditionError) Error() string {
	return fmt.Sprintf("malformed rule condition: %s", e.Reason)
}

func (e *MalformedConditionError) Unwrap() error { return ErrMalformedCondition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDebtNotFound) || errors.Is(err, ErrRequestNotFound)
}

// IsNoSupervisors returns true if the error is the empty-supervisor-pool
// fault, which follow-up creation swallows.
func IsNoSupervisors(err error) bool {
	return errors.Is(err, ErrNoSupervisorsAvailable)
}

// IsClientError returns true if the error is due to invalid caller input or
// workflow state, as opposed to an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDebtNotAssigned) ||
		errors.Is(err, ErrTransitionNotAllowed) ||
		errors.Is(err, ErrSupervisorMismatch) ||
		errors.Is(err, ErrAlreadyResolved) ||
		errors.Is(err, ErrStaleOriginState) ||
		errors.Is(err, ErrMalformedCondition)
}
