/*
store.go - Repository contracts consumed by the core

PURPOSE:
  Defines the interfaces between the domain logic and persistence. The core
  performs no I/O except through these; orchestrators pull aggregates, run
  the leaf services, mutate the in-memory aggregate, and push it back.

IMPLEMENTATIONS:
  - collections/store/memory.go: In-memory, for tests and dev
  - store/sqlite/sqlite.go: Production SQLite

ATOMICITY:
  Save/Update are assumed atomic per aggregate. The core does NOT wrap
  multi-entity sequences (debt + follow-up + authorization request) in a
  single transaction; see followup.go for the known partial-failure gap.

SEE ALSO:
  - transitions.go: TransitionGraph (also a repository contract)
*/
package collections

import "context"

// =============================================================================
// DEBT STORE
// =============================================================================

type DebtRepository interface {
	// GetDebt returns the debt with its installments, or ErrDebtNotFound.
	GetDebt(ctx context.Context, id string) (*Debt, error)

	// ListForDailyUpdate returns every debt eligible for the daily sweep:
	// active, non-final-state selection. The selection criteria live with
	// the implementation.
	ListForDailyUpdate(ctx context.Context) ([]*Debt, error)

	// SaveDebt persists the debt and its installments.
	SaveDebt(ctx context.Context, d *Debt) error
}

// =============================================================================
// RULE STORE
// =============================================================================

type RuleRepository interface {
	// ActiveRulesByManagementType returns the active rules configured for a
	// management type, conditions already parsed (see factory package).
	ActiveRulesByManagementType(ctx context.Context, managementTypeID string) ([]TransitionRule, error)
}

// =============================================================================
// AUTHORIZATION REQUEST STORE
// =============================================================================

type AuthorizationRequestRepository interface {
	CreateRequest(ctx context.Context, r *AuthorizationRequest) error

	// GetRequest returns the request, or ErrRequestNotFound.
	GetRequest(ctx context.Context, id string) (*AuthorizationRequest, error)

	// UpdateRequest persists a resolution. Requests are mutated exactly once,
	// Pending -> terminal; they are never re-opened.
	UpdateRequest(ctx context.Context, r *AuthorizationRequest) error

	// ListPendingRequests returns all requests still awaiting resolution.
	ListPendingRequests(ctx context.Context) ([]*AuthorizationRequest, error)
}

// =============================================================================
// FOLLOW-UP STORE
// =============================================================================

type FollowUpRepository interface {
	CreateFollowUp(ctx context.Context, f *FollowUp) error
}

// =============================================================================
// SUPERVISOR DIRECTORY
// =============================================================================

type SupervisorDirectory interface {
	ActiveSupervisors(ctx context.Context) ([]Supervisor, error)

	// NextAssignmentIndex advances and returns the round-robin cursor.
	// The cursor is persisted so rotation survives restarts.
	NextAssignmentIndex(ctx context.Context) (int, error)
}
