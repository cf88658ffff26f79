/*
transitions.go - State-transition legality against the allowed-transition graph

PURPOSE:
  The allowed-transition graph is the external source of truth for which
  state -> state edges are legal at all, independent of any specific rule.
  The validator consults it and reports whether that edge additionally
  requires authorization.

TWO AUTHORIZATION SIGNALS:
  The edge's RequiresAuthorization flag and a TransitionRule's flag are
  separate signals. Only the rule's flag gates the authorization workflow;
  the edge's flag travels on the check result for audit and display.

SEE ALSO:
  - rules.go: The rule-side authorization flag
  - followup.go, dailyupdate.go: Callers of Validate
*/
package collections

import "context"

// =============================================================================
// TRANSITION EDGE - Read-only lookup row
// =============================================================================

type TransitionEdge struct {
	Origin                DebtState
	Destination           DebtState
	RequiresAuthorization bool
	Description           string
}

// TransitionGraph is the repository contract for the allowed-transition graph.
type TransitionGraph interface {
	// Edge returns the edge (origin -> destination), or nil when absent.
	Edge(ctx context.Context, origin, destination DebtState) (*TransitionEdge, error)

	// EdgesFrom returns every edge leaving the origin state.
	EdgesFrom(ctx context.Context, origin DebtState) ([]TransitionEdge, error)
}

// =============================================================================
// VALIDATOR
// =============================================================================

// TransitionCheck is the validator's verdict on one state change.
type TransitionCheck struct {
	Allowed   bool
	SameState bool

	// RequiresAuthorization and Description come from the graph edge.
	// Informational: the workflow branch is gated by the rule's own flag.
	RequiresAuthorization bool
	Description           string
}

type TransitionValidator struct {
	Graph TransitionGraph
}

// Validate confirms a state change is legal. Same-state is always legal and
// never hits the graph. A missing edge yields Allowed=false with no
// authorization info.
func (tv *TransitionValidator) Validate(ctx context.Context, origin, destination DebtState) (TransitionCheck, error) {
	if origin == destination {
		return TransitionCheck{Allowed: true, SameState: true}, nil
	}

	edge, err := tv.Graph.Edge(ctx, origin, destination)
	if err != nil {
		return TransitionCheck{}, err
	}
	if edge == nil {
		return TransitionCheck{Allowed: false}, nil
	}

	return TransitionCheck{
		Allowed:               true,
		RequiresAuthorization: edge.RequiresAuthorization,
		Description:           edge.Description,
	}, nil
}
