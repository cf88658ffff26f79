// Package store provides in-memory repository implementations (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/collections-engine/collections"
)

// =============================================================================
// MEMORY STORE - Implements every repository contract in collections/store.go
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	debts       map[string]*collections.Debt
	rules       []collections.TransitionRule
	edges       map[edgeKey]collections.TransitionEdge
	requests    map[string]*collections.AuthorizationRequest
	followUps   map[string]*collections.FollowUp
	supervisors []collections.Supervisor
	cursor      int
}

type edgeKey struct {
	Origin      collections.DebtState
	Destination collections.DebtState
}

func NewMemory() *Memory {
	return &Memory{
		debts:     make(map[string]*collections.Debt),
		edges:     make(map[edgeKey]collections.TransitionEdge),
		requests:  make(map[string]*collections.AuthorizationRequest),
		followUps: make(map[string]*collections.FollowUp),
	}
}

// =============================================================================
// DEBT REPOSITORY
// =============================================================================

func (m *Memory) GetDebt(_ context.Context, id string) (*collections.Debt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.debts[id]
	if !ok {
		return nil, collections.ErrDebtNotFound
	}
	return copyDebt(d), nil
}

// ListForDailyUpdate returns debts in non-final states, ordered by ID for
// deterministic test runs. Final states: Cancelled, Uncollectible, Deceased.
func (m *Memory) ListForDailyUpdate(_ context.Context) ([]*collections.Debt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*collections.Debt
	for _, d := range m.debts {
		switch d.State {
		case collections.StateCancelled, collections.StateUncollectible, collections.StateDeceased:
			continue
		}
		out = append(out, copyDebt(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveDebt(_ context.Context, d *collections.Debt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debts[d.ID] = copyDebt(d)
	return nil
}

func copyDebt(d *collections.Debt) *collections.Debt {
	cp := *d
	cp.Installments = make([]collections.Installment, len(d.Installments))
	copy(cp.Installments, d.Installments)
	return &cp
}

// =============================================================================
// RULE REPOSITORY
// =============================================================================

func (m *Memory) PutRule(rule collections.TransitionRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule)
}

func (m *Memory) ActiveRulesByManagementType(_ context.Context, managementTypeID string) ([]collections.TransitionRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []collections.TransitionRule
	for _, r := range m.rules {
		if r.Active && r.ManagementTypeID == managementTypeID {
			out = append(out, r)
		}
	}
	return out, nil
}

// =============================================================================
// TRANSITION GRAPH
// =============================================================================

func (m *Memory) PutEdge(e collections.TransitionEdge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[edgeKey{Origin: e.Origin, Destination: e.Destination}] = e
}

func (m *Memory) Edge(_ context.Context, origin, destination collections.DebtState) (*collections.TransitionEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.edges[edgeKey{Origin: origin, Destination: destination}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) EdgesFrom(_ context.Context, origin collections.DebtState) ([]collections.TransitionEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []collections.TransitionEdge
	for k, e := range m.edges {
		if k.Origin == origin {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Destination < out[j].Destination })
	return out, nil
}

// =============================================================================
// AUTHORIZATION REQUEST REPOSITORY
// =============================================================================

func (m *Memory) CreateRequest(_ context.Context, r *collections.AuthorizationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *Memory) GetRequest(_ context.Context, id string) (*collections.AuthorizationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, collections.ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) UpdateRequest(_ context.Context, r *collections.AuthorizationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[r.ID]; !ok {
		return collections.ErrRequestNotFound
	}
	cp := *r
	m.requests[r.ID] = &cp
	return nil
}

func (m *Memory) ListPendingRequests(_ context.Context) ([]*collections.AuthorizationRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*collections.AuthorizationRequest
	for _, r := range m.requests {
		if r.Status == collections.RequestPending {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// FOLLOW-UP REPOSITORY
// =============================================================================

func (m *Memory) CreateFollowUp(_ context.Context, f *collections.FollowUp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	m.followUps[f.ID] = &cp
	return nil
}

func (m *Memory) FollowUpCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.followUps)
}

// =============================================================================
// SUPERVISOR DIRECTORY
// =============================================================================

func (m *Memory) PutSupervisor(s collections.Supervisor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supervisors = append(m.supervisors, s)
}

func (m *Memory) ActiveSupervisors(_ context.Context) ([]collections.Supervisor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []collections.Supervisor
	for _, s := range m.supervisors {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *Memory) NextAssignmentIndex(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.cursor
	m.cursor++
	return idx, nil
}
