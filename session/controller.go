package session

import (
	"context"
	"sort"
)

// Policy configures concurrent-session admission for one login attempt.
type Policy struct {
	// MaxSessions caps the principal's simultaneously active sessions.
	// -1 means unlimited.
	MaxSessions int

	// ExceptionIfMaximumExceeded refuses the new login instead of evicting
	// the least-recently-used sessions.
	ExceptionIfMaximumExceeded bool
}

// DecisionKind classifies an admission decision.
type DecisionKind int

const (
	Allow DecisionKind = iota
	AllowAfterEviction
	Reject
)

// Decision is the outcome of AdmitLogin. Evict is populated only for
// [AllowAfterEviction]; the caller is responsible for invalidating those
// sessions before completing the login.
type Decision struct {
	Kind  DecisionKind
	Evict []string
}

// Controller enforces the max-sessions policy over [Registry] snapshots.
type Controller struct {
	registry *Registry
}

func NewController(registry *Registry) *Controller {
	return &Controller{registry: registry}
}

// AdmitLogin reads a snapshot of the principal's sessions and decides
// whether the candidate session may be created. The snapshot is
// point-in-time; callers must re-validate evicted ids before destroying
// them.
func (c *Controller) AdmitLogin(ctx context.Context, principal, candidateID string, policy Policy) (Decision, error) {
	if policy.MaxSessions == -1 {
		return Decision{Kind: Allow}, nil
	}

	sessions, err := c.registry.AllSessions(ctx, principal)
	if err != nil {
		return Decision{}, err
	}

	return Decide(sessions, candidateID, policy), nil
}

// Decide is the pure admission rule. Eviction is least-recently-used by
// lastRequestAt, ascending session id on ties, so the outcome is
// deterministic for any snapshot.
func Decide(sessions []*Record, candidateID string, policy Policy) Decision {
	if policy.MaxSessions == -1 {
		return Decision{Kind: Allow}
	}

	for _, rec := range sessions {
		if rec.SessionID == candidateID {
			// Re-authentication on an existing session never counts twice.
			return Decision{Kind: Allow}
		}
	}

	if len(sessions) < policy.MaxSessions {
		return Decision{Kind: Allow}
	}

	if policy.ExceptionIfMaximumExceeded {
		return Decision{Kind: Reject}
	}

	ordered := make([]*Record, len(sessions))
	copy(ordered, sessions)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].LastRequestAt != ordered[j].LastRequestAt {
			return ordered[i].LastRequestAt < ordered[j].LastRequestAt
		}
		return ordered[i].SessionID < ordered[j].SessionID
	})

	evictCount := len(ordered) - policy.MaxSessions + 1
	evict := make([]string, 0, evictCount)
	for _, rec := range ordered[:evictCount] {
		evict = append(evict, rec.SessionID)
	}

	return Decision{Kind: AllowAfterEviction, Evict: evict}
}
