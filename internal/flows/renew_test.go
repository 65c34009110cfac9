package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aegisauth/aegis/token"
)

var (
	errNotFound = errors.New("binding not found")
	errConflict = errors.New("binding conflict")
)

// renewHarness wires fake stores so renewal can run without Redis.
type renewHarness struct {
	claims   *token.Claims
	bindings map[string]string
	revoked  map[string]time.Duration
	minted   int
}

func newRenewHarness(jti string, exp time.Time) *renewHarness {
	return &renewHarness{
		claims:   testClaims(jti, exp),
		bindings: map[string]string{},
		revoked:  map[string]time.Duration{},
	}
}

func (h *renewHarness) deps(policy RenewPolicy) RenewDeps {
	return RenewDeps{
		Decode:    func(string) (*token.Claims, error) { return h.claims, nil },
		IsRevoked: neverRevoked,
		Mint: func(old *token.Claims, now time.Time) (*token.Claims, string, error) {
			h.minted++
			next := token.NewClaims(
				old.Subject, old.Authorities, old.Custom,
				now, now.Add(time.Hour),
				"jti-next",
			)
			return next, "encoded-next", nil
		},
		RevokeJti: func(_ context.Context, jti string, ttl time.Duration) error {
			h.revoked[jti] = ttl
			return nil
		},
		RefreshGet: func(_ context.Context, refreshID string) (string, error) {
			bound, ok := h.bindings[refreshID]
			if !ok {
				return "", errNotFound
			}
			return bound, nil
		},
		RefreshSwap: func(_ context.Context, refreshID, expected, next string) error {
			bound, ok := h.bindings[refreshID]
			if !ok {
				return errNotFound
			}
			if bound != expected {
				return errConflict
			}
			h.bindings[refreshID] = next
			return nil
		},
		RefreshNotFound:          errNotFound,
		RefreshConflict:          errConflict,
		Policy:                   policy,
		RemainingRefreshInterval: 10 * time.Minute,
	}
}

func TestRunRenewRejectPolicy(t *testing.T) {
	now := time.Now()

	h := newRenewHarness("jti-1", now.Add(time.Hour))
	res := RunRenew(context.Background(), "tok", "", now, h.deps(PolicyReject))
	if res.Outcome != RenewSameToken {
		t.Fatalf("live token under reject policy: %+v", res)
	}

	h = newRenewHarness("jti-1", now.Add(-time.Minute))
	res = RunRenew(context.Background(), "tok", "", now, h.deps(PolicyReject))
	if res.Outcome != RenewRejected || res.Reason != ReasonExpired {
		t.Fatalf("expired token under reject policy: %+v", res)
	}
}

func TestRunRenewAutoRenew(t *testing.T) {
	now := time.Now()

	h := newRenewHarness("jti-1", now.Add(time.Hour))
	res := RunRenew(context.Background(), "tok", "", now, h.deps(PolicyAutoRenew))
	if res.Outcome != RenewSameToken || h.minted != 0 {
		t.Fatalf("token outside renewal window must be untouched: %+v", res)
	}

	h = newRenewHarness("jti-1", now.Add(5*time.Minute))
	res = RunRenew(context.Background(), "tok", "", now, h.deps(PolicyAutoRenew))
	if res.Outcome != RenewNewToken || res.Token != "encoded-next" {
		t.Fatalf("token inside renewal window must rotate: %+v", res)
	}
	if ttl, ok := h.revoked["jti-1"]; !ok || ttl <= 0 {
		t.Fatalf("predecessor not denylisted for its remaining life: %v", h.revoked)
	}

	h = newRenewHarness("jti-1", now.Add(-time.Minute))
	res = RunRenew(context.Background(), "tok", "", now, h.deps(PolicyAutoRenew))
	if res.Outcome != RenewRejected || res.Reason != ReasonExpired {
		t.Fatalf("expired token must not resurrect in place: %+v", res)
	}
}

func TestRunRenewAutoRenewAbortsWhenRevokeFails(t *testing.T) {
	now := time.Now()
	h := newRenewHarness("jti-1", now.Add(5*time.Minute))
	deps := h.deps(PolicyAutoRenew)
	deps.RevokeJti = func(context.Context, string, time.Duration) error {
		return errors.New("connection refused")
	}

	res := RunRenew(context.Background(), "tok", "", now, deps)
	if res.Outcome != RenewRejected || res.Reason != ReasonUnavailable {
		t.Fatalf("renewal must abort when the denylist is unreachable: %+v", res)
	}
	if res.Token != "" {
		t.Fatal("successor token leaked despite aborted renewal")
	}
}

func TestRunRenewRefreshTokenNotDue(t *testing.T) {
	now := time.Now()
	h := newRenewHarness("jti-1", now.Add(time.Hour))
	h.bindings["rid-1"] = "jti-1"

	// Two successive calls are idempotent: same outcome, same jti.
	for i := 0; i < 2; i++ {
		res := RunRenew(context.Background(), "tok", "rid-1", now, h.deps(PolicyRefreshToken))
		if res.Outcome != RenewSameToken || res.Claims.ID != "jti-1" {
			t.Fatalf("call %d: %+v", i, res)
		}
	}
	if h.minted != 0 {
		t.Fatalf("minted %d tokens for a not-due renewal", h.minted)
	}
}

func TestRunRenewRefreshTokenDue(t *testing.T) {
	now := time.Now()
	h := newRenewHarness("jti-1", now.Add(5*time.Minute))
	h.bindings["rid-1"] = "jti-1"

	res := RunRenew(context.Background(), "tok", "rid-1", now, h.deps(PolicyRefreshToken))
	if res.Outcome != RenewNewToken || res.Token != "encoded-next" {
		t.Fatalf("due renewal: %+v", res)
	}
	if h.bindings["rid-1"] != "jti-next" {
		t.Fatalf("binding not rotated: %v", h.bindings)
	}
	if _, ok := h.revoked["jti-1"]; !ok {
		t.Fatal("predecessor jti not revoked")
	}

	// The stale token now loses against the rotated binding.
	res = RunRenew(context.Background(), "tok", "rid-1", now, h.deps(PolicyRefreshToken))
	if res.Outcome != RenewRejected || res.Reason != ReasonRenewConflict {
		t.Fatalf("stale token must lose the race: %+v", res)
	}
}

func TestRunRenewRefreshTokenAlwaysRefresh(t *testing.T) {
	now := time.Now()
	h := newRenewHarness("jti-1", now.Add(time.Hour))
	h.bindings["rid-1"] = "jti-1"
	deps := h.deps(PolicyRefreshToken)
	deps.AlwaysRefresh = true

	res := RunRenew(context.Background(), "tok", "rid-1", now, deps)
	if res.Outcome != RenewNewToken {
		t.Fatalf("alwaysRefresh must rotate an undue token: %+v", res)
	}
}

func TestRunRenewRefreshTokenInvalidBinding(t *testing.T) {
	now := time.Now()
	h := newRenewHarness("jti-1", now.Add(5*time.Minute))

	res := RunRenew(context.Background(), "tok", "", now, h.deps(PolicyRefreshToken))
	if res.Reason != ReasonRefreshInvalid {
		t.Fatalf("missing refresh id: %+v", res)
	}

	res = RunRenew(context.Background(), "tok", "rid-absent", now, h.deps(PolicyRefreshToken))
	if res.Reason != ReasonRefreshInvalid {
		t.Fatalf("absent binding: %+v", res)
	}
}

func TestRunRenewRefreshTokenSwapConflict(t *testing.T) {
	now := time.Now()
	h := newRenewHarness("jti-1", now.Add(5*time.Minute))
	h.bindings["rid-1"] = "jti-1"
	deps := h.deps(PolicyRefreshToken)
	deps.RefreshSwap = func(context.Context, string, string, string) error {
		return errConflict
	}

	res := RunRenew(context.Background(), "tok", "rid-1", now, deps)
	if res.Outcome != RenewRejected || res.Reason != ReasonRenewConflict {
		t.Fatalf("swap loser must be rejected: %+v", res)
	}
}

func TestRunRenewRevokedTokenCannotRenew(t *testing.T) {
	now := time.Now()
	h := newRenewHarness("jti-1", now.Add(5*time.Minute))
	h.bindings["rid-1"] = "jti-1"
	deps := h.deps(PolicyRefreshToken)
	deps.IsRevoked = func(context.Context, string) (bool, error) { return true, nil }

	res := RunRenew(context.Background(), "tok", "rid-1", now, deps)
	if res.Outcome != RenewRejected || res.Reason != ReasonRevoked {
		t.Fatalf("revoked token must not renew: %+v", res)
	}
}
