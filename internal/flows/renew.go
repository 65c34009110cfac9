package flows

import (
	"context"
	"errors"
	"time"

	"github.com/aegisauth/aegis/token"
)

// RenewPolicy selects what renew does with an eligible token.
type RenewPolicy int

const (
	// PolicyReject: renew never mints; expired tokens stay rejected.
	PolicyReject RenewPolicy = iota
	// PolicyAutoRenew: renew mints a successor in place once the token
	// enters the renewal window, revoking the predecessor.
	PolicyAutoRenew
	// PolicyRefreshToken: renew requires a refresh id whose binding is
	// compare-and-swapped to the successor's jti.
	PolicyRefreshToken
)

// RenewOutcome tells the caller whether the returned token changed.
// Callers caching tokens must diff by jti, not object identity; the
// outcome makes the distinction explicit.
type RenewOutcome int

const (
	RenewRejected RenewOutcome = iota
	RenewSameToken
	RenewNewToken
)

// RenewResult carries the surviving claims plus, for [RenewNewToken], the
// freshly encoded token.
type RenewResult struct {
	Outcome RenewOutcome
	Reason  RejectReason
	Err     error
	Claims  *token.Claims
	Token   string
	OldJti  string
}

// RenewDeps captures renewal dependencies.
type RenewDeps struct {
	Decode    func(string) (*token.Claims, error)
	IsRevoked func(context.Context, string) (bool, error)
	// Mint signs a successor reusing the old claim set with a fresh
	// jti/issuedAt/expiresAt.
	Mint      func(old *token.Claims, now time.Time) (*token.Claims, string, error)
	RevokeJti func(ctx context.Context, jti string, ttl time.Duration) error
	// RefreshGet returns the jti currently bound to refreshID.
	RefreshGet func(ctx context.Context, refreshID string) (string, error)
	// RefreshSwap atomically re-binds refreshID from expectedJti to newJti.
	RefreshSwap func(ctx context.Context, refreshID, expectedJti, newJti string) error
	Warn        func(string, ...any)

	RefreshNotFound error
	RefreshConflict error

	Policy                   RenewPolicy
	ClockSkew                time.Duration
	RemainingRefreshInterval time.Duration
	AlwaysRefresh            bool
}

// RunRenew executes the policy-driven renewal state machine. The renewal
// window opens when the token's remaining effective lifetime (expiry plus
// clock skew) drops below RemainingRefreshInterval.
func RunRenew(ctx context.Context, oldToken, refreshID string, now time.Time, deps RenewDeps) RenewResult {
	claims, err := deps.Decode(oldToken)
	if err != nil {
		return RenewResult{Reason: classifyDecode(err), Err: err}
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return RenewResult{Reason: ReasonMalformed, Err: errors.New("missing jti or exp claim")}
	}

	revoked, err := deps.IsRevoked(ctx, claims.ID)
	if err != nil {
		return RenewResult{Reason: ReasonUnavailable, Err: err, OldJti: claims.ID}
	}
	if revoked {
		return RenewResult{Reason: ReasonRevoked, OldJti: claims.ID}
	}

	remaining := claims.ExpiresAt.Time.Add(deps.ClockSkew).Sub(now)

	switch deps.Policy {
	case PolicyAutoRenew:
		return renewInPlace(ctx, claims, now, remaining, deps)
	case PolicyRefreshToken:
		return renewViaRefresh(ctx, claims, refreshID, now, remaining, deps)
	default:
		if remaining < 0 {
			return RenewResult{Reason: ReasonExpired, OldJti: claims.ID}
		}
		return RenewResult{Outcome: RenewSameToken, Claims: claims, OldJti: claims.ID}
	}
}

func renewInPlace(
	ctx context.Context,
	claims *token.Claims,
	now time.Time,
	remaining time.Duration,
	deps RenewDeps,
) RenewResult {
	// With no refresh binding to anchor it, an expired bearer token must
	// not be resurrectable in place.
	if remaining < 0 {
		return RenewResult{Reason: ReasonExpired, OldJti: claims.ID}
	}
	if remaining >= deps.RemainingRefreshInterval {
		return RenewResult{Outcome: RenewSameToken, Claims: claims, OldJti: claims.ID}
	}

	next, encoded, err := deps.Mint(claims, now)
	if err != nil {
		return RenewResult{Reason: ReasonUnavailable, Err: err, OldJti: claims.ID}
	}
	// Revocation is the only thing invalidating the predecessor here, so a
	// store fault aborts the renewal before the successor is handed out.
	if err := deps.RevokeJti(ctx, claims.ID, remaining); err != nil {
		return RenewResult{Reason: ReasonUnavailable, Err: err, OldJti: claims.ID}
	}

	return RenewResult{Outcome: RenewNewToken, Claims: next, Token: encoded, OldJti: claims.ID}
}

func renewViaRefresh(
	ctx context.Context,
	claims *token.Claims,
	refreshID string,
	now time.Time,
	remaining time.Duration,
	deps RenewDeps,
) RenewResult {
	if refreshID == "" {
		return RenewResult{
			Reason: ReasonRefreshInvalid,
			Err:    errors.New("refresh id required"),
			OldJti: claims.ID,
		}
	}

	boundJti, err := deps.RefreshGet(ctx, refreshID)
	if err != nil {
		if deps.RefreshNotFound != nil && errors.Is(err, deps.RefreshNotFound) {
			return RenewResult{Reason: ReasonRefreshInvalid, Err: err, OldJti: claims.ID}
		}
		return RenewResult{Reason: ReasonUnavailable, Err: err, OldJti: claims.ID}
	}
	// A prior renewal already rotated the binding; the presented token is
	// the loser's stale copy.
	if boundJti != claims.ID {
		return RenewResult{Reason: ReasonRenewConflict, OldJti: claims.ID}
	}

	if !deps.AlwaysRefresh && remaining >= deps.RemainingRefreshInterval {
		return RenewResult{Outcome: RenewSameToken, Claims: claims, OldJti: claims.ID}
	}

	next, encoded, err := deps.Mint(claims, now)
	if err != nil {
		return RenewResult{Reason: ReasonUnavailable, Err: err, OldJti: claims.ID}
	}

	if err := deps.RefreshSwap(ctx, refreshID, claims.ID, next.ID); err != nil {
		switch {
		case deps.RefreshConflict != nil && errors.Is(err, deps.RefreshConflict):
			return RenewResult{Reason: ReasonRenewConflict, Err: err, OldJti: claims.ID}
		case deps.RefreshNotFound != nil && errors.Is(err, deps.RefreshNotFound):
			return RenewResult{Reason: ReasonRefreshInvalid, Err: err, OldJti: claims.ID}
		default:
			return RenewResult{Reason: ReasonUnavailable, Err: err, OldJti: claims.ID}
		}
	}

	// The binding already points at the successor, so the predecessor can
	// never renew again; a failed denylist insert only leaves it usable as
	// a bearer token until its own expiry.
	if err := deps.RevokeJti(ctx, claims.ID, remaining); err != nil && deps.Warn != nil {
		deps.Warn("revocation of superseded jti failed")
	}

	return RenewResult{Outcome: RenewNewToken, Claims: next, Token: encoded, OldJti: claims.ID}
}
