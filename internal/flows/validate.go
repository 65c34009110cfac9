package flows

import (
	"context"
	"errors"
	"time"

	"github.com/aegisauth/aegis/token"
)

// RejectReason classifies validation and renewal failures for root-level
// mapping onto public sentinel errors.
type RejectReason int

const (
	ReasonNone RejectReason = iota
	// ReasonMalformed: the token is structurally broken or missing the
	// claims the lifecycle depends on (jti, exp).
	ReasonMalformed
	// ReasonBadSignature: well-formed token, signature does not verify.
	ReasonBadSignature
	// ReasonRevoked: the jti sits in the denylist.
	ReasonRevoked
	// ReasonExpired: past expiry plus the configured clock-skew grace.
	ReasonExpired
	// ReasonRefreshInvalid: the refresh binding is absent or expired.
	ReasonRefreshInvalid
	// ReasonRenewConflict: a concurrent renewal already rotated the
	// refresh binding; this caller lost the race.
	ReasonRenewConflict
	// ReasonUnavailable: a store fault prevented the check. Fail closed.
	ReasonUnavailable
)

// ValidateResult carries either the accepted claims or a classified reason.
type ValidateResult struct {
	Accepted bool
	Reason   RejectReason
	Err      error
	Claims   *token.Claims
}

// ValidateDeps captures validation dependencies.
type ValidateDeps struct {
	Decode    func(string) (*token.Claims, error)
	IsRevoked func(context.Context, string) (bool, error)
	ClockSkew time.Duration
}

// RunValidate executes the validation pipeline: decode, revocation check,
// expiry with clock-skew grace. A token with expiresAt <= now is still
// accepted while now <= expiresAt + ClockSkew, so tokens minted by a
// slightly-ahead issuer remain usable.
func RunValidate(ctx context.Context, tokenStr string, now time.Time, deps ValidateDeps) ValidateResult {
	claims, err := deps.Decode(tokenStr)
	if err != nil {
		return ValidateResult{Reason: classifyDecode(err), Err: err}
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return ValidateResult{Reason: ReasonMalformed, Err: errors.New("missing jti or exp claim")}
	}

	revoked, err := deps.IsRevoked(ctx, claims.ID)
	if err != nil {
		return ValidateResult{Reason: ReasonUnavailable, Err: err}
	}
	if revoked {
		return ValidateResult{Reason: ReasonRevoked}
	}

	effectiveExpiry := claims.ExpiresAt.Time.Add(deps.ClockSkew)
	if now.After(effectiveExpiry) {
		return ValidateResult{Reason: ReasonExpired}
	}

	return ValidateResult{Accepted: true, Claims: claims}
}

func classifyDecode(err error) RejectReason {
	var decodeErr *token.DecodeError
	if errors.As(err, &decodeErr) && decodeErr.Kind == token.DecodeBadSignature {
		return ReasonBadSignature
	}
	return ReasonMalformed
}
