package aegis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aegisauth/aegis/internal"
	"github.com/aegisauth/aegis/internal/events"
	"github.com/aegisauth/aegis/internal/flows"
	"github.com/aegisauth/aegis/internal/metrics"
	"github.com/aegisauth/aegis/internal/stores"
	"github.com/aegisauth/aegis/token"
)

// Issue mints a token for an authenticated principal. Under the
// refresh_token policy it also creates the refresh binding and returns its
// id alongside the token.
func (e *Engine) Issue(
	ctx context.Context,
	principal string,
	authorities []string,
	custom map[string]any,
) (*IssuedToken, error) {
	now := time.Now()

	claims := token.NewClaims(
		principal, authorities, custom,
		now, now.Add(e.config.Token.Timeout),
		internal.NewJTI(),
	)
	encoded, err := e.codec.Encode(claims)
	if err != nil {
		return nil, err
	}

	issued := &IssuedToken{
		Token:  encoded,
		Claims: claims,
	}

	if e.config.Token.RefreshPolicy == RefreshPolicyRefreshToken {
		refreshID := internal.NewRefreshID()
		rec := &stores.RefreshRecord{
			BoundJti:  claims.ID,
			ExpiresAt: now.Add(e.config.Token.RefreshTokenTTL).Unix(),
		}
		if err := e.refresh.Put(ctx, refreshID, rec, e.config.Token.RefreshTokenTTL); err != nil {
			return nil, e.mapStoreErr(err)
		}
		issued.RefreshID = refreshID
	}

	e.metrics.Inc(metrics.MetricTokenIssued)

	return issued, nil
}

// Validate runs the acceptance pipeline: decode, revocation check, expiry
// with clock-skew grace. A store fault fails closed with
// [ErrStoreUnavailable] rather than accepting an uncheckable token.
func (e *Engine) Validate(ctx context.Context, tokenStr string) (*Claims, error) {
	res := flows.RunValidate(ctx, tokenStr, time.Now(), flows.ValidateDeps{
		Decode:    e.codec.Decode,
		IsRevoked: e.revocation.IsRevoked,
		ClockSkew: e.config.Token.ClockSkew,
	})

	if !res.Accepted {
		e.metrics.Inc(metrics.MetricTokenRejected)
		// Stale tokens are expected background noise, so debug only.
		e.logger.Debug("token rejected", zap.Int("reason", int(res.Reason)))
		return nil, e.mapReason(res.Reason, res.Err)
	}

	e.metrics.Inc(metrics.MetricTokenAccepted)

	return res.Claims, nil
}

// Renew applies the configured renewal policy to oldToken. refreshID is
// required only under the refresh_token policy. The outcome distinguishes
// [RenewSameToken] from [RenewNewToken] so callers caching tokens know
// whether the jti changed.
func (e *Engine) Renew(ctx context.Context, oldToken, refreshID string) (*RenewResult, error) {
	res := flows.RunRenew(ctx, oldToken, refreshID, time.Now(), flows.RenewDeps{
		Decode:    e.codec.Decode,
		IsRevoked: e.revocation.IsRevoked,
		Mint:      e.mintSuccessor,
		RevokeJti: e.revocation.Revoke,
		RefreshGet: func(ctx context.Context, refreshID string) (string, error) {
			rec, err := e.refresh.Get(ctx, refreshID)
			if err != nil {
				return "", err
			}
			return rec.BoundJti, nil
		},
		RefreshSwap: func(ctx context.Context, refreshID, expectedJti, newJti string) error {
			_, err := e.refresh.CompareAndSwapJti(ctx, refreshID, expectedJti, newJti)
			return err
		},
		Warn: func(msg string, _ ...any) {
			e.logger.Warn(msg)
		},
		RefreshNotFound:          stores.ErrRefreshNotFound,
		RefreshConflict:          stores.ErrJtiMismatch,
		Policy:                   e.config.Token.RefreshPolicy.flowPolicy(),
		ClockSkew:                e.config.Token.ClockSkew,
		RemainingRefreshInterval: e.config.Token.RemainingRefreshInterval,
		AlwaysRefresh:            e.config.Token.AlwaysRefresh,
	})

	switch res.Outcome {
	case flows.RenewNewToken:
		e.metrics.Inc(metrics.MetricTokenRenewed)
		e.emit(ctx, events.Revoked(res.Claims.Subject, res.OldJti))
		return &RenewResult{Outcome: RenewNewToken, Token: res.Token, Claims: res.Claims}, nil
	case flows.RenewSameToken:
		return &RenewResult{Outcome: RenewSameToken, Claims: res.Claims}, nil
	default:
		if res.Reason == flows.ReasonRenewConflict {
			e.metrics.Inc(metrics.MetricRenewConflict)
		}
		return nil, e.mapReason(res.Reason, res.Err)
	}
}

// Revoke denylists a token's jti for its remaining effective lifetime so it
// can never validate again. Revoking an already-expired token is a no-op.
func (e *Engine) Revoke(ctx context.Context, tokenStr string) error {
	claims, err := e.codec.Decode(tokenStr)
	if err != nil {
		return e.mapReason(classifyDecodeErr(err), err)
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return ErrTokenMalformed
	}

	remaining := time.Until(claims.ExpiresAt.Time.Add(e.config.Token.ClockSkew))
	if err := e.revocation.Revoke(ctx, claims.ID, remaining); err != nil {
		return e.mapStoreErr(err)
	}

	e.metrics.Inc(metrics.MetricTokenRevoked)
	e.emit(ctx, events.Revoked(claims.Subject, claims.ID))

	return nil
}

// RevokeJTI denylists a bare jti for ttl, for callers that persisted the
// token id rather than the token itself.
func (e *Engine) RevokeJTI(ctx context.Context, jti string, ttl time.Duration) error {
	if err := e.revocation.Revoke(ctx, jti, ttl); err != nil {
		return e.mapStoreErr(err)
	}
	e.metrics.Inc(metrics.MetricTokenRevoked)
	e.emit(ctx, events.Revoked("", jti))
	return nil
}

// RevokeRefresh destroys a refresh binding, forcing full re-authentication
// once the current token expires. Idempotent.
func (e *Engine) RevokeRefresh(ctx context.Context, refreshID string) error {
	if err := e.refresh.Delete(ctx, refreshID); err != nil {
		return e.mapStoreErr(err)
	}
	return nil
}

// mintSuccessor builds the replacement claim set for a renewal: same
// subject, authorities, and custom claims, fresh jti and timestamps.
func (e *Engine) mintSuccessor(old *token.Claims, now time.Time) (*token.Claims, string, error) {
	next := token.NewClaims(
		old.Subject, old.Authorities, old.Custom,
		now, now.Add(e.config.Token.Timeout),
		internal.NewJTI(),
	)
	encoded, err := e.codec.Encode(next)
	if err != nil {
		return nil, "", err
	}
	return next, encoded, nil
}

func classifyDecodeErr(err error) flows.RejectReason {
	var decodeErr *token.DecodeError
	if errors.As(err, &decodeErr) && decodeErr.Kind == token.DecodeBadSignature {
		return flows.ReasonBadSignature
	}
	return flows.ReasonMalformed
}

func (e *Engine) mapReason(reason flows.RejectReason, cause error) error {
	switch reason {
	case flows.ReasonBadSignature:
		return ErrTokenBadSignature
	case flows.ReasonRevoked:
		return ErrTokenRevoked
	case flows.ReasonExpired:
		return ErrTokenExpired
	case flows.ReasonRefreshInvalid:
		return ErrRefreshInvalid
	case flows.ReasonRenewConflict:
		return ErrRenewConflict
	case flows.ReasonUnavailable:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, cause)
	default:
		return ErrTokenMalformed
	}
}
