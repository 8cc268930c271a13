package inkwell

import (
	"context"
	"errors"

	"github.com/inkwell-blog/inkwell/jwt"
)

// Validate checks an access token and returns the caller's identity. The
// account's current tokenVersion is re-read on every call; a stale version
// claim is reported as [ErrTokenRevoked] even when the token is unexpired.
// HTTP callers must collapse every rejection to a uniform unauthorized
// response — the distinct reasons exist for metrics and logging only.
func (e *Engine) Validate(ctx context.Context, tokenStr string) (*Identity, error) {
	return e.validate(ctx, tokenStr, jwt.KindAccess)
}

// RefreshAccess validates a refresh token and mints a fresh access token.
// The refresh token itself stays valid until expiry or revocation.
func (e *Engine) RefreshAccess(ctx context.Context, refreshToken string) (string, error) {
	identity, err := e.validate(ctx, refreshToken, jwt.KindRefresh)
	if err != nil {
		return "", err
	}

	access, err := e.jwtManager.Issue(jwt.KindAccess, identity.AccountID, identity.TokenVersion)
	if err != nil {
		return "", err
	}

	e.metricInc(MetricTokenRefreshed)
	return access, nil
}

func (e *Engine) validate(ctx context.Context, tokenStr string, kind jwt.Kind) (*Identity, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.Parse(tokenStr, kind)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			e.metricInc(MetricTokenExpiredReject)
			return nil, ErrTokenExpired
		}
		e.metricInc(MetricTokenMalformedReject)
		return nil, ErrTokenMalformed
	}

	account, err := e.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// A deleted account invalidates its tokens the same way a
			// version bump does.
			e.metricInc(MetricTokenRevokedReject)
			return nil, ErrTokenRevoked
		}
		return nil, err
	}

	if account.TokenVersion != claims.TokenVersion {
		e.metricInc(MetricTokenRevokedReject)
		return nil, ErrTokenRevoked
	}

	return &Identity{
		AccountID:    account.ID,
		Role:         account.Role,
		TokenVersion: account.TokenVersion,
	}, nil
}

// RevokeTokens bumps the account's tokenVersion, invalidating every token
// minted before the call. Returns the new version.
func (e *Engine) RevokeTokens(ctx context.Context, accountID string) (int64, error) {
	if e == nil || e.accounts == nil {
		return 0, ErrEngineNotReady
	}

	version, err := e.accounts.BumpTokenVersion(ctx, accountID)
	if err != nil {
		return 0, err
	}

	e.metricInc(MetricRevocation)
	e.emit(ctx, Event{
		Kind:      EventTokensRevoked,
		AccountID: accountID,
		Success:   true,
	})

	return version, nil
}

// Logout revokes every outstanding token for the account. With no
// server-side session object, logout and full revocation are the same
// operation.
func (e *Engine) Logout(ctx context.Context, accountID string) error {
	_, err := e.RevokeTokens(ctx, accountID)
	return err
}
