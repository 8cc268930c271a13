package inkwell

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Register creates a new standard-role account, subject to the global
// registration switch. Handles are stored lowercase.
func (e *Engine) Register(ctx context.Context, handle, pass string) (*Account, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	settings := e.securitySettings(ctx)
	if !settings.RegistrationEnabled {
		e.metricInc(MetricRegistrationRejected)
		return nil, ErrRegistrationDisabled
	}

	handle = strings.ToLower(strings.TrimSpace(handle))
	if handle == "" {
		return nil, ErrInvalidCredentials
	}
	if len(pass) < e.config.Password.MinLength {
		return nil, ErrPasswordPolicy
	}

	hash, err := e.hasher.Hash(pass)
	if err != nil {
		return nil, err
	}

	account, err := e.accounts.Create(ctx, CreateAccountInput{
		ID:           uuid.NewString(),
		Handle:       handle,
		PasswordHash: hash,
		Role:         RoleStandard,
	})
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRegistrationSuccess)
	e.emit(ctx, Event{
		Kind:      EventRegistration,
		AccountID: account.ID,
		Handle:    account.Handle,
		Success:   true,
	})

	return account, nil
}

// ChangePassword replaces the account's password hash and revokes every
// outstanding token, forcing all sessions to re-authenticate. The store
// applies both in one operation.
func (e *Engine) ChangePassword(ctx context.Context, accountID, pass string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	if len(pass) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}

	hash, err := e.hasher.Hash(pass)
	if err != nil {
		return err
	}

	if err := e.accounts.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChanged)
	e.emit(ctx, Event{
		Kind:      EventPasswordChanged,
		AccountID: accountID,
		Success:   true,
	})

	return nil
}

// ChangeRole updates the account's role and revokes outstanding tokens so
// the old role cannot be replayed from an unexpired access token.
func (e *Engine) ChangeRole(ctx context.Context, accountID string, role Role) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	if !KnownRole(role) {
		return ErrRoleInvalid
	}

	if err := e.accounts.UpdateRole(ctx, accountID, role); err != nil {
		return err
	}
	if _, err := e.accounts.BumpTokenVersion(ctx, accountID); err != nil {
		return err
	}

	e.emit(ctx, Event{
		Kind:      EventRoleChanged,
		AccountID: accountID,
		Success:   true,
		Metadata: map[string]string{
			"role": string(role),
		},
	})

	return nil
}

// SecuritySettings returns the current platform-wide settings.
func (e *Engine) SecuritySettings(ctx context.Context) (SecuritySettings, error) {
	if e == nil || e.settings == nil {
		return SecuritySettings{}, ErrEngineNotReady
	}
	return e.settings.Get(ctx)
}

// UpdateSecuritySettings persists new platform-wide settings. Role checks
// are the HTTP layer's responsibility; the engine records who asked.
func (e *Engine) UpdateSecuritySettings(ctx context.Context, settings SecuritySettings, actorID string) error {
	if e == nil || e.settings == nil {
		return ErrEngineNotReady
	}
	if settings.MaxLoginAttempts <= 0 {
		return ErrSettingsInvalid
	}

	if err := e.settings.Update(ctx, settings); err != nil {
		return err
	}

	e.emit(ctx, Event{
		Kind:      EventSettingsChanged,
		AccountID: actorID,
		Success:   true,
	})

	return nil
}

// Account returns the account snapshot for id.
func (e *Engine) Account(ctx context.Context, id string) (*Account, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}
	return e.accounts.GetByID(ctx, id)
}
