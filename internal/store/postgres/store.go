// Package postgres is the production credential store. Failure counters,
// lockout timestamps and token versions are mutated with single conditional
// UPDATE ... RETURNING statements so concurrent login attempts on the same
// account can never double-count or race a read-then-write.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	inkwell "github.com/inkwell-blog/inkwell"
)

const uniqueViolation = "23505"

// Store implements [inkwell.AccountStore] and [inkwell.SettingsStore] on a
// pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a store backed by pool. The caller owns the pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const accountColumns = `id, handle, password_hash, role, failed_login_attempts,
	locked_until, temp_email, temp_phone, otp_required, token_version, created_at`

func (s *Store) GetByHandle(ctx context.Context, handle string) (*inkwell.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE handle = $1`, handle)
	return scanAccount(row)
}

func (s *Store) GetByID(ctx context.Context, id string) (*inkwell.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (s *Store) Create(ctx context.Context, input inkwell.CreateAccountInput) (*inkwell.Account, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, handle, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING `+accountColumns,
		input.ID, input.Handle, input.PasswordHash, string(input.Role))

	account, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, inkwell.ErrAccountExists
		}
		return nil, err
	}
	return account, nil
}

func (s *Store) RecordLoginSuccess(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET failed_login_attempts = 0,
		    locked_until = NULL,
		    temp_email = NULL,
		    temp_phone = NULL,
		    otp_required = FALSE
		WHERE id = $1`, id)
	if err != nil {
		return wrapStore(err)
	}
	if tag.RowsAffected() == 0 {
		return inkwell.ErrAccountNotFound
	}
	return nil
}

// RecordLoginFailure increments the counter and sets locked_until when the
// incremented counter reaches or passes the threshold and the streak has
// never locked, all in one statement. The threshold check is >= rather than
// =, so lowering max_login_attempts under an account's live counter still
// locks it on the next failure. The prior locked_until rides along through
// the CTE: the decision reports Locked exactly when this attempt created
// the lock, never for one already on the row.
func (s *Store) RecordLoginFailure(ctx context.Context, id string, policy inkwell.FailurePolicy) (inkwell.FailureDecision, error) {
	row := s.pool.QueryRow(ctx, `
		WITH prior AS (
			SELECT locked_until AS prev FROM accounts WHERE id = $1 FOR UPDATE
		)
		UPDATE accounts
		SET failed_login_attempts = accounts.failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN accounts.failed_login_attempts + 1 >= $2
		             AND accounts.locked_until IS NULL
		        THEN now() + make_interval(secs => $3)
		        ELSE accounts.locked_until
		    END
		FROM prior
		WHERE accounts.id = $1
		RETURNING accounts.failed_login_attempts, accounts.locked_until, prior.prev`,
		id, policy.MaxAttempts, policy.LockDuration.Seconds())

	var (
		attempts    int
		lockedUntil *time.Time
		prevLock    *time.Time
	)
	if err := row.Scan(&attempts, &lockedUntil, &prevLock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inkwell.FailureDecision{}, inkwell.ErrAccountNotFound
		}
		return inkwell.FailureDecision{}, wrapStore(err)
	}

	decision := inkwell.FailureDecision{Attempts: attempts}
	if prevLock == nil && lockedUntil != nil {
		decision.Locked = true
		decision.LockedUntil = *lockedUntil
		return decision, nil
	}

	pastLock := lockedUntil == nil || !lockedUntil.After(time.Now())
	if attempts >= policy.EscalateAfter && pastLock {
		decision.Escalate = true
	}
	return decision, nil
}

func (s *Store) SetOTPRequirement(ctx context.Context, id string, contact inkwell.ContactInfo) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET temp_email = NULLIF($2, ''),
		    temp_phone = NULLIF($3, ''),
		    otp_required = TRUE
		WHERE id = $1`, id, contact.Email, contact.Phone)
	if err != nil {
		return wrapStore(err)
	}
	if tag.RowsAffected() == 0 {
		return inkwell.ErrAccountNotFound
	}
	return nil
}

func (s *Store) ClearOTPRequirement(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET temp_email = NULL,
		    temp_phone = NULL,
		    otp_required = FALSE,
		    failed_login_attempts = 0
		WHERE id = $1`, id)
	if err != nil {
		return wrapStore(err)
	}
	if tag.RowsAffected() == 0 {
		return inkwell.ErrAccountNotFound
	}
	return nil
}

// UpdatePasswordHash replaces the hash and bumps token_version together, so
// an error can never leave a new password with old tokens still valid.
func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET password_hash = $2,
		    token_version = token_version + 1
		WHERE id = $1`, id, hash)
	if err != nil {
		return wrapStore(err)
	}
	if tag.RowsAffected() == 0 {
		return inkwell.ErrAccountNotFound
	}
	return nil
}

func (s *Store) BumpTokenVersion(ctx context.Context, id string) (int64, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE accounts
		SET token_version = token_version + 1
		WHERE id = $1
		RETURNING token_version`, id)

	var version int64
	if err := row.Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, inkwell.ErrAccountNotFound
		}
		return 0, wrapStore(err)
	}
	return version, nil
}

func (s *Store) UpdateRole(ctx context.Context, id string, role inkwell.Role) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET role = $2 WHERE id = $1`, id, string(role))
	if err != nil {
		return wrapStore(err)
	}
	if tag.RowsAffected() == 0 {
		return inkwell.ErrAccountNotFound
	}
	return nil
}

// Get implements [inkwell.SettingsStore]. The settings table holds a single
// row seeded by the migrations.
func (s *Store) Get(ctx context.Context) (inkwell.SecuritySettings, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT registration_enabled, max_login_attempts FROM security_settings WHERE id = 1`)

	var settings inkwell.SecuritySettings
	if err := row.Scan(&settings.RegistrationEnabled, &settings.MaxLoginAttempts); err != nil {
		return inkwell.SecuritySettings{}, wrapStore(err)
	}
	return settings, nil
}

// Update implements [inkwell.SettingsStore].
func (s *Store) Update(ctx context.Context, settings inkwell.SecuritySettings) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE security_settings
		SET registration_enabled = $1, max_login_attempts = $2
		WHERE id = 1`,
		settings.RegistrationEnabled, settings.MaxLoginAttempts)
	if err != nil {
		return wrapStore(err)
	}
	return nil
}

func scanAccount(row pgx.Row) (*inkwell.Account, error) {
	var (
		account     inkwell.Account
		role        string
		lockedUntil *time.Time
		tempEmail   *string
		tempPhone   *string
		otpRequired bool
	)
	err := row.Scan(
		&account.ID,
		&account.Handle,
		&account.PasswordHash,
		&role,
		&account.FailedLoginAttempts,
		&lockedUntil,
		&tempEmail,
		&tempPhone,
		&otpRequired,
		&account.TokenVersion,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inkwell.ErrAccountNotFound
		}
		return nil, wrapStore(err)
	}

	account.Role = inkwell.Role(role)
	account.LockedUntil = lockedUntil
	if tempEmail != nil || tempPhone != nil || otpRequired {
		contact := &inkwell.ContactInfo{OtpRequired: otpRequired}
		if tempEmail != nil {
			contact.Email = *tempEmail
		}
		if tempPhone != nil {
			contact.Phone = *tempPhone
		}
		account.TempContact = contact
	}

	return &account, nil
}

// wrapStore keeps the cause on the chain: Create needs to reach the
// *pgconn.PgError through the wrap to map unique violations.
func wrapStore(err error) error {
	return fmt.Errorf("%w: %w", inkwell.ErrStoreUnavailable, err)
}
