package inkwell

import "errors"

var (
	// ErrUnauthorized is the uniform caller-visible rejection for every
	// token failure. Internal reasons stay internal to avoid oracle leaks.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned for unknown handles and wrong
	// passwords alike; it never reveals which field was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while the lockout window is open.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountExists is returned when a registration handle collides.
	ErrAccountExists = errors.New("account already exists")
	// ErrRegistrationDisabled is returned while the global registration
	// switch is off.
	ErrRegistrationDisabled = errors.New("registration disabled")
	// ErrOtpRequired signals that a verification code must accompany the
	// next login attempt.
	ErrOtpRequired = errors.New("otp verification required")
	// ErrOtpInvalid is returned when a submitted code does not match the
	// active challenge.
	ErrOtpInvalid = errors.New("invalid otp code")
	// ErrOtpExpired is returned when the challenge TTL has elapsed,
	// regardless of code correctness.
	ErrOtpExpired = errors.New("otp code expired")
	// ErrOtpRateLimited is returned when challenge issuance exceeds the
	// rolling-window budget.
	ErrOtpRateLimited = errors.New("otp issuance rate limited")
	// ErrOtpDeliveryFailed is returned when the delivery channel fails.
	// The challenge itself is kept, so the caller can offer a retry.
	ErrOtpDeliveryFailed = errors.New("otp delivery failed")
	// ErrOtpUnavailable is returned when the challenge backend is down.
	ErrOtpUnavailable = errors.New("otp backend unavailable")
	// ErrTokenExpired is returned for structurally valid but expired tokens.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned when a token's version claim trails the
	// account's current tokenVersion.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenMalformed is returned for tokens that fail parsing or
	// signature verification.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrAccountNotFound is returned by administrative operations acting on
	// a missing account. Login paths translate it to ErrInvalidCredentials.
	ErrAccountNotFound = errors.New("account not found")
	// ErrPasswordPolicy is returned when a password fails the minimum
	// length requirement.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrRoleInvalid is returned for role names outside the known set.
	ErrRoleInvalid = errors.New("invalid role")
	// ErrPermissionDenied is returned when the caller's role does not allow
	// the requested administrative operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrSettingsInvalid is returned for out-of-range security settings.
	ErrSettingsInvalid = errors.New("invalid security settings")
	// ErrStoreUnavailable is returned when the credential store fails.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrEngineNotReady is returned when a method is invoked before Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)
