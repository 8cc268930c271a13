package inkwell

import (
	"context"
	"time"
)

// Role is the coarse authorization level carried on every account.
type Role string

const (
	// RoleStandard is an ordinary author account.
	RoleStandard Role = "standard"
	// RoleElevated may administer accounts and security settings.
	RoleElevated Role = "elevated"
	// RoleRoot may do everything RoleElevated can, plus manage elevated
	// accounts themselves.
	RoleRoot Role = "root"
)

// KnownRole reports whether r is one of the recognized role names.
func KnownRole(r Role) bool {
	switch r {
	case RoleStandard, RoleElevated, RoleRoot:
		return true
	default:
		return false
	}
}

// Admin reports whether the role may perform administrative operations.
func (r Role) Admin() bool {
	return r == RoleElevated || r == RoleRoot
}

// ContactInfo is the out-of-band channel captured when a login escalates to
// OTP verification. OtpRequired stays set until the code is verified.
type ContactInfo struct {
	Email       string
	Phone       string
	OtpRequired bool
}

// Account is the identity record held by the credential store.
//
// FailedLoginAttempts and LockedUntil are only ever mutated through the
// atomic [AccountStore] operations; the struct itself is a snapshot.
type Account struct {
	ID                  string
	Handle              string
	PasswordHash        string
	Role                Role
	FailedLoginAttempts int
	LockedUntil         *time.Time
	TempContact         *ContactInfo
	TokenVersion        int64
	CreatedAt           time.Time
}

// Locked reports whether the account's lockout window is open at now.
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// SecuritySettings is the single platform-wide security record. It is read
// on every login and mutated only by elevated-role administration.
type SecuritySettings struct {
	RegistrationEnabled bool
	MaxLoginAttempts    int
}

// CreateAccountInput carries the fields needed to persist a new account.
type CreateAccountInput struct {
	ID           string
	Handle       string
	PasswordHash string
	Role         Role
}

// FailurePolicy parameterizes the atomic failure accounting performed by
// [AccountStore.RecordLoginFailure].
type FailurePolicy struct {
	// MaxAttempts is the lock threshold (SecuritySettings.MaxLoginAttempts).
	MaxAttempts int
	// LockDuration is the fixed lockout window set when the threshold is
	// crossed.
	LockDuration time.Duration
	// EscalateAfter is the attempt count at which a post-lockout failure
	// escalates to OTP verification. Always strictly greater than
	// MaxAttempts so an account experiences a lock before an escalation.
	EscalateAfter int
}

// FailureDecision is the outcome of one atomic failure increment.
type FailureDecision struct {
	// Attempts is the counter value after the increment.
	Attempts int
	// Locked is true when this increment crossed the lock threshold.
	Locked bool
	// LockedUntil is the end of the lockout window when Locked is true.
	LockedUntil time.Time
	// Escalate is true when the account is past its lock window and the
	// counter reached the escalation threshold.
	Escalate bool
}

// AccountStore is the credential-store interface the engine is built
// against. Implementations must serialize all counter and lockout mutations
// per account: RecordLoginFailure in particular is a single conditional
// update, never a read-then-write.
type AccountStore interface {
	GetByHandle(ctx context.Context, handle string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, input CreateAccountInput) (*Account, error)

	// RecordLoginSuccess resets FailedLoginAttempts, clears LockedUntil and
	// TempContact in one operation.
	RecordLoginSuccess(ctx context.Context, id string) error
	// RecordLoginFailure atomically increments the failure counter and
	// applies the lock/escalate thresholds from policy.
	RecordLoginFailure(ctx context.Context, id string, policy FailurePolicy) (FailureDecision, error)
	// SetOTPRequirement stores the caller-supplied contact with
	// OtpRequired set.
	SetOTPRequirement(ctx context.Context, id string, contact ContactInfo) error
	// ClearOTPRequirement clears TempContact and resets the failure counter.
	ClearOTPRequirement(ctx context.Context, id string) error

	// UpdatePasswordHash replaces the stored hash and increments
	// tokenVersion in the same operation: a password change invalidates
	// outstanding tokens with no intermediate state on the error path.
	UpdatePasswordHash(ctx context.Context, id string, hash string) error
	// BumpTokenVersion atomically increments the account's tokenVersion and
	// returns the new value. This is the sole revocation mechanism.
	BumpTokenVersion(ctx context.Context, id string) (int64, error)
	UpdateRole(ctx context.Context, id string, role Role) error
}

// SettingsStore reads and writes the platform-wide [SecuritySettings].
type SettingsStore interface {
	Get(ctx context.Context) (SecuritySettings, error)
	Update(ctx context.Context, settings SecuritySettings) error
}

// DeliveryChannel names the out-of-band transport for an OTP code.
type DeliveryChannel string

const (
	// ChannelEmail delivers codes over email.
	ChannelEmail DeliveryChannel = "email"
	// ChannelSMS delivers codes over SMS.
	ChannelSMS DeliveryChannel = "sms"
)

// Delivery is one OTP send request handed to a [Sender].
type Delivery struct {
	Channel     DeliveryChannel
	Destination string
	Code        string
}

// Sender is the opaque delivery service boundary. A send failure is
// reported to the login caller as [ErrOtpDeliveryFailed] and never rolls
// back the stored challenge.
type Sender interface {
	Send(ctx context.Context, d Delivery) error
}

// AuthStatus discriminates the four authentication outcomes.
type AuthStatus uint8

const (
	// StatusAuthenticated means credentials (and OTP, when required)
	// checked out and tokens were minted.
	StatusAuthenticated AuthStatus = iota
	// StatusNeedsOtp means a verification code must accompany the next
	// attempt. The outcome echoes the masked contact channel.
	StatusNeedsOtp
	// StatusLocked means the lockout window is open.
	StatusLocked
	// StatusInvalidCredentials covers unknown handles, wrong passwords and
	// failed OTP checks alike.
	StatusInvalidCredentials
)

// AuthRequest carries one login attempt. OTP, Email and Phone are optional;
// the contact fields are only consulted when a failure escalates to OTP
// verification.
type AuthRequest struct {
	Handle   string
	Password string
	OTP      string
	Email    string
	Phone    string
}

// AuthOutcome is the single discriminated result of [Engine.Authenticate].
// Err carries the outcome's reason (one of the sentinel errors in this
// package) and is advisory; Status is authoritative.
type AuthOutcome struct {
	Status AuthStatus

	// Set when Status == StatusAuthenticated.
	Account      *Account
	AccessToken  string
	RefreshToken string

	// Set when Status == StatusNeedsOtp.
	MaskedEmail string
	MaskedPhone string

	// Set when Status == StatusLocked.
	RetryAfter time.Duration

	Err error
}

// Identity is the result of a successful token validation.
type Identity struct {
	AccountID    string
	Role         Role
	TokenVersion int64
}
