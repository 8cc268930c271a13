package inkwell

import "time"

// Config is the engine configuration tree. Instances are set up once before
// [Builder.Build] and treated as immutable afterwards.
type Config struct {
	Tokens   TokenConfig
	Lockout  LockoutConfig
	OTP      OTPConfig
	Password PasswordConfig
	Events   EventsConfig
	Metrics  MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig holds the JWT issuance parameters. AccessSecret and
// RefreshSecret must be distinct values so compromise of one does not
// compromise the other.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig tunes the login policy engine. The lock threshold itself
// lives in [SecuritySettings] and is read on every login; FallbackMaxAttempts
// applies only when the settings store has no record yet.
type LockoutConfig struct {
	// Window is the fixed lockout duration from the moment the threshold
	// is crossed.
	Window time.Duration
	// EscalateOffset is added to the lock threshold to form the OTP
	// escalation threshold. Must be >= 1 so the lock always comes first.
	EscalateOffset int
	// FallbackMaxAttempts is used when SecuritySettings cannot be read.
	FallbackMaxAttempts int
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig tunes challenge generation, storage and issuance limiting.
type OTPConfig struct {
	// Digits is the code length. Codes are drawn uniformly from
	// crypto/rand.
	Digits int
	// TTL is the fixed challenge lifetime from issuance.
	TTL time.Duration
	// IssueLimit and IssueWindow bound issuance per originating identity
	// over a rolling window.
	IssueLimit  int
	IssueWindow time.Duration
	// RedisPrefix namespaces challenge and limiter keys.
	RedisPrefix string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters and the platform password policy.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MinLength is the minimum accepted password length in bytes.
	MinLength int
}

// EventsConfig tunes the asynchronous security event dispatcher.
type EventsConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking; dropped events are counted.
	DropIfFull bool
}

// MetricsConfig enables the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the configuration the platform ships with. Secrets
// are intentionally empty and must be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		Tokens: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "inkwell",
			Leeway:     30 * time.Second,
		},
		Lockout: LockoutConfig{
			Window:              3 * time.Minute,
			EscalateOffset:      2,
			FallbackMaxAttempts: 5,
		},
		OTP: OTPConfig{
			Digits:      6,
			TTL:         5 * time.Minute,
			IssueLimit:  3,
			IssueWindow: 3 * time.Minute,
			RedisPrefix: "ink",
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        2,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   6,
		},
		Events: EventsConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
