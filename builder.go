package inkwell

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/inkwell-blog/inkwell/internal/limiters"
	"github.com/inkwell-blog/inkwell/internal/otp"
	"github.com/inkwell-blog/inkwell/jwt"
	"github.com/inkwell-blog/inkwell/password"
)

// Builder assembles an [Engine]. Construction is allocation-only until
// Build, which validates the configuration and wires the subsystems.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts AccountStore
	settings SettingsStore
	sender   Sender
	sink     Sink
	logger   *zap.Logger

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration tree.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis supplies the Redis client backing OTP challenges and issuance
// limiting.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountStore supplies the credential store.
func (b *Builder) WithAccountStore(s AccountStore) *Builder {
	b.accounts = s
	return b
}

// WithSettingsStore supplies the security settings store.
func (b *Builder) WithSettingsStore(s SettingsStore) *Builder {
	b.settings = s
	return b
}

// WithSender supplies the OTP delivery channel.
func (b *Builder) WithSender(s Sender) *Builder {
	b.sender = s
	return b
}

// WithEventSink supplies the security event consumer.
func (b *Builder) WithEventSink(s Sink) *Builder {
	b.sink = s
	return b
}

// WithLogger supplies the logger. A nop logger is used when omitted.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// Build validates the configuration and returns a ready Engine. A Builder
// can build at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store is required")
	}
	if b.sender == nil {
		return nil, errors.New("otp sender is required")
	}
	if b.config.Lockout.Window <= 0 {
		return nil, errors.New("lockout window must be positive")
	}
	if b.config.Lockout.EscalateOffset < 1 {
		return nil, errors.New("escalate offset must be >= 1")
	}
	if b.config.Lockout.FallbackMaxAttempts < 1 {
		return nil, errors.New("fallback max attempts must be >= 1")
	}
	if b.config.OTP.TTL <= 0 || b.config.OTP.IssueWindow <= 0 {
		return nil, errors.New("otp TTL and issue window must be positive")
	}
	if b.config.Password.MinLength < 1 {
		return nil, errors.New("password min length must be >= 1")
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessSecret:  b.config.Tokens.AccessSecret,
		RefreshSecret: b.config.Tokens.RefreshSecret,
		AccessTTL:     b.config.Tokens.AccessTTL,
		RefreshTTL:    b.config.Tokens.RefreshTTL,
		Issuer:        b.config.Tokens.Issuer,
		Leeway:        b.config.Tokens.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var metrics *Metrics
	if b.config.Metrics.Enabled {
		metrics = NewMetrics()
	}

	engine := &Engine{
		config:     b.config,
		accounts:   b.accounts,
		settings:   b.settings,
		otpStore:   otp.NewStore(b.redis, b.config.OTP.RedisPrefix),
		otpLimiter: limiters.NewIssueLimiter(b.redis, b.config.OTP.RedisPrefix, limiters.IssueConfig{
			Limit:  b.config.OTP.IssueLimit,
			Window: b.config.OTP.IssueWindow,
		}),
		sender:     b.sender,
		jwtManager: jwtManager,
		hasher:     hasher,
		events:     newEventDispatcher(b.config.Events, b.sink),
		metrics:    metrics,
		logger:     logger,
	}

	b.built = true
	return engine, nil
}
