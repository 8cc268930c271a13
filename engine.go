package inkwell

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inkwell-blog/inkwell/internal"
	"github.com/inkwell-blog/inkwell/internal/limiters"
	"github.com/inkwell-blog/inkwell/internal/otp"
	"github.com/inkwell-blog/inkwell/jwt"
	"github.com/inkwell-blog/inkwell/password"
)

// Engine orchestrates the authentication core: login policy, OTP step-up,
// token issuance and revocation. Engines are configured through [Builder]
// and immutable afterwards; all methods are safe for concurrent use.
type Engine struct {
	config     Config
	accounts   AccountStore
	settings   SettingsStore
	otpStore   *otp.Store
	otpLimiter *limiters.IssueLimiter
	sender     Sender
	jwtManager *jwt.Manager
	hasher     *password.Hasher
	events     *eventDispatcher
	metrics    *Metrics
	logger     *zap.Logger
}

// Close drains the event dispatcher. Safe to call on a nil Engine.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.events != nil {
		e.events.Close()
	}
}

// EventsDropped reports how many events were discarded because the
// dispatcher buffer was full.
func (e *Engine) EventsDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.events.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() map[MetricID]uint64 {
	if e == nil {
		return map[MetricID]uint64{}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// Authenticate runs one login attempt through the policy engine and returns
// a single discriminated outcome. The ordering is deterministic: the
// lockout check always precedes the OTP requirement, which precedes the
// password comparison. A non-nil error means infrastructure failed or the
// attempt was refused outside the four outcome states (OTP issuance rate
// limit, delivery failure); policy decisions arrive in the outcome.
func (e *Engine) Authenticate(ctx context.Context, req AuthRequest) (*AuthOutcome, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	now := time.Now()
	ip := clientIPFromContext(ctx)

	account, err := e.accounts.GetByHandle(ctx, req.Handle)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Unknown handle and wrong password are indistinguishable.
			e.metricInc(MetricLoginFailure)
			e.emit(ctx, Event{
				Kind:    EventLoginFailure,
				Handle:  req.Handle,
				IP:      ip,
				Error:   ErrInvalidCredentials.Error(),
				Metadata: map[string]string{
					"reason": "account_not_found",
				},
			})
			return &AuthOutcome{Status: StatusInvalidCredentials, Err: ErrInvalidCredentials}, nil
		}
		return nil, err
	}

	// Lockout is checked first and mutates nothing.
	if account.Locked(now) {
		e.metricInc(MetricLoginLocked)
		e.emit(ctx, Event{
			Kind:      EventLoginLocked,
			AccountID: account.ID,
			Handle:    account.Handle,
			IP:        ip,
			Error:     ErrAccountLocked.Error(),
		})
		return &AuthOutcome{
			Status:     StatusLocked,
			RetryAfter: account.LockedUntil.Sub(now),
			Err:        ErrAccountLocked,
		}, nil
	}

	// Unresolved OTP requirement from a prior escalation.
	if tc := account.TempContact; tc != nil && tc.OtpRequired {
		if req.OTP == "" {
			return e.needsOtpOutcome(tc, ErrOtpRequired), nil
		}
		return e.verifyOtpLogin(ctx, account, req.OTP, ip)
	}

	ok, verr := e.hasher.Verify(req.Password, account.PasswordHash)
	if verr == nil && ok {
		return e.finishLogin(ctx, account, ip)
	}

	return e.recordFailure(ctx, account, req, ip)
}

// verifyOtpLogin consumes the active challenge; on success the attempt
// falls through to the login success path.
func (e *Engine) verifyOtpLogin(ctx context.Context, account *Account, code, ip string) (*AuthOutcome, error) {
	if err := e.otpStore.Consume(ctx, account.ID, code); err != nil {
		reason := ErrOtpInvalid
		switch {
		case errors.Is(err, otp.ErrExpired):
			reason = ErrOtpExpired
			e.metricInc(MetricOtpExpired)
		case errors.Is(err, otp.ErrMismatch), errors.Is(err, otp.ErrNotFound):
			e.metricInc(MetricOtpRejected)
		default:
			return nil, fmt.Errorf("%w: %v", ErrOtpUnavailable, err)
		}

		e.emit(ctx, Event{
			Kind:      EventOtpRejected,
			AccountID: account.ID,
			Handle:    account.Handle,
			IP:        ip,
			Error:     reason.Error(),
		})
		// The OTP step reports invalid credentials, keeping the reason in
		// Err for the HTTP layer's taxonomy.
		return &AuthOutcome{Status: StatusInvalidCredentials, Err: reason}, nil
	}

	if err := e.accounts.ClearOTPRequirement(ctx, account.ID); err != nil {
		return nil, err
	}

	e.metricInc(MetricOtpVerified)
	e.emit(ctx, Event{
		Kind:      EventOtpVerified,
		AccountID: account.ID,
		Handle:    account.Handle,
		IP:        ip,
		Success:   true,
	})

	return e.finishLogin(ctx, account, ip)
}

// finishLogin is the single success path: counters reset, pending state
// cleared, token pair minted.
func (e *Engine) finishLogin(ctx context.Context, account *Account, ip string) (*AuthOutcome, error) {
	if err := e.accounts.RecordLoginSuccess(ctx, account.ID); err != nil {
		return nil, err
	}

	access, refresh, err := e.jwtManager.IssuePair(account.ID, account.TokenVersion)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTokenIssued)
	e.metricInc(MetricLoginSuccess)
	e.emit(ctx, Event{
		Kind:      EventLoginSuccess,
		AccountID: account.ID,
		Handle:    account.Handle,
		IP:        ip,
		Success:   true,
	})

	return &AuthOutcome{
		Status:       StatusAuthenticated,
		Account:      account,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

func (e *Engine) recordFailure(ctx context.Context, account *Account, req AuthRequest, ip string) (*AuthOutcome, error) {
	settings := e.securitySettings(ctx)
	policy := FailurePolicy{
		MaxAttempts:   settings.MaxLoginAttempts,
		LockDuration:  e.config.Lockout.Window,
		EscalateAfter: settings.MaxLoginAttempts + e.config.Lockout.EscalateOffset,
	}

	decision, err := e.accounts.RecordLoginFailure(ctx, account.ID, policy)
	if err != nil {
		return nil, err
	}

	if decision.Locked {
		e.metricInc(MetricLoginLocked)
		e.emit(ctx, Event{
			Kind:      EventLoginLocked,
			AccountID: account.ID,
			Handle:    account.Handle,
			IP:        ip,
			Error:     ErrAccountLocked.Error(),
			Metadata: map[string]string{
				"attempts": fmt.Sprintf("%d", decision.Attempts),
			},
		})
		return &AuthOutcome{
			Status:     StatusLocked,
			RetryAfter: time.Until(decision.LockedUntil),
			Err:        ErrAccountLocked,
		}, nil
	}

	if decision.Escalate {
		contact := contactFromRequest(req)
		if contact != nil {
			return e.escalate(ctx, account, *contact, ip)
		}
		// No contact channel supplied; the attempt degrades to a plain
		// failure rather than an unanswerable challenge.
	}

	e.metricInc(MetricLoginFailure)
	e.emit(ctx, Event{
		Kind:      EventLoginFailure,
		AccountID: account.ID,
		Handle:    account.Handle,
		IP:        ip,
		Error:     ErrInvalidCredentials.Error(),
		Metadata: map[string]string{
			"attempts": fmt.Sprintf("%d", decision.Attempts),
		},
	})
	return &AuthOutcome{Status: StatusInvalidCredentials, Err: ErrInvalidCredentials}, nil
}

func (e *Engine) escalate(ctx context.Context, account *Account, contact ContactInfo, ip string) (*AuthOutcome, error) {
	contact.OtpRequired = true
	if err := e.accounts.SetOTPRequirement(ctx, account.ID, contact); err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginEscalated)
	e.emit(ctx, Event{
		Kind:      EventLoginEscalated,
		AccountID: account.ID,
		Handle:    account.Handle,
		IP:        ip,
	})

	if _, err := e.IssueChallenge(ctx, account.ID, contact.Email, contact.Phone); err != nil {
		// Rate limits and delivery failures surface as errors, not
		// outcomes; the challenge (when stored) survives a failed send.
		return nil, err
	}

	return e.needsOtpOutcome(&contact, ErrOtpRequired), nil
}

func (e *Engine) needsOtpOutcome(contact *ContactInfo, reason error) *AuthOutcome {
	out := &AuthOutcome{Status: StatusNeedsOtp, Err: reason}
	if contact.Email != "" {
		out.MaskedEmail = internal.MaskEmail(contact.Email)
	}
	if contact.Phone != "" {
		out.MaskedPhone = internal.MaskPhone(contact.Phone)
	}
	return out
}

// IssueChallenge generates and stores a fresh OTP challenge for the account
// and dispatches it over the preferred channel (email when present,
// otherwise SMS). Storing the new challenge invalidates any prior one.
// Issuance is limited per account handle and per client IP over a rolling
// window; requests beyond the budget return [ErrOtpRateLimited]. A delivery
// failure returns [ErrOtpDeliveryFailed] but leaves the challenge stored.
func (e *Engine) IssueChallenge(ctx context.Context, accountID, email, phone string) (string, error) {
	if e == nil || e.otpStore == nil {
		return "", ErrEngineNotReady
	}
	if email == "" && phone == "" {
		return "", fmt.Errorf("%w: no delivery channel", ErrOtpDeliveryFailed)
	}

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", err
	}

	for _, identity := range issuanceIdentities(account.Handle, clientIPFromContext(ctx)) {
		if err := e.otpLimiter.Record(ctx, identity); err != nil {
			if errors.Is(err, limiters.ErrRateLimited) {
				e.metricInc(MetricOtpRateLimited)
				return "", ErrOtpRateLimited
			}
			return "", fmt.Errorf("%w: %v", ErrOtpUnavailable, err)
		}
	}

	code, err := internal.NewCode(e.config.OTP.Digits)
	if err != nil {
		return "", err
	}

	channel := ChannelEmail
	destination := email
	if destination == "" {
		channel = ChannelSMS
		destination = phone
	}

	challenge := &otp.Challenge{
		ID:          uuid.NewString(),
		AccountID:   account.ID,
		Code:        code,
		Channel:     string(channel),
		Destination: destination,
		ExpiresAt:   time.Now().Add(e.config.OTP.TTL).Unix(),
	}
	if err := e.otpStore.Put(ctx, challenge, e.config.OTP.TTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrOtpUnavailable, err)
	}

	e.metricInc(MetricOtpIssued)
	e.emit(ctx, Event{
		Kind:      EventOtpIssued,
		AccountID: account.ID,
		Handle:    account.Handle,
		Success:   true,
		Metadata: map[string]string{
			"challenge_id": challenge.ID,
			"channel":      string(channel),
		},
	})

	if err := e.sender.Send(ctx, Delivery{
		Channel:     channel,
		Destination: destination,
		Code:        code,
	}); err != nil {
		e.metricInc(MetricOtpDeliveryFailed)
		e.logger.Warn("otp delivery failed",
			zap.String("account_id", account.ID),
			zap.String("channel", string(channel)),
			zap.Error(err),
		)
		return challenge.ID, fmt.Errorf("%w: %v", ErrOtpDeliveryFailed, err)
	}

	return challenge.ID, nil
}

// VerifyChallenge checks code against the account's active challenge,
// consuming it on success. Verification is single-use: a consumed challenge
// fails every subsequent check.
func (e *Engine) VerifyChallenge(ctx context.Context, accountID, code string) error {
	if e == nil || e.otpStore == nil {
		return ErrEngineNotReady
	}

	err := e.otpStore.Consume(ctx, accountID, code)
	switch {
	case err == nil:
		e.metricInc(MetricOtpVerified)
		return nil
	case errors.Is(err, otp.ErrExpired):
		e.metricInc(MetricOtpExpired)
		return ErrOtpExpired
	case errors.Is(err, otp.ErrMismatch), errors.Is(err, otp.ErrNotFound):
		e.metricInc(MetricOtpRejected)
		return ErrOtpInvalid
	default:
		return fmt.Errorf("%w: %v", ErrOtpUnavailable, err)
	}
}

func (e *Engine) securitySettings(ctx context.Context) SecuritySettings {
	fallback := SecuritySettings{
		RegistrationEnabled: true,
		MaxLoginAttempts:    e.config.Lockout.FallbackMaxAttempts,
	}
	if e.settings == nil {
		return fallback
	}

	settings, err := e.settings.Get(ctx)
	if err != nil {
		e.logger.Warn("security settings unavailable, using fallback", zap.Error(err))
		return fallback
	}
	if settings.MaxLoginAttempts <= 0 {
		settings.MaxLoginAttempts = e.config.Lockout.FallbackMaxAttempts
	}
	return settings
}

func (e *Engine) emit(ctx context.Context, event Event) {
	if e == nil || e.events == nil {
		return
	}
	event.Timestamp = time.Now()
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	e.events.Emit(ctx, event)
}

func contactFromRequest(req AuthRequest) *ContactInfo {
	if req.Email == "" && req.Phone == "" {
		return nil
	}
	return &ContactInfo{Email: req.Email, Phone: req.Phone}
}

func issuanceIdentities(handle, ip string) []string {
	ids := []string{"h:" + handle}
	if ip != "" {
		ids = append(ids, "ip:"+ip)
	}
	return ids
}
