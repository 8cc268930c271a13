// Package memory is an in-process credential store used by tests and the
// development server. A single mutex serializes every mutation, which
// satisfies the engine's per-account atomicity contract trivially.
package memory

import (
	"context"
	"sync"
	"time"

	inkwell "github.com/inkwell-blog/inkwell"
)

// Store implements [inkwell.AccountStore] and [inkwell.SettingsStore].
type Store struct {
	mu       sync.Mutex
	byID     map[string]*inkwell.Account
	byHandle map[string]string
	settings inkwell.SecuritySettings
}

// NewStore returns an empty store with registration enabled and the given
// lock threshold.
func NewStore(maxLoginAttempts int) *Store {
	return &Store{
		byID:     make(map[string]*inkwell.Account),
		byHandle: make(map[string]string),
		settings: inkwell.SecuritySettings{
			RegistrationEnabled: true,
			MaxLoginAttempts:    maxLoginAttempts,
		},
	}
}

func (s *Store) GetByHandle(_ context.Context, handle string) (*inkwell.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHandle[handle]
	if !ok {
		return nil, inkwell.ErrAccountNotFound
	}
	return snapshot(s.byID[id]), nil
}

func (s *Store) GetByID(_ context.Context, id string) (*inkwell.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return nil, inkwell.ErrAccountNotFound
	}
	return snapshot(account), nil
}

func (s *Store) Create(_ context.Context, input inkwell.CreateAccountInput) (*inkwell.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byHandle[input.Handle]; exists {
		return nil, inkwell.ErrAccountExists
	}

	account := &inkwell.Account{
		ID:           input.ID,
		Handle:       input.Handle,
		PasswordHash: input.PasswordHash,
		Role:         input.Role,
		CreatedAt:    time.Now(),
	}
	s.byID[account.ID] = account
	s.byHandle[account.Handle] = account.ID

	return snapshot(account), nil
}

func (s *Store) RecordLoginSuccess(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return inkwell.ErrAccountNotFound
	}
	account.FailedLoginAttempts = 0
	account.LockedUntil = nil
	account.TempContact = nil
	return nil
}

func (s *Store) RecordLoginFailure(_ context.Context, id string, policy inkwell.FailurePolicy) (inkwell.FailureDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return inkwell.FailureDecision{}, inkwell.ErrAccountNotFound
	}

	now := time.Now()
	account.FailedLoginAttempts++

	// >= with a nil LockedUntil guard: an account whose counter was already
	// past a freshly lowered threshold still locks on its next failure, and
	// a streak locks at most once.
	decision := inkwell.FailureDecision{Attempts: account.FailedLoginAttempts}
	if account.FailedLoginAttempts >= policy.MaxAttempts && account.LockedUntil == nil {
		until := now.Add(policy.LockDuration)
		account.LockedUntil = &until
		decision.Locked = true
		decision.LockedUntil = until
		return decision, nil
	}

	pastLock := account.LockedUntil == nil || !account.LockedUntil.After(now)
	if account.FailedLoginAttempts >= policy.EscalateAfter && pastLock {
		decision.Escalate = true
	}
	return decision, nil
}

func (s *Store) SetOTPRequirement(_ context.Context, id string, contact inkwell.ContactInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return inkwell.ErrAccountNotFound
	}
	contact.OtpRequired = true
	account.TempContact = &contact
	return nil
}

func (s *Store) ClearOTPRequirement(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return inkwell.ErrAccountNotFound
	}
	account.TempContact = nil
	account.FailedLoginAttempts = 0
	return nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return inkwell.ErrAccountNotFound
	}
	account.PasswordHash = hash
	account.TokenVersion++
	return nil
}

func (s *Store) BumpTokenVersion(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return 0, inkwell.ErrAccountNotFound
	}
	account.TokenVersion++
	return account.TokenVersion, nil
}

func (s *Store) UpdateRole(_ context.Context, id string, role inkwell.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return inkwell.ErrAccountNotFound
	}
	account.Role = role
	return nil
}

// Get implements [inkwell.SettingsStore].
func (s *Store) Get(context.Context) (inkwell.SecuritySettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

// Update implements [inkwell.SettingsStore].
func (s *Store) Update(_ context.Context, settings inkwell.SecuritySettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

// Seed inserts an account directly, bypassing registration. Test helper.
func (s *Store) Seed(account inkwell.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := account
	s.byID[copied.ID] = &copied
	s.byHandle[copied.Handle] = copied.ID
}

func snapshot(a *inkwell.Account) *inkwell.Account {
	copied := *a
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		copied.LockedUntil = &t
	}
	if a.TempContact != nil {
		c := *a.TempContact
		copied.TempContact = &c
	}
	return &copied
}
