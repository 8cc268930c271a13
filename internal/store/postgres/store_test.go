package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	inkwell "github.com/inkwell-blog/inkwell"
)

// Runs without a database: the duplicate-handle mapping in Create depends on
// the *pgconn.PgError staying reachable through the store wrap.
func TestWrapStorePreservesPgError(t *testing.T) {
	cause := &pgconn.PgError{Code: uniqueViolation}
	wrapped := wrapStore(cause)

	if !errors.Is(wrapped, inkwell.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on the chain, got %v", wrapped)
	}

	var pgErr *pgconn.PgError
	if !errors.As(wrapped, &pgErr) {
		t.Fatalf("unique violation lost through the wrap: %v", wrapped)
	}
	if pgErr.Code != uniqueViolation {
		t.Fatalf("expected code %s, got %s", uniqueViolation, pgErr.Code)
	}
}

// newTestStore connects to the database named by TEST_DATABASE_URL, running
// migrations first. Skipped when the variable is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	if err := Migrate(url); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("pgxpool.New failed: %v", err)
	}
	t.Cleanup(pool.Close)

	return NewStore(pool)
}

func createAccount(t *testing.T, s *Store) *inkwell.Account {
	t.Helper()
	account, err := s.Create(context.Background(), inkwell.CreateAccountInput{
		ID:           uuid.NewString(),
		Handle:       "h-" + uuid.NewString(),
		PasswordHash: "$argon2id$stub",
		Role:         inkwell.RoleStandard,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return account
}

func TestCreateAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	account := createAccount(t, s)

	byHandle, err := s.GetByHandle(ctx, account.Handle)
	if err != nil {
		t.Fatalf("GetByHandle failed: %v", err)
	}
	if byHandle.ID != account.ID {
		t.Fatalf("expected %s, got %s", account.ID, byHandle.ID)
	}

	if _, err := s.GetByHandle(ctx, "missing-"+uuid.NewString()); !errors.Is(err, inkwell.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	// Duplicate handle maps the unique violation.
	_, err = s.Create(ctx, inkwell.CreateAccountInput{
		ID:           uuid.NewString(),
		Handle:       account.Handle,
		PasswordHash: "$argon2id$stub",
		Role:         inkwell.RoleStandard,
	})
	if !errors.Is(err, inkwell.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestFailureAccounting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	account := createAccount(t, s)
	policy := inkwell.FailurePolicy{MaxAttempts: 3, LockDuration: time.Minute, EscalateAfter: 5}

	for i := 1; i <= 2; i++ {
		decision, err := s.RecordLoginFailure(ctx, account.ID, policy)
		if err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if decision.Attempts != i || decision.Locked {
			t.Fatalf("failure %d: unexpected decision %+v", i, decision)
		}
	}

	decision, err := s.RecordLoginFailure(ctx, account.ID, policy)
	if err != nil {
		t.Fatalf("threshold failure: %v", err)
	}
	if !decision.Locked || !decision.LockedUntil.After(time.Now()) {
		t.Fatalf("expected lock at attempt 3, got %+v", decision)
	}

	if err := s.RecordLoginSuccess(ctx, account.ID); err != nil {
		t.Fatalf("RecordLoginSuccess failed: %v", err)
	}
	stored, err := s.GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.FailedLoginAttempts != 0 || stored.LockedUntil != nil {
		t.Fatalf("expected clean state, got %+v", stored)
	}
}

func TestRecordLoginFailureConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	account := createAccount(t, s)
	policy := inkwell.FailurePolicy{MaxAttempts: 5, LockDuration: time.Minute, EscalateAfter: 7}

	const attempts = 12
	decisions := make([]inkwell.FailureDecision, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision, err := s.RecordLoginFailure(ctx, account.ID, policy)
			if err != nil {
				t.Errorf("concurrent failure %d: %v", i, err)
				return
			}
			decisions[i] = decision
		}(i)
	}
	wg.Wait()

	stored, err := s.GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.FailedLoginAttempts != attempts {
		t.Fatalf("expected counter %d, got %d", attempts, stored.FailedLoginAttempts)
	}

	seen := make(map[int]bool, attempts)
	locks := 0
	for _, decision := range decisions {
		if seen[decision.Attempts] {
			t.Fatalf("attempt count %d handed out twice", decision.Attempts)
		}
		seen[decision.Attempts] = true
		if decision.Locked {
			locks++
		}
		if decision.Escalate {
			t.Fatalf("unexpected escalation at attempt %d", decision.Attempts)
		}
	}
	if locks != 1 {
		t.Fatalf("expected exactly one lock decision, got %d", locks)
	}
}

func TestRecordLoginFailureLocksAfterThresholdLowered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	account := createAccount(t, s)

	loose := inkwell.FailurePolicy{MaxAttempts: 6, LockDuration: time.Minute, EscalateAfter: 8}
	for i := 0; i < 4; i++ {
		if _, err := s.RecordLoginFailure(ctx, account.ID, loose); err != nil {
			t.Fatalf("failure %d: %v", i+1, err)
		}
	}

	tight := inkwell.FailurePolicy{MaxAttempts: 3, LockDuration: time.Minute, EscalateAfter: 5}
	decision, err := s.RecordLoginFailure(ctx, account.ID, tight)
	if err != nil {
		t.Fatalf("failure after tightening: %v", err)
	}
	if !decision.Locked || decision.Attempts != 5 {
		t.Fatalf("expected lock at attempt 5 past the lowered threshold, got %+v", decision)
	}
}

func TestUpdatePasswordHashRevokesTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	account := createAccount(t, s)

	if err := s.UpdatePasswordHash(ctx, account.ID, "$argon2id$replaced"); err != nil {
		t.Fatalf("UpdatePasswordHash failed: %v", err)
	}

	stored, err := s.GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.PasswordHash != "$argon2id$replaced" {
		t.Fatalf("expected replaced hash, got %q", stored.PasswordHash)
	}
	if stored.TokenVersion != account.TokenVersion+1 {
		t.Fatalf("expected token version bump with the hash, got %d then %d",
			account.TokenVersion, stored.TokenVersion)
	}
}

func TestOTPRequirementRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	account := createAccount(t, s)

	contact := inkwell.ContactInfo{Email: "frost@example.com", OtpRequired: true}
	if err := s.SetOTPRequirement(ctx, account.ID, contact); err != nil {
		t.Fatalf("SetOTPRequirement failed: %v", err)
	}

	stored, err := s.GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.TempContact == nil || !stored.TempContact.OtpRequired || stored.TempContact.Email != contact.Email {
		t.Fatalf("expected stored contact, got %+v", stored.TempContact)
	}

	if err := s.ClearOTPRequirement(ctx, account.ID); err != nil {
		t.Fatalf("ClearOTPRequirement failed: %v", err)
	}
	stored, err = s.GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.TempContact != nil {
		t.Fatalf("expected contact cleared, got %+v", stored.TempContact)
	}
}

func TestTokenVersionAndRole(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	account := createAccount(t, s)

	v1, err := s.BumpTokenVersion(ctx, account.ID)
	if err != nil {
		t.Fatalf("bump failed: %v", err)
	}
	v2, err := s.BumpTokenVersion(ctx, account.ID)
	if err != nil {
		t.Fatalf("bump failed: %v", err)
	}
	if v2 != v1+1 {
		t.Fatalf("expected monotonic bump, got %d then %d", v1, v2)
	}

	if err := s.UpdateRole(ctx, account.ID, inkwell.RoleElevated); err != nil {
		t.Fatalf("UpdateRole failed: %v", err)
	}
	stored, err := s.GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Role != inkwell.RoleElevated {
		t.Fatalf("expected elevated role, got %v", stored.Role)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	original, err := s.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer func() {
		// Leave the shared row the way it was found.
		_ = s.Update(ctx, original)
	}()

	want := inkwell.SecuritySettings{RegistrationEnabled: false, MaxLoginAttempts: 7}
	if err := s.Update(ctx, want); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, err := s.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}
