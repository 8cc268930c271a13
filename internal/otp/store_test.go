package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return NewStore(rdb, "ink"), func() {
		rdb.Close()
		mr.Close()
	}
}

func testChallenge(accountID, code string) *Challenge {
	return &Challenge{
		ID:          "ch-1",
		AccountID:   accountID,
		Code:        code,
		Channel:     "email",
		Destination: "frost@example.com",
		ExpiresAt:   time.Now().Add(5 * time.Minute).Unix(),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	store, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	want := testChallenge("acct-1", "123456")
	if err := store.Put(ctx, want, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if *got != *want {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestGetMissing(t *testing.T) {
	store, done := newTestStore(t)
	defer done()

	if _, err := store.Get(context.Background(), "acct-none"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutReplacesPriorChallenge(t *testing.T) {
	store, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	if err := store.Put(ctx, testChallenge("acct-1", "111111"), time.Minute); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}
	if err := store.Put(ctx, testChallenge("acct-1", "222222"), time.Minute); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	if err := store.Consume(ctx, "acct-1", "111111"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected superseded code to mismatch, got %v", err)
	}
	if err := store.Consume(ctx, "acct-1", "222222"); err != nil {
		t.Fatalf("active code failed: %v", err)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	store, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	if err := store.Put(ctx, testChallenge("acct-1", "123456"), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := store.Consume(ctx, "acct-1", "123456"); err != nil {
		t.Fatalf("first Consume failed: %v", err)
	}
	if err := store.Consume(ctx, "acct-1", "123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected replay to report not found, got %v", err)
	}
}

func TestConsumeMismatchKeepsChallenge(t *testing.T) {
	store, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	if err := store.Put(ctx, testChallenge("acct-1", "123456"), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := store.Consume(ctx, "acct-1", "654321"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
	if _, err := store.Get(ctx, "acct-1"); err != nil {
		t.Fatalf("expected challenge to survive a wrong guess, got %v", err)
	}
}

func TestConsumeExpiredDeletes(t *testing.T) {
	store, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	ch := testChallenge("acct-1", "123456")
	ch.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if err := store.Put(ctx, ch, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := store.Consume(ctx, "acct-1", "123456"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	// Expiry removes the record, so the next attempt sees nothing.
	if err := store.Consume(ctx, "acct-1", "123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry cleanup, got %v", err)
	}
}

func TestGetExpiredDeletes(t *testing.T) {
	store, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	ch := testChallenge("acct-1", "123456")
	ch.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if err := store.Put(ctx, ch, time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := store.Get(ctx, "acct-1"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if _, err := store.Get(ctx, "acct-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after cleanup, got %v", err)
	}
}

func TestInvalidate(t *testing.T) {
	store, done := newTestStore(t)
	defer done()
	ctx := context.Background()

	if err := store.Put(ctx, testChallenge("acct-1", "123456"), time.Minute); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Invalidate(ctx, "acct-1"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if err := store.Consume(ctx, "acct-1", "123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	encoded, err := encodeChallenge(testChallenge("acct-1", "123456"))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	encoded[0] = 99
	if _, err := decodeChallenge(encoded); err == nil {
		t.Fatal("expected unknown record version to fail")
	}
}
