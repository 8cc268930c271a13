package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func testManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func baseConfig() Config {
	return Config{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		Issuer:        "inkwell",
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing access secret", func(c *Config) { c.AccessSecret = nil }},
		{"missing refresh secret", func(c *Config) { c.RefreshSecret = nil }},
		{"identical secrets", func(c *Config) { c.RefreshSecret = c.AccessSecret }},
		{"zero access TTL", func(c *Config) { c.AccessTTL = 0 }},
		{"refresh not longer than access", func(c *Config) { c.RefreshTTL = c.AccessTTL }},
		{"excessive leeway", func(c *Config) { c.Leeway = 3 * time.Minute }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig()
			tc.mutate(&cfg)
			if _, err := NewManager(cfg); err == nil {
				t.Fatal("expected construction to fail")
			}
		})
	}
}

func TestIssueParseRoundTrip(t *testing.T) {
	m := testManager(t, baseConfig())

	token, err := m.Issue(KindAccess, "acct-1", 7)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := m.Parse(token, KindAccess)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.AccountID != "acct-1" {
		t.Fatalf("expected account acct-1, got %s", claims.AccountID)
	}
	if claims.TokenVersion != 7 {
		t.Fatalf("expected tokenVersion 7, got %d", claims.TokenVersion)
	}
	if claims.TokenKind != "access" {
		t.Fatalf("expected access kind, got %s", claims.TokenKind)
	}
}

func TestParseRejectsCrossKind(t *testing.T) {
	m := testManager(t, baseConfig())

	access, refresh, err := m.IssuePair("acct-1", 1)
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	if _, err := m.Parse(refresh, KindAccess); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected refresh-as-access to fail, got %v", err)
	}
	if _, err := m.Parse(access, KindRefresh); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected access-as-refresh to fail, got %v", err)
	}
}

func TestParseExpired(t *testing.T) {
	cfg := baseConfig()
	cfg.AccessTTL = time.Millisecond
	cfg.RefreshTTL = 2 * time.Millisecond
	m := testManager(t, cfg)

	token, err := m.Issue(KindAccess, "acct-1", 1)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	time.Sleep(1100 * time.Millisecond)

	if _, err := m.Parse(token, KindAccess); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestParseRejectsTampering(t *testing.T) {
	m := testManager(t, baseConfig())

	token, err := m.Issue(KindAccess, "acct-1", 1)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape %q", token)
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	if _, err := m.Parse(tampered, KindAccess); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	other := baseConfig()
	other.Issuer = "someone-else"
	m1 := testManager(t, other)
	m2 := testManager(t, baseConfig())

	token, err := m1.Issue(KindAccess, "acct-1", 1)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := m2.Parse(token, KindAccess); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected issuer mismatch to fail, got %v", err)
	}
}
