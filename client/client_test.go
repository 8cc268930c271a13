package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// tokenServer accepts only the "good" bearer token and rejects everything
// else with 401.
func tokenServer(t *testing.T, good string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.Header.Get("Authorization") != "Bearer "+good {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	}))
}

func TestDoRefreshesAndReplaysOnce(t *testing.T) {
	var refreshes atomic.Int32
	srv := tokenServer(t, "fresh", nil)
	defer srv.Close()

	coord := NewCoordinator(Session{AccessToken: "stale", RefreshToken: "refresh"}, func(context.Context, string) (string, error) {
		refreshes.Add(1)
		return "fresh", nil
	}, nil)
	c := New(srv.Client(), coord)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after replay, got %d", resp.StatusCode)
	}
	if got := refreshes.Load(); got != 1 {
		t.Fatalf("expected one refresh, got %d", got)
	}
}

func TestDoReplaysRequestBody(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	coord := NewCoordinator(Session{AccessToken: "stale", RefreshToken: "refresh"}, func(context.Context, string) (string, error) {
		return "fresh", nil
	}, nil)
	c := New(srv.Client(), coord)

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"title":"draft"}`))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 2 {
		t.Fatalf("expected original plus replay, got %d requests", len(bodies))
	}
	for i, b := range bodies {
		if b != `{"title":"draft"}` {
			t.Fatalf("request %d: body not replayed, got %q", i, b)
		}
	}
}

func TestDoDoesNotRetryTwice(t *testing.T) {
	var hits atomic.Int32
	// The server never accepts any token.
	srv := tokenServer(t, "nothing-matches", &hits)
	defer srv.Close()

	var refreshes atomic.Int32
	coord := NewCoordinator(Session{AccessToken: "stale", RefreshToken: "refresh"}, func(context.Context, string) (string, error) {
		refreshes.Add(1)
		return "still-bad", nil
	}, nil)
	c := New(srv.Client(), coord)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	resp.Body.Close()

	// One original attempt, one refresh, one replay; the second 401 comes
	// back to the caller untouched.
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected the replayed 401 surfaced, got %d", resp.StatusCode)
	}
	if got := hits.Load(); got != 2 {
		t.Fatalf("expected exactly two requests, got %d", got)
	}
	if got := refreshes.Load(); got != 1 {
		t.Fatalf("expected exactly one refresh, got %d", got)
	}
}

func TestDoConcurrentRequestsShareOneRefresh(t *testing.T) {
	var refreshes atomic.Int32
	srv := tokenServer(t, "fresh", nil)
	defer srv.Close()

	gate := make(chan struct{})
	coord := NewCoordinator(Session{AccessToken: "stale", RefreshToken: "refresh"}, func(context.Context, string) (string, error) {
		refreshes.Add(1)
		<-gate
		return "fresh", nil
	}, nil)
	c := New(srv.Client(), coord)

	const n = 5
	statuses := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
			if err != nil {
				t.Errorf("NewRequest failed: %v", err)
				return
			}
			resp, err := c.Do(req)
			if err != nil {
				t.Errorf("Do failed: %v", err)
				return
			}
			statuses[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}

	waitFor(t, func() bool { return coord.queueLen() == n })
	close(gate)
	wg.Wait()

	if got := refreshes.Load(); got != 1 {
		t.Fatalf("expected one shared refresh, got %d", got)
	}
	for i, code := range statuses {
		if code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
}

func TestDoFailedRefreshTearsDown(t *testing.T) {
	srv := tokenServer(t, "nothing-matches", nil)
	defer srv.Close()

	var torn atomic.Int32
	coord := NewCoordinator(Session{AccessToken: "stale", RefreshToken: "refresh"}, func(context.Context, string) (string, error) {
		return "", errors.New("refresh rejected")
	}, func(error) {
		torn.Add(1)
	})
	c := New(srv.Client(), coord)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	if _, err := c.Do(req); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if got := torn.Load(); got != 1 {
		t.Fatalf("expected one teardown, got %d", got)
	}
	if coord.Session().Active() {
		t.Fatal("expected session cleared")
	}
}
