// Package client is the calling side of the token protocol: it holds the
// session, stamps requests with the access token, and coordinates refreshes
// so that at most one is ever in flight.
package client

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSessionExpired is returned for every request queued behind a refresh
// that failed. The session is torn down before the error is delivered.
var ErrSessionExpired = errors.New("client: session expired")

// Session is the token pair held in memory. Nothing is persisted.
type Session struct {
	AccessToken  string
	RefreshToken string
}

// Active reports whether the session holds tokens.
func (s Session) Active() bool {
	return s.AccessToken != "" || s.RefreshToken != ""
}

// RefreshFunc exchanges a refresh token for a new access token. It is called
// by the coordinator at most once per refresh cycle.
type RefreshFunc func(ctx context.Context, refreshToken string) (string, error)

// waiter is one request parked behind an in-flight refresh. token is
// buffered so delivery never blocks on an abandoned waiter; done is closed
// when the waiter is finished (replayed or cancelled) so the coordinator
// can release the next one in arrival order.
type waiter struct {
	token chan string
	done  chan struct{}
	once  sync.Once
}

func (w *waiter) finish() {
	w.once.Do(func() { close(w.done) })
}

// Coordinator serializes token refreshes. The first request to observe a
// rejection starts the refresh; every later one parks in a FIFO queue. On
// success the queued requests are released one at a time in arrival order,
// each with the new access token. On failure the session is cleared, every
// waiter gets [ErrSessionExpired], and the expiry callback fires once.
type Coordinator struct {
	refreshFn RefreshFunc
	timeout   time.Duration
	onExpired func(error)

	mu         sync.Mutex
	session    Session
	refreshing bool
	waiters    []*waiter
}

// NewCoordinator builds a coordinator around a refresh call. onExpired may
// be nil; when set, it runs once per failed refresh cycle after the session
// has been cleared (the natural place to redirect to login).
func NewCoordinator(session Session, fn RefreshFunc, onExpired func(error)) *Coordinator {
	return &Coordinator{
		refreshFn: fn,
		timeout:   15 * time.Second,
		onExpired: onExpired,
		session:   session,
	}
}

// SetSession replaces the stored token pair, typically after a login.
func (c *Coordinator) SetSession(s Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// Session returns a copy of the current token pair.
func (c *Coordinator) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// AccessToken returns the current access token.
func (c *Coordinator) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.AccessToken
}

// Await parks the caller until the in-flight refresh resolves, starting one
// if none is running, and returns the fresh access token together with a
// release function. The caller must invoke release exactly once after its
// replay completes; until then every later arrival stays parked, which is
// what keeps replays in arrival order.
func (c *Coordinator) Await(ctx context.Context) (string, func(), error) {
	c.mu.Lock()
	if !c.session.Active() {
		c.mu.Unlock()
		return "", nil, ErrSessionExpired
	}

	w := &waiter{token: make(chan string, 1), done: make(chan struct{})}
	c.waiters = append(c.waiters, w)
	if !c.refreshing {
		c.refreshing = true
		go c.runRefresh()
	}
	c.mu.Unlock()

	select {
	case tok, ok := <-w.token:
		if !ok {
			return "", nil, ErrSessionExpired
		}
		return tok, w.finish, nil
	case <-ctx.Done():
		w.finish()
		return "", nil, ctx.Err()
	}
}

// runRefresh performs the single refresh for the current cycle and resolves
// the queue. It snapshots and clears the queue under the same lock that
// clears the refreshing flag, so a rejection arriving after resolution
// starts a fresh cycle instead of joining a dead one.
func (c *Coordinator) runRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	c.mu.Lock()
	refreshToken := c.session.RefreshToken
	c.mu.Unlock()

	access, err := c.refreshFn(ctx, refreshToken)

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	if err != nil {
		c.session = Session{}
	} else {
		c.session.AccessToken = access
	}
	c.mu.Unlock()

	if err != nil {
		for _, w := range waiters {
			close(w.token)
		}
		if c.onExpired != nil {
			c.onExpired(err)
		}
		return
	}

	for _, w := range waiters {
		w.token <- access
		// The waiter releases after its replay (or cancellation); only
		// then does the next one in line get the token.
		<-w.done
	}
}
