package client

import (
	"net/http"
)

// Doer is the subset of *http.Client the wrapper needs.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client stamps outgoing requests with the session's access token and
// transparently retries once after a coordinated refresh. A request that
// still fails after its replay is returned as-is; there is never a second
// refresh-and-replay for the same request.
type Client struct {
	base  Doer
	coord *Coordinator
}

// New wraps a Doer. A nil base uses http.DefaultClient.
func New(base Doer, coord *Coordinator) *Client {
	if base == nil {
		base = http.DefaultClient
	}
	return &Client{base: base, coord: coord}
}

// Coordinator exposes the session coordinator, e.g. to install tokens after
// a login.
func (c *Client) Coordinator() *Coordinator {
	return c.coord
}

// Do executes the request with the current access token. On a 401 it parks
// behind the shared refresh, then replays exactly once with the new token.
// Requests with a body must carry GetBody (http.NewRequest sets it for the
// common body types) to be replayable.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.send(req, c.coord.AccessToken())
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// The response body is done for; the replay gets a fresh one.
	resp.Body.Close()

	token, release, err := c.coord.Await(req.Context())
	if err != nil {
		return nil, err
	}
	defer release()

	return c.send(req, token)
}

func (c *Client) send(req *http.Request, token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return c.base.Do(out)
}
