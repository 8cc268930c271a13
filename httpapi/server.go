// Package httpapi exposes the authentication engine over HTTP.
//
// All token rejections produce the same 401 body regardless of cause so the
// response shape leaks nothing about why a token was refused.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkwell-blog/inkwell"
)

const refreshCookieName = "inkwell_refresh"

// Options tunes the handler surface.
type Options struct {
	// SecureCookies marks the refresh cookie Secure. Disable only for
	// local development over plain HTTP.
	SecureCookies bool
	// RefreshTTL bounds the refresh cookie lifetime. Zero falls back to
	// seven days.
	RefreshTTL time.Duration
}

// Server holds the handler dependencies. Construct with NewServer and mount
// with Router.
type Server struct {
	engine *inkwell.Engine
	logger *zap.Logger
	opts   Options
}

// NewServer wires a Server around an engine. A nil logger is replaced with a
// no-op one.
func NewServer(engine *inkwell.Engine, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Server{engine: engine, logger: logger.Named("httpapi"), opts: opts}
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	users := r.Group("/users")
	{
		users.POST("/register", s.Register)
		users.POST("/login", s.Login)
		users.POST("/refresh-token", s.Refresh)

		authed := users.Group("")
		authed.Use(s.RequireAuth())
		{
			authed.POST("/logout", s.Logout)
			authed.GET("/me", s.Me)
			authed.PUT("/:id/password", s.ChangePassword)
			authed.POST("/:id/revoke", s.RequireAdmin(), s.Revoke)
			authed.PUT("/:id/role", s.RequireAdmin(), s.ChangeRole)
		}
	}

	admin := r.Group("/admin", s.RequireAuth(), s.RequireAdmin())
	{
		admin.GET("/settings", s.GetSettings)
		admin.PUT("/settings", s.UpdateSettings)
	}

	return r
}

func (s *Server) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, token, int(s.opts.RefreshTTL.Seconds()), "/users", "", s.opts.SecureCookies, true)
}

func (s *Server) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, "", -1, "/users", "", s.opts.SecureCookies, true)
}

// refreshToken extracts the refresh token, preferring the cookie over the
// X-Refresh-Token header when both are present.
func refreshToken(c *gin.Context) string {
	if v, err := c.Cookie(refreshCookieName); err == nil && v != "" {
		return v
	}
	return c.GetHeader("X-Refresh-Token")
}
