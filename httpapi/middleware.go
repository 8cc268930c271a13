package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/inkwell-blog/inkwell"
)

const identityKey = "inkwell.identity"

// RequireAuth validates the bearer token and stores the resulting identity
// in the gin context. Every rejection is the same uniform 401.
func (s *Server) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			unauthorized(c)
			return
		}

		ctx := inkwell.WithClientIP(c.Request.Context(), c.ClientIP())
		id, err := s.engine.Validate(ctx, token)
		if err != nil {
			unauthorized(c)
			return
		}

		c.Set(identityKey, id)
		c.Request = c.Request.WithContext(inkwell.WithIdentity(ctx, id))
		c.Next()
	}
}

// RequireAdmin gates a route on an elevated or root role. Must run after
// RequireAuth.
func (s *Server) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := identity(c)
		if id == nil || !id.Role.Admin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func identity(c *gin.Context) *inkwell.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	id, ok := v.(*inkwell.Identity)
	if !ok {
		return nil
	}
	return id
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}
