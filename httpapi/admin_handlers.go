package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkwell-blog/inkwell"
)

type roleRequest struct {
	Role string `json:"role" binding:"required"`
}

type settingsRequest struct {
	RegistrationEnabled bool `json:"registrationEnabled"`
	MaxLoginAttempts    int  `json:"maxLoginAttempts" binding:"required"`
}

// Revoke handles POST /users/:id/revoke. Bumping the tokenVersion kills
// every token minted before the bump, access and refresh alike.
func (s *Server) Revoke(c *gin.Context) {
	target := c.Param("id")

	version, err := s.engine.RevokeTokens(c.Request.Context(), target)
	if err != nil {
		if errors.Is(err, inkwell.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		s.logger.Error("revocation failed", zap.String("account_id", target), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "revocation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tokenVersion": version})
}

// ChangeRole handles PUT /users/:id/role.
func (s *Server) ChangeRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	target := c.Param("id")
	if err := s.engine.ChangeRole(c.Request.Context(), target, inkwell.Role(req.Role)); err != nil {
		switch {
		case errors.Is(err, inkwell.ErrRoleInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		case errors.Is(err, inkwell.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		default:
			s.logger.Error("role change failed", zap.String("account_id", target), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "role change failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "role updated"})
}

// GetSettings handles GET /admin/settings.
func (s *Server) GetSettings(c *gin.Context) {
	settings, err := s.engine.SecuritySettings(c.Request.Context())
	if err != nil {
		s.logger.Error("settings read failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settings unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"registrationEnabled": settings.RegistrationEnabled,
		"maxLoginAttempts":    settings.MaxLoginAttempts,
	})
}

// UpdateSettings handles PUT /admin/settings.
func (s *Server) UpdateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	id := identity(c)
	actor := ""
	if id != nil {
		actor = id.AccountID
	}

	err := s.engine.UpdateSecuritySettings(c.Request.Context(), inkwell.SecuritySettings{
		RegistrationEnabled: req.RegistrationEnabled,
		MaxLoginAttempts:    req.MaxLoginAttempts,
	}, actor)
	if err != nil {
		if errors.Is(err, inkwell.ErrSettingsInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "maxLoginAttempts must be positive"})
			return
		}
		s.logger.Error("settings update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settings update failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "settings updated"})
}
