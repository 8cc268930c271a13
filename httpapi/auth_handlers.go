package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkwell-blog/inkwell"
)

type registerRequest struct {
	Handle   string `json:"handle" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Handle   string `json:"handle" binding:"required"`
	Password string `json:"password"`
	OTP      string `json:"otp"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

type passwordRequest struct {
	Password string `json:"password" binding:"required"`
}

// Register handles POST /users/register.
func (s *Server) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	account, err := s.engine.Register(c.Request.Context(), req.Handle, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, inkwell.ErrRegistrationDisabled):
			c.JSON(http.StatusForbidden, gin.H{"error": "registration is disabled"})
		case errors.Is(err, inkwell.ErrAccountExists):
			c.JSON(http.StatusConflict, gin.H{"error": "handle already taken"})
		case errors.Is(err, inkwell.ErrPasswordPolicy):
			c.JSON(http.StatusBadRequest, gin.H{"error": "password does not meet the minimum length"})
		default:
			s.logger.Error("register failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":     account.ID,
		"handle": account.Handle,
	})
}

// Login handles POST /users/login. The response mirrors the engine's
// discriminated outcome: 200 with tokens, 401 with a verification prompt,
// 403 when locked, or a uniform 401 for any credential failure.
func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	ctx := inkwell.WithClientIP(c.Request.Context(), c.ClientIP())
	outcome, err := s.engine.Authenticate(ctx, inkwell.AuthRequest{
		Handle:   req.Handle,
		Password: req.Password,
		OTP:      req.OTP,
		Email:    req.Email,
		Phone:    req.Phone,
	})
	if err != nil {
		switch {
		case errors.Is(err, inkwell.ErrOtpRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many verification codes requested"})
		case errors.Is(err, inkwell.ErrOtpDeliveryFailed):
			c.JSON(http.StatusBadGateway, gin.H{"error": "could not deliver the verification code"})
		default:
			s.logger.Error("login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		}
		return
	}

	switch outcome.Status {
	case inkwell.StatusAuthenticated:
		s.setRefreshCookie(c, outcome.RefreshToken)
		c.JSON(http.StatusOK, gin.H{"token": outcome.AccessToken})

	case inkwell.StatusNeedsOtp:
		c.JSON(http.StatusUnauthorized, gin.H{
			"requireVerification": true,
			"email":               outcome.MaskedEmail,
			"phone":               outcome.MaskedPhone,
		})

	case inkwell.StatusLocked:
		c.JSON(http.StatusForbidden, gin.H{
			"error":      "account temporarily locked",
			"retryAfter": int(outcome.RetryAfter.Seconds()),
		})

	default:
		switch {
		case errors.Is(outcome.Err, inkwell.ErrOtpExpired):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "verification code expired"})
		case errors.Is(outcome.Err, inkwell.ErrOtpInvalid):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid verification code"})
		default:
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		}
	}
}

// Refresh handles POST /users/refresh-token. The refresh token comes from
// the secure cookie or, when absent, the X-Refresh-Token header.
func (s *Server) Refresh(c *gin.Context) {
	token := refreshToken(c)
	if token == "" {
		unauthorized(c)
		return
	}

	access, err := s.engine.RefreshAccess(c.Request.Context(), token)
	if err != nil {
		// Expired, malformed and revoked all collapse into one answer.
		unauthorized(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"accessToken": access})
}

// Logout handles POST /users/logout. Revocation is server-side: the account's
// tokenVersion is bumped so every outstanding token dies at once.
func (s *Server) Logout(c *gin.Context) {
	id := identity(c)
	if id == nil {
		unauthorized(c)
		return
	}

	if err := s.engine.Logout(c.Request.Context(), id.AccountID); err != nil {
		s.logger.Error("logout failed", zap.String("account_id", id.AccountID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}

	s.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me handles GET /users/me.
func (s *Server) Me(c *gin.Context) {
	id := identity(c)
	if id == nil {
		unauthorized(c)
		return
	}

	account, err := s.engine.Account(c.Request.Context(), id.AccountID)
	if err != nil {
		unauthorized(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        account.ID,
		"handle":    account.Handle,
		"role":      account.Role,
		"createdAt": account.CreatedAt,
	})
}

// ChangePassword handles PUT /users/:id/password. Accounts may change their
// own password; admins may change anyone's. A successful change revokes all
// outstanding tokens.
func (s *Server) ChangePassword(c *gin.Context) {
	id := identity(c)
	if id == nil {
		unauthorized(c)
		return
	}

	target := c.Param("id")
	if target != id.AccountID && !id.Role.Admin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	if err := s.engine.ChangePassword(c.Request.Context(), target, req.Password); err != nil {
		switch {
		case errors.Is(err, inkwell.ErrPasswordPolicy):
			c.JSON(http.StatusBadRequest, gin.H{"error": "password does not meet the minimum length"})
		case errors.Is(err, inkwell.ErrAccountNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		default:
			s.logger.Error("password change failed", zap.String("account_id", target), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "password change failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}
