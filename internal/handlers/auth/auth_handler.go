// internal/handlers/auth/auth_handler.go
package auth

import (
	"context"
	"net/http"
	"strconv"
	"time"

	authdomain "worksuite-service/internal/domain/auth"
	"worksuite-service/internal/middleware"
	"worksuite-service/internal/pkg/csrf"
	xerrors "worksuite-service/internal/pkg/errors"
	"worksuite-service/internal/pkg/response"
	"worksuite-service/internal/pkg/session"
	authservice "worksuite-service/internal/service/auth"

	"github.com/gin-gonic/gin"
)

// SecurityNotifier records account-security events in the user's
// notification feed.
type SecurityNotifier interface {
	NotifySecurityEvent(ctx context.Context, userID int64, title, message string)
}

type AuthHandler struct {
	authService *authservice.AuthService
	notifier    SecurityNotifier
	secure      bool // Secure flag on cookies, on in production
}

func NewAuthHandler(authService *authservice.AuthService, notifier SecurityNotifier, secure bool) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		notifier:    notifier,
		secure:      secure,
	}
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req authdomain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid registration payload", err)
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err, "registration failed")
		return
	}

	response.Success(c, http.StatusOK, "account created", user)
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req authdomain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid login payload", err)
		return
	}
	req.IPAddress = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	result, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err, "login failed")
		return
	}

	session.SetAuthCookie(c, result.AccessToken, time.Until(result.ExpiresAt), h.secure)
	h.issueCSRFCookie(c)

	response.Success(c, http.StatusOK, "logged in", result)
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	jti := middleware.MustGetJTI(c)

	if err := h.authService.Logout(c.Request.Context(), jti); err != nil {
		h.writeError(c, err, "logout failed")
		return
	}

	session.ClearAuthCookie(c)
	session.ClearCSRFCookie(c)
	response.Success(c, http.StatusOK, "logged out", nil)
}

// LogoutAll handles POST /api/v1/auth/logout-all
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	userID := middleware.MustGetUserID(c)
	jti := middleware.MustGetJTI(c)

	count, err := h.authService.LogoutAll(c.Request.Context(), userID, jti)
	if err != nil {
		h.writeError(c, err, "failed to revoke sessions")
		return
	}

	response.Success(c, http.StatusOK, "other sessions revoked", gin.H{
		"revoked": count,
	})
}

// ChangePassword handles PUT /api/v1/auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req authdomain.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid payload", err)
		return
	}

	userID := middleware.MustGetUserID(c)
	jti := middleware.MustGetJTI(c)

	if err := h.authService.ChangePassword(c.Request.Context(), userID, jti, req); err != nil {
		h.writeError(c, err, "failed to change password")
		return
	}

	h.notifier.NotifySecurityEvent(c.Request.Context(), userID,
		"Password changed",
		"Your password was changed and other sessions were signed out.")

	response.Success(c, http.StatusOK, "password changed", nil)
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	user, err := h.authService.Me(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err, "failed to load profile")
		return
	}

	response.Success(c, http.StatusOK, "profile", user)
}

// Sessions handles GET /api/v1/auth/sessions
func (h *AuthHandler) Sessions(c *gin.Context) {
	userID := middleware.MustGetUserID(c)
	jti := middleware.MustGetJTI(c)

	sessions, err := h.authService.Sessions(c.Request.Context(), userID, jti)
	if err != nil {
		h.writeError(c, err, "failed to list sessions")
		return
	}

	response.Success(c, http.StatusOK, "active sessions", gin.H{
		"sessions": sessions,
	})
}

// RevokeSession handles DELETE /api/v1/auth/sessions/:id
func (h *AuthHandler) RevokeSession(c *gin.Context) {
	sessionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "invalid session id", err)
		return
	}

	userID := middleware.MustGetUserID(c)

	if err := h.authService.RevokeSession(c.Request.Context(), sessionID, userID); err != nil {
		h.writeError(c, err, "failed to revoke session")
		return
	}

	response.Success(c, http.StatusOK, "session revoked", nil)
}

// ForgotPassword handles POST /api/v1/auth/forgot-password. The answer
// is the same whether or not the account exists.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req authdomain.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid payload", err)
		return
	}

	if err := h.authService.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.writeError(c, err, "failed to process request")
		return
	}

	response.Success(c, http.StatusOK, "if the email exists, a reset link has been sent", nil)
}

// ResetPassword handles POST /api/v1/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req authdomain.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid payload", err)
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req); err != nil {
		h.writeError(c, err, "failed to reset password")
		return
	}

	response.Success(c, http.StatusOK, "password reset, please log in", nil)
}

// CSRFToken handles GET /api/v1/auth/csrf: issues the double-submit
// cookie and returns the token for clients that cannot read cookies.
func (h *AuthHandler) CSRFToken(c *gin.Context) {
	token := h.issueCSRFCookie(c)
	if token == "" {
		response.Error(c, http.StatusInternalServerError, "failed to issue csrf token", nil)
		return
	}

	response.Success(c, http.StatusOK, "csrf token issued", gin.H{
		"csrf_token": token,
	})
}

// Providers handles GET /api/v1/auth/providers. External identity
// providers are configured per deployment; none ship enabled.
func (h *AuthHandler) Providers(c *gin.Context) {
	response.Success(c, http.StatusOK, "available login providers", gin.H{
		"providers": []string{},
	})
}

func (h *AuthHandler) issueCSRFCookie(c *gin.Context) string {
	token, err := csrf.GenerateToken()
	if err != nil {
		return ""
	}
	session.SetCSRFCookie(c, token, h.secure)
	return token
}

// writeError maps service errors onto the status taxonomy.
func (h *AuthHandler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case xerrors.Is(err, xerrors.ErrInvalidCredentials):
		response.Error(c, http.StatusUnauthorized, "invalid email or password", nil)
	case xerrors.Is(err, xerrors.ErrTwoFactorRequired):
		response.Error(c, http.StatusUnauthorized, "two-factor code required", nil, gin.H{
			"two_factor_required": true,
		})
	case xerrors.Is(err, xerrors.ErrInvalidCode):
		response.Error(c, http.StatusUnauthorized, "invalid two-factor code", nil)
	case xerrors.Is(err, xerrors.ErrUnauthorized), xerrors.Is(err, xerrors.ErrSessionExpired):
		response.Error(c, http.StatusUnauthorized, "invalid or expired session", nil)
	case xerrors.Is(err, xerrors.ErrForbidden):
		response.Error(c, http.StatusForbidden, xerrors.MessageOrDefault(err, "forbidden"), nil)
	case xerrors.Is(err, xerrors.ErrNotFound):
		response.NotFound(c, "resource not found")
	case xerrors.Is(err, xerrors.ErrDuplicateEntry), xerrors.Is(err, xerrors.ErrConflict):
		response.Error(c, http.StatusConflict, "an account with this email already exists", nil)
	case xerrors.Is(err, xerrors.ErrTokenExpired):
		response.Error(c, http.StatusBadRequest, "reset link has expired, request a new one", nil)
	case xerrors.Is(err, xerrors.ErrTokenUsed):
		response.Error(c, http.StatusBadRequest, "reset link has already been used", nil)
	case xerrors.Is(err, xerrors.ErrTokenInvalid):
		response.Error(c, http.StatusBadRequest, "reset link is invalid", nil)
	default:
		response.Error(c, http.StatusInternalServerError, fallback, nil)
	}
}
