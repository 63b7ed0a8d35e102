// internal/handlers/twofactor/twofactor_handler.go
package twofactor

import (
	"context"
	"net/http"

	tfdomain "worksuite-service/internal/domain/twofactor"
	"worksuite-service/internal/middleware"
	xerrors "worksuite-service/internal/pkg/errors"
	"worksuite-service/internal/pkg/response"
	tfservice "worksuite-service/internal/service/twofactor"

	"github.com/gin-gonic/gin"
)

// SecurityNotifier records account-security events in the user's
// notification feed.
type SecurityNotifier interface {
	NotifySecurityEvent(ctx context.Context, userID int64, title, message string)
}

type TwoFactorHandler struct {
	service  *tfservice.Service
	notifier SecurityNotifier
}

func NewTwoFactorHandler(service *tfservice.Service, notifier SecurityNotifier) *TwoFactorHandler {
	return &TwoFactorHandler{service: service, notifier: notifier}
}

// Setup handles POST /api/v1/auth/2fa/setup
func (h *TwoFactorHandler) Setup(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	result, err := h.service.Setup(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "failed to start 2fa setup")
		return
	}

	response.Success(c, http.StatusOK, "scan the code with your authenticator app", result)
}

// VerifySetup handles POST /api/v1/auth/2fa/verify
func (h *TwoFactorHandler) VerifySetup(c *gin.Context) {
	var req tfdomain.VerifySetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "a 6-digit code is required", err)
		return
	}

	userID := middleware.MustGetUserID(c)

	result, err := h.service.VerifySetup(c.Request.Context(), userID, req.Code)
	if err != nil {
		writeError(c, err, "failed to verify code")
		return
	}

	h.notifier.NotifySecurityEvent(c.Request.Context(), userID,
		"Two-factor authentication enabled",
		"Two-factor authentication was turned on for your account.")

	response.Success(c, http.StatusOK, "two-factor authentication enabled, store these backup codes", result)
}

// Disable handles POST /api/v1/auth/2fa/disable
func (h *TwoFactorHandler) Disable(c *gin.Context) {
	var req tfdomain.DisableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "password is required", err)
		return
	}

	userID := middleware.MustGetUserID(c)

	if err := h.service.Disable(c.Request.Context(), userID, req.Password); err != nil {
		writeError(c, err, "failed to disable 2fa")
		return
	}

	h.notifier.NotifySecurityEvent(c.Request.Context(), userID,
		"Two-factor authentication disabled",
		"Two-factor authentication was turned off for your account. If this was not you, change your password immediately.")

	response.Success(c, http.StatusOK, "two-factor authentication disabled", nil)
}

// RegenerateBackupCodes handles POST /api/v1/auth/2fa/backup-codes
func (h *TwoFactorHandler) RegenerateBackupCodes(c *gin.Context) {
	var req tfdomain.RegenerateBackupCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "password is required", err)
		return
	}

	userID := middleware.MustGetUserID(c)

	codes, err := h.service.RegenerateBackupCodes(c.Request.Context(), userID, req.Password)
	if err != nil {
		writeError(c, err, "failed to regenerate backup codes")
		return
	}

	h.notifier.NotifySecurityEvent(c.Request.Context(), userID,
		"Backup codes regenerated",
		"A new set of two-factor backup codes was issued. The old codes no longer work.")

	response.Success(c, http.StatusOK, "new backup codes issued, the old ones no longer work", gin.H{
		"backup_codes": codes,
	})
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case xerrors.Is(err, xerrors.ErrInvalidCredentials):
		response.Error(c, http.StatusUnauthorized, "incorrect password", nil)
	case xerrors.Is(err, xerrors.ErrInvalidCode):
		response.Error(c, http.StatusBadRequest, "invalid verification code", nil)
	case xerrors.Is(err, xerrors.ErrTwoFactorNotSetup):
		response.Error(c, http.StatusBadRequest, "two-factor setup has not been started", nil)
	case xerrors.Is(err, xerrors.ErrTwoFactorNotActive):
		response.Error(c, http.StatusBadRequest, "two-factor authentication is not active", nil)
	case xerrors.Is(err, xerrors.ErrConflict):
		response.Error(c, http.StatusConflict, "two-factor authentication is already enabled", nil)
	case xerrors.Is(err, xerrors.ErrNotFound):
		response.NotFound(c, "resource not found")
	default:
		response.Error(c, http.StatusInternalServerError, fallback, nil)
	}
}
