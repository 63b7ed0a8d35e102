// internal/app/router.go
package app

import (
	authHandler "worksuite-service/internal/handlers/auth"
	notifyHandler "worksuite-service/internal/handlers/notification"
	tfHandler "worksuite-service/internal/handlers/twofactor"
	wsHandler "worksuite-service/internal/handlers/websocket"
	"worksuite-service/internal/middleware"
	"worksuite-service/internal/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	AuthHandler      *authHandler.AuthHandler
	TwoFactorHandler *tfHandler.TwoFactorHandler
	NotifHandler     *notifyHandler.NotificationHandler
	WSHandler        *wsHandler.WebSocketHandler
	AuthMiddleware   *middleware.AuthMiddleware
	LimiterStore     ratelimit.Store
	Logger           *zap.Logger
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	loginLimit := middleware.RateLimitMiddleware(h.LimiterStore, ratelimit.LoginPolicy, "login", h.Logger)
	signupLimit := middleware.RateLimitMiddleware(h.LimiterStore, ratelimit.SignupPolicy, "signup", h.Logger)
	apiLimit := middleware.RateLimitMiddleware(h.LimiterStore, ratelimit.APIPolicy, "api", h.Logger)
	csrfGuard := middleware.CSRFMiddleware(csrfExemptPrefixes)

	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Public Auth Routes ====================
	authPublic := api.Group("/auth")
	{
		authPublic.POST("/register", signupLimit, h.AuthHandler.Register)
		authPublic.POST("/login", loginLimit, h.AuthHandler.Login)
		authPublic.POST("/forgot-password", loginLimit, h.AuthHandler.ForgotPassword)
		authPublic.POST("/reset-password", loginLimit, h.AuthHandler.ResetPassword)
		authPublic.GET("/csrf", h.AuthHandler.CSRFToken)
		authPublic.GET("/providers", h.AuthHandler.Providers)
	}

	// ==================== Authenticated Auth Routes ====================
	// Auth runs before the CSRF check: a request failing both gets 401.
	authProtected := api.Group("/auth")
	authProtected.Use(h.AuthMiddleware.Auth(), csrfGuard, apiLimit)
	{
		authProtected.POST("/logout", h.AuthHandler.Logout)
		authProtected.POST("/logout-all", h.AuthHandler.LogoutAll)
		authProtected.PUT("/change-password", h.AuthHandler.ChangePassword)
		authProtected.GET("/me", h.AuthHandler.Me)
		authProtected.GET("/sessions", h.AuthHandler.Sessions)
		authProtected.DELETE("/sessions/:id", h.AuthHandler.RevokeSession)

		authProtected.POST("/2fa/setup", h.TwoFactorHandler.Setup)
		authProtected.POST("/2fa/verify", h.TwoFactorHandler.VerifySetup)
		authProtected.POST("/2fa/disable", h.TwoFactorHandler.Disable)
		authProtected.POST("/2fa/backup-codes", h.TwoFactorHandler.RegenerateBackupCodes)
	}

	// ==================== Notifications ====================
	notifications := api.Group("/notifications")
	notifications.Use(h.AuthMiddleware.Auth(), csrfGuard, apiLimit)
	{
		notifications.GET("", h.NotifHandler.List)
		notifications.GET("/unread-count", h.NotifHandler.UnreadCount)
		notifications.PUT("/:id/read", h.NotifHandler.MarkRead)
		notifications.PUT("/read-all", h.NotifHandler.MarkAllRead)
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.Auth(), h.AuthMiddleware.RequireAdmin(), csrfGuard, apiLimit)
	{
		admin.GET("/ws-stats", h.WSHandler.GetStats)
	}
}
