// internal/handlers/notification/notification_handler.go
package notification

import (
	"net/http"
	"strconv"

	ndomain "worksuite-service/internal/domain/notification"
	"worksuite-service/internal/middleware"
	xerrors "worksuite-service/internal/pkg/errors"
	"worksuite-service/internal/pkg/response"
	nservice "worksuite-service/internal/service/notification"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	service *nservice.NotificationService
}

func NewNotificationHandler(service *nservice.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List handles GET /api/v1/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	var filters ndomain.ListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.ValidationError(c, "invalid filters", err)
		return
	}

	userID := middleware.MustGetUserID(c)

	result, err := h.service.List(c.Request.Context(), userID, filters)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to list notifications", nil)
		return
	}

	response.Success(c, http.StatusOK, "notifications", result)
}

// UnreadCount handles GET /api/v1/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	count, err := h.service.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to count notifications", nil)
		return
	}

	response.Success(c, http.StatusOK, "unread count", gin.H{
		"unread_count": count,
	})
}

// MarkRead handles PUT /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "invalid notification id", err)
		return
	}

	userID := middleware.MustGetUserID(c)

	if err := h.service.MarkRead(c.Request.Context(), id, userID); err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			response.NotFound(c, "notification not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "failed to mark notification read", nil)
		return
	}

	response.Success(c, http.StatusOK, "notification marked read", nil)
}

// MarkAllRead handles PUT /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	n, err := h.service.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "failed to mark notifications read", nil)
		return
	}

	response.Success(c, http.StatusOK, "notifications marked read", gin.H{
		"marked": n,
	})
}
