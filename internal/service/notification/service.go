// internal/service/notification/service.go
package notification

import (
	"context"
	"fmt"

	"worksuite-service/internal/domain/notification"

	"go.uber.org/zap"
)

// Repository is the persistence surface for notifications.
type Repository interface {
	Create(ctx context.Context, n *notification.Notification) error
	List(ctx context.Context, userID int64, filters notification.ListFilters) ([]notification.Notification, int64, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, id, userID int64) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
}

// Pusher delivers notifications to connected websocket clients.
type Pusher interface {
	PushNotification(userID int64, n *notification.Notification)
	PushNotificationCount(userID int64, count int64)
}

// NotificationService handles notification business logic.
type NotificationService struct {
	repo   Repository
	pusher Pusher // nil when the websocket hub is disabled
	logger *zap.Logger
}

func NewNotificationService(repo Repository, pusher Pusher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		repo:   repo,
		pusher: pusher,
		logger: logger,
	}
}

// Notify creates a notification and pushes it to the user's open tabs.
func (s *NotificationService) Notify(ctx context.Context, userID int64, typ notification.NotificationType, title, message string) (*notification.Notification, error) {
	n := &notification.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    typ,
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	if s.pusher != nil {
		s.pusher.PushNotification(userID, n)
		if count, err := s.repo.CountUnread(ctx, userID); err == nil {
			s.pusher.PushNotificationCount(userID, count)
		}
	}

	return n, nil
}

// NotifySecurityEvent records a security notification. Failures are
// logged only; a notification must never fail the triggering action.
func (s *NotificationService) NotifySecurityEvent(ctx context.Context, userID int64, title, message string) {
	if _, err := s.Notify(ctx, userID, notification.TypeSecurity, title, message); err != nil {
		s.logger.Warn("failed to record security notification",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}

// List returns a page of the user's notifications with counts.
func (s *NotificationService) List(ctx context.Context, userID int64, filters notification.ListFilters) (*notification.ListResponse, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	items, total, err := s.repo.List(ctx, userID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread: %w", err)
	}

	return &notification.ListResponse{
		Notifications: items,
		Total:         total,
		Unread:        unread,
		Page:          filters.Page,
		PageSize:      filters.PageSize,
	}, nil
}

// UnreadCount returns the unread badge count.
func (s *NotificationService) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkRead marks one notification read and refreshes the badge.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID int64) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		return err
	}

	if s.pusher != nil {
		if count, err := s.repo.CountUnread(ctx, userID); err == nil {
			s.pusher.PushNotificationCount(userID, count)
		}
	}
	return nil
}

// MarkAllRead marks every notification read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}

	if s.pusher != nil {
		s.pusher.PushNotificationCount(userID, 0)
	}
	return n, nil
}
