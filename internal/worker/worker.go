// Package worker starts the background parts of the service: the chat bus
// relay and the domain event handlers.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/campus-portal/helpdesk/internal/chat"
	"github.com/campus-portal/helpdesk/internal/service"
)

// StartChatRelay attaches the broadcast group to its cross-process bus. It
// must run before the HTTP server accepts connections so no event
// published by another replica is missed.
func StartChatRelay(ctx context.Context, group *chat.Group, backend string, logger *zap.Logger) error {
	if group == nil {
		return nil
	}
	if err := group.Start(ctx); err != nil {
		return fmt.Errorf("start chat relay (%s): %w", backend, err)
	}
	logger.Info("chat relay started", zap.String("backend", backend))
	return nil
}

// StartNotificationWorker registers the handlers that turn ticket events
// into logs and room notices.
func StartNotificationWorker(notifications *service.NotificationService, logger *zap.Logger) {
	if notifications == nil {
		return
	}
	notifications.RegisterHandlers()
	logger.Info("notification handlers registered")
}
