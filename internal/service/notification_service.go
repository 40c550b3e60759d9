package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/campus-portal/helpdesk/internal/chat"
	"github.com/campus-portal/helpdesk/internal/events"
)

// RoomPublisher posts events into chat rooms.
type RoomPublisher interface {
	Publish(ctx context.Context, room string, ev chat.Event) error
}

// NotificationService turns domain events into logs and chat notices.
type NotificationService struct {
	dispatcher events.Dispatcher
	rooms      RoomPublisher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, rooms RoomPublisher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		rooms:      rooms,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventChatRoomOpened, n.handleChatRoomOpened)
}

func (n *NotificationService) handleTicketCreated(_ context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.Int64("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleChatRoomOpened(_ context.Context, event events.Event) error {
	n.logger.Info("ChatRoomOpened", zap.Int64("ticket_id", event.TicketID), zap.String("room", event.RoomName))
	return nil
}

// handleTicketStatusChanged tells everyone in the ticket's room about the
// new status.
func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketStatusChanged", zap.Int64("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	if event.RoomName == "" || n.rooms == nil {
		return nil
	}
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	notice := fmt.Sprintf("Chamado #%d: status alterado de %s para %s", event.TicketID, payload.OldStatus, payload.NewStatus)
	if err := n.rooms.Publish(ctx, event.RoomName, chat.NewSystemNotice(notice)); err != nil {
		return fmt.Errorf("post status notice to %s: %w", event.RoomName, err)
	}
	return nil
}
