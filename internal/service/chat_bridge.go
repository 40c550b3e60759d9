package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/campus-portal/helpdesk/internal/domain"
	"github.com/campus-portal/helpdesk/internal/events"
	"github.com/campus-portal/helpdesk/internal/repository"
	apperrors "github.com/campus-portal/helpdesk/pkg/util/errorutil"
)

const (
	supportRoomPrefix         = "chat_suporte_"
	supportChatSubject        = "Atendimento via chat"
	supportChatDescription    = "Chamado aberto a partir do chat de suporte."
	supportChatDefaultSector  = domain.SectorIT
	supportChatDefaultUrgency = domain.UrgencyMedium
)

// SupportRoomName derives the chat room of a support ticket from its id.
func SupportRoomName(ticketID int64) string {
	return supportRoomPrefix + strconv.FormatInt(ticketID, 10)
}

// RoomTranscript is what a chat page renders: the recent messages and the
// ticket behind the room, if there is one.
type RoomTranscript struct {
	RoomName string
	Ticket   *domain.Ticket
	Messages []domain.ChatMessage
}

// ChatBridge links support tickets to chat rooms.
type ChatBridge struct {
	tickets      repository.TicketRepository
	messages     repository.ChatMessageRepository
	dispatcher   events.Dispatcher
	logger       *zap.Logger
	historyLimit int
}

// NewChatBridge constructs the bridge.
func NewChatBridge(tickets repository.TicketRepository, messages repository.ChatMessageRepository, dispatcher events.Dispatcher, logger *zap.Logger, historyLimit int) *ChatBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if historyLimit <= 0 {
		historyLimit = defaultTranscriptLen
	}
	return &ChatBridge{
		tickets:      tickets,
		messages:     messages,
		dispatcher:   dispatcher,
		logger:       logger,
		historyLimit: historyLimit,
	}
}

// StartSupportChat returns the room of the caller's active chat ticket,
// creating the ticket and its room when there is none. Concurrent calls by
// the same user converge on one ticket.
func (b *ChatBridge) StartSupportChat(ctx context.Context, user *domain.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", apperrors.NewUnauthorized("authentication required")
	}

	active, err := b.tickets.FindActiveChatTicket(ctx, user.ID)
	if err != nil {
		return "", apperrors.NewBridgeFailure(err)
	}
	if active.HasRoom() {
		return *active.RoomName, nil
	}

	ticket := &domain.Ticket{
		CreatedBy:       user.ID,
		CreatorUsername: user.Username,
		Subject:         supportChatSubject,
		Description:     supportChatDescription,
		Sector:          supportChatDefaultSector,
		Urgency:         supportChatDefaultUrgency,
		Status:          domain.TicketStatusOpen,
	}
	if err := b.tickets.CreateChatTicket(ctx, ticket, SupportRoomName); err != nil {
		if errors.Is(err, repository.ErrActiveChatTicketExists) {
			return b.concurrentWinner(ctx, user.ID, err)
		}
		return "", apperrors.NewBridgeFailure(err)
	}

	b.logger.Info("support chat opened",
		zap.Int64("ticket_id", ticket.ID),
		zap.String("room", *ticket.RoomName),
		zap.String("user_id", user.ID))

	publishEvent(ctx, b.dispatcher, b.logger, events.Event{
		Type:     events.EventChatRoomOpened,
		TicketID: ticket.ID,
		RoomName: *ticket.RoomName,
		Actor:    actorFor(user),
		Payload:  events.ChatRoomOpenedPayload{Subject: ticket.Subject},
	})
	return *ticket.RoomName, nil
}

// concurrentWinner resolves a lost race against another StartSupportChat
// for the same user by returning the ticket that won.
func (b *ChatBridge) concurrentWinner(ctx context.Context, userID string, cause error) (string, error) {
	active, err := b.tickets.FindActiveChatTicket(ctx, userID)
	if err != nil {
		return "", apperrors.NewBridgeFailure(err)
	}
	if !active.HasRoom() {
		return "", apperrors.NewBridgeFailure(cause)
	}
	return *active.RoomName, nil
}

// AuthorizeRoom checks that user may join room. Rooms without a ticket are
// open to any authenticated user, except names under the support prefix,
// which exist only once their ticket does. A ticket's room is limited to
// its creator and staff.
func (b *ChatBridge) AuthorizeRoom(ctx context.Context, user *domain.User, room string) (*domain.Ticket, error) {
	if user == nil || user.ID == "" {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if strings.TrimSpace(room) == "" {
		return nil, apperrors.NewValidationError("room name is required", nil)
	}
	ticket, err := b.tickets.GetByRoomName(ctx, room)
	if err != nil {
		return nil, err
	}
	if ticket == nil && strings.HasPrefix(room, supportRoomPrefix) {
		return nil, apperrors.NewNotFound("support room", map[string]any{"room": room})
	}
	if ticket != nil && !user.IsStaff && ticket.CreatedBy != user.ID {
		return nil, apperrors.NewForbidden("room belongs to another user's ticket")
	}
	return ticket, nil
}

// Transcript returns the recent messages of room with its ticket.
func (b *ChatBridge) Transcript(ctx context.Context, user *domain.User, room string) (*RoomTranscript, error) {
	ticket, err := b.AuthorizeRoom(ctx, user, room)
	if err != nil {
		return nil, err
	}
	messages, err := b.messages.RecentHistory(ctx, room, b.historyLimit)
	if err != nil {
		return nil, err
	}
	return &RoomTranscript{RoomName: room, Ticket: ticket, Messages: messages}, nil
}
