package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/campus-portal/helpdesk/internal/api/dto"
	"github.com/campus-portal/helpdesk/internal/chat"
	"github.com/campus-portal/helpdesk/internal/domain"
	"github.com/campus-portal/helpdesk/internal/service"
	apperrors "github.com/campus-portal/helpdesk/pkg/util/errorutil"
)

const (
	roomParam   = "room_name"
	chatUserKey = "chat_user"
)

// ChatHandler exposes the support chat over HTTP and websockets.
type ChatHandler struct {
	bridge         *service.ChatBridge
	sessions       *chat.Handler
	baseCtx        context.Context
	connectTimeout time.Duration
	logger         *zap.Logger
}

// NewChatHandler constructs handler. Sessions outlive the upgrade request,
// so they run under baseCtx, which is cancelled on shutdown.
func NewChatHandler(baseCtx context.Context, bridge *service.ChatBridge, sessions *chat.Handler, connectTimeout time.Duration, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		bridge:         bridge,
		sessions:       sessions,
		baseCtx:        baseCtx,
		connectTimeout: connectTimeout,
		logger:         logger,
	}
}

// StartSupport POST /chat/support.
func (h *ChatHandler) StartSupport(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	room, err := h.bridge.StartSupportChat(c.UserContext(), user)
	if err != nil {
		return err
	}
	return c.JSON(dto.StartSupportChatResponse{RoomName: room})
}

// History GET /chat/:room_name/history.
func (h *ChatHandler) History(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	transcript, err := h.bridge.Transcript(c.UserContext(), user, c.Params(roomParam))
	if err != nil {
		return err
	}

	resp := dto.TranscriptResponse{
		RoomName: transcript.RoomName,
		Messages: chatMessages(transcript.Messages),
	}
	if transcript.Ticket != nil {
		summary := ticketSummary(transcript.Ticket)
		resp.Ticket = &summary
	}
	return c.JSON(resp)
}

// Upgrade runs before the websocket handshake. It rejects plain HTTP
// requests and callers who may not join the room.
func (h *ChatHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	user, err := currentUser(c)
	if err != nil {
		return apperrors.NewConnectionRejected("authentication required", http.StatusUnauthorized)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.connectTimeout)
	defer cancel()
	if _, err := h.bridge.AuthorizeRoom(ctx, user, c.Params(roomParam)); err != nil {
		if ctx.Err() != nil {
			return apperrors.NewConnectionRejected("room authorization timed out", http.StatusServiceUnavailable)
		}
		return err
	}

	c.Locals(chatUserKey, *user)
	return c.Next()
}

// Serve returns the websocket endpoint. The fiber context is gone by the
// time the connection runs, so everything it needs was copied into Locals.
func (h *ChatHandler) Serve() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		room := conn.Params(roomParam)
		user, _ := conn.Locals(chatUserKey).(domain.User)

		if err := h.sessions.Serve(h.baseCtx, conn, room, user); err != nil {
			h.logger.Warn("chat session ended with error",
				zap.String("room", room),
				zap.String("user_id", user.ID),
				zap.Error(err))
		}
	})
}
