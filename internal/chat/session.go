package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/campus-portal/helpdesk/internal/domain"
	"github.com/campus-portal/helpdesk/internal/observability"
	apperrors "github.com/campus-portal/helpdesk/pkg/util/errorutil"
)

// textMessage is the RFC 6455 text frame opcode.
const textMessage = 1

// State is the lifecycle position of a Session.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is the subset of a websocket connection a session needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// MessageStore persists and replays room transcripts.
type MessageStore interface {
	Append(ctx context.Context, room, senderID, body string) (*domain.ChatMessage, error)
	RecentHistory(ctx context.Context, room string, limit int) ([]domain.ChatMessage, error)
}

// Sanitizer cleans inbound message bodies.
type Sanitizer interface {
	Sanitize(s string) string
}

// SessionConfig tunes every session created by a Handler.
type SessionConfig struct {
	HistoryLimit       int
	RateLimitPerMinute int
	Sanitizer          Sanitizer
}

// Handler creates sessions bound to a shared group and store.
type Handler struct {
	group   *Group
	store   MessageStore
	cfg     SessionConfig
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewHandler wires the collaborators shared by all sessions.
func NewHandler(group *Group, store MessageStore, cfg SessionConfig, logger *zap.Logger, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		group:   group,
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Group exposes the broadcast group sessions subscribe to.
func (h *Handler) Group() *Group { return h.group }

// Store exposes the message store sessions append to.
func (h *Handler) Store() MessageStore { return h.store }

// NewSession prepares a session in the connecting state.
func (h *Handler) NewSession(conn Conn, room string, user domain.User) *Session {
	return &Session{
		handler: h,
		conn:    conn,
		room:    room,
		user:    user,
		limiter: newLimiter(h.cfg.RateLimitPerMinute),
		logger: h.logger.With(
			zap.String("room", room),
			zap.String("user_id", user.ID),
		),
	}
}

// Serve runs a new session to completion.
func (h *Handler) Serve(ctx context.Context, conn Conn, room string, user domain.User) error {
	return h.NewSession(conn, room, user).Run(ctx)
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

// Session is one live connection to one room. Only the goroutine running
// Run writes to the connection.
type Session struct {
	handler *Handler
	conn    Conn
	room    string
	user    domain.User
	limiter *rate.Limiter
	logger  *zap.Logger
	state   atomic.Int32
}

// State reports the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
	s.logger.Debug("session state", zap.Stringer("state", state))
}

// Run subscribes, replays history and then serves the connection until the
// client goes away or ctx is cancelled. The subscription is released on
// every exit path before the connection is closed.
func (s *Session) Run(ctx context.Context) error {
	metrics := s.handler.metrics

	if err := s.validate(); err != nil {
		metrics.ConnectionRejected()
		s.setState(StateClosed)
		_ = s.conn.Close()
		return err
	}

	sub := s.handler.group.Subscribe(s.room)
	defer func() {
		s.setState(StateClosing)
		sub.Close()
		_ = s.conn.Close()
		s.setState(StateClosed)
		metrics.ConnectionClosed()
	}()

	s.setState(StateOpen)
	metrics.ConnectionOpened()

	if err := s.replayHistory(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inbound := make(chan []byte)
	readErr := make(chan error, 1)
	go s.readLoop(ctx, inbound, readErr)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			s.logger.Debug("connection read ended", zap.Error(err))
			return nil
		case data := <-inbound:
			if err := s.handleInbound(ctx, data); err != nil {
				return err
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := s.writeEvent(ev); err != nil {
				return err
			}
		}
	}
}

func (s *Session) validate() error {
	if strings.TrimSpace(s.room) == "" {
		return apperrors.NewConnectionRejected("room name is required", http.StatusBadRequest)
	}
	if strings.TrimSpace(s.user.ID) == "" {
		return apperrors.NewConnectionRejected("authentication required", http.StatusUnauthorized)
	}
	return nil
}

func (s *Session) readLoop(ctx context.Context, inbound chan<- []byte, readErr chan<- error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		select {
		case inbound <- data:
		case <-ctx.Done():
			return
		}
	}
}

// replayHistory sends the recent transcript. A store failure is logged and
// the session continues with live traffic only.
func (s *Session) replayHistory(ctx context.Context) error {
	limit := s.handler.cfg.HistoryLimit
	if limit <= 0 {
		return nil
	}
	history, err := s.handler.store.RecentHistory(ctx, s.room, limit)
	if err != nil {
		s.logger.Warn("history replay failed", zap.Error(err))
		return nil
	}
	for _, msg := range history {
		if err := s.writeFrame(MessageFrame{Message: msg.Body, Username: msg.Username}); err != nil {
			return err
		}
	}
	return nil
}

// handleInbound persists then publishes. Nothing is published unless the
// append succeeded.
func (s *Session) handleInbound(ctx context.Context, data []byte) error {
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Message == nil {
		return s.writeFrame(ErrorFrame{Error: "invalid message frame"})
	}
	body := *frame.Message

	if !s.limiter.Allow() {
		return s.writeFrame(ErrorFrame{Error: "rate limit exceeded", Message: body})
	}
	if s.handler.cfg.Sanitizer != nil {
		body = s.handler.cfg.Sanitizer.Sanitize(body)
	}

	msg, err := s.handler.store.Append(ctx, s.room, s.user.ID, body)
	if err != nil {
		s.handler.metrics.PersistenceFailed()
		s.logger.Error("append failed", zap.Error(err))
		return s.writeFrame(ErrorFrame{Error: "message could not be stored", Message: body})
	}
	s.handler.metrics.MessagePersisted()

	username := msg.Username
	if username == "" {
		username = s.user.Username
	}
	if err := s.handler.group.Publish(ctx, s.room, NewChatMessage(username, msg.Body)); err != nil {
		s.logger.Error("publish failed", zap.Int64("message_id", msg.ID), zap.Error(err))
		return s.writeFrame(ErrorFrame{Error: "message stored but not delivered", Message: body})
	}
	return nil
}

func (s *Session) writeEvent(ev Event) error {
	frame, err := ev.Frame()
	if err != nil {
		s.logger.Warn("skipping event", zap.Error(err))
		return nil
	}
	return s.writeFrame(frame)
}

func (s *Session) writeFrame(frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(textMessage, data)
}
