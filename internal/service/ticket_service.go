package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/campus-portal/helpdesk/internal/domain"
	"github.com/campus-portal/helpdesk/internal/events"
	"github.com/campus-portal/helpdesk/internal/repository"
	apperrors "github.com/campus-portal/helpdesk/pkg/util/errorutil"
)

const (
	minSubjectLength     = 10
	minDescriptionLength = 20
	staffPageSize        = 10
	defaultTranscriptLen = 50
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets       repository.TicketRepository
	history       repository.TicketHistoryRepository
	messages      repository.ChatMessageRepository
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	transcriptLen int
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo    repository.TicketRepository
	HistoryRepo   repository.TicketHistoryRepository
	MessageRepo   repository.ChatMessageRepository
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
	TranscriptLen int
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Subject     string
	Description string
	Sector      domain.TicketSector
	Urgency     domain.TicketUrgency
}

// TicketStaffFilter describes staff listing filters.
type TicketStaffFilter struct {
	Status     *domain.TicketStatus
	SearchTerm string
	Page       int
}

// TicketPage is one page of a staff listing.
type TicketPage struct {
	Tickets  []domain.Ticket
	Page     int
	PageSize int
	Total    int
}

// TicketDetail is a ticket with its chat transcript and, for staff, history.
type TicketDetail struct {
	Ticket     *domain.Ticket
	Transcript []domain.ChatMessage
	History    []domain.TicketHistory
}

// DashboardStats aggregates ticket counts for the staff dashboard.
type DashboardStats struct {
	Total       int
	ByStatus    map[domain.TicketStatus]int
	PendingChat int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	transcriptLen := deps.TranscriptLen
	if transcriptLen <= 0 {
		transcriptLen = defaultTranscriptLen
	}
	return &TicketService{
		tickets:       deps.TicketRepo,
		history:       deps.HistoryRepo,
		messages:      deps.MessageRepo,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
		transcriptLen: transcriptLen,
	}
}

// CreateTicket validates and creates a ticket for a user.
func (s *TicketService) CreateTicket(ctx context.Context, user *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	if user == nil || user.ID == "" {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if err := validateTicketInput(&input); err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		CreatedBy:       user.ID,
		CreatorUsername: user.Username,
		Subject:         input.Subject,
		Description:     input.Description,
		Sector:          input.Sector,
		Urgency:         input.Urgency,
		Status:          domain.TicketStatusOpen,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}

	s.recordHistory(ctx, &domain.TicketHistory{
		TicketID:    ticket.ID,
		ChangedByID: &user.ID,
		ChangeType:  domain.ChangeTypeCreated,
		NewValue:    map[string]any{"status": ticket.Status},
	})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actorFor(user),
		Payload: events.TicketCreatedPayload{
			Subject: ticket.Subject,
			Sector:  ticket.Sector,
			Urgency: ticket.Urgency,
		},
	})
	return ticket, nil
}

func validateTicketInput(input *TicketCreateInput) error {
	input.Subject = strings.TrimSpace(input.Subject)
	input.Description = strings.TrimSpace(input.Description)

	details := map[string]any{}
	if utf8.RuneCountInString(input.Subject) < minSubjectLength {
		details["assunto"] = "must have at least 10 characters"
	}
	if utf8.RuneCountInString(input.Description) < minDescriptionLength {
		details["descricao"] = "must have at least 20 characters"
	}
	if !input.Sector.Valid() {
		details["setor"] = "unknown sector"
	}
	if !input.Urgency.Valid() {
		details["urgencia"] = "unknown urgency"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid ticket", details)
	}
	return nil
}

// ListUserTickets returns the caller's tickets, newest first.
func (s *TicketService) ListUserTickets(ctx context.Context, userID string, limit, offset int) ([]domain.Ticket, error) {
	return s.tickets.ListByUser(ctx, userID, limit, offset)
}

// GetTicketForUser fetches one of the caller's own tickets with its transcript.
func (s *TicketService) GetTicketForUser(ctx context.Context, user *domain.User, ticketID int64) (*TicketDetail, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if user == nil || ticket.CreatedBy != user.ID {
		return nil, apperrors.NewForbidden("access denied")
	}
	transcript, err := s.transcript(ctx, ticket)
	if err != nil {
		return nil, err
	}
	return &TicketDetail{Ticket: ticket, Transcript: transcript}, nil
}

// ListStaffTickets returns one page of tickets matching the filter.
func (s *TicketService) ListStaffTickets(ctx context.Context, filter TicketStaffFilter) (*TicketPage, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}

	repoFilter := repository.TicketFilter{
		Limit:  staffPageSize,
		Offset: (page - 1) * staffPageSize,
	}
	if filter.Status != nil {
		if !filter.Status.Valid() {
			return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": *filter.Status})
		}
		repoFilter.Statuses = []domain.TicketStatus{*filter.Status}
	}
	if term := strings.TrimSpace(filter.SearchTerm); term != "" {
		repoFilter.SearchTerm = &term
	}

	total, err := s.tickets.CountWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	return &TicketPage{Tickets: tickets, Page: page, PageSize: staffPageSize, Total: total}, nil
}

// GetTicketForStaff returns any ticket with its transcript and history.
func (s *TicketService) GetTicketForStaff(ctx context.Context, ticketID int64) (*TicketDetail, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	transcript, err := s.transcript(ctx, ticket)
	if err != nil {
		return nil, err
	}
	history := []domain.TicketHistory{}
	if s.history != nil {
		if history, err = s.history.ListByTicket(ctx, ticket.ID); err != nil {
			return nil, err
		}
	}
	return &TicketDetail{Ticket: ticket, Transcript: transcript, History: history}, nil
}

// UpdateStatus sets a ticket status. Any status may follow any other.
func (s *TicketService) UpdateStatus(ctx context.Context, actor *domain.User, ticketID int64, newStatus domain.TicketStatus) (*domain.Ticket, error) {
	if actor == nil || !actor.IsStaff {
		return nil, apperrors.NewForbidden("staff role required")
	}
	if !newStatus.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": newStatus})
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	oldStatus := ticket.Status
	if oldStatus == newStatus {
		return ticket, nil
	}

	if err := s.tickets.UpdateStatus(ctx, ticket.ID, newStatus); err != nil {
		if errors.Is(err, repository.ErrActiveChatTicketExists) {
			return nil, apperrors.NewConflict("creator already has an active chat ticket", map[string]any{"ticket_id": ticket.ID})
		}
		return nil, err
	}
	ticket.Status = newStatus
	ticket.UpdatedAt = time.Now()

	s.recordHistory(ctx, &domain.TicketHistory{
		TicketID:    ticket.ID,
		ChangedByID: &actor.ID,
		ChangeType:  domain.ChangeTypeStatus,
		OldValue:    map[string]any{"status": oldStatus},
		NewValue:    map[string]any{"status": newStatus},
	})

	event := events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    actorFor(actor),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
		},
	}
	if ticket.HasRoom() {
		event.RoomName = *ticket.RoomName
	}
	s.publishEvent(ctx, event)
	return ticket, nil
}

// Dashboard returns counts per status and the number of open chat tickets.
func (s *TicketService) Dashboard(ctx context.Context) (*DashboardStats, error) {
	counts, err := s.tickets.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.tickets.CountPendingChat(ctx)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return &DashboardStats{Total: total, ByStatus: counts, PendingChat: pending}, nil
}

func (s *TicketService) getTicket(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

func (s *TicketService) transcript(ctx context.Context, ticket *domain.Ticket) ([]domain.ChatMessage, error) {
	if !ticket.HasRoom() || s.messages == nil {
		return []domain.ChatMessage{}, nil
	}
	return s.messages.RecentHistory(ctx, *ticket.RoomName, s.transcriptLen)
}

// recordHistory never fails the surrounding operation; the ticket change
// has already been committed.
func (s *TicketService) recordHistory(ctx context.Context, entry *domain.TicketHistory) {
	if s.history == nil {
		return
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Error("record ticket history",
			zap.Int64("ticket_id", entry.TicketID),
			zap.String("change_type", string(entry.ChangeType)),
			zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	publishEvent(ctx, s.dispatcher, s.logger, event)
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.Int64("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func actorFor(user *domain.User) events.Actor {
	if user == nil {
		return events.Actor{}
	}
	return events.Actor{UserID: user.ID, Username: user.Username, IsStaff: user.IsStaff}
}
