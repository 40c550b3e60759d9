package http_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/campus-portal/helpdesk/internal/domain"
	"github.com/campus-portal/helpdesk/internal/repository"
)

// memStore backs every repository the HTTP layer needs with one mutex, so
// usernames join the way they do in Postgres.
type memStore struct {
	mu       sync.Mutex
	users    map[string]domain.User
	tickets  map[int64]*domain.Ticket
	history  []domain.TicketHistory
	messages map[string][]domain.ChatMessage
	nextID   int64
	nextMsg  int64
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]domain.User{},
		tickets:  map[int64]*domain.Ticket{},
		messages: map[string][]domain.ChatMessage{},
	}
}

type memUsers struct{ *memStore }
type memTickets struct{ *memStore }
type memHistory struct{ *memStore }
type memMessages struct{ *memStore }

func (s memUsers) Upsert(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = *user
	return nil
}

func (s memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (s memTickets) insertLocked(ticket *domain.Ticket) {
	s.nextID++
	ticket.ID = s.nextID
	ticket.CreatorUsername = s.users[ticket.CreatedBy].Username
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	stored := *ticket
	s.tickets[ticket.ID] = &stored
}

func (s memTickets) activeChatLocked(creator string) *domain.Ticket {
	for _, t := range s.tickets {
		if t.CreatedBy == creator && t.HasRoom() && t.Status.Active() {
			return t
		}
	}
	return nil
}

func (s memTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(ticket)
	return nil
}

func (s memTickets) CreateChatTicket(_ context.Context, ticket *domain.Ticket, deriveRoom func(int64) string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeChatLocked(ticket.CreatedBy) != nil {
		return repository.ErrActiveChatTicketExists
	}
	s.insertLocked(ticket)
	room := deriveRoom(ticket.ID)
	ticket.RoomName = &room
	s.tickets[ticket.ID].RoomName = &room
	return nil
}

func (s memTickets) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (s memTickets) GetByRoomName(_ context.Context, room string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.HasRoom() && *t.RoomName == room {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s memTickets) FindActiveChatTicket(_ context.Context, creator string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.activeChatLocked(creator); t != nil {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (s memTickets) SetRoomName(_ context.Context, id int64, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok || t.HasRoom() {
		return repository.ErrRoomAlreadyAssigned
	}
	t.RoomName = &room
	return nil
}

func (s memTickets) UpdateStatus(_ context.Context, id int64, status domain.TicketStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	t.Status = status
	return nil
}

func (s memTickets) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Ticket, error) {
	return s.ListWithFilter(ctx, repository.TicketFilter{CreatedBy: &userID, Limit: limit, Offset: offset})
}

func (s memTickets) matchingLocked(filter repository.TicketFilter) []domain.Ticket {
	var out []domain.Ticket
	for _, t := range s.tickets {
		if filter.CreatedBy != nil && t.CreatedBy != *filter.CreatedBy {
			continue
		}
		if len(filter.Statuses) > 0 && t.Status != filter.Statuses[0] {
			continue
		}
		if filter.SearchTerm != nil &&
			!strings.Contains(strings.ToLower(t.Subject+" "+t.CreatorUsername), strings.ToLower(*filter.SearchTerm)) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s memTickets) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.matchingLocked(filter)
	if filter.Offset >= len(out) {
		return []domain.Ticket{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s memTickets) CountWithFilter(_ context.Context, filter repository.TicketFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matchingLocked(filter)), nil
}

func (s memTickets) CountByStatus(context.Context) (map[domain.TicketStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[domain.TicketStatus]int{}
	for _, status := range domain.TicketStatuses {
		counts[status] = 0
	}
	for _, t := range s.tickets {
		counts[t.Status]++
	}
	return counts, nil
}

func (s memTickets) CountPendingChat(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tickets {
		if t.HasRoom() && t.Status.Active() {
			n++
		}
	}
	return n, nil
}

func (s memHistory) Create(_ context.Context, entry *domain.TicketHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = int64(len(s.history) + 1)
	entry.CreatedAt = time.Now()
	s.history = append(s.history, *entry)
	return nil
}

func (s memHistory) ListByTicket(_ context.Context, ticketID int64) ([]domain.TicketHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.TicketHistory{}
	for _, h := range s.history {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s memMessages) Append(_ context.Context, room, senderID, body string) (*domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMsg++
	msg := domain.ChatMessage{
		ID:        s.nextMsg,
		RoomName:  room,
		UserID:    senderID,
		Username:  s.users[senderID].Username,
		Body:      body,
		CreatedAt: time.Now(),
	}
	s.messages[room] = append(s.messages[room], msg)
	return &msg, nil
}

func (s memMessages) RecentHistory(_ context.Context, room string, limit int) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[room]
	if limit <= 0 {
		return []domain.ChatMessage{}, nil
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.ChatMessage{}, msgs...), nil
}
