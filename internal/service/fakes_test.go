package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/campus-portal/helpdesk/internal/domain"
	"github.com/campus-portal/helpdesk/internal/events"
	"github.com/campus-portal/helpdesk/internal/repository"
)

// fakeTickets mimics the Postgres ticket repository, including the partial
// unique index on active chat tickets.
type fakeTickets struct {
	mu      sync.Mutex
	nextID  int64
	tickets map[int64]*domain.Ticket

	failFind   error
	failCreate error
	// beforeCommit runs inside CreateChatTicket after the id is assigned,
	// simulating a concurrent writer.
	beforeCommit func()
}

func newFakeTickets() *fakeTickets {
	return &fakeTickets{tickets: map[int64]*domain.Ticket{}}
}

func (f *fakeTickets) insertLocked(ticket *domain.Ticket) {
	f.nextID++
	ticket.ID = f.nextID
	ticket.CreatedAt = time.Now().Add(time.Duration(f.nextID) * time.Millisecond)
	ticket.UpdatedAt = ticket.CreatedAt
	stored := *ticket
	f.tickets[ticket.ID] = &stored
}

func (f *fakeTickets) activeChatLocked(creator string) *domain.Ticket {
	var found *domain.Ticket
	for _, t := range f.tickets {
		if t.CreatedBy == creator && t.HasRoom() && t.Status.Active() {
			if found == nil || t.CreatedAt.After(found.CreatedAt) {
				found = t
			}
		}
	}
	return found
}

func (f *fakeTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return f.failCreate
	}
	f.insertLocked(ticket)
	return nil
}

func (f *fakeTickets) CreateChatTicket(_ context.Context, ticket *domain.Ticket, deriveRoom func(int64) string) error {
	if f.beforeCommit != nil {
		hook := f.beforeCommit
		f.beforeCommit = nil
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return f.failCreate
	}
	if f.activeChatLocked(ticket.CreatedBy) != nil {
		return repository.ErrActiveChatTicketExists
	}
	f.insertLocked(ticket)
	room := deriveRoom(ticket.ID)
	ticket.RoomName = &room
	f.tickets[ticket.ID].RoomName = &room
	return nil
}

func (f *fakeTickets) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTickets) GetByRoomName(_ context.Context, room string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tickets {
		if t.HasRoom() && *t.RoomName == room {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeTickets) FindActiveChatTicket(_ context.Context, creator string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFind != nil {
		return nil, f.failFind
	}
	t := f.activeChatLocked(creator)
	if t == nil {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTickets) SetRoomName(_ context.Context, id int64, room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok || t.HasRoom() {
		return repository.ErrRoomAlreadyAssigned
	}
	t.RoomName = &room
	return nil
}

func (f *fakeTickets) UpdateStatus(_ context.Context, id int64, status domain.TicketStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if status.Active() && t.HasRoom() {
		if other := f.activeChatLocked(t.CreatedBy); other != nil && other.ID != id {
			return repository.ErrActiveChatTicketExists
		}
	}
	t.Status = status
	return nil
}

func (f *fakeTickets) ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Ticket, error) {
	return f.ListWithFilter(ctx, repository.TicketFilter{CreatedBy: &userID, Limit: limit, Offset: offset})
}

func (f *fakeTickets) matching(filter repository.TicketFilter) []domain.Ticket {
	var out []domain.Ticket
	for _, t := range f.tickets {
		if filter.CreatedBy != nil && t.CreatedBy != *filter.CreatedBy {
			continue
		}
		if len(filter.Statuses) > 0 {
			ok := false
			for _, s := range filter.Statuses {
				ok = ok || t.Status == s
			}
			if !ok {
				continue
			}
		}
		if filter.SearchTerm != nil {
			term := strings.ToLower(*filter.SearchTerm)
			haystack := strings.ToLower(t.Subject + " " + t.Description + " " + t.CreatorUsername)
			if !strings.Contains(haystack, term) {
				continue
			}
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (f *fakeTickets) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.matching(filter)
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeTickets) CountWithFilter(_ context.Context, filter repository.TicketFilter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.matching(filter)), nil
}

func (f *fakeTickets) CountByStatus(context.Context) (map[domain.TicketStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[domain.TicketStatus]int{}
	for _, s := range domain.TicketStatuses {
		counts[s] = 0
	}
	for _, t := range f.tickets {
		counts[t.Status]++
	}
	return counts, nil
}

func (f *fakeTickets) CountPendingChat(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tickets {
		if t.HasRoom() && t.Status.Active() {
			n++
		}
	}
	return n, nil
}

func (f *fakeTickets) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickets)
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []domain.TicketHistory
}

func (f *fakeHistory) Create(_ context.Context, h *domain.TicketHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h.ID = int64(len(f.entries) + 1)
	f.entries = append(f.entries, *h)
	return nil
}

func (f *fakeHistory) ListByTicket(_ context.Context, id int64) ([]domain.TicketHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TicketHistory
	for _, h := range f.entries {
		if h.TicketID == id {
			out = append(out, h)
		}
	}
	return out, nil
}

type fakeMessages struct {
	mu    sync.Mutex
	rooms map[string][]domain.ChatMessage
}

func (f *fakeMessages) Append(_ context.Context, room, senderID, body string) (*domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rooms == nil {
		f.rooms = map[string][]domain.ChatMessage{}
	}
	msg := domain.ChatMessage{ID: int64(len(f.rooms[room]) + 1), RoomName: room, UserID: senderID, Body: body}
	f.rooms[room] = append(f.rooms[room], msg)
	return &msg, nil
}

func (f *fakeMessages) RecentHistory(_ context.Context, room string, limit int) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.rooms[room]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.ChatMessage{}, msgs...), nil
}

// recordingDispatcher keeps every published event.
type recordingDispatcher struct {
	events.Dispatcher
	mu        sync.Mutex
	published []events.Event
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{Dispatcher: events.NewInMemoryDispatcher()}
}

func (d *recordingDispatcher) Publish(ctx context.Context, e events.Event) error {
	d.mu.Lock()
	d.published = append(d.published, e)
	d.mu.Unlock()
	return d.Dispatcher.Publish(ctx, e)
}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.EventType
	for _, e := range d.published {
		out = append(out, e.Type)
	}
	return out
}

var errStorage = errors.New("storage unavailable")
