package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-portal/helpdesk/internal/domain"
	"github.com/campus-portal/helpdesk/internal/events"
	apperrors "github.com/campus-portal/helpdesk/pkg/util/errorutil"
)

func newUser(name string, staff bool) *domain.User {
	return &domain.User{ID: uuid.NewString(), Username: name, IsStaff: staff}
}

func newBridge(tickets *fakeTickets, dispatcher events.Dispatcher) *ChatBridge {
	return NewChatBridge(tickets, &fakeMessages{}, dispatcher, zap.NewNop(), 50)
}

func TestStartSupportChatCreatesTicketAndRoom(t *testing.T) {
	tickets := newFakeTickets()
	dispatcher := newRecordingDispatcher()
	bridge := newBridge(tickets, dispatcher)
	user := newUser("ana", false)

	room, err := bridge.StartSupportChat(context.Background(), user)
	require.NoError(t, err)

	ticket, err := tickets.GetByRoomName(context.Background(), room)
	require.NoError(t, err)
	require.NotNil(t, ticket)
	assert.Equal(t, SupportRoomName(ticket.ID), room)
	assert.Equal(t, "chat_suporte_1", room)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, "Atendimento via chat", ticket.Subject)
	assert.Equal(t, "Chamado aberto a partir do chat de suporte.", ticket.Description)
	assert.Equal(t, domain.SectorIT, ticket.Sector)
	assert.Equal(t, domain.UrgencyMedium, ticket.Urgency)
	assert.Equal(t, []events.EventType{events.EventChatRoomOpened}, dispatcher.types())
}

func TestStartSupportChatIsIdempotentWhileActive(t *testing.T) {
	tickets := newFakeTickets()
	bridge := newBridge(tickets, nil)
	user := newUser("ana", false)

	first, err := bridge.StartSupportChat(context.Background(), user)
	require.NoError(t, err)
	second, err := bridge.StartSupportChat(context.Background(), user)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, tickets.count())
}

func TestStartSupportChatAfterResolutionOpensNewRoom(t *testing.T) {
	tickets := newFakeTickets()
	bridge := newBridge(tickets, nil)
	user := newUser("ana", false)
	ctx := context.Background()

	first, err := bridge.StartSupportChat(ctx, user)
	require.NoError(t, err)
	old, err := tickets.GetByRoomName(ctx, first)
	require.NoError(t, err)
	require.NoError(t, tickets.UpdateStatus(ctx, old.ID, domain.TicketStatusResolved))

	second, err := bridge.StartSupportChat(ctx, user)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, tickets.count())
}

func TestStartSupportChatIgnoresPlainTickets(t *testing.T) {
	tickets := newFakeTickets()
	bridge := newBridge(tickets, nil)
	user := newUser("ana", false)
	require.NoError(t, tickets.Create(context.Background(), &domain.Ticket{CreatedBy: user.ID, Status: domain.TicketStatusOpen}))

	room, err := bridge.StartSupportChat(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "chat_suporte_2", room)
}

func TestStartSupportChatFailureLeavesNoTicket(t *testing.T) {
	tickets := newFakeTickets()
	tickets.failCreate = errStorage
	bridge := newBridge(tickets, nil)

	room, err := bridge.StartSupportChat(context.Background(), newUser("ana", false))
	assert.Empty(t, room)
	assert.ErrorIs(t, err, apperrors.ErrBridgeFailure)
	assert.ErrorIs(t, err, errStorage)
	assert.Zero(t, tickets.count())
}

func TestStartSupportChatLookupFailure(t *testing.T) {
	tickets := newFakeTickets()
	tickets.failFind = errStorage
	bridge := newBridge(tickets, nil)

	_, err := bridge.StartSupportChat(context.Background(), newUser("ana", false))
	assert.ErrorIs(t, err, apperrors.ErrBridgeFailure)
}

func TestStartSupportChatRequiresIdentity(t *testing.T) {
	bridge := newBridge(newFakeTickets(), nil)
	_, err := bridge.StartSupportChat(context.Background(), &domain.User{})
	require.Error(t, err)
	assert.Equal(t, 401, apperrors.ToDomainError(err).HTTPStatus)
}

func TestStartSupportChatLosingRaceReturnsWinner(t *testing.T) {
	tickets := newFakeTickets()
	bridge := newBridge(tickets, nil)
	user := newUser("ana", false)

	var winner string
	tickets.beforeCommit = func() {
		var err error
		winner, err = bridge.StartSupportChat(context.Background(), user)
		require.NoError(t, err)
	}

	room, err := bridge.StartSupportChat(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, winner, room)
	assert.Equal(t, 1, tickets.count())
}

func TestStartSupportChatConcurrentCallsConverge(t *testing.T) {
	tickets := newFakeTickets()
	bridge := newBridge(tickets, nil)
	user := newUser("ana", false)

	rooms := make([]string, 10)
	var wg sync.WaitGroup
	for i := range rooms {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room, err := bridge.StartSupportChat(context.Background(), user)
			assert.NoError(t, err)
			rooms[i] = room
		}(i)
	}
	wg.Wait()

	for _, room := range rooms {
		assert.Equal(t, rooms[0], room)
	}
	assert.Equal(t, 1, tickets.count())
}

func TestAuthorizeRoom(t *testing.T) {
	tickets := newFakeTickets()
	bridge := newBridge(tickets, nil)
	owner := newUser("ana", false)
	stranger := newUser("bruno", false)
	staff := newUser("suporte", true)
	ctx := context.Background()

	room, err := bridge.StartSupportChat(ctx, owner)
	require.NoError(t, err)

	ticket, err := bridge.AuthorizeRoom(ctx, owner, room)
	require.NoError(t, err)
	assert.NotNil(t, ticket)

	_, err = bridge.AuthorizeRoom(ctx, staff, room)
	assert.NoError(t, err)

	_, err = bridge.AuthorizeRoom(ctx, stranger, room)
	require.Error(t, err)
	assert.Equal(t, 403, apperrors.ToDomainError(err).HTTPStatus)

	adhoc, err := bridge.AuthorizeRoom(ctx, stranger, "lobby")
	require.NoError(t, err)
	assert.Nil(t, adhoc)

	_, err = bridge.AuthorizeRoom(ctx, stranger, " ")
	assert.Error(t, err)
}

func TestAuthorizeRoomReservesSupportRooms(t *testing.T) {
	tickets := newFakeTickets()
	bridge := newBridge(tickets, nil)
	owner := newUser("ana", false)
	stranger := newUser("eve", false)
	staff := newUser("suporte", true)
	ctx := context.Background()

	for _, user := range []*domain.User{stranger, staff} {
		_, err := bridge.AuthorizeRoom(ctx, user, "chat_suporte_1")
		require.Error(t, err)
		assert.Equal(t, 404, apperrors.ToDomainError(err).HTTPStatus)
	}

	room, err := bridge.StartSupportChat(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, "chat_suporte_1", room)

	ticket, err := bridge.AuthorizeRoom(ctx, owner, room)
	require.NoError(t, err)
	assert.NotNil(t, ticket)

	_, err = bridge.AuthorizeRoom(ctx, stranger, room)
	require.Error(t, err)
	assert.Equal(t, 403, apperrors.ToDomainError(err).HTTPStatus)
}

func TestTranscriptReturnsRecentMessages(t *testing.T) {
	tickets := newFakeTickets()
	messages := &fakeMessages{}
	bridge := NewChatBridge(tickets, messages, nil, zap.NewNop(), 2)
	user := newUser("ana", false)
	ctx := context.Background()

	for _, body := range []string{"a", "b", "c"} {
		_, err := messages.Append(ctx, "lobby", user.ID, body)
		require.NoError(t, err)
	}

	transcript, err := bridge.Transcript(ctx, user, "lobby")
	require.NoError(t, err)
	require.Len(t, transcript.Messages, 2)
	assert.Equal(t, "b", transcript.Messages[0].Body)
	assert.Nil(t, transcript.Ticket)
}
