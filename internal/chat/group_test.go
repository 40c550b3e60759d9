package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campus-portal/helpdesk/internal/observability"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGroupIsolatesRooms(t *testing.T) {
	g := NewGroup(zap.NewNop())
	a := g.Subscribe("room-a")
	b := g.Subscribe("room-b")
	defer a.Close()
	defer b.Close()

	require.NoError(t, g.Publish(context.Background(), "room-a", NewChatMessage("ana", "hi")))

	assert.Equal(t, NewChatMessage("ana", "hi"), receive(t, a))
	assertNoEvent(t, b)
}

func TestGroupPreservesPublishOrderWithinRoom(t *testing.T) {
	g := NewGroup(zap.NewNop(), WithSendBuffer(16))
	sub := g.Subscribe("room")
	defer sub.Close()

	for _, body := range []string{"1", "2", "3", "4"} {
		require.NoError(t, g.Publish(context.Background(), "room", NewChatMessage("ana", body)))
	}
	for _, want := range []string{"1", "2", "3", "4"} {
		assert.Equal(t, want, receive(t, sub).Message)
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	g := NewGroup(zap.NewNop())
	sub := g.Subscribe("room")
	other := g.Subscribe("room")
	defer other.Close()
	require.Equal(t, 2, g.Subscribers("room"))

	sub.Close()
	sub.Close()
	assert.Equal(t, 1, g.Subscribers("room"))

	require.NoError(t, g.Publish(context.Background(), "room", NewSystemNotice("status changed")))
	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, "status changed", receive(t, other).Notice)
}

func TestGroupConcurrentSubscribeAndPublish(t *testing.T) {
	g := NewGroup(zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := g.Subscribe("room")
			sub.Close()
		}()
		go func() {
			defer wg.Done()
			_ = g.Publish(context.Background(), "room", NewChatMessage("ana", "x"))
		}()
	}
	wg.Wait()
	assert.Zero(t, g.Subscribers("room"))
}

func TestGroupEvictsFullSubscriber(t *testing.T) {
	metrics := observability.NewMetrics()
	g := NewGroup(zap.NewNop(), WithSendBuffer(1), WithMetrics(metrics))
	slow := g.Subscribe("room")
	fast := g.Subscribe("room")
	defer fast.Close()

	require.NoError(t, g.Publish(context.Background(), "room", NewChatMessage("ana", "1")))
	assert.Equal(t, "1", receive(t, fast).Message)
	require.NoError(t, g.Publish(context.Background(), "room", NewChatMessage("ana", "2")))
	assert.Equal(t, "2", receive(t, fast).Message)
	require.NoError(t, g.Publish(context.Background(), "room", NewChatMessage("ana", "3")))
	assert.Equal(t, "3", receive(t, fast).Message)

	assert.Equal(t, "1", receive(t, slow).Message)
	_, open := <-slow.Events()
	assert.False(t, open, "a subscriber that fell behind must be closed, not left with a gap")
	assert.Equal(t, 1, g.Subscribers("room"))
	assert.EqualValues(t, 1, metrics.Snapshot().Chat.DeliveriesDropped)
	assert.NotPanics(t, slow.Close)
}

func TestGroupRejectsUnknownKind(t *testing.T) {
	g := NewGroup(zap.NewNop())
	err := g.Publish(context.Background(), "room", Event{Kind: "bogus"})
	assert.Error(t, err)
}

// loopbackBus stands in for Redis or NATS: every publish reaches every
// subscribed group, the publisher's own included.
type loopbackBus struct {
	mu       sync.Mutex
	handlers []func([]byte)
}

func (b *loopbackBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, h := range b.handlers {
		h(payload)
	}
	return nil
}

func (b *loopbackBus) Subscribe(_ context.Context, handle func([]byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handle)
	return nil
}

func (b *loopbackBus) Close() error { return nil }

func TestGroupsSharingBusSeeEachOther(t *testing.T) {
	bus := &loopbackBus{}
	first := NewGroup(zap.NewNop(), WithBus(bus))
	second := NewGroup(zap.NewNop(), WithBus(bus))
	require.NoError(t, first.Start(context.Background()))
	require.NoError(t, second.Start(context.Background()))

	local := first.Subscribe("room")
	remote := second.Subscribe("room")
	defer local.Close()
	defer remote.Close()

	require.NoError(t, first.Publish(context.Background(), "room", NewChatMessage("ana", "hello")))

	assert.Equal(t, NewChatMessage("ana", "hello"), receive(t, local))
	assert.Equal(t, NewChatMessage("ana", "hello"), receive(t, remote))
}

func TestRelayDiscardsGarbage(t *testing.T) {
	g := NewGroup(zap.NewNop())
	sub := g.Subscribe("room")
	defer sub.Close()

	g.relay([]byte("not json"))
	g.relay([]byte(`{"room":"room","kind":"bogus"}`))
	assertNoEvent(t, sub)
}
