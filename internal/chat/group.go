package chat

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/campus-portal/helpdesk/internal/observability"
	apperrors "github.com/campus-portal/helpdesk/pkg/util/errorutil"
)

const defaultSendBuffer = 64

var errSubscriberFull = errors.New("subscriber buffer full")

// Subscription is one connection's membership in a room.
type Subscription struct {
	room  string
	ch    chan Event
	group *Group
	once  sync.Once
}

// Room returns the room the subscription belongs to.
func (s *Subscription) Room() string { return s.room }

// Events yields deliveries for the room. The channel is closed after Close.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close removes the subscription from its room. Safe to call more than
// once and from any goroutine.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.group.remove(s)
	})
}

// Group is the named multicast registry: room name to live subscriptions.
type Group struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Subscription]struct{}
	bus     Bus
	buffer  int
	logger  *zap.Logger
	metrics *observability.Metrics
}

// GroupOption customizes a Group.
type GroupOption func(*Group)

// WithBus makes Publish go through bus so other processes see the events.
func WithBus(bus Bus) GroupOption {
	return func(g *Group) { g.bus = bus }
}

// WithSendBuffer sets how many undelivered events a subscriber may queue.
func WithSendBuffer(n int) GroupOption {
	return func(g *Group) {
		if n > 0 {
			g.buffer = n
		}
	}
}

// WithMetrics records dropped deliveries.
func WithMetrics(m *observability.Metrics) GroupOption {
	return func(g *Group) { g.metrics = m }
}

// NewGroup creates an empty group.
func NewGroup(logger *zap.Logger, opts ...GroupOption) *Group {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Group{
		rooms:  make(map[string]map[*Subscription]struct{}),
		buffer: defaultSendBuffer,
		logger: logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start attaches the group to its bus. Without a bus it is a no-op.
func (g *Group) Start(ctx context.Context) error {
	if g.bus == nil {
		return nil
	}
	return g.bus.Subscribe(ctx, g.relay)
}

// Subscribe registers a new subscription for room. Events published after
// Subscribe returns are delivered to it.
func (g *Group) Subscribe(room string) *Subscription {
	sub := &Subscription{
		room:  room,
		ch:    make(chan Event, g.buffer),
		group: g,
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	members, ok := g.rooms[room]
	if !ok {
		members = make(map[*Subscription]struct{})
		g.rooms[room] = members
	}
	members[sub] = struct{}{}
	return sub
}

func (g *Group) remove(sub *Subscription) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if members, ok := g.rooms[sub.room]; ok {
		delete(members, sub)
		if len(members) == 0 {
			delete(g.rooms, sub.room)
		}
	}
	close(sub.ch)
}

// Subscribers returns the number of local subscriptions in room.
func (g *Group) Subscribers(room string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms[room])
}

// Publish delivers ev to every subscriber of room, on every process when a
// bus is configured. A slow subscriber never blocks the publisher.
func (g *Group) Publish(ctx context.Context, room string, ev Event) error {
	if g.bus == nil {
		if _, err := ev.Frame(); err != nil {
			return err
		}
		g.deliver(room, ev)
		return nil
	}

	payload, err := encodeEnvelope(room, ev)
	if err != nil {
		return err
	}
	return g.bus.Publish(ctx, room, payload)
}

func (g *Group) relay(payload []byte) {
	room, ev, err := decodeEnvelope(payload)
	if err != nil {
		g.logger.Warn("discarding bus message", zap.Error(err))
		return
	}
	g.deliver(room, ev)
}

// deliver fans out under the read lock. remove needs the write lock, so a
// channel is never closed while a send to it is in flight. A subscriber whose
// buffer is full is evicted after the lock is released; its session ends and
// the client catches up from history when it reconnects.
func (g *Group) deliver(room string, ev Event) {
	var evicted []*Subscription

	g.mu.RLock()
	for sub := range g.rooms[room] {
		select {
		case sub.ch <- ev:
		default:
			evicted = append(evicted, sub)
		}
	}
	g.mu.RUnlock()

	for _, sub := range evicted {
		g.metrics.DeliveryDropped()
		g.logger.Warn("evicting slow subscriber",
			zap.String("room", room),
			zap.Error(apperrors.NewBroadcastDeliveryError(room, errSubscriberFull)))
		sub.Close()
	}
}
