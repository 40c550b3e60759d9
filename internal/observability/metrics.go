package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	chat         ChatCounters
}

// ChatCounters tracks the real-time subsystem.
type ChatCounters struct {
	ConnectionsOpened   int64 `json:"connections_opened"`
	ConnectionsClosed   int64 `json:"connections_closed"`
	ConnectionsRejected int64 `json:"connections_rejected"`
	MessagesPersisted   int64 `json:"messages_persisted"`
	PersistenceFailures int64 `json:"persistence_failures"`
	DeliveriesDropped   int64 `json:"deliveries_dropped"`
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests map[string]int64 `json:"requests"`
	Errors   map[string]int64 `json:"errors"`
	Chat     ChatCounters     `json:"chat"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

func (m *Metrics) ConnectionOpened()   { m.chatInc(func(c *ChatCounters) { c.ConnectionsOpened++ }) }
func (m *Metrics) ConnectionClosed()   { m.chatInc(func(c *ChatCounters) { c.ConnectionsClosed++ }) }
func (m *Metrics) ConnectionRejected() { m.chatInc(func(c *ChatCounters) { c.ConnectionsRejected++ }) }
func (m *Metrics) MessagePersisted()   { m.chatInc(func(c *ChatCounters) { c.MessagesPersisted++ }) }
func (m *Metrics) PersistenceFailed()  { m.chatInc(func(c *ChatCounters) { c.PersistenceFailures++ }) }
func (m *Metrics) DeliveryDropped()    { m.chatInc(func(c *ChatCounters) { c.DeliveriesDropped++ }) }

func (m *Metrics) chatInc(fn func(*ChatCounters)) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.chat)
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{Requests: map[string]int64{}, Errors: map[string]int64{}}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		Requests: make(map[string]int64, len(m.requestCount)),
		Errors:   make(map[string]int64, len(m.errorCount)),
		Chat:     m.chat,
	}
	for k, v := range m.requestCount {
		snap.Requests[k] = v
	}
	for k, v := range m.errorCount {
		snap.Errors[k] = v
	}
	return snap
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
