package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const natsSubjectPrefix = "chat.room."

// NATSBus fans events out over core NATS subjects. Room names are base64url
// encoded since they may contain characters that are not valid in a subject
// token.
type NATSBus struct {
	conn   *nats.Conn
	logger *zap.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewNATSBus wraps an established connection.
func NewNATSBus(conn *nats.Conn, logger *zap.Logger) *NATSBus {
	return &NATSBus{conn: conn, logger: logger}
}

func subjectFor(room string) (string, error) {
	if room == "" {
		return "", errors.New("empty room")
	}
	return natsSubjectPrefix + base64.RawURLEncoding.EncodeToString([]byte(room)), nil
}

func (b *NATSBus) Publish(_ context.Context, room string, payload []byte) error {
	subject, err := subjectFor(room)
	if err != nil {
		return err
	}
	return b.conn.Publish(subject, payload)
}

func (b *NATSBus) Subscribe(ctx context.Context, handle func(payload []byte)) error {
	// callbacks of one subscription run sequentially, preserving order
	sub, err := b.conn.Subscribe(natsSubjectPrefix+"*", func(msg *nats.Msg) {
		handle(msg.Data)
	})
	if err != nil {
		return err
	}
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return err
	}

	b.mu.Lock()
	b.sub = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = b.Close()
	}()

	b.logger.Info("chat bus subscribed", zap.String("backend", "nats"))
	return nil
}

func (b *NATSBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub == nil {
		return nil
	}
	err := b.sub.Unsubscribe()
	b.sub = nil
	if errors.Is(err, nats.ErrConnectionClosed) {
		return nil
	}
	return err
}
