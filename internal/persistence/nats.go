package persistence

import (
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/campus-portal/helpdesk/internal/config"
)

// NATS wraps a core NATS connection used as the cross-process chat bus.
type NATS struct {
	Conn *nats.Conn
}

// NewNATS dials the server; it keeps reconnecting forever once connected.
func NewNATS(cfg config.NATSConfig, logger *zap.Logger) (*NATS, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.User != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	logger.Info("connected to nats", zap.String("url", conn.ConnectedUrl()))
	return &NATS{Conn: conn}, nil
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() {
	if n == nil || n.Conn == nil {
		return
	}
	if err := n.Conn.Drain(); err != nil {
		n.Conn.Close()
	}
}

// Ping reports whether the connection is currently usable.
func (n *NATS) Ping() error {
	if n == nil || n.Conn == nil {
		return nil
	}
	if !n.Conn.IsConnected() {
		return nats.ErrConnectionClosed
	}
	return nil
}
