package chat

import "context"

// Bus carries events between processes so that subscribers connected to
// different replicas see the same room traffic.
type Bus interface {
	// Publish sends an encoded event for room to every process, this one
	// included.
	Publish(ctx context.Context, room string, payload []byte) error
	// Subscribe returns once the subscription is active. handle is invoked
	// from a single goroutine, in arrival order, until ctx is done or the
	// bus is closed.
	Subscribe(ctx context.Context, handle func(payload []byte)) error
	Close() error
}
