// Package transport moves length-prefixed frames between this process and a gateway
// over TCP or a local serial line.
package transport

import "context"

// Link is a frame-oriented duplex connection to the gateway.
type Link interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, payload []byte) error
}

type StatusTargetResolver interface {
	StatusTarget() string
}
