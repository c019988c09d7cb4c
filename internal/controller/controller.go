// Package controller is the application-facing side of a gateway connection:
// it fans gateway events out to registered listeners and encodes commands for one
// remote serial port.
package controller

import (
	"log/slog"
	"sync"
)

// Transport is the duplex message channel shared by controllers.
// Subscribe must deliver every inbound message tagged event to h; cancel releases it.
type Transport interface {
	Sender
	Subscribe(event string, h func(args ...any)) (cancel func())
}

// Option customizes a Controller.
type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Controller binds an EventRegistry and a CommandChannel to one (port, baud rate) pair.
type Controller struct {
	*EventRegistry
	*CommandChannel

	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	cancels []func()
}

// New subscribes to every gateway event on t and returns a controller for port.
func New(t Transport, port string, baudRate int, opts ...Option) *Controller {
	c := &Controller{
		logger: slog.Default().With("component", "controller"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("port", port)
	c.EventRegistry = NewEventRegistry(c.logger)
	c.CommandChannel = NewCommandChannel(t, port, baudRate)

	c.cancels = make([]func(), 0, len(events))
	for _, name := range events {
		event := name
		cancel := t.Subscribe(string(event), func(args ...any) {
			if c.isClosed() {
				return
			}
			c.Dispatch(event, args...)
		})
		c.cancels = append(c.cancels, cancel)
	}
	c.logger.Debug("controller created", "baud_rate", baudRate)

	return c
}

// Release drops the transport subscriptions. It does not close the remote port;
// use Close for that. Listeners stay registered but are no longer invoked.
func (c *Controller) Release() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		if cancel != nil {
			cancel()
		}
	}
	c.logger.Debug("controller released transport subscriptions", "count", len(cancels))
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}
