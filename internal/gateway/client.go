// Package gateway implements the message transport to a serial-device gateway on top
// of a frame link: a reconnecting reader, a buffered outbox, and bus-backed subscriptions.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/skobkin/cncbridge/internal/bus"
	"github.com/skobkin/cncbridge/internal/connectors"
	"github.com/skobkin/cncbridge/internal/transport"
)

const (
	MessageAuthenticate = "authenticate"

	defaultOutboxSize   = 128
	defaultMinBackoff   = time.Second
	defaultMaxBackoff   = 15 * time.Second
	defaultWriteTimeout = 8 * time.Second
)

// TokenSource yields the access token sent right after each connect.
type TokenSource interface {
	Token() (string, error)
}

type Option func(*Client)

func WithTokenSource(tokens TokenSource) Option {
	return func(c *Client) { c.tokens = tokens }
}

func WithOutboxSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.outbox = make(chan Message, size)
		}
	}
}

func WithBackoff(minDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		if minDelay > 0 {
			c.minBackoff = minDelay
		}
		if maxDelay >= c.minBackoff {
			c.maxBackoff = maxDelay
		}
	}
}

// Client is a duplex message transport to the gateway. Safe for concurrent use.
type Client struct {
	logger *slog.Logger
	link   transport.Link
	codec  Codec
	bus    bus.MessageBus
	tokens TokenSource
	outbox chan Message

	minBackoff   time.Duration
	maxBackoff   time.Duration
	writeTimeout time.Duration

	pending inflight

	stateMu sync.Mutex
	online  chan struct{}
	status  connectors.ConnectionStatus
}

func NewClient(logger *slog.Logger, b bus.MessageBus, link transport.Link, codec Codec, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default().With("component", "gateway")
	}
	if codec == nil {
		codec = JSONCodec{}
	}

	c := &Client{
		logger:       logger,
		link:         link,
		codec:        codec,
		bus:          b,
		outbox:       make(chan Message, defaultOutboxSize),
		minBackoff:   defaultMinBackoff,
		maxBackoff:   defaultMaxBackoff,
		writeTimeout: defaultWriteTimeout,
		online:       make(chan struct{}),
		status:       connectors.ConnectionStatus{State: connectors.ConnectionStateDisconnected},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) Start(ctx context.Context) {
	go c.runOutbox(ctx)
	go c.runConnector(ctx)
}

// Send queues a message for the gateway. Messages queued while disconnected are
// written after the next connect; a full queue drops the message.
func (c *Client) Send(name string, args ...any) {
	msg := Message{Name: name, Args: append([]any(nil), args...)}
	c.pending.add()
	select {
	case c.outbox <- msg:
	default:
		c.pending.done()
		c.logger.Warn("outbox full, message dropped", "message", name)
	}
}

// Drain blocks until the outbox is empty and the last message has been written or dropped.
func (c *Client) Drain(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.pending.idle():
		return nil
	}
}

// Subscribe calls h with the arguments of every inbound message named event.
func (c *Client) Subscribe(event string, h func(args ...any)) func() {
	return c.bus.SubscribeFunc(connectors.EventTopic(event), func(raw any) {
		msg, ok := raw.(Message)
		if !ok {
			return
		}
		h(msg.Args...)
	})
}

func (c *Client) Status() connectors.ConnectionStatus {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	return c.status
}

func (c *Client) runConnector(ctx context.Context) {
	backoff := c.minBackoff
	for {
		if err := ctx.Err(); err != nil {
			c.setStatus(connectors.ConnectionStateDisconnected, nil)
			return
		}

		c.setStatus(connectors.ConnectionStateConnecting, nil)
		if err := c.link.Connect(ctx); err != nil {
			c.setStatus(connectors.ConnectionStateReconnecting, err)
			c.logger.Error("gateway connect failed", "error", err)
			if !sleepWithContext(ctx, backoff) {
				c.setStatus(connectors.ConnectionStateDisconnected, nil)
				return
			}
			backoff = c.nextBackoff(backoff)
			continue
		}

		if err := c.authenticate(ctx); err != nil {
			c.logger.Error("gateway authentication failed", "error", err)
			_ = c.link.Close()
			c.setStatus(connectors.ConnectionStateReconnecting, err)
			if !sleepWithContext(ctx, backoff) {
				c.setStatus(connectors.ConnectionStateDisconnected, nil)
				return
			}
			backoff = c.nextBackoff(backoff)
			continue
		}

		backoff = c.minBackoff
		c.setStatus(connectors.ConnectionStateConnected, nil)

		err := c.runReader(ctx)
		_ = c.link.Close()
		if ctx.Err() != nil {
			c.setStatus(connectors.ConnectionStateDisconnected, nil)
			return
		}
		c.logger.Warn("gateway link lost", "error", err)
		c.setStatus(connectors.ConnectionStateReconnecting, err)

		if !sleepWithContext(ctx, backoff) {
			c.setStatus(connectors.ConnectionStateDisconnected, nil)
			return
		}
		backoff = c.nextBackoff(backoff)
	}
}

func (c *Client) authenticate(ctx context.Context) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Token()
	if err != nil {
		return err
	}

	// Not recorded on the bus: the token must not reach the journal.
	_, err = c.writeFrame(ctx, Message{Name: MessageAuthenticate, Args: []any{token}})

	return err
}

func (c *Client) runReader(ctx context.Context) error {
	readerDone := make(chan struct{})
	defer close(readerDone)
	go func() {
		select {
		case <-ctx.Done():
			// Unblocks a read without deadline.
			_ = c.link.Close()
		case <-readerDone:
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := c.link.ReadFrame(ctx)
		if err != nil {
			return err
		}

		msg, err := c.codec.Decode(payload)
		if err != nil {
			c.logger.Warn("decode gateway message failed", "len", len(payload), "error", err)
			continue
		}
		c.logger.Debug("received", "message", msg.Name, "args", len(msg.Args))
		c.bus.Publish(connectors.TopicMessageIn, connectors.MessageRecord{
			Direction: connectors.DirectionIn,
			Name:      msg.Name,
			Args:      msg.Args,
			FrameLen:  len(payload),
			At:        time.Now(),
		})
		c.bus.Publish(connectors.EventTopic(msg.Name), msg)
	}
}

func (c *Client) runOutbox(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.outbox:
			if !c.waitOnline(ctx) {
				c.pending.done()
				return
			}
			if err := c.write(ctx, msg); err != nil {
				c.logger.Warn("gateway write failed, message dropped", "message", msg.Name, "error", err)
			}
			c.pending.done()
		}
	}
}

func (c *Client) write(ctx context.Context, msg Message) error {
	frameLen, err := c.writeFrame(ctx, msg)
	if err != nil {
		return err
	}

	c.bus.Publish(connectors.TopicMessageOut, connectors.MessageRecord{
		Direction: connectors.DirectionOut,
		Name:      msg.Name,
		Args:      msg.Args,
		FrameLen:  frameLen,
		At:        time.Now(),
	})

	return nil
}

func (c *Client) writeFrame(ctx context.Context, msg Message) (int, error) {
	payload, err := c.codec.Encode(msg)
	if err != nil {
		return 0, err
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	err = c.link.WriteFrame(writeCtx, payload)
	cancel()
	if err != nil {
		return 0, err
	}
	c.logger.Debug("sent", "message", msg.Name, "payload_len", len(payload))

	return len(payload), nil
}

func (c *Client) waitOnline(ctx context.Context) bool {
	c.stateMu.Lock()
	online := c.online
	c.stateMu.Unlock()

	select {
	case <-ctx.Done():
		return false
	case <-online:
		return true
	}
}

func (c *Client) setStatus(state connectors.ConnectionState, err error) {
	status := connectors.ConnectionStatus{
		State:         state,
		TransportName: c.link.Name(),
		Target:        c.target(),
		Timestamp:     time.Now(),
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		status.Err = err.Error()
	}

	c.stateMu.Lock()
	changed := c.status.State != state || c.status.Err != status.Err
	c.status = status
	isOnline := isClosed(c.online)
	switch {
	case state == connectors.ConnectionStateConnected && !isOnline:
		close(c.online)
	case state != connectors.ConnectionStateConnected && isOnline:
		c.online = make(chan struct{})
	}
	c.stateMu.Unlock()

	if changed {
		c.logger.Info("connection status", "state", state, "target", status.Target, "error", status.Err)
		c.bus.Publish(connectors.TopicConnStatus, status)
	}
}

func (c *Client) target() string {
	if resolver, ok := c.link.(transport.StatusTargetResolver); ok {
		return strings.TrimSpace(resolver.StatusTarget())
	}

	return ""
}

func (c *Client) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > c.maxBackoff {
		return c.maxBackoff
	}

	return next
}

// inflight counts queued messages. It may be waited on while
// other goroutines keep adding.
type inflight struct {
	mu     sync.Mutex
	n      int
	idleCh chan struct{}
}

func (f *inflight) add() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		f.idleCh = make(chan struct{})
	}
	f.n++
}

func (f *inflight) done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		return
	}
	f.n--
	if f.n == 0 {
		close(f.idleCh)
	}
}

// idle is closed once the count drops to zero.
func (f *inflight) idle() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		ch := make(chan struct{})
		close(ch)
		return ch
	}

	return f.idleCh
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
