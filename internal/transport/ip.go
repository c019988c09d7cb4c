package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	DefaultIPPort      = 8000
	defaultDialTimeout = 6 * time.Second
)

// IPLink sends and receives framed traffic over a TCP socket.
type IPLink struct {
	host string
	port int

	mu      sync.Mutex
	conn    net.Conn
	writeMu sync.Mutex
}

func NewIPLink(host string, port int) *IPLink {
	if port <= 0 {
		port = DefaultIPPort
	}

	return &IPLink{host: host, port: port}
}

func (l *IPLink) Name() string {
	return "ip"
}

func (l *IPLink) StatusTarget() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.targetLocked()
}

func (l *IPLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.conn != nil
}

func (l *IPLink) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	target := l.targetLocked()
	logger := linkLogger("ip", "target", target)

	if l.conn != nil {
		logger.Debug("connect skipped: already connected")

		return nil
	}
	if target == "" {
		logger.Warn("connect failed: host is empty")

		return errors.New("ip host is empty")
	}

	dialer := net.Dialer{Timeout: defaultDialTimeout}
	logger.Info("connecting")
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		logger.Warn("connect failed", "error", err)

		return fmt.Errorf("dial tcp: %w", err)
	}
	l.conn = conn
	logger.Info("connected", "remote", conn.RemoteAddr().String())

	return nil
}

func (l *IPLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	logger := linkLogger("ip", "target", l.targetLocked())
	if l.conn == nil {
		logger.Debug("close skipped: not connected")

		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	if err != nil {
		logger.Warn("close failed", "error", err)

		return err
	}
	logger.Info("closed")

	return nil
}

func (l *IPLink) ReadFrame(ctx context.Context) ([]byte, error) {
	conn, err := l.currentConn()
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Time{})
	}

	payload, err := readFrame(ioReadFullFunc(conn))
	if err != nil {
		return nil, err
	}
	linkLogger("ip").Debug("read frame", "len", len(payload))

	return payload, nil
}

func (l *IPLink) WriteFrame(ctx context.Context, payload []byte) error {
	logger := linkLogger("ip")
	conn, err := l.currentConn()
	if err != nil {
		return err
	}

	frame, err := encodeFrame(payload)
	if err != nil {
		logger.Warn("encode frame failed", "payload_len", len(payload), "error", err)

		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
	}
	if _, err := conn.Write(frame); err != nil {
		logger.Warn("write frame failed", "payload_len", len(payload), "error", err)

		return fmt.Errorf("write frame: %w", err)
	}
	logger.Debug("write frame", "payload_len", len(payload), "frame_len", len(frame))

	return nil
}

func (l *IPLink) targetLocked() string {
	if l.host == "" {
		return ""
	}

	return net.JoinHostPort(l.host, strconv.Itoa(l.port))
}

func (l *IPLink) currentConn() (net.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil, ErrNotConnected
	}

	return l.conn, nil
}
