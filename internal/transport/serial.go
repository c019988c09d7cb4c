package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	DefaultSerialBaud        = 115200
	defaultSerialReadTimeout = 300 * time.Millisecond
)

var ErrNotConnected = errors.New("link is not connected")

// SerialLink carries gateway frames over a local serial line.
type SerialLink struct {
	portName string
	baudRate int

	mu      sync.Mutex
	port    serial.Port
	writeMu sync.Mutex
}

func NewSerialLink(portName string, baudRate int) *SerialLink {
	if baudRate <= 0 {
		baudRate = DefaultSerialBaud
	}

	return &SerialLink{
		portName: portName,
		baudRate: baudRate,
	}
}

func (l *SerialLink) Name() string {
	return "serial"
}

func (l *SerialLink) StatusTarget() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.portName == "" {
		return ""
	}

	return fmt.Sprintf("%s@%d", l.portName, l.baudRate)
}

func (l *SerialLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.port != nil
}

func (l *SerialLink) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.portName == "" {
		return errors.New("serial port is empty")
	}

	logger := linkLogger("serial", "port", l.portName, "baud", l.baudRate)
	port, err := serial.Open(l.portName, &serial.Mode{BaudRate: l.baudRate})
	if err != nil {
		logger.Warn("open failed", "error", err)

		return fmt.Errorf("open serial port %q: %w", l.portName, err)
	}
	if err := port.SetReadTimeout(defaultSerialReadTimeout); err != nil {
		_ = port.Close()

		return fmt.Errorf("set serial read timeout: %w", err)
	}
	l.port = port
	logger.Info("connected")

	return nil
}

func (l *SerialLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil

	return err
}

func (l *SerialLink) ReadFrame(ctx context.Context) ([]byte, error) {
	port, err := l.currentPort()
	if err != nil {
		return nil, err
	}

	return readFrame(func(buf []byte) error {
		return readFullWithContext(ctx, port, buf)
	})
}

func (l *SerialLink) WriteFrame(ctx context.Context, payload []byte) error {
	port, err := l.currentPort()
	if err != nil {
		return err
	}

	frame, err := encodeFrame(payload)
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if err := writeFull(ctx, port, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

func (l *SerialLink) currentPort() (serial.Port, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil, ErrNotConnected
	}

	return l.port, nil
}

// ListSerialPorts enumerates serial ports present on this machine, sorted by name.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	sort.Strings(ports)

	return ports, nil
}

// readFullWithContext fills buf, treating zero-byte reads as serial read timeouts.
func readFullWithContext(ctx context.Context, r io.Reader, buf []byte) error {
	read := 0
	for read < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf[read:])
		if err != nil {
			return err
		}
		read += n
	}

	return nil
}

func writeFull(ctx context.Context, w io.Writer, buf []byte) error {
	written := 0
	for written < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := w.Write(buf[written:])
		if err != nil {
			return err
		}
		written += n
	}

	return nil
}
