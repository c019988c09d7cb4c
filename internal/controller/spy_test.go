package controller

import (
	"bytes"
	"log/slog"
	"sync"
)

type sentMessage struct {
	name string
	args []any
}

type spyTransport struct {
	mu        sync.Mutex
	sent      []sentMessage
	handlers  map[string][]func(args ...any)
	cancelled int
}

func newSpyTransport() *spyTransport {
	return &spyTransport{handlers: make(map[string][]func(args ...any))}
}

func (s *spyTransport) Send(name string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{name: name, args: args})
}

func (s *spyTransport) Subscribe(event string, h func(args ...any)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.handlers[event])
	s.handlers[event] = append(s.handlers[event], h)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.handlers[event][idx] = nil
		s.cancelled++
	}
}

func (s *spyTransport) deliver(event string, args ...any) {
	s.mu.Lock()
	handlers := append([]func(args ...any){}, s.handlers[event]...)
	s.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			h(args...)
		}
	}
}

func (s *spyTransport) last() sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return sentMessage{}
	}

	return s.sent[len(s.sent)-1]
}

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	return logger, &buf
}
