package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/skobkin/cncbridge/internal/bus"
	"github.com/skobkin/cncbridge/internal/config"
	"github.com/skobkin/cncbridge/internal/connectors"
	"github.com/skobkin/cncbridge/internal/controller"
	"github.com/skobkin/cncbridge/internal/notifications"
)

// NotificationEventConnection selects connection status changes in NotificationConfig.Events.
const NotificationEventConnection = "connection"

const maxNotificationContent = 200

// EventSource is the listener half of a controller.
type EventSource interface {
	On(event controller.EventName, fn controller.Handler) controller.ListenerID
	Off(event controller.EventName, id controller.ListenerID)
}

// NotificationService turns selected controller events and link state changes into
// user-facing notifications.
type NotificationService struct {
	bus    bus.MessageBus
	events EventSource
	cfg    config.NotificationConfig
	sender notifications.Sender
	logger *slog.Logger

	connStatusMu     sync.Mutex
	lastConnState    connectors.ConnectionState
	lastConnStateSet bool
}

func NewNotificationService(
	messageBus bus.MessageBus,
	events EventSource,
	cfg config.NotificationConfig,
	sender notifications.Sender,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default().With("component", "app.notifications")
	}

	return &NotificationService{
		bus:    messageBus,
		events: events,
		cfg:    cfg,
		sender: sender,
		logger: logger,
	}
}

// Start registers listeners until ctx is done.
func (s *NotificationService) Start(ctx context.Context) {
	if s == nil || !s.cfg.Enabled || s.sender == nil {
		return
	}

	var (
		registered []registration
		watchConn  bool
	)
	for _, raw := range s.cfg.Events {
		if strings.TrimSpace(raw) == NotificationEventConnection {
			watchConn = true
			continue
		}
		event, err := controller.ParseEventName(raw)
		if err != nil {
			s.logger.Warn("skip notification event", "error", err)
			continue
		}
		if s.events == nil {
			continue
		}
		id := s.events.On(event, func(args ...any) { s.handleEvent(event, args) })
		registered = append(registered, registration{event: event, id: id})
	}

	var connSub bus.Subscription
	if watchConn && s.bus != nil {
		connSub = s.bus.Subscribe(connectors.TopicConnStatus)
	}

	go func() {
		defer func() {
			for _, reg := range registered {
				s.events.Off(reg.event, reg.id)
			}
			if connSub != nil {
				s.bus.Unsubscribe(connSub, connectors.TopicConnStatus)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-connSub:
				if !ok {
					return
				}
				status, ok := raw.(connectors.ConnectionStatus)
				if !ok {
					continue
				}
				s.handleConnectionStatus(status)
			}
		}
	}()
}

type registration struct {
	event controller.EventName
	id    controller.ListenerID
}

func (s *NotificationService) handleEvent(event controller.EventName, args []any) {
	content := describeArgs(args)
	if content == "" {
		content = "(no details)"
	}

	s.send(notifications.Payload{
		Title:   eventTitle(event),
		Content: content,
		Source:  event.String(),
	})
}

func (s *NotificationService) handleConnectionStatus(status connectors.ConnectionStatus) {
	if status.State == "" {
		return
	}

	s.connStatusMu.Lock()
	if s.lastConnStateSet && s.lastConnState == status.State {
		s.connStatusMu.Unlock()

		return
	}
	s.lastConnState = status.State
	s.lastConnStateSet = true
	s.connStatusMu.Unlock()

	if status.State != connectors.ConnectionStateConnected &&
		status.State != connectors.ConnectionStateReconnecting {
		return
	}

	transport := notificationTransportName(status.TransportName)
	if transport == "" {
		transport = "Unknown"
	}
	details := strings.TrimSpace(status.Target)
	if details == "" {
		details = "No connection details"
	}
	if errText := strings.TrimSpace(status.Err); errText != "" {
		details = fmt.Sprintf("%s (error: %s)", details, errText)
	}

	s.send(notifications.Payload{
		Title:   fmt.Sprintf("Gateway %s - %s", transport, status.State),
		Content: details,
		Source:  NotificationEventConnection,
	})
}

func (s *NotificationService) send(notification notifications.Payload) {
	notification, ok := notification.Normalized()
	if !ok {
		return
	}
	s.logger.Debug("sending notification", "title", notification.Title, "source", notification.Source)
	s.sender.Send(notification)
}

func eventTitle(event controller.EventName) string {
	switch event {
	case controller.EventSerialPortError:
		return "Serial port error"
	case controller.EventGCodeStatusChange:
		return "G-code status changed"
	case controller.EventSerialPortOpen:
		return "Serial port opened"
	case controller.EventSerialPortClose:
		return "Serial port closed"
	default:
		return event.String()
	}
}

// describeArgs renders event arguments as space separated text, JSON for structured values.
func describeArgs(args []any) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
			continue
		case string:
			parts = append(parts, v)
		case fmt.Stringer:
			parts = append(parts, v.String())
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				parts = append(parts, fmt.Sprint(v))
				continue
			}
			parts = append(parts, string(raw))
		}
	}

	out := strings.TrimSpace(strings.Join(parts, " "))
	if runes := []rune(out); len(runes) > maxNotificationContent {
		out = string(runes[:maxNotificationContent]) + "..."
	}

	return out
}

func notificationTransportName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ip":
		return "IP"
	case "serial":
		return "Serial"
	default:
		return strings.TrimSpace(name)
	}
}
