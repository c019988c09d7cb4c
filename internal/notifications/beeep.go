package notifications

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

// BeeepSender shows desktop notifications through the platform notifier.
type BeeepSender struct {
	logger *slog.Logger
	notify func(title, message string, icon any) error
}

func NewBeeepSender(appName string, logger *slog.Logger) *BeeepSender {
	if logger == nil {
		logger = slog.Default().With("component", "notifications")
	}
	if appName != "" {
		beeep.AppName = appName
	}

	return &BeeepSender{logger: logger, notify: beeep.Notify}
}

func (s *BeeepSender) Send(payload Payload) {
	if s == nil || s.notify == nil {
		return
	}

	payload, ok := payload.Normalized()
	if !ok {
		return
	}

	if err := s.notify(payload.Title, payload.Content, ""); err != nil {
		s.logger.Warn("desktop notification failed", "title", payload.Title, "source", payload.Source, "error", err)
	}
}
