package notifications

import "strings"

// Payload is one desktop notification about gateway activity.
type Payload struct {
	Title   string
	Content string
	// Source names what raised it: a controller event or "connection".
	Source string
}

// Normalized trims Title and Content and reports whether anything is left to show.
func (p Payload) Normalized() (Payload, bool) {
	p.Title = strings.TrimSpace(p.Title)
	p.Content = strings.TrimSpace(p.Content)

	return p, p.Title != "" || p.Content != ""
}

// Sender delivers notifications. Implementations must not block the caller for long.
type Sender interface {
	Send(payload Payload)
}

// SenderFunc adapts a plain function to Sender.
type SenderFunc func(payload Payload)

func (f SenderFunc) Send(payload Payload) {
	if f != nil {
		f(payload)
	}
}
