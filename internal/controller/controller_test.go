package controller

import (
	"reflect"
	"testing"
)

func TestNewSubscribesToEveryEvent(t *testing.T) {
	spy := newSpyTransport()
	New(spy, "/dev/ttyUSB0", 115200)

	for _, event := range Events() {
		if got := len(spy.handlers[string(event)]); got != 1 {
			t.Fatalf("expected one transport subscription for %s, got %d", event, got)
		}
	}
	if got := len(spy.handlers); got != len(Events()) {
		t.Fatalf("expected %d subscribed events, got %d", len(Events()), got)
	}
}

func TestTransportEventsReachListeners(t *testing.T) {
	spy := newSpyTransport()
	c := New(spy, "/dev/ttyUSB0", 115200)
	var got []any
	c.On(EventSerialPortRead, func(args ...any) { got = args })

	spy.deliver("serialport:read", "ok")

	if want := []any{"ok"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestControllersSharingTransportAreIndependent(t *testing.T) {
	spy := newSpyTransport()
	a := New(spy, "COM1", 9600)
	b := New(spy, "COM2", 115200)
	var aCalls, bCalls int
	a.On(EventGrblStatus, func(...any) { aCalls++ })
	b.On(EventGrblStatus, func(...any) { bCalls++ })

	spy.deliver("grbl:status", map[string]any{"activeState": "Idle"})

	if aCalls != 1 || bCalls != 1 {
		t.Fatalf("expected both controllers to dispatch once, got %d and %d", aCalls, bCalls)
	}

	b.Open()
	if want := (sentMessage{name: "open", args: []any{"COM2", 115200}}); !reflect.DeepEqual(spy.last(), want) {
		t.Fatalf("expected %#v, got %#v", want, spy.last())
	}
}

func TestReleaseCancelsTransportSubscriptions(t *testing.T) {
	spy := newSpyTransport()
	c := New(spy, "COM3", 115200)
	calls := 0
	c.On(EventSerialPortOpen, func(...any) { calls++ })

	c.Release()
	c.Release()
	spy.deliver("serialport:open", "COM3")

	if calls != 0 {
		t.Fatalf("expected no dispatch after release, got %d", calls)
	}
	if spy.cancelled != len(Events()) {
		t.Fatalf("expected %d cancellations, got %d", len(Events()), spy.cancelled)
	}
	if len(spy.sent) != 0 {
		t.Fatalf("expected release not to send messages, got %v", spy.sent)
	}
}

func TestAccessors(t *testing.T) {
	c := New(newSpyTransport(), "COM3", 250000)
	if c.Port() != "COM3" || c.BaudRate() != 250000 {
		t.Fatalf("unexpected binding: %s@%d", c.Port(), c.BaudRate())
	}
}
