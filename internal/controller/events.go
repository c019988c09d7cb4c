package controller

import (
	"errors"
	"fmt"
)

// EventName identifies an asynchronous event pushed by the gateway.
type EventName string

const (
	EventSerialPortList    EventName = "serialport:list"
	EventSerialPortOpen    EventName = "serialport:open"
	EventSerialPortClose   EventName = "serialport:close"
	EventSerialPortError   EventName = "serialport:error"
	EventSerialPortRead    EventName = "serialport:read"
	EventSerialPortWrite   EventName = "serialport:write"
	EventGrblStatus        EventName = "grbl:status"
	EventGrblParserState   EventName = "grbl:parserstate"
	EventGCodeStatusChange EventName = "gcode:statuschange"
)

// ErrUnknownEvent is returned by ParseEventName for names outside the event vocabulary.
var ErrUnknownEvent = errors.New("unknown event name")

var events = [...]EventName{
	EventSerialPortList,
	EventSerialPortOpen,
	EventSerialPortClose,
	EventSerialPortError,
	EventSerialPortRead,
	EventSerialPortWrite,
	EventGrblStatus,
	EventGrblParserState,
	EventGCodeStatusChange,
}

// Events returns every supported event name in declaration order.
func Events() []EventName {
	out := make([]EventName, len(events))
	copy(out, events[:])

	return out
}

func (e EventName) Known() bool {
	for _, known := range events {
		if e == known {
			return true
		}
	}

	return false
}

func (e EventName) String() string {
	return string(e)
}

func ParseEventName(raw string) (EventName, error) {
	name := EventName(raw)
	if !name.Known() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEvent, raw)
	}

	return name, nil
}
