package controller

import (
	"fmt"
	"strings"
)

// Outbound message names understood by the gateway.
const (
	MessageCommand = "command"
	MessageWrite   = "write"
	MessageOpen    = "open"
	MessageClose   = "close"
	MessageList    = "list"
)

// Commands handled by the gateway. The vocabulary is not enforced locally.
const (
	CommandLoad       = "load"
	CommandUnload     = "unload"
	CommandStart      = "start"
	CommandStop       = "stop"
	CommandPause      = "pause"
	CommandResume     = "resume"
	CommandFeedHold   = "feedhold"
	CommandCycleStart = "cyclestart"
	CommandReset      = "reset"
	CommandHoming     = "homing"
	CommandUnlock     = "unlock"
)

// Sender transmits a named outbound message. Delivery is the sender's concern.
type Sender interface {
	Send(name string, args ...any)
}

// CommandChannel encodes actions against a single gateway serial port.
type CommandChannel struct {
	sender   Sender
	port     string
	baudRate int
}

func NewCommandChannel(sender Sender, port string, baudRate int) *CommandChannel {
	return &CommandChannel{sender: sender, port: port, baudRate: baudRate}
}

func (c *CommandChannel) Port() string {
	return c.port
}

func (c *CommandChannel) BaudRate() int {
	return c.baudRate
}

// Command sends (port, name, args...) as a command message.
func (c *CommandChannel) Command(name string, args ...any) {
	payload := make([]any, 0, len(args)+2)
	payload = append(payload, c.port, name)
	payload = append(payload, args...)
	c.sender.Send(MessageCommand, payload...)
}

// Write sends data to the port as is.
func (c *CommandChannel) Write(data any) {
	c.sender.Send(MessageWrite, c.port, data)
}

// WriteLine sends the trimmed text form of data terminated by exactly one newline.
func (c *CommandChannel) WriteLine(data any) {
	c.Write(normalizeLine(data))
}

func (c *CommandChannel) Open() {
	c.sender.Send(MessageOpen, c.port, c.baudRate)
}

func (c *CommandChannel) Close() {
	c.sender.Send(MessageClose, c.port)
}

// List asks the gateway to enumerate its serial ports. It is not scoped to the port.
func (c *CommandChannel) List() {
	c.sender.Send(MessageList)
}

func normalizeLine(data any) string {
	return strings.TrimSpace(textOf(data)) + "\n"
}

func textOf(data any) string {
	switch v := data.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
