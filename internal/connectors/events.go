package connectors

import "time"

// ConnectionState describes the gateway link lifecycle state.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateReconnecting ConnectionState = "reconnecting"
)

// ConnectionStatus is a bus event snapshot of current link status.
type ConnectionStatus struct {
	State         ConnectionState
	Err           string
	TransportName string
	Target        string
	Timestamp     time.Time
}

// Direction tells whether a message was received from or sent to the gateway.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// MessageRecord is a traffic diagnostic published for every decoded or written message.
type MessageRecord struct {
	Direction Direction
	Name      string
	Args      []any
	FrameLen  int
	At        time.Time
}
