package app

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/skobkin/cncbridge/internal/config"
	"github.com/skobkin/cncbridge/internal/connectors"
	"github.com/skobkin/cncbridge/internal/transport"
)

// NewLink builds the frame link selected by cfg.Connector.
func NewLink(cfg config.ConnectionConfig) (transport.Link, error) {
	switch cfg.Connector {
	case config.ConnectorIP, "":
		return transport.NewIPLink(cfg.Host, cfg.Port), nil
	case config.ConnectorSerial:
		return transport.NewSerialLink(cfg.SerialPort, cfg.SerialBaud), nil
	default:
		return nil, fmt.Errorf("unknown connector: %q", cfg.Connector)
	}
}

func TransportNameFromConnector(connector config.ConnectorType) string {
	switch connector {
	case config.ConnectorIP:
		return "ip"
	case config.ConnectorSerial:
		return "serial"
	default:
		if value := strings.TrimSpace(string(connector)); value != "" {
			return value
		}
		return "unknown"
	}
}

func ConnectionTarget(cfg config.ConnectionConfig) string {
	switch cfg.Connector {
	case config.ConnectorIP:
		host := strings.TrimSpace(cfg.Host)
		if host == "" {
			return ""
		}
		return net.JoinHostPort(host, strconv.Itoa(cfg.Port))
	case config.ConnectorSerial:
		return strings.TrimSpace(cfg.SerialPort)
	default:
		return ""
	}
}

// ConnectionStatusFromConfig is the status reported before the client has published one.
func ConnectionStatusFromConfig(cfg config.ConnectionConfig) connectors.ConnectionStatus {
	status := connectors.ConnectionStatus{
		State:         connectors.ConnectionStateDisconnected,
		TransportName: TransportNameFromConnector(cfg.Connector),
		Target:        ConnectionTarget(cfg),
	}
	if status.Target != "" {
		status.State = connectors.ConnectionStateConnecting
	}

	return status
}
