package app

import (
	"testing"

	"github.com/skobkin/cncbridge/internal/config"
	"github.com/skobkin/cncbridge/internal/connectors"
)

func TestTransportNameFromConnector(t *testing.T) {
	tests := []struct {
		name      string
		connector config.ConnectorType
		want      string
	}{
		{name: "ip", connector: config.ConnectorIP, want: "ip"},
		{name: "serial", connector: config.ConnectorSerial, want: "serial"},
		{name: "unknown", connector: "custom", want: "custom"},
		{name: "empty", connector: "", want: "unknown"},
	}

	for _, tc := range tests {
		if got := TransportNameFromConnector(tc.connector); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestConnectionTarget(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ConnectionConfig
		want string
	}{
		{name: "ip", cfg: config.ConnectionConfig{Connector: config.ConnectorIP, Host: "192.168.1.10", Port: 8000}, want: "192.168.1.10:8000"},
		{name: "ipv6", cfg: config.ConnectionConfig{Connector: config.ConnectorIP, Host: "::1", Port: 8000}, want: "[::1]:8000"},
		{name: "ip without host", cfg: config.ConnectionConfig{Connector: config.ConnectorIP, Port: 8000}, want: ""},
		{name: "serial", cfg: config.ConnectionConfig{Connector: config.ConnectorSerial, SerialPort: "/dev/ttyACM0", SerialBaud: 115200}, want: "/dev/ttyACM0"},
		{name: "unknown", cfg: config.ConnectionConfig{Connector: "custom"}, want: ""},
	}

	for _, tc := range tests {
		if got := ConnectionTarget(tc.cfg); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestConnectionStatusFromConfig(t *testing.T) {
	status := ConnectionStatusFromConfig(config.ConnectionConfig{
		Connector:  config.ConnectorSerial,
		SerialPort: "/dev/ttyACM2",
		SerialBaud: 115200,
	})

	if status.State != connectors.ConnectionStateConnecting {
		t.Fatalf("expected connecting state, got %q", status.State)
	}
	if status.TransportName != "serial" {
		t.Fatalf("expected serial transport name, got %q", status.TransportName)
	}
	if status.Target != "/dev/ttyACM2" {
		t.Fatalf("expected serial target, got %q", status.Target)
	}

	if got := ConnectionStatusFromConfig(config.ConnectionConfig{Connector: config.ConnectorIP}).State; got != connectors.ConnectionStateDisconnected {
		t.Fatalf("expected disconnected state without target, got %q", got)
	}
}

func TestNewLink(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.ConnectionConfig
		wantName string
		wantErr  bool
	}{
		{name: "ip", cfg: config.ConnectionConfig{Connector: config.ConnectorIP, Host: "localhost", Port: 8000}, wantName: "ip"},
		{name: "serial", cfg: config.ConnectionConfig{Connector: config.ConnectorSerial, SerialPort: "/dev/ttyACM0"}, wantName: "serial"},
		{name: "unknown", cfg: config.ConnectionConfig{Connector: "bluetooth"}, wantErr: true},
	}

	for _, tc := range tests {
		link, err := NewLink(tc.cfg)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if link.Name() != tc.wantName {
			t.Fatalf("%s: expected link %q, got %q", tc.name, tc.wantName, link.Name())
		}
	}
}
