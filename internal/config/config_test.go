package config

import (
	"bytes"
	"go/format"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppConfigFillMissingDefaults(t *testing.T) {
	cfg := AppConfig{}
	cfg.FillMissingDefaults()

	if cfg.Connection.Connector != ConnectorIP {
		t.Fatalf("expected default connector %q, got %q", ConnectorIP, cfg.Connection.Connector)
	}
	if cfg.Connection.Port != DefaultGatewayPort {
		t.Fatalf("expected default port %d, got %d", DefaultGatewayPort, cfg.Connection.Port)
	}
	if cfg.Connection.SerialBaud != DefaultSerialBaud {
		t.Fatalf("expected default serial baud %d, got %d", DefaultSerialBaud, cfg.Connection.SerialBaud)
	}
	if cfg.Connection.Codec != DefaultCodec {
		t.Fatalf("expected default codec %q, got %q", DefaultCodec, cfg.Connection.Codec)
	}
	if cfg.Controller.BaudRate != DefaultControllerBaud {
		t.Fatalf("expected default controller baud %d, got %d", DefaultControllerBaud, cfg.Controller.BaudRate)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Logging.Level)
	}
	if cfg.Journal.RetentionDays != DefaultRetentionDays {
		t.Fatalf("expected default retention %d, got %d", DefaultRetentionDays, cfg.Journal.RetentionDays)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Connection.Host != "localhost" {
		t.Fatalf("expected default host, got %q", cfg.Connection.Host)
	}
}

func TestLoadJSONKeepsDefaultsForMissingSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
  "connection": {"connector": "serial", "serial_port": "/dev/ttyACM0"},
  "controller": {"port": "/dev/ttyUSB0"}
}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Connection.Connector != ConnectorSerial || cfg.Connection.SerialBaud != DefaultSerialBaud {
		t.Fatalf("unexpected connection %#v", cfg.Connection)
	}
	if cfg.Controller.Port != "/dev/ttyUSB0" || cfg.Controller.BaudRate != DefaultControllerBaud {
		t.Fatalf("unexpected controller %#v", cfg.Controller)
	}
	if len(cfg.Notifications.Events) != 2 {
		t.Fatalf("expected default notification events, got %v", cfg.Notifications.Events)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `connection:
  connector: ip
  host: 10.0.0.5
  port: 8001
  codec: protobuf
controller:
  port: COM3
  baud_rate: 250000
auth:
  secret: s3cret
  token_ttl: 12h
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Connection.Host != "10.0.0.5" || cfg.Connection.Port != 8001 || cfg.Connection.Codec != "protobuf" {
		t.Fatalf("unexpected connection %#v", cfg.Connection)
	}
	if cfg.Controller.Port != "COM3" || cfg.Controller.BaudRate != 250000 {
		t.Fatalf("unexpected controller %#v", cfg.Controller)
	}
	ttl, err := cfg.Auth.TTL()
	if err != nil || ttl != 12*time.Hour {
		t.Fatalf("expected 12h ttl, got %s (%v)", ttl, err)
	}
	if cfg.Logging.Format != "text" {
		t.Fatalf("expected default log format, got %q", cfg.Logging.Format)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*AppConfig) {}},
		{name: "empty host", mutate: func(c *AppConfig) { c.Connection.Host = " " }, wantErr: true},
		{name: "port out of range", mutate: func(c *AppConfig) { c.Connection.Port = 70000 }, wantErr: true},
		{name: "serial without port", mutate: func(c *AppConfig) { c.Connection.Connector = ConnectorSerial }, wantErr: true},
		{name: "unknown connector", mutate: func(c *AppConfig) { c.Connection.Connector = "bluetooth" }, wantErr: true},
		{name: "unknown codec", mutate: func(c *AppConfig) { c.Connection.Codec = "xml" }, wantErr: true},
		{name: "bad ttl", mutate: func(c *AppConfig) { c.Auth.TokenTTL = "soon" }, wantErr: true},
		{name: "negative ttl", mutate: func(c *AppConfig) { c.Auth.TokenTTL = "-1h" }, wantErr: true},
	}

	for _, tc := range tests {
		cfg := Default()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yml"} {
		path := filepath.Join(t.TempDir(), "nested", name)
		cfg := Default()
		cfg.Controller.Port = "/dev/ttyUSB1"
		cfg.Journal.Enabled = true

		if err := Save(path, cfg); err != nil {
			t.Fatalf("%s: save: %v", name, err)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("%s: load: %v", name, err)
		}
		if got.Controller.Port != "/dev/ttyUSB1" || !got.Journal.Enabled {
			t.Fatalf("%s: unexpected round trip %#v", name, got)
		}
		if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
			t.Fatalf("%s: expected temp file to be gone, got %v", name, err)
		}
	}
}

func TestConfigSourceIsGofmtClean(t *testing.T) {
	src, err := os.ReadFile("config.go")
	if err != nil {
		t.Fatalf("read config.go: %v", err)
	}
	formatted, err := format.Source(src)
	if err != nil {
		t.Fatalf("format config.go: %v", err)
	}
	if !bytes.Equal(src, formatted) {
		t.Fatalf("config.go is not gofmt-formatted")
	}
}
