package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// ConnectorType identifies which link backend reaches the gateway.
type ConnectorType string

const (
	ConnectorIP     ConnectorType = "ip"
	ConnectorSerial ConnectorType = "serial"

	DefaultGatewayPort    = 8000
	DefaultSerialBaud     = 115200
	DefaultControllerBaud = 115200
	DefaultCodec          = "json"
	DefaultRetentionDays  = 7
)

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"`
	LogToFile  bool   `json:"log_to_file" yaml:"log_to_file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

// ConnectionConfig describes how to reach the gateway.
type ConnectionConfig struct {
	Connector  ConnectorType `json:"connector" yaml:"connector"`
	Host       string        `json:"host" yaml:"host"`
	Port       int           `json:"port" yaml:"port"`
	SerialPort string        `json:"serial_port" yaml:"serial_port"`
	SerialBaud int           `json:"serial_baud" yaml:"serial_baud"`
	Codec      string        `json:"codec" yaml:"codec"`
}

// ControllerConfig names the gateway-side serial port driven by the controller.
type ControllerConfig struct {
	Port     string `json:"port" yaml:"port"`
	BaudRate int    `json:"baud_rate" yaml:"baud_rate"`
}

// AuthConfig holds the shared secret used to sign gateway access tokens.
type AuthConfig struct {
	Secret   string `json:"secret" yaml:"secret"`
	Subject  string `json:"subject" yaml:"subject"`
	TokenTTL string `json:"token_ttl" yaml:"token_ttl"`
}

// JournalConfig controls the local traffic journal.
type JournalConfig struct {
	Enabled       bool `json:"enabled" yaml:"enabled"`
	RetentionDays int  `json:"retention_days" yaml:"retention_days"`
}

// NotificationConfig controls desktop notifications for gateway events.
type NotificationConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Events  []string `json:"events" yaml:"events"`
}

// AppConfig is the root persisted configuration.
type AppConfig struct {
	Connection    ConnectionConfig   `json:"connection" yaml:"connection"`
	Controller    ControllerConfig   `json:"controller" yaml:"controller"`
	Auth          AuthConfig         `json:"auth" yaml:"auth"`
	Logging       LoggingConfig      `json:"logging" yaml:"logging"`
	Journal       JournalConfig      `json:"journal" yaml:"journal"`
	Notifications NotificationConfig `json:"notifications" yaml:"notifications"`
}

func Default() AppConfig {
	return AppConfig{
		Connection: ConnectionConfig{
			Connector:  ConnectorIP,
			Host:       "localhost",
			Port:       DefaultGatewayPort,
			SerialBaud: DefaultSerialBaud,
			Codec:      DefaultCodec,
		},
		Controller: ControllerConfig{
			BaudRate: DefaultControllerBaud,
		},
		Auth: AuthConfig{
			Subject: "cncctl",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Journal: JournalConfig{
			Enabled:       false,
			RetentionDays: DefaultRetentionDays,
		},
		Notifications: NotificationConfig{
			Enabled: false,
			Events:  []string{"serialport:error", "gcode:statuschange"},
		},
	}
}

// Load reads path as YAML when it ends in .yaml or .yml and as JSON otherwise.
// A missing file yields the defaults.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path comes from the command line or the user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if isYAML(cleanPath) {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("decode config yaml: %w", err)
		}
	} else if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	if c.Connection.Connector == "" {
		c.Connection.Connector = ConnectorIP
	}
	if c.Connection.Port <= 0 {
		c.Connection.Port = DefaultGatewayPort
	}
	if c.Connection.SerialBaud <= 0 {
		c.Connection.SerialBaud = DefaultSerialBaud
	}
	if strings.TrimSpace(c.Connection.Codec) == "" {
		c.Connection.Codec = DefaultCodec
	}
	if c.Controller.BaudRate <= 0 {
		c.Controller.BaudRate = DefaultControllerBaud
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Journal.RetentionDays <= 0 {
		c.Journal.RetentionDays = DefaultRetentionDays
	}
}

func (c AppConfig) Validate() error {
	switch c.Connection.Connector {
	case ConnectorIP:
		if strings.TrimSpace(c.Connection.Host) == "" {
			return errors.New("gateway host is required")
		}
		if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
			return fmt.Errorf("gateway port out of range: %d", c.Connection.Port)
		}
	case ConnectorSerial:
		if strings.TrimSpace(c.Connection.SerialPort) == "" {
			return errors.New("serial port is required")
		}
		if c.Connection.SerialBaud <= 0 {
			return errors.New("serial baud must be positive")
		}
	default:
		return fmt.Errorf("unknown connector: %s", c.Connection.Connector)
	}

	switch strings.ToLower(c.Connection.Codec) {
	case "json", "protobuf", "proto":
	default:
		return fmt.Errorf("unknown codec: %s", c.Connection.Codec)
	}

	if c.Controller.BaudRate <= 0 {
		return errors.New("controller baud rate must be positive")
	}
	if _, err := c.Auth.TTL(); err != nil {
		return err
	}

	return nil
}

// TTL parses Auth.TokenTTL; an empty value means zero.
func (a AuthConfig) TTL() (time.Duration, error) {
	raw := strings.TrimSpace(a.TokenTTL)
	if raw == "" {
		return 0, nil
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid token ttl %q: %w", a.TokenTTL, err)
	}
	if ttl < 0 {
		return 0, fmt.Errorf("token ttl must not be negative: %s", ttl)
	}

	return ttl, nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var (
		raw []byte
		err error
	)
	if isYAML(path) {
		raw, err = yaml.Marshal(cfg)
	} else {
		raw, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
