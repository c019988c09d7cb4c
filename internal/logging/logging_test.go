package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skobkin/cncbridge/internal/config"
)

func TestFanoutWriter_ContinuesWhenOneDestinationFails(t *testing.T) {
	var dst bytes.Buffer
	w := newFanoutWriter(errorWriter{err: errors.New("broken stdout")}, &dst)

	n, err := w.Write([]byte("test"))
	if err != nil {
		t.Fatalf("write returned error: %v", err)
	}
	if n != len("test") {
		t.Fatalf("unexpected bytes written: got %d, want %d", n, len("test"))
	}
	if got := dst.String(); got != "test" {
		t.Fatalf("unexpected destination contents: got %q", got)
	}
}

func TestFanoutWriter_AllDestinationsFail(t *testing.T) {
	want := errors.New("first")
	w := newFanoutWriter(errorWriter{err: want}, errorWriter{err: errors.New("second")})

	if _, err := w.Write([]byte("x")); !errors.Is(err, want) {
		t.Fatalf("expected first error, got %v", err)
	}
}

func TestManagerConfigure_LogFileStillReceivesLogsWhenStdoutFails(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	logPath := filepath.Join(t.TempDir(), "logs", "app.log")
	m := NewManager()
	m.stdout = errorWriter{err: errors.New("broken stdout")}
	t.Cleanup(func() { _ = m.Close() })

	if err := m.Configure(config.LoggingConfig{Level: "debug", LogToFile: true, MaxSizeMB: 1}, logPath); err != nil {
		t.Fatalf("configure manager: %v", err)
	}

	slog.Info("file must receive this message")

	if err := m.Close(); err != nil {
		t.Fatalf("close manager: %v", err)
	}

	// #nosec G304 -- logPath is created from t.TempDir() in this test.
	raw, err := os.ReadFile(filepath.Clean(logPath))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(raw, []byte("file must receive this message")) {
		t.Fatalf("log file does not contain test message, contents: %q", string(raw))
	}
}

func TestManagerConfigure_JSONFormat(t *testing.T) {
	origDefault := slog.Default()
	t.Cleanup(func() { slog.SetDefault(origDefault) })

	var out bytes.Buffer
	m := NewManager()
	m.stdout = &out

	if err := m.Configure(config.LoggingConfig{Level: "info", Format: "json"}, ""); err != nil {
		t.Fatalf("configure manager: %v", err)
	}
	m.Logger("gateway").Info("connected", "target", "localhost:8000")
	m.Logger("gateway").Debug("hidden")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %q", len(lines), out.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["component"] != "gateway" || record["msg"] != "connected" {
		t.Fatalf("unexpected record %#v", record)
	}
}

func TestManagerConfigure_RejectsUnknownValues(t *testing.T) {
	m := NewManager()
	if err := m.Configure(config.LoggingConfig{Level: "loud"}, ""); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if err := m.Configure(config.LoggingConfig{Level: "info", Format: "xml"}, ""); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

type errorWriter struct {
	err error
}

func (w errorWriter) Write(_ []byte) (int, error) {
	return 0, w.err
}
