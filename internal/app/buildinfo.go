package app

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

var (
	// Version is filled by ldflags in release builds.
	Version = "dev"
	// BuildDate is filled by ldflags in release builds.
	BuildDate = ""
	// Commit is filled by ldflags; otherwise taken from the embedded VCS stamp.
	Commit = ""
)

const shortCommitLen = 7

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Build describes the running binary.
type Build struct {
	Version string
	Date    string
	Commit  string
}

// CurrentBuild merges ldflags values with what the Go toolchain embedded.
// ldflags win; module and VCS metadata only fill gaps.
func CurrentBuild() Build {
	b := Build{
		Version: strings.TrimSpace(Version),
		Date:    strings.TrimSpace(BuildDate),
		Commit:  strings.TrimSpace(Commit),
	}

	if info, ok := readBuildInfo(); ok {
		if (b.Version == "" || b.Version == "dev") && info.Main.Version != "" && info.Main.Version != "(devel)" {
			b.Version = strings.TrimPrefix(info.Main.Version, "v")
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if b.Commit == "" {
					b.Commit = setting.Value
				}
			case "vcs.time":
				if b.Date == "" {
					b.Date = setting.Value
				}
			}
		}
	}
	if b.Version == "" {
		b.Version = "dev"
	}
	if len(b.Commit) > shortCommitLen {
		b.Commit = b.Commit[:shortCommitLen]
	}

	return b
}

// DateYMD trims an RFC 3339 or date-prefixed build stamp to YYYY-MM-DD.
func (b Build) DateYMD() string {
	raw := strings.TrimSpace(b.Date)
	if raw == "" {
		return ""
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.UTC().Format(time.DateOnly)
	}
	if len(raw) >= len(time.DateOnly) {
		if _, err := time.Parse(time.DateOnly, raw[:len(time.DateOnly)]); err == nil {
			return raw[:len(time.DateOnly)]
		}
	}

	return raw
}

// String renders e.g. "cncbridge 0.1.2 (2026-01-30, 1a2b3c4)".
func (b Build) String() string {
	var extra []string
	if date := b.DateYMD(); date != "" {
		extra = append(extra, date)
	}
	if b.Commit != "" {
		extra = append(extra, b.Commit)
	}
	if len(extra) == 0 {
		return fmt.Sprintf("%s %s", Name, b.Version)
	}

	return fmt.Sprintf("%s %s (%s)", Name, b.Version, strings.Join(extra, ", "))
}
