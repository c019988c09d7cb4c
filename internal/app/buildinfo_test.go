package app

import (
	"runtime/debug"
	"testing"
)

func stubBuild(t *testing.T, version, date, commit string, info *debug.BuildInfo) {
	t.Helper()

	origVersion, origDate, origCommit, origRead := Version, BuildDate, Commit, readBuildInfo
	t.Cleanup(func() {
		Version, BuildDate, Commit, readBuildInfo = origVersion, origDate, origCommit, origRead
	})

	Version, BuildDate, Commit = version, date, commit
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return info, info != nil
	}
}

func TestCurrentBuild(t *testing.T) {
	stamped := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "1a2b3c4d5e6f"},
			{Key: "vcs.time", Value: "2026-02-01T10:00:00Z"},
		},
	}

	tests := []struct {
		name    string
		version string
		date    string
		commit  string
		info    *debug.BuildInfo
		want    Build
	}{
		{name: "defaults to dev", want: Build{Version: "dev"}},
		{name: "trims ldflags", version: " 1.2.3 ", date: " 2026-01-30 ", want: Build{Version: "1.2.3", Date: "2026-01-30"}},
		{name: "devel module ignored", info: &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, want: Build{Version: "dev"}},
		{name: "fills from vcs stamp", version: "dev", info: stamped, want: Build{Version: "0.3.0", Date: "2026-02-01T10:00:00Z", Commit: "1a2b3c4"}},
		{name: "ldflags win", version: "1.0.0", date: "2026-01-30", commit: "beef", info: stamped, want: Build{Version: "1.0.0", Date: "2026-01-30", Commit: "beef"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubBuild(t, tt.version, tt.date, tt.commit, tt.info)
			if got := CurrentBuild(); got != tt.want {
				t.Fatalf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestBuildDateYMD(t *testing.T) {
	tests := map[string]string{
		"":                          "",
		"2026-01-30T14:55:03Z":      "2026-01-30",
		"2026-01-30T23:30:00-05:00": "2026-01-31",
		"2026-01-30":                "2026-01-30",
		"2026-01-30 nightly":        "2026-01-30",
		"not-a-date":                "not-a-date",
	}

	for in, want := range tests {
		if got := (Build{Date: in}).DateYMD(); got != want {
			t.Fatalf("%q: expected %q, got %q", in, want, got)
		}
	}
}

func TestBuildString(t *testing.T) {
	tests := []struct {
		build Build
		want  string
	}{
		{build: Build{Version: "dev"}, want: "cncbridge dev"},
		{build: Build{Version: "0.1.2", Date: "2026-01-30T14:55:03Z"}, want: "cncbridge 0.1.2 (2026-01-30)"},
		{build: Build{Version: "0.1.2", Date: "2026-01-30", Commit: "1a2b3c4"}, want: "cncbridge 0.1.2 (2026-01-30, 1a2b3c4)"},
		{build: Build{Version: "0.1.2", Commit: "1a2b3c4"}, want: "cncbridge 0.1.2 (1a2b3c4)"},
	}

	for _, tt := range tests {
		if got := tt.build.String(); got != tt.want {
			t.Fatalf("expected %q, got %q", tt.want, got)
		}
	}
}
