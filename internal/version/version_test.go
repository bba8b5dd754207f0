package version

import (
	"runtime/debug"
	"testing"
)

func TestResolveFromBuildInfo(t *testing.T) {
	t.Parallel()

	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.4.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	info := resolve(Info{}, bi)
	if info.Version != "v0.4.1" || info.BuildTime != "2026-10-01T12:00:00Z" {
		t.Fatalf("unexpected info %+v", info)
	}
	if got := info.String(); got != "v0.4.1 (0123456789ab-dirty)" {
		t.Fatalf("String() = %q", got)
	}
}

func TestResolveLdflagsWin(t *testing.T) {
	t.Parallel()

	bi := &debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "deadbeef"}},
	}
	info := resolve(Info{Version: "1.2.0", Commit: "cafe"}, bi)
	if info.String() != "1.2.0 (cafe)" {
		t.Fatalf("String() = %q", info.String())
	}
}

func TestResolveWithoutBuildInfo(t *testing.T) {
	t.Parallel()

	if info := resolve(Info{}, nil); info.String() != "dev" {
		t.Fatalf("String() = %q, want dev", info.String())
	}
}
