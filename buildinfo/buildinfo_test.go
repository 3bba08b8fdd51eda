package buildinfo

import (
	"strings"
	"testing"
)

func TestFullVersion(t *testing.T) {
	defer func(v, c string) { Version, Commit = v, c }(Version, Commit)

	Version, Commit = "1.2.0", ""
	if got := FullVersion(); got != "1.2.0" {
		t.Errorf("FullVersion() = %q", got)
	}
	Commit = "abc1234"
	if got := FullVersion(); got != "1.2.0 (abc1234)" {
		t.Errorf("FullVersion() = %q", got)
	}
}

func TestBuildInfo(t *testing.T) {
	info := BuildInfo()
	if !strings.HasPrefix(info, Name+" ") {
		t.Errorf("BuildInfo() should start with the name, got %q", info)
	}
	if !strings.Contains(info, "OS/Arch:") {
		t.Errorf("BuildInfo() missing platform line: %q", info)
	}
}
