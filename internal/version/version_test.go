package version_test

import (
	"strings"
	"testing"

	"github.com/hubgrid/androidtv-bridge/internal/version"
)

func TestGetInfo(t *testing.T) {
	info := version.GetInfo()

	if info.Name != version.Name {
		t.Errorf("Expected name '%s', got '%s'", version.Name, info.Name)
	}
	if info.Version != version.Version {
		t.Errorf("Expected version '%s', got '%s'", version.Version, info.Version)
	}
}

func TestString(t *testing.T) {
	info := version.Info{Name: "androidtv-bridge", Version: "1.2.3"}

	str := info.String()
	if str != "androidtv-bridge v1.2.3" {
		t.Errorf("Unexpected version string: %s", str)
	}

	info.GitCommit = "abcdef1234567890"
	info.BuildTime = "2026-01-15T10:00:00Z"
	str = info.String()

	if !strings.Contains(str, "(abcdef1)") {
		t.Errorf("Expected short commit hash in '%s'", str)
	}
	if !strings.Contains(str, "built 2026-01-15T10:00:00Z") {
		t.Errorf("Expected build time in '%s'", str)
	}
}
