package apps_test

import (
	"sort"
	"testing"

	"github.com/hubgrid/androidtv-bridge/internal/domain/apps"
)

func TestHomescreenAppsHaveIDMappings(t *testing.T) {
	for _, id := range []string{
		"com.android.systemui",
		"com.google.android.tvlauncher",
		"com.google.android.apps.tv.launcherx",
	} {
		if !apps.IsHomescreenApp(id) {
			t.Errorf("%s not classified as homescreen", id)
		}
		if _, ok := apps.IDMappings[id]; !ok {
			t.Errorf("%s has no id mapping", id)
		}
	}
	if apps.IsHomescreenApp("com.netflix.ninja") {
		t.Error("regular app classified as homescreen")
	}
	if !apps.IsStandbyApp("com.google.android.backdrop") {
		t.Error("backdrop not classified as standby")
	}
}

func TestMatchName(t *testing.T) {
	tests := []struct {
		packageID string
		want      string
	}{
		{"com.google.android.youtube.tv", "YouTube"},
		{"com.amazon.amazonvideo.livingroom", "Prime Video"},
		{"org.xbmc.kodi", "Kodi"},
		{"com.unknown.vendor.app", ""},
	}
	for _, tt := range tests {
		if got := apps.MatchName(tt.packageID); got != tt.want {
			t.Errorf("MatchName(%q) = %q, want %q", tt.packageID, got, tt.want)
		}
	}
}

func TestSourceListSortedAndComplete(t *testing.T) {
	list := apps.SourceList()
	if len(list) != len(apps.LaunchLinks) {
		t.Fatalf("source list has %d entries, launch catalog %d", len(list), len(apps.LaunchLinks))
	}
	if !sort.StringsAreSorted(list) {
		t.Error("source list is not sorted")
	}
	for _, name := range list {
		if _, ok := apps.LaunchLinks[name]; !ok {
			t.Errorf("source %q has no launch link", name)
		}
	}
}
