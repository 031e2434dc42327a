package profiles_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hubgrid/androidtv-bridge/internal/domain/profiles"
)

func writeProfile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func loadedRegistry(t *testing.T) *profiles.Registry {
	t.Helper()
	dir := t.TempDir()
	writeProfile(t, dir, "sony.json", `{
		"manufacturer": "Sony",
		"features": ["on_off", "play_pause"],
		"command_map": {
			"play_pause": {"keycode": "MEDIA_PLAY_PAUSE"},
			"teletext": {"keycode": 233, "action": "LONG"}
		}
	}`)
	writeProfile(t, dir, "philips_qm16.json", `{
		"manufacturer": "Philips",
		"model": "QM16",
		"features": ["on_off"],
		"command_map": {}
	}`)
	writeProfile(t, dir, "broken.json", `{not json`)
	writeProfile(t, dir, "no_manufacturer.json", `{"model": "X"}`)
	writeProfile(t, dir, "bad_action.json", `{
		"manufacturer": "Acme",
		"command_map": {"up": {"keycode": "DPAD_UP", "action": "TRIPLE_CLICK"}}
	}`)

	r := profiles.NewRegistry()
	if err := r.Load(dir); err != nil {
		t.Fatalf("load: %v", err)
	}
	return r
}

func TestMatchByManufacturerPrefix(t *testing.T) {
	r := loadedRegistry(t)

	p := r.Match("Sony Corporation", "XR-55A95K", false)
	if p.Manufacturer != "Sony" {
		t.Errorf("matched %q", p.Manufacturer)
	}
}

func TestMatchRequiresModelPrefixWhenSet(t *testing.T) {
	r := loadedRegistry(t)

	p := r.Match("Philips", "QM163E", false)
	if p.Model != "QM16" {
		t.Errorf("expected the model-specific profile, got %+v", p)
	}

	// A Philips model outside the prefix falls through to the default.
	p = r.Match("Philips", "OLED806", false)
	if p.Manufacturer != "default" {
		t.Errorf("expected the default profile, got %q", p.Manufacturer)
	}
}

func TestMatchFallsBackToDefault(t *testing.T) {
	r := loadedRegistry(t)

	p := r.Match("NVIDIA", "SHIELD", false)
	if p.Manufacturer != "default" {
		t.Errorf("expected the default profile, got %q", p.Manufacturer)
	}
}

func TestInvalidProfileFilesAreSkipped(t *testing.T) {
	r := loadedRegistry(t)

	// bad_action.json declares manufacturer Acme but fails validation
	// at load time, so Acme devices get the default profile.
	p := r.Match("Acme", "", false)
	if p.Manufacturer != "default" {
		t.Errorf("invalid profile must not match, got %q", p.Manufacturer)
	}
}

func TestCompanionFeaturesAddedToCopy(t *testing.T) {
	r := loadedRegistry(t)

	withCompanion := r.Match("Sony", "XR", true)
	if !hasFeature(withCompanion, "seek") {
		t.Error("companion match must add the seek feature")
	}

	// The registry's stored profile must not accumulate companion features.
	plain := r.Match("Sony", "XR", false)
	if hasFeature(plain, "seek") {
		t.Error("companion features leaked into the stored profile")
	}
}

func hasFeature(p profiles.Profile, feature string) bool {
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}

func TestCommandLookupChain(t *testing.T) {
	r := loadedRegistry(t)
	p := r.Match("Sony", "XR", false)

	tests := []struct {
		name    string
		cmdID   string
		keycode string
		action  profiles.KeyPress
		ok      bool
	}{
		{"profile map wins", "play_pause", "MEDIA_PLAY_PAUSE", profiles.PressShort, true},
		{"numeric keycode with action", "teletext", "233", profiles.PressLong, true},
		{"builtin media command", "cursor_enter", "DPAD_CENTER", profiles.PressShort, true},
		{"builtin is case-insensitive", "Volume_Up", "VOLUME_UP", profiles.PressShort, true},
		{"literal keycode passthrough", "KEYCODE_F1", "KEYCODE_F1", profiles.PressShort, true},
		{"raw numeric passthrough", "167", "167", profiles.PressShort, true},
		{"unknown command", "warp_drive", "", profiles.PressShort, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, ok := p.Command(tt.cmdID)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if cmd.Keycode != tt.keycode || cmd.Action != tt.action {
				t.Errorf("got %+v, want keycode %q action %v", cmd, tt.keycode, tt.action)
			}
		})
	}
}
