package fusion_test

import (
	"context"
	"testing"
	"time"

	"github.com/hubgrid/androidtv-bridge/internal/companion"
	"github.com/hubgrid/androidtv-bridge/internal/domain/fusion"
)

type staticResolver struct {
	name string
	icon string
}

func (r staticResolver) Resolve(_ context.Context, _ string) (string, string) {
	return r.name, r.icon
}

func TestHomescreenShortCircuit(t *testing.T) {
	tests := []struct {
		name      string
		app       string
		wantState string
	}{
		{"google launcher", "com.google.android.tvlauncher", fusion.StateOn},
		{"daydream", "com.google.android.backdrop", fusion.StateStandby},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Metadata enabled on purpose: the short-circuit must bypass it.
			f := fusion.New(fusion.WithMetadata(staticResolver{name: "Should Not Appear"}))

			update := f.ApplyCurrentApp(context.Background(), tt.app)
			if update[fusion.KeyTitle] != "" {
				t.Errorf("expected empty title, got %v", update[fusion.KeyTitle])
			}
			if update[fusion.KeyState] != tt.wantState {
				t.Errorf("expected state %v, got %v", tt.wantState, update[fusion.KeyState])
			}
			if update[fusion.KeyImageURL] == "" {
				t.Error("expected the fixed homescreen image")
			}
		})
	}
}

func TestCurrentAppNameResolutionChain(t *testing.T) {
	tests := []struct {
		name     string
		app      string
		resolver fusion.MetadataResolver
		want     string
	}{
		{"id mapping", "com.netflix.ninja", nil, "Netflix"},
		{"substring match", "com.liskovsoft.youtube.tv", nil, "YouTube"},
		{"external metadata", "com.some.obscure.app", staticResolver{name: "Obscure App"}, "Obscure App"},
		{"raw package fallback", "com.some.obscure.app", nil, "com.some.obscure.app"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []fusion.Option{}
			if tt.resolver != nil {
				opts = append(opts, fusion.WithMetadata(tt.resolver))
			}
			f := fusion.New(opts...)

			update := f.ApplyCurrentApp(context.Background(), tt.app)
			if update[fusion.KeySource] != tt.want {
				t.Errorf("expected source %q, got %v", tt.want, update[fusion.KeySource])
			}
			if update[fusion.KeyState] != fusion.StatePlaying {
				t.Errorf("expected PLAYING for a regular app, got %v", update[fusion.KeyState])
			}
		})
	}
}

func TestCompanionTitleOutranksAppName(t *testing.T) {
	f := fusion.New(fusion.WithCompanion())

	f.ApplyCompanionStatus(companion.Status{
		HasMedia:    true,
		Title:       "Some Movie",
		PlayerState: companion.StatePlaying,
	})

	update := f.ApplyCurrentApp(context.Background(), "com.netflix.ninja")
	if _, ok := update[fusion.KeyTitle]; ok {
		t.Errorf("app-name heuristic must not overwrite the companion title, got %v", update)
	}
	if update[fusion.KeySource] != "Netflix" {
		t.Errorf("source should still resolve, got %v", update[fusion.KeySource])
	}
}

func TestPowerOffForcesStateOff(t *testing.T) {
	f := fusion.New()
	f.ApplyCurrentApp(context.Background(), "com.netflix.ninja")

	update := f.ApplyPower(context.Background(), false)
	if update[fusion.KeyState] != fusion.StateOff {
		t.Errorf("expected OFF, got %v", update[fusion.KeyState])
	}
}

func TestPowerOnAlwaysReportsState(t *testing.T) {
	t.Run("no app known", func(t *testing.T) {
		f := fusion.New()

		update := f.ApplyPower(context.Background(), true)
		if update[fusion.KeyState] != fusion.StateOn {
			t.Errorf("power-on without an app must report ON, got %v", update)
		}
	})

	t.Run("app refines state", func(t *testing.T) {
		f := fusion.New()
		f.ApplyCurrentApp(context.Background(), "com.netflix.ninja")

		update := f.ApplyPower(context.Background(), true)
		if update[fusion.KeyState] != fusion.StatePlaying {
			t.Errorf("app-derived state must refine ON, got %v", update[fusion.KeyState])
		}
	})
}

func TestVolumeCallbackPassesThrough(t *testing.T) {
	f := fusion.New()
	update := f.ApplyVolume(55, true)

	if update[fusion.KeyVolume] != 55 {
		t.Errorf("expected volume 55, got %v", update[fusion.KeyVolume])
	}
	if update[fusion.KeyMuted] != true {
		t.Errorf("expected muted true, got %v", update[fusion.KeyMuted])
	}
}

func TestCompanionEmitsOnlyChanges(t *testing.T) {
	f := fusion.New(fusion.WithCompanion())

	status := companion.Status{
		HasMedia:    true,
		PlayerState: companion.StatePlaying,
		Title:       "Episode 1",
		Artist:      "Somebody",
	}
	first := f.ApplyCompanionStatus(status)
	if first[fusion.KeyState] != string(companion.StatePlaying) {
		t.Errorf("expected initial state, got %v", first)
	}

	second := f.ApplyCompanionStatus(status)
	for _, key := range []string{fusion.KeyState, fusion.KeyTitle, fusion.KeyArtist} {
		if _, ok := second[key]; ok {
			t.Errorf("unchanged %s must not be re-emitted, got %v", key, second)
		}
	}
}

func TestCompanionPositionThrottle(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := fusion.New(fusion.WithCompanion(), fusion.WithClock(func() time.Time { return now }))

	status := companion.Status{
		HasMedia:    true,
		PlayerState: companion.StatePlaying,
		Position:    10 * time.Second,
		Duration:    300 * time.Second,
	}
	first := f.ApplyCompanionStatus(status)
	if _, ok := first[fusion.KeyPosition]; !ok {
		t.Fatalf("expected initial position, got %v", first)
	}

	// Position ticks within the throttle window are suppressed.
	status.Position = 12 * time.Second
	now = now.Add(2 * time.Second)
	second := f.ApplyCompanionStatus(status)
	if _, ok := second[fusion.KeyPosition]; ok {
		t.Errorf("position inside throttle window must be suppressed, got %v", second)
	}

	// A duration change bypasses the throttle.
	status.Duration = 600 * time.Second
	third := f.ApplyCompanionStatus(status)
	if _, ok := third[fusion.KeyPosition]; !ok {
		t.Errorf("duration change must bypass the throttle, got %v", third)
	}

	// After the window the position flows again.
	status.Position = 50 * time.Second
	now = now.Add(31 * time.Second)
	fourth := f.ApplyCompanionStatus(status)
	if _, ok := fourth[fusion.KeyPosition]; !ok {
		t.Errorf("position after throttle window must be emitted, got %v", fourth)
	}
}

func TestCompanionArtworkFallback(t *testing.T) {
	f := fusion.New(
		fusion.WithCompanion(),
		fusion.WithMetadata(staticResolver{name: "Player App", icon: "data:image/png;base64,abc"}),
	)
	f.ApplyCurrentApp(context.Background(), "com.some.player")

	withArt := f.ApplyCompanionStatus(companion.Status{
		HasMedia:    true,
		PlayerState: companion.StatePlaying,
		ImageURL:    "https://example.com/cover.jpg",
	})
	if withArt[fusion.KeyImageURL] != "https://example.com/cover.jpg" {
		t.Fatalf("companion artwork must win, got %v", withArt[fusion.KeyImageURL])
	}

	lostArt := f.ApplyCompanionStatus(companion.Status{
		HasMedia:    true,
		PlayerState: companion.StatePlaying,
	})
	if lostArt[fusion.KeyImageURL] != "data:image/png;base64,abc" {
		t.Errorf("expected app-icon fallback, got %v", lostArt[fusion.KeyImageURL])
	}
}
