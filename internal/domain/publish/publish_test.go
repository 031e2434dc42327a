package publish_test

import (
	"testing"
	"time"

	"github.com/hubgrid/androidtv-bridge/internal/domain/fusion"
	"github.com/hubgrid/androidtv-bridge/internal/domain/publish"
)

func TestApplyEmitsOnlyChangedKeys(t *testing.T) {
	p := publish.New()

	diff := p.Apply(fusion.Attributes{
		fusion.KeyState:  fusion.StateOn,
		fusion.KeyVolume: 10,
	}, true)
	if len(diff) != 2 {
		t.Fatalf("expected full first diff, got %v", diff)
	}

	diff = p.Apply(fusion.Attributes{
		fusion.KeyState:  fusion.StateOn,
		fusion.KeyVolume: 20,
	}, true)
	if len(diff) != 1 {
		t.Fatalf("expected only the volume change, got %v", diff)
	}
	if diff[fusion.KeyVolume] != 20 {
		t.Errorf("expected volume 20, got %v", diff[fusion.KeyVolume])
	}
}

func TestApplyDropsUnchangedUpdate(t *testing.T) {
	p := publish.New()
	p.Apply(fusion.Attributes{fusion.KeyState: fusion.StatePlaying}, true)

	diff := p.Apply(fusion.Attributes{fusion.KeyState: fusion.StatePlaying}, true)
	if len(diff) != 0 {
		t.Errorf("expected empty diff for unchanged update, got %v", diff)
	}
}

func TestApplyComparesSourceListByValue(t *testing.T) {
	p := publish.New()
	p.Apply(fusion.Attributes{fusion.KeySourceList: []string{"YouTube", "Netflix"}}, false)

	diff := p.Apply(fusion.Attributes{fusion.KeySourceList: []string{"YouTube", "Netflix"}}, false)
	if len(diff) != 0 {
		t.Errorf("expected identical source list to be dropped, got %v", diff)
	}

	diff = p.Apply(fusion.Attributes{fusion.KeySourceList: []string{"YouTube"}}, false)
	if len(diff) != 1 {
		t.Errorf("expected changed source list to be emitted, got %v", diff)
	}
}

func TestLiveUpdateNeverLeavesDeviceUnavailable(t *testing.T) {
	tests := []struct {
		name     string
		previous string
	}{
		{"previously unavailable", fusion.StateUnavailable},
		{"previously unknown", fusion.StateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := publish.New()
			p.Apply(fusion.Attributes{fusion.KeyState: tt.previous}, false)

			diff := p.Apply(fusion.Attributes{fusion.KeyVolume: 30}, true)
			state, ok := diff[fusion.KeyState]
			if !ok {
				t.Fatalf("expected a forced state key, got %v", diff)
			}
			if state == fusion.StateUnavailable || state == fusion.StateUnknown {
				t.Errorf("state must not stay %v on a live update", state)
			}
		})
	}
}

func TestExplicitStateWinsOverForcedState(t *testing.T) {
	p := publish.New()
	p.Apply(fusion.Attributes{fusion.KeyState: fusion.StateUnavailable}, false)

	diff := p.Apply(fusion.Attributes{fusion.KeyState: fusion.StateOff}, true)
	if diff[fusion.KeyState] != fusion.StateOff {
		t.Errorf("expected explicit OFF to win, got %v", diff[fusion.KeyState])
	}
}

func TestNonLiveUpdateMayStayUnavailable(t *testing.T) {
	p := publish.New()
	p.Apply(fusion.Attributes{fusion.KeyState: fusion.StateUnavailable}, false)

	diff := p.Apply(fusion.Attributes{fusion.KeyVolume: 5}, false)
	if _, ok := diff[fusion.KeyState]; ok {
		t.Errorf("non-live update must not force a state, got %v", diff)
	}
}

func TestPositionUpdatesAreStamped(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p := publish.New().WithClock(func() time.Time { return fixed })

	diff := p.Apply(fusion.Attributes{fusion.KeyPosition: 42, fusion.KeyDuration: 90}, true)
	stamp, ok := diff[fusion.KeyPositionUpdatedAt]
	if !ok {
		t.Fatalf("expected a position timestamp, got %v", diff)
	}
	if stamp != fixed.Format(time.RFC3339) {
		t.Errorf("expected stamp %q, got %v", fixed.Format(time.RFC3339), stamp)
	}
}

func TestResetForcesFullRepublish(t *testing.T) {
	p := publish.New()
	p.Apply(fusion.Attributes{fusion.KeyState: fusion.StateOn, fusion.KeyVolume: 10}, true)
	p.Reset()

	diff := p.Apply(fusion.Attributes{fusion.KeyState: fusion.StateOn, fusion.KeyVolume: 10}, true)
	if len(diff) != 2 {
		t.Errorf("expected full diff after reset, got %v", diff)
	}
}
