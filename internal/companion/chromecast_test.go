package companion

import (
	"math"
	"testing"

	"github.com/vishen/go-chromecast/cast"
)

func TestPlayerStateMapping(t *testing.T) {
	tests := []struct {
		receiver string
		want     PlayerState
	}{
		{"PLAYING", StatePlaying},
		{"PAUSED", StatePaused},
		{"BUFFERING", StateBuffering},
		{"IDLE", StatePlaying},
		{"UNKNOWN", StateOn},
	}
	for _, tt := range tests {
		if got := playerStates[tt.receiver]; got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.receiver, got, tt.want)
		}
	}
}

func TestStatusFromCast(t *testing.T) {
	castApp := &cast.Application{AppId: "CC1AD845", DisplayName: "Default Media Receiver"}
	castMedia := &cast.Media{
		PlayerState: "PAUSED",
		CurrentTime: 42.5,
		Media: cast.MediaItem{
			ContentType: "video/mp4",
			Duration:    120,
			Metadata: cast.MediaMetadata{
				MetadataType: 1,
				Title:        "Some Movie",
				Subtitle:     "Part One",
				Artist:       "Somebody",
				Images:       []cast.Image{{URL: "https://example.com/cover.jpg"}},
			},
		},
	}
	castVolume := &cast.Volume{Level: 0.8, Muted: true}

	status := statusFromCast(castApp, castMedia, castVolume)

	if status.AppID != "CC1AD845" || status.AppName != "Default Media Receiver" {
		t.Errorf("unexpected app fields: %q/%q", status.AppID, status.AppName)
	}
	if status.PlayerState != StatePaused {
		t.Errorf("expected PAUSED, got %q", status.PlayerState)
	}
	if status.Title != "Some Movie" || status.SubTitle != "Part One" || status.Artist != "Somebody" {
		t.Errorf("unexpected metadata: %q/%q/%q", status.Title, status.SubTitle, status.Artist)
	}
	if status.ImageURL != "https://example.com/cover.jpg" {
		t.Errorf("expected artwork URL, got %q", status.ImageURL)
	}
	// The receiver reports float32 seconds; compare at second granularity.
	if math.Round(status.Position.Seconds()*10) != 425 || math.Round(status.Duration.Seconds()) != 120 {
		t.Errorf("unexpected position/duration: %v/%v", status.Position, status.Duration)
	}
	if !status.HasMedia || !status.HasVolume {
		t.Error("expected media and volume flags")
	}
	if status.VolumeLevel != 80 || !status.Muted {
		t.Errorf("unexpected volume: %d muted=%v", status.VolumeLevel, status.Muted)
	}
}

func TestStatusFromCastWithoutMedia(t *testing.T) {
	status := statusFromCast(nil, nil, nil)
	if status.HasMedia || status.HasVolume {
		t.Errorf("expected empty snapshot, got %+v", status)
	}
	if status.PlayerState != StateOn {
		t.Errorf("expected ON default, got %q", status.PlayerState)
	}
}

func TestClampPercent(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-5, 0},
		{0, 0},
		{55, 55},
		{100, 100},
		{140, 100},
	}
	for _, tt := range tests {
		if got := clampPercent(tt.in); got != tt.want {
			t.Errorf("clampPercent(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
