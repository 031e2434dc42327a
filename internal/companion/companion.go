// Package companion talks the Google Cast protocol to an Android TV to
// obtain rich playback state (title, artwork, position) and to control
// volume and seeking. It supplements the remote protocol, which only knows
// power, current app and volume.
package companion

import (
	"strings"
	"time"
)

// PlayerState is the playback state reported by the cast receiver, already
// mapped to the hub vocabulary.
type PlayerState string

const (
	StateOn        PlayerState = "ON"
	StatePlaying   PlayerState = "PLAYING"
	StatePaused    PlayerState = "PAUSED"
	StateBuffering PlayerState = "BUFFERING"
)

// playerStates maps the receiver's player state strings. Unlisted states
// fall back to StateOn.
var playerStates = map[string]PlayerState{
	"UNKNOWN":   StateOn,
	"IDLE":      StatePlaying,
	"BUFFERING": StateBuffering,
	"PAUSED":    StatePaused,
	"PLAYING":   StatePlaying,
}

// MediaType classifies the playing content for the hub.
type MediaType string

const (
	MediaTypeMusic   MediaType = "MUSIC"
	MediaTypeMovie   MediaType = "MOVIE"
	MediaTypeTVShow  MediaType = "TVSHOW"
	MediaTypeVideo   MediaType = "VIDEO"
	MediaTypeUnknown MediaType = ""
)

// Cast metadata types, per the receiver protocol.
const (
	metadataGeneric = 0
	metadataMovie   = 1
	metadataTVShow  = 2
	metadataMusic   = 3
)

// Status is one snapshot of the cast receiver state.
type Status struct {
	AppID        string
	AppName      string
	Title        string
	Artist       string
	SubTitle     string
	ImageURL     string
	ContentType  string
	MetadataType int
	PlayerState  PlayerState
	Duration     time.Duration
	Position     time.Duration
	VolumeLevel  int
	Muted        bool

	HasMedia  bool
	HasVolume bool
}

// MediaType derives the hub media type from the receiver metadata, falling
// back to the content MIME type.
func (s Status) MediaType() MediaType {
	switch s.MetadataType {
	case metadataMovie:
		return MediaTypeMovie
	case metadataTVShow:
		return MediaTypeTVShow
	case metadataMusic:
		return MediaTypeMusic
	}
	if s.Artist != "" {
		return MediaTypeMusic
	}
	switch {
	case strings.HasPrefix(s.ContentType, "audio/"):
		return MediaTypeMusic
	case strings.HasPrefix(s.ContentType, "video/"):
		return MediaTypeVideo
	}
	return MediaTypeUnknown
}

// StatusHandler receives polled receiver snapshots.
type StatusHandler func(Status)

// Session is an established companion connection to one device.
type Session interface {
	// Connect opens the cast connection and starts status polling.
	Connect() error
	// Close stops polling and tears the connection down.
	Close()
	// Connected reports whether the session is currently usable.
	Connected() bool

	// Seek jumps the current media by the given offset in seconds.
	Seek(seconds int) error
	// SeekTo jumps the current media to an absolute position.
	SeekTo(seconds float64) error
	// SetVolume sets the receiver volume, 0-100.
	SetVolume(percent int) error
	// SetMuted sets the receiver mute state.
	SetMuted(muted bool) error
	// VolumeUp raises the volume by step percent.
	VolumeUp(step int) error
	// VolumeDown lowers the volume by step percent.
	VolumeDown(step int) error

	// OnStatus registers the handler for polled snapshots.
	OnStatus(handler StatusHandler)
}
