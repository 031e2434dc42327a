// Package fusion reconciles the partial state reported by the remote
// protocol, the optional companion session and optional external metadata
// into one canonical attribute set. Each callback pass produces a partial
// update map that the caller diffs before publishing.
package fusion

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hubgrid/androidtv-bridge/internal/companion"
	"github.com/hubgrid/androidtv-bridge/internal/domain/apps"
)

// Attributes is a partial or full canonical attribute map.
type Attributes map[string]any

// Canonical attribute keys.
const (
	KeyState             = "state"
	KeySource            = "source"
	KeySourceList        = "source_list"
	KeyVolume            = "volume"
	KeyMuted             = "muted"
	KeyTitle             = "media_title"
	KeyAlbum             = "media_album"
	KeyArtist            = "media_artist"
	KeyPosition          = "media_position"
	KeyDuration          = "media_duration"
	KeyPositionUpdatedAt = "media_position_updated_at"
	KeyMediaType         = "media_type"
	KeyImageURL          = "media_image_url"
)

// Canonical state values.
const (
	StateUnavailable = "UNAVAILABLE"
	StateUnknown     = "UNKNOWN"
	StateOn          = "ON"
	StateOff         = "OFF"
	StateStandby     = "STANDBY"
	StatePlaying     = "PLAYING"
	StatePaused      = "PAUSED"
	StateBuffering   = "BUFFERING"
)

// homescreenImage is shown while a home launcher or screensaver is in the
// foreground, where no app artwork applies.
const homescreenImage = "https://upload.wikimedia.org/wikipedia/commons/2/26/Android_TV_logo.svg"

// positionUpdateInterval throttles position/duration emission so per-second
// playback ticks do not flood the hub.
const positionUpdateInterval = 30 * time.Second

// MetadataResolver looks up a friendly name and icon for an app package.
// The icon is a data URI, or empty.
type MetadataResolver interface {
	Resolve(ctx context.Context, packageID string) (name, icon string)
}

// Fusion holds the reconciliation state for one device.
type Fusion struct {
	metadata     MetadataResolver
	useMetadata  bool
	useCompanion bool

	currentApp   string
	fusedTitle   string
	appIcon      string
	companionArt bool

	lastStatus     companion.Status
	haveStatus     bool
	lastPositionAt time.Time

	extraSources []string

	now func() time.Time
}

// Option configures a Fusion.
type Option func(*Fusion)

// WithMetadata enables external metadata lookups through the resolver.
func WithMetadata(resolver MetadataResolver) Option {
	return func(f *Fusion) {
		f.metadata = resolver
		f.useMetadata = resolver != nil
	}
}

// WithCompanion marks the companion protocol as enabled for this device.
func WithCompanion() Option {
	return func(f *Fusion) {
		f.useCompanion = true
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(f *Fusion) {
		f.now = now
	}
}

// New creates a Fusion.
func New(opts ...Option) *Fusion {
	f := &Fusion{now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetExtraSources merges additional launchable sources (sideloaded apps)
// into the source list.
func (f *Fusion) SetExtraSources(sources []string) {
	f.extraSources = sources
}

// SourceList returns the full, ordered source catalog for this device.
func (f *Fusion) SourceList() []string {
	list := apps.SourceList()
	return append(list, f.extraSources...)
}

// ApplyPower folds a power callback into the attribute set. Power-on always
// reports ON even when no app is known yet; app-derived attributes refine it.
func (f *Fusion) ApplyPower(ctx context.Context, on bool) Attributes {
	if !on {
		update := f.appAttributes(ctx, f.currentApp)
		update[KeyState] = StateOff
		return update
	}
	update := Attributes{KeyState: StateOn}
	for k, v := range f.appAttributes(ctx, f.currentApp) {
		update[k] = v
	}
	return update
}

// ApplyCurrentApp folds a current-app callback into the attribute set.
func (f *Fusion) ApplyCurrentApp(ctx context.Context, appID string) Attributes {
	f.currentApp = appID
	return f.appAttributes(ctx, appID)
}

// ApplyVolume folds a volume callback into the attribute set.
func (f *Fusion) ApplyVolume(level int, muted bool) Attributes {
	return Attributes{
		KeyVolume: level,
		KeyMuted:  muted,
	}
}

// appAttributes resolves the display attributes for the foreground app.
// Home launchers and screensavers short-circuit to a fixed image, an empty
// title and an ON or STANDBY state, bypassing every lookup.
func (f *Fusion) appAttributes(ctx context.Context, appID string) Attributes {
	update := Attributes{}
	if appID == "" {
		return update
	}

	if apps.IsHomescreenApp(appID) || apps.IsStandbyApp(appID) {
		f.fusedTitle = ""
		f.appIcon = ""
		f.companionArt = false
		update[KeyTitle] = ""
		update[KeyImageURL] = homescreenImage
		if apps.IsStandbyApp(appID) {
			update[KeyState] = StateStandby
		} else {
			update[KeyState] = StateOn
		}
		return update
	}

	name, icon := f.resolveApp(ctx, appID)
	f.appIcon = icon

	update[KeyState] = StatePlaying
	update[KeySource] = name
	// A companion media title outranks the app-name heuristic.
	if f.lastStatus.Title == "" || !f.haveStatus {
		f.fusedTitle = name
		update[KeyTitle] = name
	}
	if !f.companionArt {
		update[KeyImageURL] = icon
	}
	return update
}

// resolveApp runs the name resolution chain: id table, substring table,
// external metadata, raw package id.
func (f *Fusion) resolveApp(ctx context.Context, appID string) (string, string) {
	if name, ok := apps.IDMappings[appID]; ok {
		return name, ""
	}
	if name := apps.MatchName(appID); name != "" {
		return name, ""
	}
	if f.useMetadata {
		name, icon := f.metadata.Resolve(ctx, appID)
		if name != "" && name != appID {
			return name, icon
		}
		if icon != "" {
			return appID, icon
		}
	}
	return appID, ""
}

// ApplyCompanionStatus folds a companion snapshot into the attribute set,
// emitting only fields that changed since the previous snapshot.
func (f *Fusion) ApplyCompanionStatus(status companion.Status) Attributes {
	update := Attributes{}
	prev := f.lastStatus
	first := !f.haveStatus
	f.lastStatus = status
	f.haveStatus = true

	if !status.HasMedia {
		if f.companionArt {
			f.companionArt = false
			update[KeyImageURL] = f.fallbackImage()
		}
		return update
	}

	if first || status.PlayerState != prev.PlayerState {
		update[KeyState] = string(status.PlayerState)
	}
	if status.Title != "" && status.Title != f.fusedTitle {
		f.fusedTitle = status.Title
		update[KeyTitle] = status.Title
	}
	if first || status.Artist != prev.Artist {
		update[KeyArtist] = status.Artist
	}
	if first || status.SubTitle != prev.SubTitle {
		update[KeyAlbum] = status.SubTitle
	}
	if mt := status.MediaType(); mt != companion.MediaTypeUnknown && (first || mt != prev.MediaType()) {
		update[KeyMediaType] = string(mt)
	}

	now := f.now()
	durationChanged := first || status.Duration != prev.Duration
	if durationChanged || now.Sub(f.lastPositionAt) >= positionUpdateInterval {
		f.lastPositionAt = now
		update[KeyPosition] = int(status.Position.Seconds())
		update[KeyDuration] = int(status.Duration.Seconds())
	}

	if status.ImageURL != "" {
		if first || status.ImageURL != prev.ImageURL {
			f.companionArt = true
			update[KeyImageURL] = status.ImageURL
		}
	} else if f.companionArt {
		f.companionArt = false
		update[KeyImageURL] = f.fallbackImage()
	}

	if status.HasVolume && (first || status.VolumeLevel != prev.VolumeLevel || status.Muted != prev.Muted) {
		update[KeyVolume] = status.VolumeLevel
		update[KeyMuted] = status.Muted
	}

	if len(update) > 0 {
		log.Debug().Int("fields", len(update)).Msg("Companion status merged")
	}
	return update
}

// fallbackImage is used when companion artwork disappears: the app icon from
// external metadata when available, otherwise empty to clear the image.
func (f *Fusion) fallbackImage() string {
	if f.useMetadata {
		return f.appIcon
	}
	return ""
}
