package companion

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vishen/go-chromecast/application"
	"github.com/vishen/go-chromecast/cast"
)

const (
	castPort     = 8009
	pollInterval = 2 * time.Second
)

// CastSession implements Session on top of the Google Cast protocol.
type CastSession struct {
	host string

	mu        sync.Mutex
	app       *application.Application
	stop      chan struct{}
	handlers  []StatusHandler
	lastLevel int
}

// NewCastSession creates an unconnected session for the device at host.
func NewCastSession(host string) *CastSession {
	return &CastSession{host: host, lastLevel: -1}
}

// Connect implements Session.
func (s *CastSession) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.app != nil {
		return nil
	}

	app := application.NewApplication(application.WithCacheDisabled(true))
	if err := app.Start(s.host, castPort); err != nil {
		return fmt.Errorf("companion connect %s: %w", s.host, err)
	}
	s.app = app
	s.stop = make(chan struct{})
	go s.poll(app, s.stop)

	log.Debug().Str("host", s.host).Msg("Companion session established")
	return nil
}

// Close implements Session.
func (s *CastSession) Close() {
	s.mu.Lock()
	app := s.app
	stop := s.stop
	s.app = nil
	s.stop = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if app != nil {
		if err := app.Close(false); err != nil {
			log.Debug().Err(err).Str("host", s.host).Msg("Companion close failed")
		}
	}
}

// Connected implements Session.
func (s *CastSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.app != nil
}

// OnStatus implements Session.
func (s *CastSession) OnStatus(handler StatusHandler) {
	s.mu.Lock()
	s.handlers = append(s.handlers, handler)
	s.mu.Unlock()
}

// Seek implements Session.
func (s *CastSession) Seek(seconds int) error {
	app, err := s.application()
	if err != nil {
		return err
	}
	return app.Seek(seconds)
}

// SeekTo implements Session.
func (s *CastSession) SeekTo(seconds float64) error {
	app, err := s.application()
	if err != nil {
		return err
	}
	return app.SeekToTime(float32(seconds))
}

// SetVolume implements Session.
func (s *CastSession) SetVolume(percent int) error {
	app, err := s.application()
	if err != nil {
		return err
	}
	return app.SetVolume(float32(clampPercent(percent)) / 100)
}

// SetMuted implements Session.
func (s *CastSession) SetMuted(muted bool) error {
	app, err := s.application()
	if err != nil {
		return err
	}
	return app.SetMuted(muted)
}

// VolumeUp implements Session.
func (s *CastSession) VolumeUp(step int) error {
	return s.stepVolume(step)
}

// VolumeDown implements Session.
func (s *CastSession) VolumeDown(step int) error {
	return s.stepVolume(-step)
}

func (s *CastSession) stepVolume(delta int) error {
	s.mu.Lock()
	level := s.lastLevel
	s.mu.Unlock()
	if level < 0 {
		level = 0
	}
	return s.SetVolume(level + delta)
}

func (s *CastSession) application() (*application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.app == nil {
		return nil, fmt.Errorf("companion session not connected")
	}
	return s.app, nil
}

func (s *CastSession) poll(app *application.Application, stop chan struct{}) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if err := app.Update(); err != nil {
			log.Debug().Err(err).Str("host", s.host).Msg("Companion status update failed")
			continue
		}
		status := statusFromCast(app.Status())

		s.mu.Lock()
		if status.HasVolume {
			s.lastLevel = status.VolumeLevel
		}
		handlers := append([]StatusHandler{}, s.handlers...)
		s.mu.Unlock()

		for _, h := range handlers {
			h(status)
		}
	}
}

// statusFromCast maps one receiver status triple onto a companion snapshot.
func statusFromCast(castApp *cast.Application, castMedia *cast.Media, castVolume *cast.Volume) Status {
	status := Status{PlayerState: StateOn}
	if castApp != nil {
		status.AppID = castApp.AppId
		status.AppName = castApp.DisplayName
	}
	if castVolume != nil {
		status.HasVolume = true
		status.VolumeLevel = clampPercent(int(castVolume.Level*100 + 0.5))
		status.Muted = castVolume.Muted
	}
	if castMedia != nil {
		status.HasMedia = true
		if mapped, ok := playerStates[castMedia.PlayerState]; ok {
			status.PlayerState = mapped
		}
		status.Position = time.Duration(castMedia.CurrentTime * float32(time.Second))
		status.Duration = time.Duration(castMedia.Media.Duration * float32(time.Second))
		status.ContentType = castMedia.Media.ContentType
		status.MetadataType = castMedia.Media.Metadata.MetadataType
		status.Title = castMedia.Media.Metadata.Title
		status.Artist = castMedia.Media.Metadata.Artist
		status.SubTitle = castMedia.Media.Metadata.Subtitle
		if len(castMedia.Media.Metadata.Images) > 0 {
			status.ImageURL = castMedia.Media.Metadata.Images[0].URL
		}
	}
	return status
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
