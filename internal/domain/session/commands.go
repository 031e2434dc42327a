package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hubgrid/androidtv-bridge/internal/domain/apps"
	"github.com/hubgrid/androidtv-bridge/internal/domain/inputs"
	"github.com/hubgrid/androidtv-bridge/internal/domain/profiles"
	"github.com/hubgrid/androidtv-bridge/internal/remote"
)

// longPressHold is the scripted delay between start-of-long and end-of-long.
// The wire protocol has no true hardware long-press.
const longPressHold = 800 * time.Millisecond

// guard verifies the session can accept a command. A broken-credential
// state maps to CONFLICT so the consumer can prompt re-pairing; everything
// short of Connected is SERVICE_UNAVAILABLE. A connected session with a
// half-closed write channel is torn down and reconnected in the background
// instead of letting the command hang on a dead socket.
func (s *Session) guard() Status {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state.needsPairing() {
		return StatusConflict
	}
	if state != StateConnected {
		return StatusServiceUnavailable
	}
	if !s.client.WriteOpen() {
		log.Warn().Str("device", s.logID()).Msg("Write channel closed, reconnecting in background")
		go func() {
			s.Disconnect()
			s.Connect(context.Background(), 0)
		}()
		return StatusServiceUnavailable
	}
	return StatusOK
}

// sendErrorStatus normalizes a send failure to a status code.
func sendErrorStatus(err error) Status {
	switch remote.Kind(err) {
	case remote.KindProtocol:
		return StatusBadRequest
	case remote.KindAuth:
		return StatusConflict
	case remote.KindTransient:
		return StatusServiceUnavailable
	default:
		return StatusServerError
	}
}

// SendKey sends a key with the given press style through the guard.
func (s *Session) SendKey(keycode string, action profiles.KeyPress) Status {
	if st := s.guard(); st != StatusOK {
		return st
	}

	var err error
	switch action {
	case profiles.PressShort:
		err = s.client.SendKey(keycode, remote.DirectionShort)
	case profiles.PressLong:
		if err = s.client.SendKey(keycode, remote.DirectionStartLong); err == nil {
			time.Sleep(longPressHold)
			err = s.client.SendKey(keycode, remote.DirectionEndLong)
		}
	case profiles.PressDoubleClick:
		if err = s.client.SendKey(keycode, remote.DirectionShort); err == nil {
			err = s.client.SendKey(keycode, remote.DirectionShort)
		}
	case profiles.PressBegin:
		err = s.client.SendKey(keycode, remote.DirectionStartLong)
	case profiles.PressEnd:
		err = s.client.SendKey(keycode, remote.DirectionEndLong)
	default:
		return StatusBadRequest
	}

	if err != nil {
		log.Warn().Err(err).Str("device", s.logID()).Str("keycode", keycode).Msg("Key send failed")
		return sendErrorStatus(err)
	}
	return StatusOK
}

// TurnOn sends the power toggle only when the device is known to be off.
// The wire protocol has no dedicated power-on, only a toggle; sending it
// while already on would switch the device off.
func (s *Session) TurnOn() Status {
	if on, known := s.client.IsOn(); known && on {
		return StatusOK
	}
	return s.SendKey("POWER", profiles.PressShort)
}

// TurnOff sends the power toggle only when the device is known to be on.
func (s *Session) TurnOff() Status {
	if on, known := s.client.IsOn(); known && !on {
		return StatusOK
	}
	return s.SendKey("POWER", profiles.PressShort)
}

// SelectSource resolves a source name in order: launch-link catalog, input
// key-code catalog, then the raw string as a launch target (package id or
// deep link). Exactly one path executes.
func (s *Session) SelectSource(name string) Status {
	if st := s.guard(); st != StatusOK {
		return st
	}

	if link, ok := apps.LaunchLinks[name]; ok {
		return s.launch(link)
	}
	if keycode, ok := inputs.Lookup(name); ok {
		return s.SendKey(keycode, profiles.PressShort)
	}
	return s.launch(name)
}

func (s *Session) launch(target string) Status {
	if err := s.client.LaunchApp(target); err != nil {
		log.Warn().Err(err).Str("device", s.logID()).Str("target", target).Msg("App launch failed")
		return sendErrorStatus(err)
	}
	return StatusOK
}

// SendMediaPlayerCommand dispatches a canonical media-player command through
// the active command profile. An unmapped command is the caller's fault; a
// missing profile is a configuration defect on our side.
func (s *Session) SendMediaPlayerCommand(cmdID string) Status {
	if s.profile == nil {
		log.Error().Str("device", s.logID()).Msg("No command profile configured")
		return StatusServerError
	}
	cmd, ok := s.profile.Command(cmdID)
	if !ok {
		return StatusBadRequest
	}
	return s.SendKey(cmd.Keycode, cmd.Action)
}

// VolumeUp raises the volume, through the companion session when enabled
// and connected, otherwise via the key command.
func (s *Session) VolumeUp() Status {
	if s.useCompanionVolume {
		if s.companion != nil && s.companion.Connected() {
			if err := s.companion.VolumeUp(s.volumeStep); err == nil {
				return StatusOK
			}
		}
		log.Warn().Str("device", s.logID()).Msg("Companion volume unavailable, falling back to key command")
	}
	return s.SendKey("VOLUME_UP", profiles.PressShort)
}

// VolumeDown lowers the volume, mirroring VolumeUp.
func (s *Session) VolumeDown() Status {
	if s.useCompanionVolume {
		if s.companion != nil && s.companion.Connected() {
			if err := s.companion.VolumeDown(s.volumeStep); err == nil {
				return StatusOK
			}
		}
		log.Warn().Str("device", s.logID()).Msg("Companion volume unavailable, falling back to key command")
	}
	return s.SendKey("VOLUME_DOWN", profiles.PressShort)
}

// MuteToggle flips the mute state via the key command.
func (s *Session) MuteToggle() Status {
	return s.SendKey("VOLUME_MUTE", profiles.PressShort)
}

// VolumeSet sets an absolute volume level. The remote protocol has no
// absolute volume primitive, so this requires a connected companion session.
func (s *Session) VolumeSet(percent int) Status {
	if percent < 0 || percent > 100 {
		return StatusBadRequest
	}
	if s.companion == nil || !s.companion.Connected() {
		return StatusServiceUnavailable
	}
	if err := s.companion.SetVolume(percent); err != nil {
		log.Warn().Err(err).Str("device", s.logID()).Msg("Companion volume set failed")
		return StatusServerError
	}
	return StatusOK
}

// MediaSeek jumps playback to an absolute position. Requires a connected
// companion session; the remote protocol cannot seek.
func (s *Session) MediaSeek(positionSeconds float64) Status {
	if positionSeconds < 0 {
		return StatusBadRequest
	}
	if s.companion == nil || !s.companion.Connected() {
		return StatusServiceUnavailable
	}
	if err := s.companion.SeekTo(positionSeconds); err != nil {
		log.Warn().Err(err).Str("device", s.logID()).Msg("Companion seek failed")
		return StatusServerError
	}
	return StatusOK
}
