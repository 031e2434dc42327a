package hubapi

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hubgrid/androidtv-bridge/internal/domain/session"
	"github.com/hubgrid/androidtv-bridge/internal/domain/setup"
)

// requestTimeout bounds a single hub request, including setup pairing steps.
const requestTimeout = 60 * time.Second

// commandRequest is the payload of "command" messages.
type commandRequest struct {
	CmdID  string `json:"cmd_id"`
	Source string `json:"source,omitempty"`
	Volume *int   `json:"volume,omitempty"`
	// Position is the seek target in seconds.
	Position *float64 `json:"position,omitempty"`
	Keycode  string   `json:"keycode,omitempty"`
}

// setupRequest is the payload of setup flow messages.
type setupRequest struct {
	FlowID    string `json:"flow_id,omitempty"`
	Selection string `json:"selection,omitempty"`
	PIN       string `json:"pin,omitempty"`

	Name                string `json:"name,omitempty"`
	UseExternalMetadata bool   `json:"use_external_metadata,omitempty"`
	UseCompanion        bool   `json:"use_companion,omitempty"`
	UseCompanionVolume  bool   `json:"use_companion_volume,omitempty"`
	UseADBAppList       bool   `json:"use_adb_applist,omitempty"`
	VolumeStep          int    `json:"volume_step,omitempty"`
}

// setupReply is the payload of setup flow responses.
type setupReply struct {
	FlowID     string   `json:"flow_id"`
	Step       int      `json:"step"`
	Candidates []string `json:"candidates,omitempty"`
	DeviceID   string   `json:"device_id,omitempty"`
}

func (s *Server) dispatch(c *client, msg Message) {
	switch msg.Kind {
	case "get_devices":
		s.handleGetDevices(c, msg)
	case "command":
		s.handleCommand(c, msg)
	case "setup_start":
		s.handleSetupStart(c, msg)
	case "setup_select":
		s.handleSetupSelect(c, msg)
	case "setup_pin":
		s.handleSetupPIN(c, msg)
	case "setup_cancel":
		s.handleSetupCancel(c, msg)
	case "remove_device":
		s.handleRemoveDevice(c, msg)
	default:
		log.Warn().Str("kind", msg.Kind).Msg("Unknown hub request")
		s.reply(c, msg, session.StatusBadRequest, nil, "unknown request kind")
	}
}

func (s *Server) handleGetDevices(c *client, msg Message) {
	s.reply(c, msg, session.StatusOK, s.bridge.Store().All(), "")
}

// handleCommand routes a device command to its session. The command surface
// mirrors the hub's media-player entity: power, source, volume, seek and
// the profile-mapped simple commands.
func (s *Server) handleCommand(c *client, msg Message) {
	var req commandRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		s.reply(c, msg, session.StatusBadRequest, nil, "invalid command payload")
		return
	}

	sess, ok := s.bridge.Session(msg.DeviceID)
	if !ok {
		s.reply(c, msg, session.StatusNotFound, nil, "device not found")
		return
	}

	var status session.Status
	switch req.CmdID {
	case "on":
		status = sess.TurnOn()
	case "off":
		status = sess.TurnOff()
	case "select_source":
		if req.Source == "" {
			status = session.StatusBadRequest
		} else {
			status = sess.SelectSource(req.Source)
		}
	case "volume_up":
		status = sess.VolumeUp()
	case "volume_down":
		status = sess.VolumeDown()
	case "mute_toggle":
		status = sess.MuteToggle()
	case "volume":
		if req.Volume == nil {
			status = session.StatusBadRequest
		} else {
			status = sess.VolumeSet(*req.Volume)
		}
	case "seek":
		if req.Position == nil {
			status = session.StatusBadRequest
		} else {
			status = sess.MediaSeek(*req.Position)
		}
	default:
		status = sess.SendMediaPlayerCommand(req.CmdID)
	}

	s.reply(c, msg, status, nil, "")
}

func (s *Server) handleSetupStart(c *client, msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	flow, err := s.bridge.Setup().Begin(ctx)
	if err != nil {
		s.reply(c, msg, session.StatusServerError, nil, err.Error())
		return
	}

	labels := make([]string, 0, len(flow.Candidates))
	for _, cand := range flow.Candidates {
		labels = append(labels, cand.Label)
	}
	s.reply(c, msg, session.StatusOK, setupReply{
		FlowID:     flow.ID,
		Step:       int(flow.Step),
		Candidates: labels,
	}, "")
}

func (s *Server) handleSetupSelect(c *client, msg Message) {
	var req setupRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		s.reply(c, msg, session.StatusBadRequest, nil, "invalid setup payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	flow, err := s.bridge.Setup().SelectDevice(ctx, req.FlowID, req.Selection, setup.Options{
		Name:                req.Name,
		UseExternalMetadata: req.UseExternalMetadata,
		UseCompanion:        req.UseCompanion,
		UseCompanionVolume:  req.UseCompanionVolume,
		UseADBAppList:       req.UseADBAppList,
		VolumeStep:          req.VolumeStep,
	})
	if err != nil {
		s.reply(c, msg, setupErrorStatus(err), nil, err.Error())
		return
	}
	s.reply(c, msg, session.StatusOK, setupReply{FlowID: flow.ID, Step: int(flow.Step)}, "")
}

func (s *Server) handleSetupPIN(c *client, msg Message) {
	var req setupRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		s.reply(c, msg, session.StatusBadRequest, nil, "invalid setup payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	record, err := s.bridge.Setup().EnterPIN(ctx, req.FlowID, req.PIN)
	if err != nil {
		s.reply(c, msg, setupErrorStatus(err), nil, err.Error())
		return
	}
	s.reply(c, msg, session.StatusOK, setupReply{
		FlowID:   req.FlowID,
		Step:     int(setup.StepDone),
		DeviceID: record.ID,
	}, "")
}

func (s *Server) handleSetupCancel(c *client, msg Message) {
	var req setupRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		s.reply(c, msg, session.StatusBadRequest, nil, "invalid setup payload")
		return
	}
	s.bridge.Setup().Cancel(req.FlowID)
	s.reply(c, msg, session.StatusOK, nil, "")
}

func (s *Server) handleRemoveDevice(c *client, msg Message) {
	if msg.DeviceID == "" {
		s.reply(c, msg, session.StatusBadRequest, nil, "device_id required")
		return
	}
	if !s.bridge.Store().Remove(msg.DeviceID) {
		s.reply(c, msg, session.StatusNotFound, nil, "device not found")
		return
	}
	s.reply(c, msg, session.StatusOK, nil, "")
}

func setupErrorStatus(err error) session.Status {
	switch {
	case errors.Is(err, setup.ErrFlowNotFound), errors.Is(err, setup.ErrDeviceNotFound):
		return session.StatusNotFound
	case errors.Is(err, setup.ErrWrongStep):
		return session.StatusConflict
	default:
		return session.StatusServerError
	}
}
