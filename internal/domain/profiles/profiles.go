// Package profiles selects device command profiles by manufacturer and model.
// Each manufacturer uses different key codes or press patterns for certain
// functions; a profile maps canonical command identifiers to key codes plus a
// press style. Profiles are loaded from JSON files and validated at load time
// so dispatch never sees a malformed mapping.
package profiles

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// KeyPress is the press style of a command.
type KeyPress int

const (
	// PressShort is a single key event.
	PressShort KeyPress = iota
	// PressLong is a scripted start-of-long / delay / end-of-long sequence.
	PressLong
	// PressDoubleClick sends the same short key event twice back-to-back.
	PressDoubleClick
	// PressBegin starts a long-press span explicitly.
	PressBegin
	// PressEnd stops a long-press span explicitly.
	PressEnd
)

var keyPressNames = map[string]KeyPress{
	"SHORT":        PressShort,
	"LONG":         PressLong,
	"DOUBLE_CLICK": PressDoubleClick,
	"BEGIN":        PressBegin,
	"END":          PressEnd,
}

// Command is a key code with its press style.
type Command struct {
	Keycode string
	Action  KeyPress
}

// Profile maps canonical command identifiers to device commands for devices
// matching a manufacturer (and optionally model) prefix.
type Profile struct {
	Manufacturer   string
	Model          string
	Features       []string
	SimpleCommands []string
	CommandMap     map[string]Command
}

// mediaPlayerCommands maps the hub's canonical media-player command ids to
// default Android TV key codes.
var mediaPlayerCommands = map[string]string{
	"on":              "POWER",
	"off":             "POWER",
	"toggle":          "POWER",
	"play_pause":      "MEDIA_PLAY_PAUSE",
	"stop":            "MEDIA_STOP",
	"previous":        "MEDIA_PREVIOUS",
	"next":            "MEDIA_NEXT",
	"fast_forward":    "MEDIA_FAST_FORWARD",
	"rewind":          "MEDIA_REWIND",
	"volume_up":       "VOLUME_UP",
	"volume_down":     "VOLUME_DOWN",
	"mute_toggle":     "VOLUME_MUTE",
	"channel_up":      "CHANNEL_UP",
	"channel_down":    "CHANNEL_DOWN",
	"cursor_up":       "DPAD_UP",
	"cursor_down":     "DPAD_DOWN",
	"cursor_left":     "DPAD_LEFT",
	"cursor_right":    "DPAD_RIGHT",
	"cursor_enter":    "DPAD_CENTER",
	"function_red":    "PROG_RED",
	"function_green":  "PROG_GREEN",
	"function_yellow": "PROG_YELLOW",
	"function_blue":   "PROG_BLUE",
	"home":            "HOME",
	"menu":            "MENU",
	"context_menu":    "TV_MEDIA_CONTEXT_MENU",
	"guide":           "GUIDE",
	"info":            "INFO",
	"back":            "BACK",
	"digit_0":         "0",
	"digit_1":         "1",
	"digit_2":         "2",
	"digit_3":         "3",
	"digit_4":         "4",
	"digit_5":         "5",
	"digit_6":         "6",
	"digit_7":         "7",
	"digit_8":         "8",
	"digit_9":         "9",
	"record":          "MEDIA_RECORD",
	"my_recordings":   "DVR",
	"live":            "TV",
	"eject":           "MEDIA_EJECT",
	"open_close":      "MEDIA_CLOSE",
	"audio_track":     "MEDIA_AUDIO_TRACK",
	"subtitle":        "CAPTIONS",
	"settings":        "SETTINGS",
	"search":          "SEARCH",
}

// companionFeatures are added to a matched profile when the companion
// protocol is enabled for the device.
var companionFeatures = []string{
	"media_album",
	"media_artist",
	"media_image_url",
	"media_position",
	"media_duration",
	"media_type",
	"seek",
}

// Command resolves a command identifier to a device command. Lookup order:
// profile command map, built-in media-player commands, literal KEYCODE_
// names, numeric key codes.
func (p *Profile) Command(cmdID string) (Command, bool) {
	if cmd, ok := p.CommandMap[cmdID]; ok {
		return cmd, true
	}
	if keycode, ok := mediaPlayerCommands[strings.ToLower(cmdID)]; ok {
		return Command{Keycode: keycode}, true
	}
	// raw key codes, intended for testing
	if strings.HasPrefix(cmdID, "KEYCODE_") {
		return Command{Keycode: cmdID}, true
	}
	if _, err := strconv.Atoi(cmdID); err == nil {
		return Command{Keycode: cmdID}, true
	}
	return Command{}, false
}

func (p *Profile) clone() Profile {
	cp := *p
	cp.Features = append([]string{}, p.Features...)
	cp.SimpleCommands = append([]string{}, p.SimpleCommands...)
	cp.CommandMap = make(map[string]Command, len(p.CommandMap))
	for k, v := range p.CommandMap {
		cp.CommandMap[k] = v
	}
	return cp
}

// Registry holds the loaded device profiles plus the built-in default.
type Registry struct {
	profiles []Profile
	fallback Profile
}

// NewRegistry creates a registry with only the built-in default profile.
func NewRegistry() *Registry {
	return &Registry{fallback: defaultProfile()}
}

func defaultProfile() Profile {
	return Profile{
		Manufacturer: "default",
		Features: []string{
			"on_off", "toggle", "volume", "volume_up_down", "mute_toggle",
			"play_pause", "next", "previous", "home", "menu",
			"channel_switcher", "dpad", "select_source", "media_title",
			"color_buttons", "fast_forward", "rewind", "numpad", "guide",
			"info", "eject", "open_close", "audio_track", "subtitle",
			"record", "stop",
		},
		CommandMap: map[string]Command{},
	}
}

// Load reads all profile JSON files from the given directory. Invalid files
// are skipped with an error log; a file named manufacturer "default"
// replaces the built-in default profile.
func (r *Registry) Load(path string) error {
	files, err := filepath.Glob(filepath.Join(path, "*.json"))
	if err != nil {
		return err
	}
	sort.Strings(files)

	r.profiles = nil
	for _, file := range files {
		profile, err := loadProfileFile(file)
		if err != nil {
			log.Error().Err(err).Str("file", filepath.Base(file)).Msg("Skipping device profile")
			continue
		}
		log.Debug().Str("file", filepath.Base(file)).Msg("Loaded device profile")
		if profile.Manufacturer == "default" {
			r.fallback = profile
		}
		r.profiles = append(r.profiles, profile)
	}
	log.Info().Int("count", len(r.profiles)).Msg("Loaded device profiles")
	return nil
}

type rawCommand struct {
	Keycode any    `json:"keycode"`
	Action  string `json:"action"`
}

type profileFile struct {
	Manufacturer   string                `json:"manufacturer"`
	Model          string                `json:"model"`
	Features       []string              `json:"features"`
	SimpleCommands []string              `json:"simple_commands"`
	CommandMap     map[string]rawCommand `json:"command_map"`
}

func loadProfileFile(file string) (Profile, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Profile{}, err
	}
	var pf profileFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return Profile{}, err
	}
	if pf.Manufacturer == "" {
		return Profile{}, fmt.Errorf("missing manufacturer")
	}

	cmdMap := make(map[string]Command, len(pf.CommandMap))
	for id, raw := range pf.CommandMap {
		cmd, err := raw.toCommand()
		if err != nil {
			return Profile{}, fmt.Errorf("command %q: %w", id, err)
		}
		cmdMap[id] = cmd
	}
	return Profile{
		Manufacturer:   pf.Manufacturer,
		Model:          pf.Model,
		Features:       pf.Features,
		SimpleCommands: pf.SimpleCommands,
		CommandMap:     cmdMap,
	}, nil
}

func (s rawCommand) toCommand() (Command, error) {
	var keycode string
	switch v := s.Keycode.(type) {
	case string:
		keycode = v
	case float64:
		keycode = strconv.Itoa(int(v))
	default:
		return Command{}, fmt.Errorf("invalid keycode type %T", s.Keycode)
	}
	if keycode == "" {
		return Command{}, fmt.Errorf("missing keycode")
	}

	action := PressShort
	if s.Action != "" {
		var ok bool
		action, ok = keyPressNames[strings.ToUpper(s.Action)]
		if !ok {
			return Command{}, fmt.Errorf("unknown action %q", s.Action)
		}
	}
	return Command{Keycode: keycode, Action: action}, nil
}

// Match selects a profile by case-insensitive prefix matching: manufacturer
// first, then model if the profile specifies one. First match wins; the
// default profile applies otherwise. With companion enabled, the companion
// feature set is added to a copy of the matched profile.
func (r *Registry) Match(manufacturer, model string, companion bool) Profile {
	var selected *Profile
	for i := range r.profiles {
		p := &r.profiles[i]
		if !strings.HasPrefix(strings.ToUpper(manufacturer), strings.ToUpper(p.Manufacturer)) {
			continue
		}
		if p.Model != "" {
			if strings.HasPrefix(strings.ToUpper(model), strings.ToUpper(p.Model)) {
				selected = p
				break
			}
			continue
		}
		selected = p
		break
	}
	if selected == nil {
		log.Info().Str("manufacturer", manufacturer).Str("model", model).
			Msg("No matching device profile, using default")
		selected = &r.fallback
	}

	profile := selected.clone()
	if companion {
		profile.Features = append(profile.Features, companionFeatures...)
	}
	return profile
}
