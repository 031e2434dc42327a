package atvwire

import (
	"strconv"
	"strings"
)

// Android key event codes understood by the remote service. The KEYCODE_
// prefix may be omitted; numeric codes are passed through unchanged.
var keyCodes = map[string]int{
	"HOME":                   3,
	"BACK":                   4,
	"0":                      7,
	"1":                      8,
	"2":                      9,
	"3":                      10,
	"4":                      11,
	"5":                      12,
	"6":                      13,
	"7":                      14,
	"8":                      15,
	"9":                      16,
	"DPAD_UP":                19,
	"DPAD_DOWN":              20,
	"DPAD_LEFT":              21,
	"DPAD_RIGHT":             22,
	"DPAD_CENTER":            23,
	"VOLUME_UP":              24,
	"VOLUME_DOWN":            25,
	"POWER":                  26,
	"MENU":                   82,
	"SEARCH":                 84,
	"MEDIA_PLAY_PAUSE":       85,
	"MEDIA_STOP":             86,
	"MEDIA_NEXT":             87,
	"MEDIA_PREVIOUS":         88,
	"MEDIA_REWIND":           89,
	"MEDIA_FAST_FORWARD":     90,
	"MEDIA_CLOSE":            128,
	"MEDIA_EJECT":            129,
	"MEDIA_RECORD":           130,
	"VOLUME_MUTE":            164,
	"INFO":                   165,
	"CHANNEL_UP":             166,
	"CHANNEL_DOWN":           167,
	"TV":                     170,
	"GUIDE":                  172,
	"DVR":                    173,
	"CAPTIONS":               175,
	"SETTINGS":               176,
	"TV_INPUT":               178,
	"PROG_RED":               183,
	"PROG_GREEN":             184,
	"PROG_YELLOW":            185,
	"PROG_BLUE":              186,
	"MEDIA_AUDIO_TRACK":      222,
	"TV_MEDIA_CONTEXT_MENU":  233,
	"TV_TERRESTRIAL_ANALOG":  235,
	"TV_TERRESTRIAL_DIGITAL": 236,
	"TV_SATELLITE":           237,
	"TV_NETWORK":             241,
	"TV_ANTENNA_CABLE":       242,
	"TV_INPUT_HDMI_1":        243,
	"TV_INPUT_HDMI_2":        244,
	"TV_INPUT_HDMI_3":        245,
	"TV_INPUT_HDMI_4":        246,
	"TV_INPUT_COMPOSITE_1":   247,
	"TV_INPUT_COMPOSITE_2":   248,
	"TV_INPUT_COMPONENT_1":   249,
	"TV_INPUT_COMPONENT_2":   250,
	"TV_INPUT_VGA_1":         251,
	"TV_CONTENTS_MENU":       256,
}

// lookupKeyCode resolves a key name or numeric string to its event code.
func lookupKeyCode(key string) (int, bool) {
	if n, err := strconv.Atoi(key); err == nil {
		return n, true
	}
	name := strings.TrimPrefix(key, "KEYCODE_")
	code, ok := keyCodes[name]
	return code, ok
}
