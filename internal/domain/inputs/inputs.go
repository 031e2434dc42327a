// Package inputs maps friendly input-source names to TV input key codes.
package inputs

// KeyCodes maps input names to the KEYCODE_TV_* key sent to switch inputs.
var KeyCodes = map[string]string{
	"HDMI 1":                 "KEYCODE_TV_INPUT_HDMI_1",
	"HDMI 2":                 "KEYCODE_TV_INPUT_HDMI_2",
	"HDMI 3":                 "KEYCODE_TV_INPUT_HDMI_3",
	"HDMI 4":                 "KEYCODE_TV_INPUT_HDMI_4",
	"Toggle Antenna / Cable": "KEYCODE_TV_ANTENNA_CABLE",
	"Toggle Network":         "KEYCODE_TV_NETWORK",
	"Satellite":              "KEYCODE_TV_SATELLITE",
	"Analog TV":              "KEYCODE_TV_TERRESTRIAL_ANALOG",
	"Digital TV":             "KEYCODE_TV_TERRESTRIAL_DIGITAL",
	"Composite 1":            "KEYCODE_TV_INPUT_COMPOSITE_1",
	"Composite 2":            "KEYCODE_TV_INPUT_COMPOSITE_2",
	"Component 1":            "KEYCODE_TV_INPUT_COMPONENT_1",
	"Component 2":            "KEYCODE_TV_INPUT_COMPONENT_2",
	"VGA 1":                  "KEYCODE_TV_INPUT_VGA_1",
}

// Lookup returns the key code for an input name.
func Lookup(name string) (string, bool) {
	code, ok := KeyCodes[name]
	return code, ok
}
