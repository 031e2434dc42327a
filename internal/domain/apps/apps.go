// Package apps holds the static application catalogs: launch links for the
// source list, package-id mappings to friendly names, and the system app
// classification used for homescreen and screensaver detection.
package apps

import (
	"sort"
	"strings"
)

// homescreenApps are launcher packages. A device showing one of these is on,
// but idle on the home screen.
var homescreenApps = map[string]struct{}{
	"com.android.systemui":                 {},
	"com.google.android.tvlauncher":        {},
	"com.google.android.apps.tv.launcherx": {},
	"com.spocky.projengmenu":               {}, // Projectivity Launcher
}

// standbyApps are daydream/screensaver packages shown while the device idles.
var standbyApps = map[string]struct{}{
	"com.google.android.backdrop":       {},
	"com.google.android.apps.tv.dreamx": {},
}

// IsHomescreenApp reports whether the package is a home launcher.
// Every package listed here must also be present in IDMappings.
func IsHomescreenApp(packageID string) bool {
	_, ok := homescreenApps[packageID]
	return ok
}

// IsStandbyApp reports whether the package is a daydream/screensaver app.
func IsStandbyApp(packageID string) bool {
	_, ok := standbyApps[packageID]
	return ok
}

// LaunchLinks maps friendly app names to their launch URL or deep link.
// These populate the source list and resolve SelectSource by name.
var LaunchLinks = map[string]string{
	"Youtube":           "https://www.youtube.com",
	"Prime Video":       "https://app.primevideo.com",
	"Plex":              "plex://",
	"Netflix":           "netflix://",
	"HBO Max":           "https://play.hbomax.com",
	"Max":               "https://play.max.com",
	"Emby":              "embyatv://tv.emby.embyatv/startapp",
	"Disney+":           "https://www.disneyplus.com",
	"Apple TV":          "https://tv.apple.com",
	"Spotify":           "spotify://",
	"Ziggo":             "ziggogo://",
	"Videoland":         "videoland-v2://",
	"Steam Link":        "steamlink://",
	"Waipu TV":          "waipu://tv",
	"Magenta TV":        "atv://de.telekom.magentatv",
	"Zattoo":            "zattoo://zattoo.com",
	"Pluto TV":          "https://pluto.tv/",
	"ARD Mediathek":     "https://www.ardmediathek.de/",
	"ZDF Mediathek":     "https://www.zdf.de/filme",
	"Kodi":              "market://launch?id=org.xbmc.kodi",
	"1und1":             "1und1tv://1und1.tv",
	"Arte":              "arte://display",
	"Google Play Store": "https://play.google.com/store/",
	"DVB-C/T/S":         "market://launch?id=org.droidtv.playtv",
	"ATV Inputs":        "market://launch?id=org.droidtv.channels",
	"ATV PlayFI":        "market://launch?id=com.phorus.playfi.tv",
	"ATV Now on TV":     "market://launch?id=org.droidtv.nettvrecommender",
	"ATV Media":         "market://launch?id=org.droidtv.contentexplorer",
	"ATV Browser":       "market://launch?id=com.vewd.core.browserui",
	"Quickline TV":      "market://launch?id=ch.quickline.tv.uhd",
	"myCANAL":           "market://launch?id=com.canal.android.canal",
}

// IDMappings maps foreground package ids to friendly names.
var IDMappings = map[string]string{
	"com.google.android.backdrop":          "Backdrop Daydream",
	"com.google.android.apps.tv.dreamx":    "Backdrop Daydream",
	"com.google.android.katniss":           "Google app",
	"com.android.systemui":                 "Android TV",
	"com.google.android.tvlauncher":        "Android TV",
	"com.google.android.apps.tv.launcherx": "Android TV",
	"com.spocky.projengmenu":               "Android TV",
	"com.google.android.gms":               "Google Play services",
	"com.android.vending":                  "Google Play Store",
	"com.android.tv.settings":              "Settings",
	"com.spotify.tv.android":               "Spotify",
	"com.cbs.ca":                           "Paramount+",
	"com.apple.android.music":              "Apple Music",
	"com.apple.atve.androidtv.appletv":     "Apple TV",
	"net.init7.tv":                         "TV7",
	"com.zattoo.player":                    "Zattoo",
	"com.swisscom.tv2":                     "Swisscom blue TV",
	"ch.srgssr.playsuisse.tv":              "Play Suisse",
	"ch.srf.mobile.srfplayer":              "Play SRF",
	"com.nousguide.android.rbtv":           "Red Bull TV",
	"tv.arte.plus7":                        "ARTE",
	"com.google.android.videos":            "Google TV",
	"tv.wuaki":                             "Rakuten TV",
	"homedia.sky.sport":                    "SKY",
	"com.teamsmart.videomanager.tv":        "SmartTube",
	"com.nathnetwork.supersmart":           "SuperSmart",
	"nl.rtl.videoland.v2":                  "Videoland",
	"com.disney.disneyplus":                "Disney+",
	"com.netflix.ninja":                    "Netflix",
	"org.jellyfin.androidtv":               "Jellyfin",
	"com.discovery.dplay":                  "discovery+",
	"com.talpa.kijk":                       "KIJK",
	"nl.newfaithnetwork.app":               "New Faith Network",
	"nl.uitzendinggemist":                  "NPO Start",
	"com.valvesoftware.steamlink":          "Steam Link",
	"org.videolan.vlc":                     "VLC",
	"com.ziggo.tv":                         "Ziggo GO TV",
	"com.hbo.hbonow":                       "HBO Max",
	"com.wbd.stream":                       "Max",
	"de.swr.avp.ard.tv":                    "ARD Mediathek",
	"com.zdf.android.mediathek":            "ZDF Mediathek",
	"de.exaring.waipu":                     "Waipu TV",
	"de.telekom.magentatv.tv":              "Magenta TV",
	"tv.pluto.android":                     "Pluto TV",
	"com.nvidia.ota":                       "System upgrade",
	"org.droidtv.playtv":                   "DVB-C/T/S",
	"ch.quickline.tv.uhd":                  "Quickline TV",
}

// nameMatching maps package-id substrings to friendly names for apps without
// an exact id mapping. Order matters for overlapping fragments, so this is a
// slice rather than a map.
var nameMatching = []struct {
	fragment string
	name     string
}{
	{"youtube", "YouTube"},
	{"videomanager", "YouTube"},
	{"amazonvideo", "Prime Video"},
	{"apple", "Apple TV"},
	{"plex", "Plex"},
	{"kodi", "Kodi"},
	{"emby", "Emby"},
	{"dune", "Dune HD"},
	{"einsundeins", "1und1 TV"},
}

// MatchName resolves a friendly name for a package id by substring matching
// against the curated fragment table. Returns "" if nothing matches.
func MatchName(packageID string) string {
	for _, m := range nameMatching {
		if strings.Contains(packageID, m.fragment) {
			return m.name
		}
	}
	return ""
}

// SourceList returns the friendly names of the launch catalog, sorted.
func SourceList() []string {
	names := make([]string, 0, len(LaunchLinks))
	for name := range LaunchLinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
