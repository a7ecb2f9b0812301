// Package platform implements the per-provider join and caption strategies
// for supported meeting platforms. Adapters are pure sequences of browser
// driver operations guarded by DOM probes; they never touch the filesystem
// or subprocesses directly.
package platform

import (
	"net/url"
	"strings"
)

// Platform identifies a supported conferencing provider.
type Platform string

const (
	PlatformZoom       Platform = "zoom"
	PlatformGoogleMeet Platform = "google_meet"
	PlatformTeams      Platform = "teams"
	PlatformWebex      Platform = "webex"
	PlatformUnknown    Platform = "unknown"
)

// Detect classifies a meeting URL by host substring. It is a pure function
// of its input.
func Detect(rawURL string) Platform {
	url := strings.ToLower(rawURL)
	switch {
	case strings.Contains(url, "zoom.us") || strings.Contains(url, "zoom.com"):
		return PlatformZoom
	case strings.Contains(url, "meet.google.com"):
		return PlatformGoogleMeet
	case strings.Contains(url, "teams.microsoft.com") || strings.Contains(url, "teams.live.com"):
		return PlatformTeams
	case strings.Contains(url, "webex.com"):
		return PlatformWebex
	default:
		return PlatformUnknown
	}
}

// String implements fmt.Stringer.
func (p Platform) String() string { return string(p) }

// Valid reports whether p names a supported platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformZoom, PlatformGoogleMeet, PlatformTeams, PlatformWebex:
		return true
	}
	return false
}

// SanitizeURL strips credentials from a meeting URL for logging.
func SanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "[invalid-url]"
	}
	u.User = nil
	return u.String()
}
