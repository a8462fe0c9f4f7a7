// Package device derives device fingerprints and display names from
// User-Agent strings.
package device

import (
	"fmt"
	"strings"

	"github.com/mssola/useragent"

	"authcore/internal/crypto"
)

const unknownDevice = "Unknown Device"

// Fingerprint returns a stable SHA-256 fingerprint of the browser family,
// major version, OS and form factor. The IP address is deliberately left out:
// it changes on every network hop. Returns "" for an empty User-Agent.
func Fingerprint(userAgentString string) string {
	if userAgentString == "" {
		return ""
	}

	ua := useragent.New(userAgentString)
	browser, version := ua.Browser()

	majorVersion := "unknown"
	if major, _, _ := strings.Cut(version, "."); major != "" {
		majorVersion = major
	}

	platform := "desktop"
	if ua.Mobile() {
		platform = "mobile"
	}

	data := fmt.Sprintf("%s|%s|%s|%s",
		normalize(browser), majorVersion, normalize(ua.OS()), platform)
	return crypto.CreateHash(data)
}

// Match compares a stored fingerprint with the current one in constant time.
// An empty stored fingerprint never matches.
func Match(stored, current string) bool {
	if stored == "" {
		return false
	}
	return crypto.SecureCompare(stored, current)
}

// DisplayName turns a User-Agent into "Browser on OS", e.g. "Chrome on macOS"
// or "Safari on iPhone".
func DisplayName(userAgentString string) string {
	if userAgentString == "" {
		return unknownDevice
	}

	ua := useragent.New(userAgentString)
	browser, _ := ua.Browser()

	if ua.Mobile() {
		if platform := ua.Platform(); platform != "" {
			return strings.TrimSpace(browser + " on " + platform)
		}
	}

	if browser == "" {
		browser = "Unknown Browser"
	}
	os := ua.OS()
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}
