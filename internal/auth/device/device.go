// Package device derives a human-readable device description from the
// User-Agent header. The description is recorded on login audit events so
// operators can spot anomalous sessions.
package device

import (
	"fmt"

	"github.com/mssola/useragent"
)

// ParseUserAgent turns a raw User-Agent string into a short display name
// like "Chrome on Mac OS X". Unknown or empty agents degrade gracefully.
func ParseUserAgent(ua string) string {
	if ua == "" {
		return "Unknown Device"
	}

	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()
	os := parsed.OSInfo().Name

	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	if parsed.Mobile() && parsed.Platform() != "" {
		os = parsed.Platform()
	}
	return fmt.Sprintf("%s on %s", browser, os)
}
