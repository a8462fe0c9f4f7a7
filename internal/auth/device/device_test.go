package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	chromeMac     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	chromeMacNext = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.71 Safari/537.36"
	safariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	firefoxLinux  = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		assertion func(t *testing.T, result string)
	}{
		{
			name:      "empty user agent returns unknown device",
			userAgent: "",
			assertion: func(t *testing.T, result string) {
				assert.Equal(t, "Unknown Device", result)
			},
		},
		{
			name:      "chrome on desktop",
			userAgent: chromeMac,
			assertion: func(t *testing.T, result string) {
				assert.Contains(t, result, "Chrome")
				assert.Contains(t, result, " on ")
				assert.NotContains(t, result, "  ")
			},
		},
		{
			name:      "safari on iphone",
			userAgent: safariIPhone,
			assertion: func(t *testing.T, result string) {
				assert.Contains(t, result, "iPhone")
			},
		},
		{
			name:      "firefox on linux",
			userAgent: firefoxLinux,
			assertion: func(t *testing.T, result string) {
				assert.Contains(t, result, "Firefox")
			},
		},
		{
			name:      "unknown user agent still formatted",
			userAgent: "Unknown/1.0",
			assertion: func(t *testing.T, result string) {
				assert.Contains(t, result, " on ")
				assert.Equal(t, result, strings.TrimSpace(result))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertion(t, DisplayName(tt.userAgent))
		})
	}
}

func TestFingerprint(t *testing.T) {
	t.Run("empty user agent has no fingerprint", func(t *testing.T) {
		assert.Empty(t, Fingerprint(""))
	})

	t.Run("stable across minor browser updates", func(t *testing.T) {
		assert.Equal(t, Fingerprint(chromeMac), Fingerprint(chromeMacNext))
	})

	t.Run("differs across devices", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint(chromeMac), Fingerprint(firefoxLinux))
		assert.NotEqual(t, Fingerprint(chromeMac), Fingerprint(safariIPhone))
	})

	t.Run("is a sha256 hex digest", func(t *testing.T) {
		assert.Len(t, Fingerprint(firefoxLinux), 64)
	})
}

func TestMatch(t *testing.T) {
	fp := Fingerprint(chromeMac)
	assert.True(t, Match(fp, Fingerprint(chromeMacNext)))
	assert.False(t, Match(fp, Fingerprint(firefoxLinux)))
	assert.False(t, Match("", ""))
}
