package privacy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "ipv4 standard address", input: "192.168.1.47", expected: "192.168.1.0"},
		{name: "ipv4 localhost", input: "127.0.0.1", expected: "127.0.0.0"},
		{name: "ipv6 compressed address", input: "2001:db8:85a3::8a2e:370:7334", expected: "2001:0db8:85a3::"},
		{name: "ipv6 loopback", input: "::1", expected: "0000:0000:0000::"},
		{name: "empty string", input: "", expected: "unknown"},
		{name: "invalid ip", input: "not-an-ip", expected: "invalid"},
		{name: "ip with port (invalid)", input: "192.168.1.1:8080", expected: "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AnonymizeIP(tt.input))
		})
	}
}

func TestMaskIdentifier(t *testing.T) {
	t.Run("long identifiers keep two runes at each end", func(t *testing.T) {
		got := MaskIdentifier("user-1234567890")
		assert.Equal(t, "us"+strings.Repeat("*", 11)+"90", got)
	})

	t.Run("short identifiers are fully masked", func(t *testing.T) {
		assert.Equal(t, "***", MaskIdentifier("bob"))
		assert.Equal(t, "********", MaskIdentifier("12345678"))
	})

	t.Run("empty stays empty", func(t *testing.T) {
		assert.Empty(t, MaskIdentifier(""))
	})
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a****@example.com", MaskEmail("alice@example.com"))
	assert.Equal(t, "j@example.org", MaskEmail("j@example.org"))
	// no local part: treated as an opaque identifier
	assert.Equal(t, strings.Repeat("*", 8), MaskEmail("@bad.com"))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+"+strings.Repeat("*", 9)+"67", MaskPhone("+15551234567"))
	assert.Equal(t, "+* *** *** **67", MaskPhone("+1 555 123 4567"))
}

func TestMaskFingerprint(t *testing.T) {
	assert.Equal(t, "abcdef01...", MaskFingerprint("abcdef0123456789"))
	assert.Equal(t, "****", MaskFingerprint("abcd"))
}

func TestMaskDispatch(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "email", input: "alice@example.com", expected: "a****@example.com"},
		{name: "ipv4", input: "10.1.2.3", expected: "10.1.2.0"},
		{name: "phone", input: "+15551234567", expected: "+" + strings.Repeat("*", 9) + "67"},
		{name: "opaque", input: "device-fingerprint-01", expected: "de" + strings.Repeat("*", 17) + "01"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Mask(tt.input))
		})
	}
}

func TestMaskNeverLeaksPlaintext(t *testing.T) {
	for _, secret := range []string{"alice@example.com", "user-1234567890", "+15551234567"} {
		assert.NotEqual(t, secret, Mask(secret))
	}
}
