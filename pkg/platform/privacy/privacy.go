// Package privacy provides the single redaction utility used for every log line
// and audit event emitted by the security core. Nothing outside this package
// should hand-roll masking.
package privacy

import (
	"fmt"
	"net"
	"strings"
	"unicode/utf8"
)

const maskRune = '*'

// Mask returns a redacted identifier of unknown shape. E-mail addresses, IP
// addresses and phone numbers are detected and routed to their dedicated
// maskers; anything else keeps a short prefix and suffix.
func Mask(s string) string {
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "@"):
		return MaskEmail(s)
	case net.ParseIP(s) != nil:
		return AnonymizeIP(s)
	case looksLikePhone(s):
		return MaskPhone(s)
	default:
		return MaskIdentifier(s)
	}
}

// MaskIdentifier keeps the first and last two characters of identifiers longer
// than eight runes and masks everything for shorter ones, so short user names
// are never recoverable from logs.
//
//	"user-1234567890" -> "us***********90"
//	"bob"             -> "***"
func MaskIdentifier(s string) string {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return ""
	}
	runes := []rune(s)
	if n <= 8 {
		return strings.Repeat(string(maskRune), n)
	}
	return string(runes[:2]) + strings.Repeat(string(maskRune), n-4) + string(runes[n-2:])
}

// MaskEmail keeps the first character of the local part and the full domain.
//
//	"alice@example.com" -> "a****@example.com"
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return MaskIdentifier(email)
	}
	local, domain := email[:at], email[at+1:]
	runes := []rune(local)
	return string(runes[0]) + strings.Repeat(string(maskRune), len(runes)-1) + "@" + domain
}

// MaskPhone keeps the last two digits.
func MaskPhone(phone string) string {
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	var b strings.Builder
	seen := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			seen++
			if seen > digits-2 {
				b.WriteRune(r)
				continue
			}
			b.WriteRune(maskRune)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MaskFingerprint shortens device fingerprints and token-like values to an
// eight character prefix.
func MaskFingerprint(fp string) string {
	if len(fp) <= 8 {
		return strings.Repeat(string(maskRune), len(fp))
	}
	return fp[:8] + "..."
}

// AnonymizeIP truncates an IP address to remove the host-identifying portion.
//
// IPv4 keeps the /24 network ("192.168.1.47" -> "192.168.1.0"), IPv6 keeps
// the /48 prefix ("2001:db8:85a3::8a2e:370:7334" -> "2001:0db8:85a3::").
// Returns "invalid" for unparseable addresses and "unknown" for empty input.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "invalid"
	}

	if v4 := parsed.To4(); v4 != nil {
		return fmt.Sprintf("%d.%d.%d.0", v4[0], v4[1], v4[2])
	}

	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::",
		parsed[0], parsed[1],
		parsed[2], parsed[3],
		parsed[4], parsed[5])
}

func looksLikePhone(s string) bool {
	if !strings.HasPrefix(s, "+") || len(s) < 8 {
		return false
	}
	for _, r := range s[1:] {
		if (r < '0' || r > '9') && r != ' ' && r != '-' {
			return false
		}
	}
	return true
}
