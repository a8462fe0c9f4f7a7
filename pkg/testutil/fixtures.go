package testutil

import (
	"io"
	"log/slog"

	"github.com/google/uuid"

	authModels "authcore/internal/auth/models"
)

// User agents seen in the wild, for device display-name assertions.
const (
	UserAgentChromeMac    = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	UserAgentSafariIPhone = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
)

// NewUserID returns a random opaque user identifier.
func NewUserID() string {
	return "user-" + uuid.NewString()
}

// SessionRequest builds a valid create-session request for userID from a
// desktop Chrome browser.
func SessionRequest(userID string) *authModels.CreateSessionRequest {
	return &authModels.CreateSessionRequest{
		UserID:            userID,
		Email:             userID + "@example.com",
		DisplayName:       "Test User",
		DeviceFingerprint: "fp-" + userID,
		UserAgent:         UserAgentChromeMac,
		IPAddress:         "198.51.100.7",
	}
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
