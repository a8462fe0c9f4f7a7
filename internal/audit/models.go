package audit

import "time"

// Event is a security-relevant outcome. Identifiers are masked before an
// Event is built; nothing here may carry a raw user id, email, IP or device
// fingerprint.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Action    string            `json:"action"`
	Subject   string            `json:"subject,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	Decision  string            `json:"decision,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// Event actions.
const (
	EventRateLimitExceeded = "rate_limit_exceeded"
	EventRateLimitReset    = "rate_limit_reset"

	EventFailedAttempt    = "auth_failed_attempt"
	EventLockoutTriggered = "auth_lockout_triggered"
	EventLockoutCleared   = "auth_lockout_cleared"
	EventLoginBlocked     = "auth_login_blocked"
	EventLoginSucceeded   = "auth_login_succeeded"

	EventSessionCreated     = "session_created"
	EventSessionRefreshed   = "session_refreshed"
	EventSessionExpired     = "session_expired"
	EventSessionInvalidated = "session_invalidated"
	EventSessionsRevoked    = "sessions_revoked"
	EventSessionEvicted     = "session_evicted"
	EventSessionSuspicious  = "session_suspicious"

	EventTwoFactorEnabled       = "two_factor_enabled"
	EventTwoFactorDisabled      = "two_factor_disabled"
	EventTwoFactorVerified      = "two_factor_verified"
	EventTwoFactorFailed        = "two_factor_failed"
	EventTwoFactorChallengeSent = "two_factor_challenge_sent"
	EventBackupCodeUsed         = "backup_code_used"
	EventBackupCodesRegenerated = "backup_codes_regenerated"
)

// Decisions.
const (
	DecisionAllowed = "allowed"
	DecisionDenied  = "denied"
	DecisionInfo    = "info"
)
