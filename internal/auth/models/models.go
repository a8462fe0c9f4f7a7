package models

import (
	"strings"
	"time"
)

// Session is one issued login session.
// Invariant: CreatedAt <= LastActivity <= ExpiresAt.
type Session struct {
	SessionID         string    `json:"session_id"`
	UserID            string    `json:"user_id"`
	Email             string    `json:"email"`
	DisplayName       string    `json:"display_name"`
	PhotoURL          string    `json:"photo_url,omitempty"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	UserAgent         string    `json:"user_agent,omitempty"`
	IPAddress         string    `json:"ip_address,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	LastActivity      time.Time `json:"last_activity"`
	ExpiresAt         time.Time `json:"expires_at"`
	// PreviousSessionID is the identifier this session carried before its
	// last refresh rotation.
	PreviousSessionID string `json:"previous_session_id,omitempty"`
}

// IsExpiredAt reports whether the session has lapsed. A session is still
// valid at exactly ExpiresAt.
func (s *Session) IsExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Touch records activity, never moving LastActivity backwards or past ExpiresAt.
func (s *Session) Touch(now time.Time) {
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
	if s.LastActivity.After(s.ExpiresAt) {
		s.LastActivity = s.ExpiresAt
	}
}

// Extend pushes ExpiresAt to now+ttl and records activity.
func (s *Session) Extend(now time.Time, ttl time.Duration) {
	if next := now.Add(ttl); next.After(s.ExpiresAt) {
		s.ExpiresAt = next
	}
	s.Touch(now)
}

// CreateSessionRequest carries the already-authenticated identity and the
// device it logged in from.
type CreateSessionRequest struct {
	UserID            string `json:"user_id" validate:"required,notblank,max=128"`
	Email             string `json:"email" validate:"required,email,max=255"`
	DisplayName       string `json:"display_name" validate:"max=255"`
	PhotoURL          string `json:"photo_url" validate:"omitempty,url,max=2048"`
	DeviceFingerprint string `json:"device_fingerprint" validate:"required,notblank,max=256"`
	UserAgent         string `json:"user_agent" validate:"max=1024"`
	IPAddress         string `json:"ip_address" validate:"omitempty,ip"`
}

// Normalize trims input fields in place.
func (r *CreateSessionRequest) Normalize() {
	if r == nil {
		return
	}
	for _, f := range []*string{&r.UserID, &r.Email, &r.DisplayName, &r.PhotoURL, &r.DeviceFingerprint, &r.IPAddress} {
		*f = strings.TrimSpace(*f)
	}
}

// SessionResult is returned by create and refresh.
type SessionResult struct {
	SessionID string   `json:"session_id"`
	Session   *Session `json:"session"`
	// Rotated is true when refresh issued a new identifier.
	Rotated bool `json:"rotated,omitempty"`
}

// DeviceSession is one row of the "active devices" view.
type DeviceSession struct {
	SessionID    string    `json:"session_id"`
	Device       string    `json:"device"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
	IsActive     bool      `json:"is_active"`
}

// UserSessionInfo summarises all sessions of a user.
type UserSessionInfo struct {
	UserID         string          `json:"user_id"`
	TotalSessions  int             `json:"total_sessions"`
	ActiveSessions int             `json:"active_sessions"`
	Sessions       []DeviceSession `json:"sessions"`
}

// Security warning codes returned by CheckSessionSecurity.
const (
	WarningFingerprintMismatch = "device_fingerprint_mismatch"
	WarningLongInactivity      = "long_inactivity"
	WarningSessionExpired      = "session_expired"
)

// SecurityCheck is a soft signal; it never blocks the session.
type SecurityCheck struct {
	SessionID        string        `json:"session_id"`
	Suspicious       bool          `json:"suspicious"`
	Warnings         []string      `json:"warnings"`
	InactiveFor      time.Duration `json:"inactive_for"`
	FingerprintMatch bool          `json:"fingerprint_match"`
}
