package admin

import (
	"strings"

	"authcore/internal/audit"
)

// ResetRateLimitRequest clears one rate limit bucket.
type ResetRateLimitRequest struct {
	Namespace  string `json:"-" validate:"required,notblank,max=64"`
	Identifier string `json:"identifier" validate:"required,notblank,max=255"`
	Endpoint   string `json:"endpoint" validate:"max=255"`
}

// Normalize trims the body fields.
func (r *ResetRateLimitRequest) Normalize() {
	r.Identifier = strings.TrimSpace(r.Identifier)
	r.Endpoint = strings.TrimSpace(r.Endpoint)
}

// NamespacesResponse lists the configured limiter namespaces.
type NamespacesResponse struct {
	Namespaces []string `json:"namespaces"`
}

// RevokeSessionsResponse reports a bulk revocation.
type RevokeSessionsResponse struct {
	UserID  string `json:"user_id"`
	Revoked int    `json:"revoked"`
}

// AuditEventsResponse wraps a page of recent audit events.
type AuditEventsResponse struct {
	Events []audit.Event `json:"events"`
	Total  int           `json:"total"`
}
