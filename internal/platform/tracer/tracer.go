// Package tracer is a small tracing abstraction over OpenTelemetry.
//
// Session and two-factor services start a span per operation so a login can
// be followed across rate limiting, lockout, code verification and session
// issuance. Identifiers are hashed before they become span attributes.
//
// Implementations:
//   - NoopTracer: tests and deployments without tracing
//   - OTelTracer: OpenTelemetry adapter
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks it failed.
	// End must be called exactly once, typically via defer.
	End(err error)

	SetAttributes(attrs ...Attribute)

	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a span; the returned context carries it.
	//
	//   ctx, span := t.Start(ctx, tracer.SpanSessionCreate,
	//       tracer.String(tracer.AttrUserHash, tracer.HashSubject(userID)),
	//   )
	//   defer func() { span.End(err) }()
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: value}
}

func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashSubject returns a short SHA-256 prefix of a user or session id so
// traces correlate without carrying the raw value.
func HashSubject(subject string) string {
	if subject == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(subject))
	return hex.EncodeToString(hash[:8])
}

// Span names.
const (
	SpanSessionCreate     = "session.create"
	SpanSessionValidate   = "session.validate"
	SpanSessionRefresh    = "session.refresh"
	SpanSessionInvalidate = "session.invalidate"
	SpanSessionRevokeAll  = "session.revoke_all"
	SpanSessionSecurity   = "session.security_check"

	SpanTwoFactorEnable    = "two_factor.enable"
	SpanTwoFactorVerify    = "two_factor.verify"
	SpanTwoFactorChallenge = "two_factor.challenge"
	SpanTwoFactorBackup    = "two_factor.backup_code"
	SpanTwoFactorDisable   = "two_factor.disable"

	SpanLoginBegin    = "login.begin"
	SpanLoginComplete = "login.complete"
)

// Attribute keys.
const (
	AttrUserHash    = "user.hash"
	AttrSessionHash = "session.hash"
	AttrMethod      = "two_factor.method"
	AttrRotated     = "session.rotated"
	AttrEvicted     = "session.evicted"
	AttrRevoked     = "session.revoked"
	AttrWarnings    = "security.warnings"
	AttrOutcome     = "outcome"
)
