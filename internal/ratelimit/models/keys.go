package models

import "strings"

// Persisted key prefixes.
const (
	RateLimitKeyPrefix     = "rate_limit_"
	FailedAttemptKeyPrefix = "failed_attempts_"
)

// RateLimitKey builds rate_limit_<namespace>_<identifier>[:<endpoint>].
// Identifier and endpoint are sanitized so user-controlled values containing
// the delimiter cannot address another bucket.
func RateLimitKey(namespace, identifier, endpoint string) string {
	key := RateLimitNamespacePrefix(namespace) + sanitizeKeySegment(identifier)
	if endpoint != "" {
		key += ":" + sanitizeKeySegment(endpoint)
	}
	return key
}

// RateLimitNamespacePrefix is the key prefix shared by every bucket in namespace.
func RateLimitNamespacePrefix(namespace string) string {
	return RateLimitKeyPrefix + sanitizeKeySegment(namespace) + "_"
}

// FailedAttemptKey builds failed_attempts_<identifier>.
func FailedAttemptKey(identifier string) string {
	return FailedAttemptKeyPrefix + sanitizeKeySegment(identifier)
}

// sanitizeKeySegment escapes delimiter characters in key segments.
//
// Escape rules (order matters):
//  1. '_' becomes '__' (escape the escape character first)
//  2. ':' becomes '_c' (escape the delimiter)
//
// "user:admin" -> "user_cadmin", "user_admin" -> "user__admin",
// "user_:admin" -> "user___cadmin". Distinct inputs never collide.
func sanitizeKeySegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}
