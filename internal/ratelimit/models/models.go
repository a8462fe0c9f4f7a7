package models

import (
	"slices"
	"time"
)

// RequestRecord is one rate-limited call inside a bucket.
type RequestRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Endpoint  string    `json:"endpoint,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	IP        string    `json:"ip,omitempty"`
}

// Bucket is the persisted sliding-window state for one key. Records are kept
// in timestamp order.
type Bucket struct {
	Key        string          `json:"key"`
	Namespace  string          `json:"namespace"`
	Identifier string          `json:"identifier"`
	Endpoint   string          `json:"endpoint,omitempty"`
	Records    []RequestRecord `json:"records"`
}

// Add inserts r in timestamp order. Concurrent requests may be recorded out
// of order, so a late record with an earlier stamp lands before newer ones.
func (b *Bucket) Add(r RequestRecord) {
	i := len(b.Records)
	for i > 0 && b.Records[i-1].Timestamp.After(r.Timestamp) {
		i--
	}
	b.Records = slices.Insert(b.Records, i, r)
}

// CountSince returns how many records are newer than cutoff.
func (b *Bucket) CountSince(cutoff time.Time) int {
	n := 0
	for _, r := range b.Records {
		if r.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

// OldestSince returns the earliest record newer than cutoff.
func (b *Bucket) OldestSince(cutoff time.Time) (time.Time, bool) {
	var oldest time.Time
	found := false
	for _, r := range b.Records {
		if r.Timestamp.After(cutoff) && (!found || r.Timestamp.Before(oldest)) {
			oldest, found = r.Timestamp, true
		}
	}
	return oldest, found
}

// Prune drops records at or before cutoff.
func (b *Bucket) Prune(cutoff time.Time) {
	b.Records = slices.DeleteFunc(b.Records, func(r RequestRecord) bool {
		return !r.Timestamp.After(cutoff)
	})
}

// RateLimitResult is the decision returned by Check.
type RateLimitResult struct {
	Allowed    bool          `json:"allowed"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"` // only set when not allowed
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for Retry-After headers.
func (r *RateLimitResult) RetryAfterSeconds() int {
	if r.RetryAfter <= 0 {
		return 0
	}
	return int((r.RetryAfter + time.Second - 1) / time.Second)
}

// RateLimitStatus is the introspection view of a bucket.
type RateLimitStatus struct {
	Namespace     string          `json:"namespace"`
	Key           string          `json:"key"`
	Limit         int             `json:"limit"`
	WindowSeconds int             `json:"window_seconds"`
	Count         int             `json:"count"`
	Remaining     int             `json:"remaining"`
	ResetAt       time.Time       `json:"reset_at"`
	Exhausted     bool            `json:"exhausted"`
	Recent        []RequestRecord `json:"recent,omitempty"`
}

// FailedAttemptState is the brute-force guard record for one identifier.
// Invariant: Count < max attempts, or LockedUntil is set and in the future.
type FailedAttemptState struct {
	Identifier     string     `json:"identifier"`
	Count          int        `json:"count"`
	FirstAttemptAt time.Time  `json:"first_attempt_at"`
	LastAttemptAt  time.Time  `json:"last_attempt_at"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
}

// IsLockedAt reports whether the lock is active at now.
func (s *FailedAttemptState) IsLockedAt(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// LockExpiredAt reports whether a lock was set and has elapsed.
func (s *FailedAttemptState) LockExpiredAt(now time.Time) bool {
	return s.LockedUntil != nil && !now.Before(*s.LockedUntil)
}

// LockoutResult is returned by RecordFailedAttempt.
type LockoutResult struct {
	IsLocked          bool          `json:"is_locked"`
	RemainingAttempts int           `json:"remaining_attempts"`
	LockedUntil       *time.Time    `json:"locked_until,omitempty"`
	RetryAfter        time.Duration `json:"retry_after,omitempty"`
}

// LockoutStatus is the introspection view of an identifier.
type LockoutStatus struct {
	Identifier        string     `json:"identifier"`
	FailedAttempts    int        `json:"failed_attempts"`
	RemainingAttempts int        `json:"remaining_attempts"`
	IsLocked          bool       `json:"is_locked"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	LastAttemptAt     *time.Time `json:"last_attempt_at,omitempty"`
}
