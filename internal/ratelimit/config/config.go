package config

import (
	"fmt"
	"sort"
	"time"
)

// Named limiter namespaces.
const (
	NamespaceAuth    = "auth"
	NamespaceAPI     = "api"
	NamespaceUpload  = "upload"
	NamespaceComment = "comment"
)

// RetentionCeiling bounds how long request records are kept for status views.
const RetentionCeiling = 24 * time.Hour

// Config holds rate limiting and lockout configuration.
type Config struct {
	// Limits by namespace. Namespaces differ only by key prefix and these values.
	Limits map[string]Limit `yaml:"limits"`

	AuthLockout AuthLockoutConfig `yaml:"auth_lockout"`
}

// Limit defines a sliding window for one namespace.
type Limit struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
	// SkipSuccessfulRequests counts only failures (login endpoints).
	SkipSuccessfulRequests bool `yaml:"skip_successful_requests"`
	// SkipFailedRequests counts only successes.
	SkipFailedRequests bool `yaml:"skip_failed_requests"`
}

// Retention is how long records stay in a bucket: the window or the 24h
// ceiling, whichever is longer.
func (l Limit) Retention() time.Duration {
	return max(l.Window, RetentionCeiling)
}

// Validate rejects limits that would allow or deny everything.
func (l Limit) Validate() error {
	if l.MaxRequests <= 0 {
		return fmt.Errorf("max_requests must be positive, got %d", l.MaxRequests)
	}
	if l.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", l.Window)
	}
	if l.SkipSuccessfulRequests && l.SkipFailedRequests {
		return fmt.Errorf("skip_successful_requests and skip_failed_requests are mutually exclusive")
	}
	return nil
}

// AuthLockoutConfig defines brute-force lockout parameters.
type AuthLockoutConfig struct {
	MaxLoginAttempts int           `yaml:"max_login_attempts"`
	LockoutDuration  time.Duration `yaml:"lockout_duration"`
	// AttemptWindow restarts the failure count when the previous failure is
	// older than this and no lock is active. Zero disables the reset.
	AttemptWindow time.Duration `yaml:"attempt_window"`
}

// Validate checks lockout parameters.
func (c AuthLockoutConfig) Validate() error {
	if c.MaxLoginAttempts <= 0 {
		return fmt.Errorf("max_login_attempts must be positive, got %d", c.MaxLoginAttempts)
	}
	if c.LockoutDuration <= 0 {
		return fmt.Errorf("lockout_duration must be positive, got %s", c.LockoutDuration)
	}
	if c.AttemptWindow < 0 {
		return fmt.Errorf("attempt_window must not be negative, got %s", c.AttemptWindow)
	}
	return nil
}

// DefaultConfig returns the built-in limits.
func DefaultConfig() *Config {
	return &Config{
		Limits: map[string]Limit{
			NamespaceAuth:    {MaxRequests: 5, Window: 15 * time.Minute, SkipSuccessfulRequests: true},
			NamespaceAPI:     {MaxRequests: 60, Window: time.Minute},
			NamespaceUpload:  {MaxRequests: 20, Window: time.Hour},
			NamespaceComment: {MaxRequests: 10, Window: time.Minute},
		},
		AuthLockout: AuthLockoutConfig{
			MaxLoginAttempts: 5,
			LockoutDuration:  15 * time.Minute,
			AttemptWindow:    time.Hour,
		},
	}
}

// GetLimit returns the limit configured for namespace.
func (c *Config) GetLimit(namespace string) (Limit, bool) {
	l, ok := c.Limits[namespace]
	return l, ok
}

// Namespaces lists configured namespaces in sorted order.
func (c *Config) Namespaces() []string {
	out := make([]string, 0, len(c.Limits))
	for ns := range c.Limits {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Merge overlays the namespaces and non-zero lockout fields of other onto c.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if c.Limits == nil {
		c.Limits = make(map[string]Limit)
	}
	for ns, l := range other.Limits {
		c.Limits[ns] = l
	}
	if other.AuthLockout.MaxLoginAttempts > 0 {
		c.AuthLockout.MaxLoginAttempts = other.AuthLockout.MaxLoginAttempts
	}
	if other.AuthLockout.LockoutDuration > 0 {
		c.AuthLockout.LockoutDuration = other.AuthLockout.LockoutDuration
	}
	if other.AuthLockout.AttemptWindow > 0 {
		c.AuthLockout.AttemptWindow = other.AuthLockout.AttemptWindow
	}
}

// Validate checks every namespace and the lockout settings.
func (c *Config) Validate() error {
	for _, ns := range c.Namespaces() {
		if err := c.Limits[ns].Validate(); err != nil {
			return fmt.Errorf("rate limit %q: %w", ns, err)
		}
	}
	if err := c.AuthLockout.Validate(); err != nil {
		return fmt.Errorf("auth lockout: %w", err)
	}
	return nil
}
