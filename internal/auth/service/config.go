package service

import (
	"fmt"
	"time"
)

// Config controls session lifetime and limits.
type Config struct {
	// MaxInactiveTime is the sliding lifetime: every create and refresh sets
	// ExpiresAt = now + MaxInactiveTime.
	MaxInactiveTime time.Duration `yaml:"max_inactive_time"`
	// MaxSessionsPerUser caps concurrent sessions; the oldest are evicted.
	// Zero disables the cap.
	MaxSessionsPerUser int `yaml:"max_sessions_per_user"`
	// RotateOnRefresh issues a new session id on every refresh.
	RotateOnRefresh bool `yaml:"rotate_on_refresh"`
	// InactivityWarning is the idle time after which CheckSessionSecurity warns.
	InactivityWarning time.Duration `yaml:"inactivity_warning"`
	// ExpiredRetention keeps expired records in the store this long past
	// ExpiresAt so validation can still report "expired" rather than "not found".
	ExpiredRetention time.Duration `yaml:"expired_retention"`
}

// DefaultConfig returns the session defaults.
func DefaultConfig() Config {
	return Config{
		MaxInactiveTime:    7 * 24 * time.Hour,
		MaxSessionsPerUser: 10,
		RotateOnRefresh:    true,
		InactivityWarning:  24 * time.Hour,
		ExpiredRetention:   24 * time.Hour,
	}
}

// Validate checks session configuration.
func (c Config) Validate() error {
	if c.MaxInactiveTime <= 0 {
		return fmt.Errorf("max_inactive_time must be positive, got %s", c.MaxInactiveTime)
	}
	if c.MaxSessionsPerUser < 0 {
		return fmt.Errorf("max_sessions_per_user must not be negative, got %d", c.MaxSessionsPerUser)
	}
	if c.InactivityWarning <= 0 {
		return fmt.Errorf("inactivity_warning must be positive, got %s", c.InactivityWarning)
	}
	if c.ExpiredRetention < 0 {
		return fmt.Errorf("expired_retention must not be negative, got %s", c.ExpiredRetention)
	}
	return nil
}
