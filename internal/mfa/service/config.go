package service

import (
	"fmt"
	"time"
)

// TOTP parameters (RFC 6238 defaults understood by every authenticator app).
const (
	totpPeriod = 30
	totpSkew   = 1
	codeDigits = 6
)

// Config controls two-factor enrollment and code handling.
type Config struct {
	// Issuer labels the account in authenticator apps.
	Issuer string `yaml:"issuer"`
	// EncryptionKey protects stored TOTP secrets and contact addresses.
	EncryptionKey string `yaml:"-"`
	// KDFIterations is the PBKDF2 work factor for EncryptionKey. Zero uses
	// the crypto package default.
	KDFIterations   int           `yaml:"kdf_iterations"`
	BackupCodeCount int           `yaml:"backup_code_count"`
	ChallengeTTL    time.Duration `yaml:"challenge_ttl"`
	// MaxChallengeAttempts is how many wrong answers burn a pending code.
	MaxChallengeAttempts int `yaml:"max_challenge_attempts"`
	QRCodeSize           int `yaml:"qr_code_size"`
}

func DefaultConfig() Config {
	return Config{
		Issuer:               "authcore",
		BackupCodeCount:      10,
		ChallengeTTL:         5 * time.Minute,
		MaxChallengeAttempts: 5,
		QRCodeSize:           256,
	}
}

func (c Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}
	if len(c.EncryptionKey) < 16 {
		return fmt.Errorf("encryption key must be at least 16 characters")
	}
	if c.KDFIterations < 0 {
		return fmt.Errorf("kdf_iterations must not be negative, got %d", c.KDFIterations)
	}
	if c.BackupCodeCount <= 0 {
		return fmt.Errorf("backup_code_count must be positive, got %d", c.BackupCodeCount)
	}
	if c.ChallengeTTL <= 0 {
		return fmt.Errorf("challenge_ttl must be positive, got %s", c.ChallengeTTL)
	}
	if c.MaxChallengeAttempts <= 0 {
		return fmt.Errorf("max_challenge_attempts must be positive, got %d", c.MaxChallengeAttempts)
	}
	if c.QRCodeSize < 64 {
		return fmt.Errorf("qr_code_size must be at least 64, got %d", c.QRCodeSize)
	}
	return nil
}
