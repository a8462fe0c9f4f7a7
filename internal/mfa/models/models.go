package models

import (
	"time"

	"authcore/internal/crypto"
)

// Method is a second-factor delivery method.
type Method string

const (
	MethodTOTP  Method = "totp"
	MethodSMS   Method = "sms"
	MethodEmail Method = "email"
)

// Valid reports whether m is a supported method.
func (m Method) Valid() bool {
	switch m {
	case MethodTOTP, MethodSMS, MethodEmail:
		return true
	}
	return false
}

// UsesChallenge reports whether codes are delivered out of band.
func (m Method) UsesChallenge() bool {
	return m == MethodSMS || m == MethodEmail
}

// Status is the public two-factor state of a user.
type Status struct {
	Enabled              bool       `json:"enabled"`
	Method               Method     `json:"method,omitempty"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
	EnabledAt            *time.Time `json:"enabled_at,omitempty"`
	LastUsedAt           *time.Time `json:"last_used_at,omitempty"`
}

// Secret is the encrypted factor material. For TOTP Payload holds the
// base32 shared secret; for sms/email it holds the contact address.
type Secret struct {
	Method  Method                   `json:"method"`
	Payload *crypto.EncryptedPayload `json:"payload"`
	// LastUsedStep is the most recent accepted TOTP time step. Codes from
	// this step or earlier are rejected as replays.
	LastUsedStep int64 `json:"last_used_step,omitempty"`
}

// BackupCodeSet stores salted hashes of unused backup codes. A code is
// removed from Hashes on first use.
type BackupCodeSet struct {
	Salt        string    `json:"salt"`
	Hashes      []string  `json:"hashes"`
	GeneratedAt time.Time `json:"generated_at"`
}

// PendingChallenge is the hash of the last code sent by sms or email.
type PendingChallenge struct {
	Method    Method    `json:"method"`
	Salt      string    `json:"salt"`
	CodeHash  string    `json:"code_hash"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
}

// IsExpiredAt reports whether the challenge can no longer be answered.
func (p *PendingChallenge) IsExpiredAt(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// EnrollResult is returned once by Enable. Secret, QRCode and
// ProvisioningURI are only set for TOTP. BackupCodes are shown once and
// never stored in plaintext.
type EnrollResult struct {
	Method          Method   `json:"method"`
	Secret          string   `json:"secret,omitempty"`
	QRCode          string   `json:"qr_code,omitempty"`
	ProvisioningURI string   `json:"provisioning_uri,omitempty"`
	BackupCodes     []string `json:"backup_codes"`
}

// EnableRequest is the validated input of Enable.
type EnableRequest struct {
	UserID  string `validate:"required,notblank,max=128"`
	Method  Method `validate:"required,oneof=totp sms email"`
	Contact string `validate:"max=255"`
}
