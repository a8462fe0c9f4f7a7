package login

import (
	"context"
	"strings"

	authModels "authcore/internal/auth/models"
	mfaModels "authcore/internal/mfa/models"
)

// Identity is the account an Authenticator resolved.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
	PhotoURL    string
}

// Authenticator verifies primary credentials. It returns an error carrying
// CodeUnauthorized when the secret is wrong or the account is unknown.
type Authenticator interface {
	Authenticate(ctx context.Context, identifier, secret string) (*Identity, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, identifier, secret string) (*Identity, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, identifier, secret string) (*Identity, error) {
	return f(ctx, identifier, secret)
}

// Request is a primary-credential login attempt.
type Request struct {
	Identifier        string `validate:"required,notblank,max=255"`
	Secret            string `validate:"required"`
	DeviceFingerprint string `validate:"required,notblank,max=256"`
	UserAgent         string `validate:"max=1024"`
	IPAddress         string `validate:"omitempty,ip"`
}

// Normalize trims and lower-cases the identifier.
func (r *Request) Normalize() {
	r.Identifier = strings.ToLower(strings.TrimSpace(r.Identifier))
	r.DeviceFingerprint = strings.TrimSpace(r.DeviceFingerprint)
	r.IPAddress = strings.TrimSpace(r.IPAddress)
}

// TwoFactorRequest answers the challenge returned by Begin.
type TwoFactorRequest struct {
	ChallengeToken string `validate:"required"`
	Code           string `validate:"required,max=64"`
	// BackupCode treats Code as a backup code.
	BackupCode bool
}

// Result is the outcome of a login step. Exactly one of Session or
// ChallengeToken is set.
type Result struct {
	Session           *authModels.SessionResult `json:"session,omitempty"`
	TwoFactorRequired bool                      `json:"two_factor_required"`
	Method            mfaModels.Method          `json:"method,omitempty"`
	ChallengeToken    string                    `json:"challenge_token,omitempty"`
}
