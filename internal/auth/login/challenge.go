package login

import (
	"context"

	"authcore/internal/crypto"
)

// challengeClaims is the state a login carries between Begin and
// CompleteTwoFactor. It is signed, not encrypted.
type challengeClaims struct {
	Purpose           string
	Identifier        string
	UserID            string
	Email             string
	DisplayName       string
	PhotoURL          string
	DeviceFingerprint string
	UserAgent         string
	IPAddress         string
}

func (c challengeClaims) payload() map[string]any {
	return map[string]any{
		"purpose": c.Purpose,
		"idf":     c.Identifier,
		"uid":     c.UserID,
		"email":   c.Email,
		"name":    c.DisplayName,
		"photo":   c.PhotoURL,
		"fp":      c.DeviceFingerprint,
		"ua":      c.UserAgent,
		"ip":      c.IPAddress,
	}
}

func (c challengeClaims) limitKey() string {
	if c.IPAddress != "" {
		return c.IPAddress
	}
	return c.Identifier
}

func (s *Service) parseChallenge(ctx context.Context, token string) (*challengeClaims, bool) {
	res := crypto.VerifySecureToken(ctx, token, s.config.ChallengeSecret)
	if !res.Valid {
		s.logger.InfoContext(ctx, "login challenge rejected", "reason", res.Reason)
		return nil, false
	}
	str := func(key string) string {
		v, _ := res.Payload[key].(string)
		return v
	}
	c := &challengeClaims{
		Purpose:           str("purpose"),
		Identifier:        str("idf"),
		UserID:            str("uid"),
		Email:             str("email"),
		DisplayName:       str("name"),
		PhotoURL:          str("photo"),
		DeviceFingerprint: str("fp"),
		UserAgent:         str("ua"),
		IPAddress:         str("ip"),
	}
	if c.Purpose != challengePurpose || c.UserID == "" || c.Identifier == "" {
		s.logger.InfoContext(ctx, "login challenge rejected", "reason", "wrong_purpose")
		return nil, false
	}
	return c, true
}
