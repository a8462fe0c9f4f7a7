package crypto

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"authcore/pkg/requestcontext"
)

// Token verification failure reasons.
const (
	ReasonMalformed        = "malformed"
	ReasonInvalidSignature = "invalid_signature"
	ReasonExpired          = "expired"
	ReasonInvalidClaims    = "invalid_claims"
	ReasonMissingSecret    = "missing_secret"
)

// TokenResult reports the outcome of VerifySecureToken.
type TokenResult struct {
	Valid   bool
	Payload map[string]any
	Reason  string
}

type secureTokenClaims struct {
	Payload map[string]any `json:"payload"`
	jwt.RegisteredClaims
}

// CreateSecureToken signs payload as an HS256 JWT whose claims carry iat, exp
// and the payload. Issue time comes from requestcontext.Now(ctx).
func CreateSecureToken(ctx context.Context, payload map[string]any, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("token secret is empty")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	now := requestcontext.Now(ctx)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, secureTokenClaims{
		Payload: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifySecureToken checks structure, signature (constant time) and expiry
// against requestcontext.Now(ctx). It never panics and never returns an error.
func VerifySecureToken(ctx context.Context, token, secret string) TokenResult {
	if secret == "" {
		return TokenResult{Reason: ReasonMissingSecret}
	}
	now := requestcontext.Now(ctx)
	claims := new(secureTokenClaims)
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return TokenResult{Reason: tokenFailureReason(err)}
	}
	if !parsed.Valid {
		return TokenResult{Reason: ReasonInvalidClaims}
	}
	return TokenResult{Valid: true, Payload: claims.Payload}
}

func tokenFailureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	default:
		return ReasonInvalidClaims
	}
}
