package domainerrors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite tests the domain error primitives.
//
// Justification: callers translate security denials (lockout, rate limit, 2FA)
// into user-facing messages by code, so code preservation across wrapping and
// the retry hint must hold.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorInterface() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeSessionNotFound, Message: "session not found"}
		s.Equal("session not found", err.Error())
	})

	s.Run("returns code when message is empty", func() {
		err := &Error{Code: CodeSessionExpired}
		s.Equal("session_expired", err.Error())
	})
}

func (s *DomainErrorsSuite) TestWrapPreservesCode() {
	inner := New(CodeInvalidTwoFactorCode, "invalid code")
	wrapped := Wrap(inner, CodeInternal, "verify failed")

	s.True(HasCode(wrapped, CodeInvalidTwoFactorCode))
	s.Equal(CodeInvalidTwoFactorCode, CodeOf(wrapped))
	s.ErrorIs(wrapped, &Error{Code: CodeInvalidTwoFactorCode})
}

func (s *DomainErrorsSuite) TestWrapForeignError() {
	inner := errors.New("disk full")
	wrapped := Wrap(inner, CodeInternal, "persist session")

	s.True(HasCode(wrapped, CodeInternal))
	s.ErrorIs(wrapped, inner)
}

func (s *DomainErrorsSuite) TestRetryAfter() {
	s.Run("retryable error exposes hint through wrapping", func() {
		err := NewRetryable(CodeAccountLocked, "account locked", 90*time.Second)
		wrapped := fmt.Errorf("login: %w", err)

		d, ok := RetryAfter(wrapped)
		s.True(ok)
		s.Equal(90*time.Second, d)
	})

	s.Run("negative hint is clamped", func() {
		err := NewRetryable(CodeRateLimitExceeded, "slow down", -time.Second)
		_, ok := RetryAfter(err)
		s.False(ok)
	})

	s.Run("plain errors have no hint", func() {
		_, ok := RetryAfter(errors.New("boom"))
		s.False(ok)
	})
}

func (s *DomainErrorsSuite) TestCodeOfForeignError() {
	s.Equal(CodeInternal, CodeOf(errors.New("boom")))
}
