// Package sender delivers out-of-band two-factor codes.
package sender

import (
	"context"
	"log/slog"
	"sync"

	"authcore/internal/mfa/models"
	"authcore/pkg/platform/privacy"
)

// CodeSender delivers a one-time code to a contact address.
type CodeSender interface {
	Send(ctx context.Context, method models.Method, contact, code string) error
}

// LogSender writes deliveries to the log without the code. It stands in for
// an SMS or mail gateway in development.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, method models.Method, contact, _ string) error {
	s.logger.InfoContext(ctx, "two-factor code dispatched",
		"method", string(method),
		"contact", privacy.Mask(contact),
	)
	return nil
}

// Delivery is one captured Send call.
type Delivery struct {
	Method  models.Method
	Contact string
	Code    string
}

// MemorySender records deliveries for tests and local tooling.
type MemorySender struct {
	mu         sync.Mutex
	deliveries []Delivery
	err        error
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

// FailWith makes subsequent sends return err. Pass nil to recover.
func (s *MemorySender) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemorySender) Send(_ context.Context, method models.Method, contact, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.deliveries = append(s.deliveries, Delivery{Method: method, Contact: contact, Code: code})
	return nil
}

// Last returns the most recent delivery.
func (s *MemorySender) Last() (Delivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.deliveries) == 0 {
		return Delivery{}, false
	}
	return s.deliveries[len(s.deliveries)-1], true
}

func (s *MemorySender) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deliveries)
}
