// Package email sends program notifications. The SMTP implementation is
// used in production; the log and mock implementations cover development
// and tests.
package email

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Service sends messages.
type Service interface {
	Send(ctx context.Context, msg Message) error
}

// Config holds SMTP settings. An empty Username disables authentication,
// which suits local relays and test servers.
type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// MockService records messages instead of sending them.
type MockService struct {
	mu   sync.Mutex
	sent []SentMessage
}

// SentMessage is a message captured by MockService.
type SentMessage struct {
	Message
	SentAt time.Time
}

func NewMockService() *MockService {
	return &MockService{}
}

func (m *MockService) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMessage{Message: msg, SentAt: time.Now()})
	return nil
}

// Sent returns a copy of every captured message.
func (m *MockService) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// Last returns the most recent captured message, or nil.
func (m *MockService) Last() *SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	last := m.sent[len(m.sent)-1]
	return &last
}

func (m *MockService) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

// LogService writes messages to the log instead of delivering them. It is
// the default when no SMTP host is configured.
type LogService struct {
	log zerolog.Logger
}

func NewLogService(log zerolog.Logger) *LogService {
	return &LogService{log: log}
}

func (s *LogService) Send(_ context.Context, msg Message) error {
	s.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("email suppressed (no smtp configured)")
	return nil
}
