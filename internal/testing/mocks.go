package testing

import (
	"context"
	"sync"

	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/moderation"
)

// MockGate is a moderation.Gate with a scriptable verdict. The zero value
// allows everything.
type MockGate struct {
	mu      sync.Mutex
	Verdict moderation.Verdict
	Reason  string
	Texts   []string
}

// AllowAll returns a gate that approves every submission.
func AllowAll() *MockGate {
	return &MockGate{Verdict: moderation.VerdictAllowed}
}

// Moderate records the text and returns the scripted verdict.
func (g *MockGate) Moderate(_ context.Context, _, text string) moderation.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Texts = append(g.Texts, text)
	v := g.Verdict
	if v == "" {
		v = moderation.VerdictAllowed
	}
	return moderation.Result{Verdict: v, Reason: g.Reason}
}

// ModerateName mirrors the production gate: only an allowed verdict passes.
func (g *MockGate) ModerateName(ctx context.Context, category, text string) error {
	res := g.Moderate(ctx, category, text)
	switch res.Verdict {
	case moderation.VerdictAllowed:
		return nil
	case moderation.VerdictRejected:
		return domain.E(domain.KindPreconditionFailed, "name rejected by moderation")
	default:
		return domain.E(domain.KindUpstreamUnavailable, "moderation unavailable")
	}
}

var _ moderation.Gate = (*MockGate)(nil)

// SentMail records one delivery through MockSender.
type SentMail struct {
	Template  string
	Recipient string
	Data      map[string]string
}

// MockSender is a mailer.Sender that records instead of delivering.
type MockSender struct {
	mu   sync.Mutex
	Err  error
	Sent []SentMail
}

// Send records the mail and returns the scripted error.
func (m *MockSender) Send(templateName, recipient string, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, SentMail{Template: templateName, Recipient: recipient, Data: data})
	return nil
}

// Last returns the most recent delivery, or nil.
func (m *MockSender) Last() *SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return nil
	}
	return &m.Sent[len(m.Sent)-1]
}
