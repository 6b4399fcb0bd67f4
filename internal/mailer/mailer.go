// Package mailer sends one-shot transactional email over SMTP. Templates
// are authored here, not on the provider. Send failures are the caller's
// to log; they never abort the triggering action.
package mailer

import (
	"bytes"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"

	"github.com/rs/zerolog"
)

// Sender is the one-shot send capability.
type Sender interface {
	Send(templateName, recipient string, data map[string]string) error
}

// Mailer sends templated mail through a single SMTP endpoint.
type Mailer struct {
	addr      string
	from      string
	templates map[string]*template.Template
	log       zerolog.Logger
}

var templateSources = map[string]string{
	"magic_link": "Subject: Your sign-in link\n\nHi {{.Username}},\n\nSign in with this link (valid 15 minutes):\n{{.Link}}\n\nOr enter this code: {{.Code}}\n",
	"invitation": "Subject: You have been invited\n\nHi,\n\n{{.InviterEmail}} invited you to join {{.TenantName}}.\nAccept within 72 hours:\n{{.Link}}\n",
	"hero_out":   "Subject: Congratulations, hero!\n\n{{.BossName}} of {{.CompanyName}} has heroed out of {{.Country}}!\n",
}

// New creates a mailer. An empty addr disables sending; Send logs and
// reports success so dev environments work without SMTP.
func New(addr, from string, log zerolog.Logger) (*Mailer, error) {
	m := &Mailer{
		addr:      addr,
		from:      from,
		templates: make(map[string]*template.Template, len(templateSources)),
		log:       log.With().Str("component", "mailer").Logger(),
	}
	for name, src := range templateSources {
		t, err := template.New(name).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		m.templates[name] = t
	}
	return m, nil
}

// Send renders a template and delivers it to one recipient.
func (m *Mailer) Send(templateName, recipient string, data map[string]string) error {
	t, ok := m.templates[templateName]
	if !ok {
		return fmt.Errorf("unknown mail template %q", templateName)
	}

	var body bytes.Buffer
	body.WriteString("From: " + m.from + "\r\nTo: " + recipient + "\r\n")
	var rendered bytes.Buffer
	if err := t.Execute(&rendered, data); err != nil {
		return fmt.Errorf("failed to render template %s: %w", templateName, err)
	}
	// Subject line comes from the template's first line
	body.WriteString(strings.ReplaceAll(rendered.String(), "\n", "\r\n"))

	if m.addr == "" {
		m.log.Info().Str("template", templateName).Str("to", recipient).
			Msg("SMTP disabled, mail suppressed")
		return nil
	}

	if err := smtp.SendMail(m.addr, nil, m.from, []string{recipient}, body.Bytes()); err != nil {
		return fmt.Errorf("failed to send %s mail: %w", templateName, err)
	}
	m.log.Info().Str("template", templateName).Str("to", recipient).Msg("Mail sent")
	return nil
}

var _ Sender = (*Mailer)(nil)
