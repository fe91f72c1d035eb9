// Package mail renders and dispatches account emails. The bundled
// implementation writes rendered messages to the application log; real
// delivery is expected to sit behind the same interface.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"text/template"
)

var inviteTmpl = template.Must(template.New("invite").Parse(
	`You have been invited to {{.OrgName}} on ClassHub.

Follow the link below to activate your account. The link is valid for 30 days
and can be used once.

{{.BaseURL}}/activate?token={{.Token}}
`))

var recoveryTmpl = template.Must(template.New("recovery").Parse(
	`A password reset was requested for your ClassHub account.

Follow the link below to choose a new password. The link is valid for 24 hours
and can be used once. If you did not request this, ignore this message.

{{.BaseURL}}/reset-password?token={{.Token}}
`))

// LogMailer renders messages and writes them to a logger instead of
// sending them. The token is part of the rendered link, so the output is
// for local development only.
type LogMailer struct {
	Logger  *log.Logger
	BaseURL string
}

func (m *LogMailer) render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("mail: render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func (m *LogMailer) SendInvite(_ context.Context, to, orgName, token string) error {
	body, err := m.render(inviteTmpl, map[string]string{
		"OrgName": orgName,
		"BaseURL": m.BaseURL,
		"Token":   token,
	})
	if err != nil {
		m.Logger.Printf("mail: invite to %s failed: %v", to, err)
		return err
	}
	m.Logger.Printf("mail: invite to=%s\n%s", to, body)
	return nil
}

func (m *LogMailer) SendRecovery(_ context.Context, to, token string) error {
	body, err := m.render(recoveryTmpl, map[string]string{
		"BaseURL": m.BaseURL,
		"Token":   token,
	})
	if err != nil {
		m.Logger.Printf("mail: recovery to %s failed: %v", to, err)
		return err
	}
	m.Logger.Printf("mail: recovery to=%s\n%s", to, body)
	return nil
}
