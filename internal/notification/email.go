package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
)

// Mailer sends one HTML message.
type Mailer interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	if len(to) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n%s\r\n%s",
		m.cfg.From, strings.Join(to, ", "), subject, mime, htmlBody))

	return smtp.SendMail(addr, auth, m.cfg.From, to, msg)
}

var alertEmailTemplate = template.Must(template.New("alert").Parse(`<h2>{{.Alert.Severity}}: {{.Alert.MetricType}}</h2>
<p><strong>{{.Alert.AffectedItem}}</strong> reported {{.Alert.Value}}.</p>
<p>Warning at {{.Warning}}, critical at {{.Critical}}.</p>
<p>Raised {{.Alert.CreatedAt.Format "2006-01-02 15:04:05 MST"}} (alert {{.Alert.ID}}).</p>
`))

// EmailSink mails CRITICAL alerts to the configured recipients.
type EmailSink struct {
	mailer     Mailer
	recipients []string
}

func NewEmailSink(mailer Mailer, recipients []string) *EmailSink {
	if mailer == nil || len(recipients) == 0 {
		return nil
	}
	return &EmailSink{mailer: mailer, recipients: recipients}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Notify(ctx context.Context, event alertdomain.Event) error {
	if event.Alert.Severity != alertdomain.SeverityCritical {
		return nil
	}
	var body bytes.Buffer
	if err := alertEmailTemplate.Execute(&body, event); err != nil {
		return fmt.Errorf("render alert email: %w", err)
	}
	subject := fmt.Sprintf("[CRITICAL] %s on %s", event.Alert.MetricType, event.Alert.AffectedItem)
	return s.mailer.Send(ctx, s.recipients, subject, body.String())
}
