// Package notify sends administrator alerts by email.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/lehigh-university-libraries/dspacekit/config"
)

// Message is a plain text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New returns an SMTP mailer when a mail host is configured, and a mailer
// that only logs otherwise.
func New(cfg config.MailConfig) Mailer {
	if cfg.Host == "" {
		return LogMailer{}
	}
	return &SMTPMailer{cfg: cfg}
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) error {
	slog.Warn("mail not configured; alert logged only",
		"to", strings.Join(msg.To, ","),
		"subject", msg.Subject,
		"body", msg.Body)
	return nil
}

// SMTPMailer sends through an SMTP relay, authenticating when a username is
// configured.
type SMTPMailer struct {
	cfg config.MailConfig
	// send is smtp.SendMail; tests replace it.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("message %q has no recipient", msg.Subject)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	send := m.send
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(addr, auth, m.cfg.From, msg.To, m.render(msg)); err != nil {
		return fmt.Errorf("sending %q via %s: %w", msg.Subject, addr, err)
	}
	slog.Info("alert sent", "to", strings.Join(msg.To, ","), "subject", msg.Subject)
	return nil
}

func (m *SMTPMailer) render(msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return b.Bytes()
}

// Alerter sends templated alerts to the configured recipient. A nil
// Alerter or one without a recipient sends nothing.
type Alerter struct {
	Mailer    Mailer
	Recipient string
}

// NewAlerter builds an Alerter from the mail and alert settings.
func NewAlerter(cfg *config.Config) *Alerter {
	return &Alerter{Mailer: New(cfg.Mail), Recipient: cfg.Alert.Recipient}
}

// HarvestError describes a failed or partially failed collection harvest.
type HarvestError struct {
	CollectionID string
	Date         time.Time
	Status       string
	Message      string
	Report       string
}

// DOIError describes a failed DOI maintenance action.
type DOIError struct {
	Action     string
	Date       time.Time
	ObjectType string
	ObjectID   string
	DOI        string
	Reason     string
}

var (
	harvestErrorTemplate = template.Must(template.New("harvesting_error").Parse(
		`An error occurred while harvesting collection {{.CollectionID}}.

Date:    {{.Date.Format "2006-01-02 15:04:05 MST"}}
Status:  {{.Status}}
Message: {{.Message}}
{{if .Report}}
Report:
{{.Report}}
{{end}}`))

	doiErrorTemplate = template.Must(template.New("doi_maintenance_error").Parse(
		`A DOI maintenance action failed.

Action:   {{.Action}}
Date:     {{.Date.Format "2006-01-02 15:04:05 MST"}}
Object:   {{.ObjectType}} {{.ObjectID}}
DOI:      {{.DOI}}
Reason:   {{.Reason}}
`))
)

// Harvest sends the harvesting error alert.
func (a *Alerter) Harvest(ctx context.Context, e HarvestError) {
	a.send(ctx, "Harvesting error: collection "+e.CollectionID, harvestErrorTemplate, e)
}

// DOI sends the DOI maintenance error alert.
func (a *Alerter) DOI(ctx context.Context, e DOIError) {
	a.send(ctx, "DOI maintenance error: "+e.Action+" "+e.DOI, doiErrorTemplate, e)
}

// send renders and delivers an alert. Failures are logged; alerts never
// fail the operation that raised them.
func (a *Alerter) send(ctx context.Context, subject string, tmpl *template.Template, data any) {
	if a == nil || a.Recipient == "" || a.Mailer == nil {
		return
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		slog.Warn("unable to render alert", "template", tmpl.Name(), "err", err)
		return
	}
	msg := Message{To: []string{a.Recipient}, Subject: subject, Body: body.String()}
	if err := a.Mailer.Send(ctx, msg); err != nil {
		slog.Warn("unable to send email alert", "err", err)
	}
}
