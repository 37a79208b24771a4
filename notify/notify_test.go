package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/dspacekit/config"
)

type recordingMailer struct {
	sent []Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg Message) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func TestNewSelectsMailer(t *testing.T) {
	if _, ok := New(config.MailConfig{}).(LogMailer); !ok {
		t.Error("no host should give a LogMailer")
	}
	if _, ok := New(config.MailConfig{Host: "smtp.example.org", Port: 25}).(*SMTPMailer); !ok {
		t.Error("a host should give an SMTPMailer")
	}
}

func TestHarvestAlert(t *testing.T) {
	m := &recordingMailer{}
	a := &Alerter{Mailer: m, Recipient: "admin@example.org"}
	a.Harvest(context.Background(), HarvestError{
		CollectionID: "c-1",
		Date:         time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Status:       "RETRY",
		Message:      "Imported 2 records with success - Record import failures: 1",
		Report:       "oai:x:1: boom",
	})

	if len(m.sent) != 1 {
		t.Fatalf("got %d messages, want 1", len(m.sent))
	}
	msg := m.sent[0]
	if msg.To[0] != "admin@example.org" {
		t.Errorf("got %q, want %q", msg.To[0], "admin@example.org")
	}
	for _, want := range []string{"c-1", "2024-03-01 10:00:00 UTC", "RETRY", "oai:x:1: boom"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}
}

func TestDOIAlert(t *testing.T) {
	m := &recordingMailer{}
	a := &Alerter{Mailer: m, Recipient: "admin@example.org"}
	a.DOI(context.Background(), DOIError{Action: "REGISTER", DOI: "10.5072/dspace-1", Reason: "BAD_ANSWER"})
	if len(m.sent) != 1 || !strings.Contains(m.sent[0].Subject, "10.5072/dspace-1") {
		t.Fatalf("unexpected messages: %+v", m.sent)
	}
}

func TestAlertWithoutRecipient(t *testing.T) {
	m := &recordingMailer{}
	(&Alerter{Mailer: m}).Harvest(context.Background(), HarvestError{})
	var nilAlerter *Alerter
	nilAlerter.DOI(context.Background(), DOIError{})
	if len(m.sent) != 0 {
		t.Errorf("got %d messages, want none", len(m.sent))
	}
}

func TestAlertSendFailureIsSwallowed(t *testing.T) {
	m := &recordingMailer{err: errors.New("relay down")}
	a := &Alerter{Mailer: m, Recipient: "admin@example.org"}
	a.Harvest(context.Background(), HarvestError{CollectionID: "c"})
	if len(m.sent) != 1 {
		t.Errorf("got %d attempts, want 1", len(m.sent))
	}
}

func TestSMTPMailer(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m := &SMTPMailer{
		cfg: config.MailConfig{Host: "smtp.example.org", Port: 2525, From: "noreply@example.org"},
		send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
			if a != nil {
				t.Error("no username configured, auth should be nil")
			}
			return nil
		},
	}
	err := m.Send(context.Background(), Message{To: []string{"a@example.org"}, Subject: "Hi", Body: "line1\nline2"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if gotAddr != "smtp.example.org:2525" {
		t.Errorf("got %q, want %q", gotAddr, "smtp.example.org:2525")
	}
	if gotFrom != "noreply@example.org" || len(gotTo) != 1 {
		t.Errorf("envelope: from %q to %v", gotFrom, gotTo)
	}
	if !strings.Contains(string(gotMsg), "Subject: Hi\r\n") || !strings.Contains(string(gotMsg), "line1\r\nline2") {
		t.Errorf("unexpected message:\n%s", gotMsg)
	}
}

func TestSMTPMailerNoRecipient(t *testing.T) {
	m := &SMTPMailer{cfg: config.MailConfig{Host: "h", Port: 25}}
	if err := m.Send(context.Background(), Message{Subject: "x"}); err == nil {
		t.Fatal("expected error without recipients")
	}
}
