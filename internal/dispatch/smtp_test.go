package dispatch

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"applypilot-engine/internal/domain"
)

func testSender(t *testing.T, sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error) *SMTPSender {
	t.Helper()
	s, err := NewSMTPSender(SMTPConfig{
		Host:       "smtp.example.com",
		Port:       587,
		Password:   "pw",
		From:       "me@example.com",
		SenderName: "Pat Doe",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.sendMail = sendMail
	return s
}

func TestSendBuildsMIME(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	s := testSender(t, func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	})

	rcpt, err := s.Send(context.Background(), Message{
		To:       "hr@initech.com",
		Subject:  "Application for Go Engineer",
		HTMLBody: "<p>Hello</p>",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if rcpt.MessageID == "" {
		t.Error("empty message id")
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if gotFrom != "me@example.com" {
		t.Errorf("from = %q", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "hr@initech.com" {
		t.Errorf("to = %v", gotTo)
	}
	for _, want := range []string{
		"To: hr@initech.com\r\n",
		"Content-Type: text/html; charset=utf-8\r\n",
		"Message-ID: <" + rcpt.MessageID + "@smtp.example.com>\r\n",
		"<p>Hello</p>",
	} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSendWithAttachment(t *testing.T) {
	var gotMsg string
	s := testSender(t, func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotMsg = string(msg)
		return nil
	})

	_, err := s.Send(context.Background(), Message{
		To:       "hr@initech.com",
		Subject:  "Application",
		HTMLBody: "<p>Hi</p>",
		Attachment: &Attachment{
			Filename:    "resume.pdf",
			ContentType: "application/pdf",
			Data:        []byte("%PDF-1.4 fake"),
		},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	for _, want := range []string{
		"Content-Type: multipart/mixed;",
		`Content-Disposition: attachment; filename="resume.pdf"`,
		"Content-Transfer-Encoding: base64",
		"Content-Type: application/pdf",
	} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSendEmptyRecipientRejected(t *testing.T) {
	s := testSender(t, func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("sendMail called for empty recipient")
		return nil
	})
	_, err := s.Send(context.Background(), Message{Subject: "x", HTMLBody: "y"})
	if !errors.Is(err, domain.ErrDispatchRejected) {
		t.Fatalf("err = %v, want ErrDispatchRejected", err)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestSendErrorClassification(t *testing.T) {
	// server rejection: deterministic failure
	s := testSender(t, func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("550 mailbox unavailable")
	})
	_, err := s.Send(context.Background(), Message{To: "hr@initech.com", Subject: "x", HTMLBody: "y"})
	if !errors.Is(err, domain.ErrDispatchRejected) {
		t.Fatalf("rejection err = %v, want ErrDispatchRejected", err)
	}

	// network timeout: outcome unknown, must not look like a rejection
	s = testSender(t, func(string, smtp.Auth, string, []string, []byte) error {
		return timeoutErr{}
	})
	_, err = s.Send(context.Background(), Message{To: "hr@initech.com", Subject: "x", HTMLBody: "y"})
	if err == nil {
		t.Fatal("want error")
	}
	if errors.Is(err, domain.ErrDispatchRejected) {
		t.Fatalf("timeout classified as rejection: %v", err)
	}
}
