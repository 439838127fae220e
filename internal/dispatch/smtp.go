package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"time"

	"github.com/google/uuid"

	"applypilot-engine/internal/domain"
)

// SMTPSender sends via plain SMTP with STARTTLS (submission port).
type SMTPSender struct {
	host       string
	port       int
	username   string
	password   string
	from       string
	senderName string
	log        *slog.Logger

	// injectable for tests
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	SenderName string
}

func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.Port == 0 || cfg.From == "" {
		return nil, errors.New("smtp: host, port and from are required")
	}
	if cfg.Username == "" {
		cfg.Username = cfg.From
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPSender{
		host:       cfg.Host,
		port:       cfg.Port,
		username:   cfg.Username,
		password:   cfg.Password,
		from:       cfg.From,
		senderName: cfg.SenderName,
		log:        logger,
		sendMail:   smtp.SendMail,
	}, nil
}

// Send builds a MIME message (HTML body, optional attachment) and submits
// it. A rejection from the server is domain.ErrDispatchRejected: the
// server told us no, and asking again will not change its mind. A network
// timeout is returned as-is, because the server may have accepted the
// message before the connection died and the caller must treat the
// outcome as unknown.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if msg.To == "" {
		return Receipt{}, fmt.Errorf("%w: empty recipient", domain.ErrDispatchRejected)
	}

	msgID := uuid.New().String()
	body := s.buildMIME(msg, msgID)

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	auth := smtp.PlainAuth("", s.username, s.password, s.host)

	start := time.Now()
	if err := s.sendMail(addr, auth, s.from, []string{msg.To}, body); err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return Receipt{}, fmt.Errorf("smtp: submission timed out: %w", err)
		}
		return Receipt{}, fmt.Errorf("%w: %v", domain.ErrDispatchRejected, err)
	}

	s.log.Info("dispatch: message accepted",
		"to", msg.To,
		"message_id", msgID,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return Receipt{MessageID: msgID}, nil
}

func (s *SMTPSender) buildMIME(msg Message, msgID string) []byte {
	var buf bytes.Buffer

	from := s.from
	if s.senderName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.senderName), s.from)
	}

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Message-ID: <%s@%s>\r\n", msgID, s.host)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")

	if msg.Attachment == nil {
		fmt.Fprintf(&buf, "Content-Type: text/html; charset=utf-8\r\n\r\n")
		buf.WriteString(msg.HTMLBody)
		return buf.Bytes()
	}

	boundary := "ap-" + msgID
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Type: text/html; charset=utf-8\r\n\r\n")
	buf.WriteString(msg.HTMLBody)
	buf.WriteString("\r\n")

	ct := msg.Attachment.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Type: %s\r\n", ct)
	fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n", msg.Attachment.Filename)
	fmt.Fprintf(&buf, "Content-Transfer-Encoding: base64\r\n\r\n")

	enc := base64.StdEncoding.EncodeToString(msg.Attachment.Data)
	for len(enc) > 76 {
		buf.WriteString(enc[:76] + "\r\n")
		enc = enc[76:]
	}
	buf.WriteString(enc + "\r\n")
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes()
}
