// Package dispatch sends the generated message through an external
// transactional-mail service. The orchestrator guarantees at most one Send
// call per record transition into sent.
package dispatch

import (
	"context"
	"fmt"

	"applypilot-engine/internal/domain"
)

// Message is one outbound application email.
type Message struct {
	To         string
	Subject    string
	HTMLBody   string
	Attachment *Attachment
}

// Attachment is an optional binary attachment (the resume PDF).
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Receipt identifies an accepted delivery.
type Receipt struct {
	MessageID string
}

type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// Disabled stands in for the real sender until SMTP is configured. Every
// send is rejected, so records land in a retryable skipped state instead
// of blocking the rest of the pipeline.
type Disabled struct{}

func (Disabled) Send(context.Context, Message) (Receipt, error) {
	return Receipt{}, fmt.Errorf("%w: smtp is not configured", domain.ErrDispatchRejected)
}
