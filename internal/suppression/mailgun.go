package suppression

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mailgun/mailgun-go/v4"
)

const (
	bounceCode    = "550"
	bounceMessage = "permanent bounce reported by SES"
)

// BounceAdder is the slice of the Mailgun client this sink needs.
type BounceAdder interface {
	AddBounce(ctx context.Context, address, code, error string) error
}

// MailgunSink adds each address to the Mailgun bounce list of a domain, so
// the mailing side stops delivering to it.
type MailgunSink struct {
	client BounceAdder
}

var _ Sink = (*MailgunSink)(nil)

func NewMailgunSink(domain, apiKey string) (*MailgunSink, error) {
	if strings.TrimSpace(domain) == "" || strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("mailgun domain and api key are required")
	}
	return NewMailgunSinkWithClient(mailgun.NewMailgun(domain, apiKey))
}

func NewMailgunSinkWithClient(client BounceAdder) (*MailgunSink, error) {
	if client == nil {
		return nil, fmt.Errorf("mailgun client is required")
	}
	return &MailgunSink{client: client}, nil
}

func (s *MailgunSink) Suppress(ctx context.Context, email string) error {
	err := s.client.AddBounce(ctx, email, bounceCode, bounceMessage)
	if err == nil {
		return nil
	}

	sinkErr := &SinkError{Sink: "mailgun", Cause: err, Transient: !errors.Is(err, context.Canceled)}

	var unexpected *mailgun.UnexpectedResponseError
	if errors.As(err, &unexpected) {
		sinkErr.StatusCode = unexpected.Actual
		sinkErr.Transient = isTransientHTTPStatus(unexpected.Actual)
	}
	return sinkErr
}
