// Package ses reads the Amazon SES event documents that arrive wrapped in
// SNS HTTP notifications. Only the fields triage needs are decoded; the rest
// of the provider schema is left opaque.
package ses

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SNS envelope types.
const (
	TypeNotification             = "Notification"
	TypeSubscriptionConfirmation = "SubscriptionConfirmation"
	TypeUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

// EventTypeOpen is the only SES event type triage accepts.
const EventTypeOpen = "Open"

const bounceTypePermanent = "Permanent"

var (
	ErrNotNotification = errors.New("Not a Notification")
	ErrWrongEventType  = errors.New("Wrong type of notification")
)

// Envelope is the subset of an SNS HTTP(S) message body we read.
type Envelope struct {
	Type         string          `json:"Type"`
	MessageID    string          `json:"MessageId"`
	TopicArn     string          `json:"TopicArn"`
	Message      json.RawMessage `json:"Message"`
	SubscribeURL string          `json:"SubscribeURL"`
}

// Event is the subset of an SES event publishing record we read.
type Event struct {
	EventType string          `json:"eventType"`
	Bounce    json.RawMessage `json:"bounce"`
}

type bounce struct {
	BounceType        string `json:"bounceType"`
	BouncedRecipients []struct {
		EmailAddress string `json:"emailAddress"`
	} `json:"bouncedRecipients"`
}

// ParseEnvelope decodes an SNS message body.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid sns envelope: %w", err)
	}
	return env, nil
}

// IsNotification reports whether the envelope carries a provider event.
func (e Envelope) IsNotification() bool {
	return e.Type == TypeNotification
}

// Event decodes the SES record carried as a JSON string in Message.
func (e Envelope) Event() (Event, error) {
	if len(e.Message) == 0 {
		return Event{}, fmt.Errorf("notification has no Message")
	}

	var raw string
	if err := json.Unmarshal(e.Message, &raw); err != nil {
		return Event{}, fmt.Errorf("notification Message is not a string: %w", err)
	}

	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return Event{}, fmt.Errorf("invalid notification Message: %w", err)
	}
	return event, nil
}

// PermanentBouncedEmails lists the recipients of a permanent bounce. Transient
// bounces and an absent bounce object yield no addresses.
func PermanentBouncedEmails(raw json.RawMessage) ([]string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var b bounce
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("invalid bounce object: %w", err)
	}
	if b.BounceType != bounceTypePermanent {
		return nil, nil
	}

	emails := make([]string, 0, len(b.BouncedRecipients))
	for _, recipient := range b.BouncedRecipients {
		if address := strings.TrimSpace(recipient.EmailAddress); address != "" {
			emails = append(emails, address)
		}
	}
	return emails, nil
}
