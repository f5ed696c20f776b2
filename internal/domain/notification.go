package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// State is the triage state of an inbound provider notification.
type State string

const (
	StateNew       State = "NEW"
	StateProcessed State = "PROCESSED"
	StateFailed    State = "FAILED"
)

func (s State) String() string { return string(s) }

func (s State) IsValid() bool {
	switch s {
	case StateNew, StateProcessed, StateFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is defined from s.
func (s State) IsTerminal() bool {
	switch s {
	case StateProcessed, StateFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether s -> next is a legal triage transition.
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StateNew:
		return next == StateProcessed || next == StateFailed
	case StateProcessed, StateFailed:
		return false
	}
	return false
}

// MaxProcessingErrorLength bounds the stored processing error message.
const MaxProcessingErrorLength = 255

// InboundNotification is a raw delivery-provider notification awaiting triage.
type InboundNotification struct {
	ID              string
	Headers         json.RawMessage
	Data            json.RawMessage
	AddedAt         time.Time
	State           State
	LastProcessedAt *time.Time
	ProcessingError *string
}

func (n *InboundNotification) Validate() error {
	if len(n.Data) == 0 {
		return fmt.Errorf("%w: data is required", ErrValidation)
	}
	if !json.Valid(n.Data) {
		return fmt.Errorf("%w: data must be a JSON document", ErrValidation)
	}
	if len(n.Headers) > 0 && !json.Valid(n.Headers) {
		return fmt.Errorf("%w: headers must be a JSON document", ErrValidation)
	}
	if !n.State.IsValid() {
		return fmt.Errorf("%w: invalid state %q", ErrValidation, n.State)
	}
	return nil
}

// TruncateProcessingError clips msg to MaxProcessingErrorLength runes.
func TruncateProcessingError(msg string) string {
	runes := []rune(msg)
	if len(runes) <= MaxProcessingErrorLength {
		return msg
	}
	return string(runes[:MaxProcessingErrorLength])
}
