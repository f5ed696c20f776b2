package queue

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Message sources.
const (
	SourceIngest = "ingest"
	SourceRescan = "rescan"
)

// TriageMessage asks a worker to triage one stored SNS notification.
type TriageMessage struct {
	NotificationID string `json:"notificationId"`
	CorrelationID  string `json:"correlationId,omitempty"`
	Source         string `json:"source,omitempty"`
}

func (m TriageMessage) Validate() error {
	id := strings.TrimSpace(m.NotificationID)
	if id == "" {
		return fmt.Errorf("notificationId is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid notificationId %q", m.NotificationID)
	}
	switch m.Source {
	case "", SourceIngest, SourceRescan:
	default:
		return fmt.Errorf("invalid source %q", m.Source)
	}
	return nil
}
