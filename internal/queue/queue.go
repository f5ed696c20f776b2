package queue

import "context"

// Publisher publishes triage messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg TriageMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg TriageMessage) error

// Consumer consumes triage messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// TriageQueue carries notifications waiting for triage.
	TriageQueue = "sns.triage"
	// TriageDLQ parks messages that failed twice or could not be decoded.
	TriageDLQ = "dlq.sns.triage"

	triageRoutingKey = "sns.triage"
)
