package queue

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeAcknowledger struct {
	acks    int
	nacks   int
	rejects int
	requeue bool
}

func (f *fakeAcknowledger) Ack(uint64, bool) error {
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacks++
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	f.rejects++
	f.requeue = requeue
	return nil
}

const validID = "8b0f4a8e-3d1c-4b7a-9a53-2f0d7c1e6a10"

func TestTriageMessageValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		msg     TriageMessage
		wantErr bool
	}{
		{name: "valid", msg: TriageMessage{NotificationID: validID}},
		{name: "valid rescan", msg: TriageMessage{NotificationID: validID, Source: SourceRescan}},
		{name: "missing id", msg: TriageMessage{}, wantErr: true},
		{name: "not a uuid", msg: TriageMessage{NotificationID: "n1"}, wantErr: true},
		{name: "unknown source", msg: TriageMessage{NotificationID: validID, Source: "manual"}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConsumerHandleDelivery(t *testing.T) {
	t.Parallel()

	handlerErr := errors.New("db down")

	tests := []struct {
		name        string
		body        string
		redelivered bool
		handlerErr  error
		wantAcks    int
		wantNacks   int
		wantRejects int
		wantRequeue bool
		wantCalled  bool
	}{
		{
			name:       "handled",
			body:       `{"notificationId":"` + validID + `"}`,
			wantAcks:   1,
			wantCalled: true,
		},
		{
			name:        "invalid json goes to dlq",
			body:        `{`,
			wantRejects: 1,
		},
		{
			name:        "invalid message goes to dlq",
			body:        `{"notificationId":"nope"}`,
			wantRejects: 1,
		},
		{
			name:        "first failure is requeued",
			body:        `{"notificationId":"` + validID + `"}`,
			handlerErr:  handlerErr,
			wantNacks:   1,
			wantRequeue: true,
			wantCalled:  true,
		},
		{
			name:        "second failure is dead-lettered",
			body:        `{"notificationId":"` + validID + `"}`,
			redelivered: true,
			handlerErr:  handlerErr,
			wantNacks:   1,
			wantRequeue: false,
			wantCalled:  true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ack := &fakeAcknowledger{}
			delivery := amqp.Delivery{
				Acknowledger: ack,
				Body:         []byte(tt.body),
				Redelivered:  tt.redelivered,
				RoutingKey:   TriageQueue,
			}

			called := false
			consumer := NewRabbitMQConsumer(nil, 1, nil)
			err := consumer.handleDelivery(context.Background(), delivery, func(_ context.Context, msg TriageMessage) error {
				called = true
				if msg.NotificationID != validID {
					t.Errorf("NotificationID = %q, want %q", msg.NotificationID, validID)
				}
				return tt.handlerErr
			})
			if err != nil {
				t.Fatalf("handleDelivery() error = %v", err)
			}

			if called != tt.wantCalled {
				t.Fatalf("handler called = %v, want %v", called, tt.wantCalled)
			}
			if ack.acks != tt.wantAcks || ack.nacks != tt.wantNacks || ack.rejects != tt.wantRejects {
				t.Fatalf("acks/nacks/rejects = %d/%d/%d, want %d/%d/%d",
					ack.acks, ack.nacks, ack.rejects, tt.wantAcks, tt.wantNacks, tt.wantRejects)
			}
			if ack.requeue != tt.wantRequeue {
				t.Fatalf("requeue = %v, want %v", ack.requeue, tt.wantRequeue)
			}
		})
	}
}

func TestPublisherRejectsInvalidMessage(t *testing.T) {
	t.Parallel()

	publisher := NewRabbitMQPublisher(&RabbitMQ{})
	if err := publisher.Publish(context.Background(), TriageQueue, TriageMessage{}); err == nil {
		t.Fatal("Publish() error = nil, want validation error")
	}
	if err := publisher.Publish(context.Background(), "", TriageMessage{NotificationID: validID}); err == nil {
		t.Fatal("Publish() error = nil, want queue name error")
	}
}

func TestNewRabbitMQRequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := NewRabbitMQ("  "); err == nil {
		t.Fatal("NewRabbitMQ() error = nil, want error")
	}
}
