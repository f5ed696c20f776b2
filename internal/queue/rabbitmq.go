package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dlxExchangeName = "newsletter.dlx"
	connectTimeout  = 15 * time.Second
	minBackoff      = time.Second
	maxBackoff      = 30 * time.Second
)

// RabbitMQ owns the process-wide broker connection. A dropped connection is
// re-dialed on the next channel request; the triage topology is declared once
// per connection.
type RabbitMQ struct {
	url string

	mu       sync.Mutex
	conn     *amqp.Connection
	declared bool
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	r := &RabbitMQ{url: url}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.dialLocked(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn := r.conn
	r.conn = nil
	r.declared = false
	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

// channel opens a channel on a live connection, re-dialing at most once when
// the current connection refuses to open one.
func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for redialed := false; ; redialed = true {
		if r.conn == nil || r.conn.IsClosed() {
			if err := r.dialLocked(ctx); err != nil {
				return nil, err
			}
		}

		ch, err := r.conn.Channel()
		if err != nil {
			if redialed {
				return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
			}
			_ = r.conn.Close()
			continue
		}

		if !r.declared {
			if err := declareTopology(ch); err != nil {
				_ = ch.Close()
				return nil, err
			}
			r.declared = true
		}
		return ch, nil
	}
}

func (r *RabbitMQ) dialLocked(ctx context.Context) error {
	wait := minBackoff
	for {
		conn, err := amqp.Dial(r.url)
		if err == nil {
			r.conn = conn
			r.declared = false
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to connect to rabbitmq (last error: %v): %w", err, ctx.Err())
		case <-time.After(wait):
		}
		wait = nextBackoff(wait)
	}
}

func nextBackoff(current time.Duration) time.Duration {
	return min(current*2, maxBackoff)
}

// declareTopology sets up sns.triage with dead-lettering into dlq.sns.triage.
func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchangeName, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlx exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(TriageDLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlq %q: %w", TriageDLQ, err)
	}
	if err := ch.QueueBind(TriageDLQ, triageRoutingKey, dlxExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind dlq %q: %w", TriageDLQ, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    dlxExchangeName,
		"x-dead-letter-routing-key": triageRoutingKey,
	}
	if _, err := ch.QueueDeclare(TriageQueue, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", TriageQueue, err)
	}

	return nil
}
