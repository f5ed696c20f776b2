// Package suppression receives addresses that bounced permanently and hands
// them to whatever keeps the suppression list.
package suppression

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Sink accepts one permanently bounced address at a time.
type Sink interface {
	Suppress(ctx context.Context, email string) error
}

// LogSink records the address and does nothing else.
type LogSink struct {
	logger *zap.Logger
}

var _ Sink = (*LogSink)(nil)

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Suppress(_ context.Context, email string) error {
	s.logger.Info("address suppressed", zap.String("email", strings.TrimSpace(email)))
	return nil
}
