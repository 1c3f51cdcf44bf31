package email

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// NoopSender logs notices instead of delivering them. The body is only
// logged at debug level since it carries member details.
type NoopSender struct {
	logger  *zap.Logger
	dropped atomic.Int64
}

// NewNoopSender creates a NoopSender backed by the given logger.
func NewNoopSender(logger *zap.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

// Send records the message and returns nil.
func (n *NoopSender) Send(_ context.Context, to, subject, body string) error {
	n.dropped.Add(1)
	n.logger.Info("email not sent (noop sender)",
		zap.String("to", to),
		zap.String("subject", headerValue(subject)),
	)
	n.logger.Debug("email body", zap.String("to", to), zap.String("body", body))
	return nil
}

// Dropped reports how many messages were swallowed.
func (n *NoopSender) Dropped() int64 {
	return n.dropped.Load()
}
