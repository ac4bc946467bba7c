package ports

import (
	"context"

	"golang-messaging-bridge/internal/domain"
)

// DeliveryReporter publishes broadcast audit reports to the message queue.
type DeliveryReporter interface {
	// Report publishes a single domain.BroadcastReport.
	Report(ctx context.Context, r domain.BroadcastReport) error
}

// ReportConsumer consumes broadcast reports from the message queue.
type ReportConsumer interface {
	// Consume starts delivery of reports; each is passed to the handler.
	// Blocks until ctx is cancelled or a fatal error occurs.
	Consume(ctx context.Context, handler func(ctx context.Context, r domain.BroadcastReport) error) error
}
