package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/padel-booking-bot/internal/domain"
	"github.com/wolfman30/padel-booking-bot/pkg/logging"
)

// Publisher enqueues inbound messages for asynchronous processing.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueMessage publishes one customer message.
func (p *Publisher) EnqueueMessage(ctx context.Context, msg InboundMessage) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(msg.From) == "" {
		return &domain.ValidationError{Field: "From", Reason: "sender is required"}
	}

	payload, env, err := encodePayload(queuePayload{Kind: jobTypeMessage, Message: msg})
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, env); err != nil {
		return fmt.Errorf("conversation: failed to enqueue message: %w", err)
	}

	p.logger.Debug("inbound message enqueued", "job_id", payload.ID, "requester", msg.From)
	return nil
}
