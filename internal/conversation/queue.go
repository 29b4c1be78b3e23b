package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Queue carries inbound messages from the webhook to the worker.
type Queue interface {
	Send(ctx context.Context, env envelope) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// envelope is what a publisher hands to the queue. GroupID and
// DeduplicationID are honored by FIFO queues and ignored elsewhere.
type envelope struct {
	Body            string
	GroupID         string
	DeduplicationID string
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type jobType string

const jobTypeMessage jobType = "message"

// InboundMessage is one customer message accepted by the webhook.
type InboundMessage struct {
	From       string    `json:"from"`
	Body       string    `json:"body"`
	MessageSID string    `json:"message_sid,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

type queuePayload struct {
	ID      string         `json:"id"`
	Kind    jobType        `json:"kind"`
	Message InboundMessage `json:"message"`
}

func encodePayload(payload queuePayload) (queuePayload, envelope, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, envelope{}, fmt.Errorf("conversation: failed to encode payload: %w", err)
	}

	dedup := strings.TrimSpace(payload.Message.MessageSID)
	if dedup == "" {
		dedup = payload.ID
	}
	return payload, envelope{
		Body:            string(body),
		GroupID:         payload.Message.From,
		DeduplicationID: dedup,
	}, nil
}

func decodePayload(body string) (queuePayload, error) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return queuePayload{}, fmt.Errorf("conversation: failed to decode payload: %w", err)
	}
	if payload.Kind != jobTypeMessage {
		return queuePayload{}, fmt.Errorf("conversation: unknown job kind %q", payload.Kind)
	}
	if strings.TrimSpace(payload.Message.From) == "" {
		return queuePayload{}, fmt.Errorf("conversation: payload %s has no sender", payload.ID)
	}
	return payload, nil
}
