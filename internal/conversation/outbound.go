package conversation

import "context"

// ReplyMessenger delivers replies back to the customer (e.g. via WhatsApp).
type ReplyMessenger interface {
	SendReply(ctx context.Context, reply OutboundReply) error
}

// OutboundReply carries the data required to push a message to the customer.
type OutboundReply struct {
	To   string
	Body string
}
