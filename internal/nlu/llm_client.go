// Package nlu turns free-form WhatsApp text into a booking intent and the
// reservation fields it mentions. The language model is reached through the
// narrow LLMClient interface so providers can be swapped or chained.
package nlu

import (
	"context"
	"strings"
)

// Transcript roles. History entries stored by the conversation engine use
// the same values.
const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// LLMClient completes one prompt. Implementations must honor ctx.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// ClientFunc adapts a plain function to LLMClient.
type ClientFunc func(ctx context.Context, req LLMRequest) (LLMResponse, error)

func (f ClientFunc) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	return f(ctx, req)
}

// ChatMessage is one entry of the prompt transcript.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcript appends the customer's new text to the stored history,
// skipping blank entries some providers reject.
func Transcript(history []ChatMessage, text string) []ChatMessage {
	out := make([]ChatMessage, 0, len(history)+1)
	for _, msg := range history {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		out = append(out, msg)
	}
	return append(out, ChatMessage{Role: ChatRoleUser, Content: text})
}

// LLMRequest is provider neutral. Zero sampling values leave the provider
// default in place.
type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// LLMResponse carries the completion text plus what the provider reported
// about it.
type LLMResponse struct {
	Text       string
	StopReason string
	Usage      TokenUsage
}

// Truncated reports whether the provider stopped on the token limit, in
// which case the JSON reply is usually cut short.
func (r LLMResponse) Truncated() bool {
	reason := strings.ToLower(r.StopReason)
	reason = strings.TrimPrefix(reason, "finishreason")
	reason = strings.ReplaceAll(reason, "_", "")
	return reason == "maxtokens" || reason == "length"
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}
