package nlu

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/wolfman30/padel-booking-bot/pkg/logging"
)

func TestFallbackClientUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &stubLLM{text: "primary"}
	fallback := &stubLLM{text: "fallback"}
	c := NewFallbackClient(primary, fallback, logging.Default())

	resp, err := c.Complete(context.Background(), LLMRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "primary" || len(fallback.reqs) != 0 {
		t.Fatalf("expected primary only, got %q with %d fallback calls", resp.Text, len(fallback.reqs))
	}
}

func TestFallbackClientSwitchesOnFailure(t *testing.T) {
	primary := &stubLLM{err: errors.New("503")}
	fallback := &stubLLM{text: "fallback"}
	c := NewFallbackClient(primary, fallback, logging.Default())

	resp, err := c.Complete(context.Background(), LLMRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "fallback" {
		t.Fatalf("expected fallback response, got %q", resp.Text)
	}
}

func TestFallbackClientReturnsLastError(t *testing.T) {
	c := NewFallbackClient(&stubLLM{err: errors.New("primary down")}, &stubLLM{err: errors.New("fallback down")}, nil)
	_, err := c.Complete(context.Background(), LLMRequest{})
	if err == nil || err.Error() != "fallback down" {
		t.Fatalf("expected fallback error, got %v", err)
	}

	solo := NewFallbackClient(&stubLLM{err: errors.New("primary down")}, nil, nil)
	if _, err := solo.Complete(context.Background(), LLMRequest{}); err == nil || err.Error() != "primary down" {
		t.Fatalf("expected primary error, got %v", err)
	}
}

type stubConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
}

func (s *stubConverse) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.input = params
	return s.out, nil
}

func TestBedrockClientMapsRolesAndText(t *testing.T) {
	total := int32(42)
	api := &stubConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: ` {"intencion":"otra_consulta"} `}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{TotalTokens: &total},
	}}
	c := NewBedrockClient(api, "anthropic.claude-3-haiku")

	resp, err := c.Complete(context.Background(), LLMRequest{
		System: []string{"sistema"},
		Messages: []ChatMessage{
			{Role: ChatRoleSystem, Content: "extra"},
			{Role: ChatRoleUser, Content: "hola"},
			{Role: ChatRoleAssistant, Content: "¿en qué te ayudo?"},
			{Role: ChatRoleUser, Content: "reservar"},
		},
		Temperature: 0.3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != `{"intencion":"otra_consulta"}` {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if resp.Usage.TotalTokens != 42 || resp.StopReason != "end_turn" {
		t.Fatalf("unexpected metadata %+v", resp)
	}
	if got := *api.input.ModelId; got != "anthropic.claude-3-haiku" {
		t.Fatalf("unexpected model %q", got)
	}
	if len(api.input.System) != 2 || len(api.input.Messages) != 3 {
		t.Fatalf("expected 2 system blocks and 3 messages, got %d and %d", len(api.input.System), len(api.input.Messages))
	}
}

func TestBedrockClientRequiresModel(t *testing.T) {
	c := NewBedrockClient(&stubConverse{}, "")
	if _, err := c.Complete(context.Background(), LLMRequest{}); err == nil {
		t.Fatalf("expected error without model id")
	}
}
