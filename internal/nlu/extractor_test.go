package nlu

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/padel-booking-bot/internal/domain"
	"github.com/wolfman30/padel-booking-bot/pkg/logging"
)

type stubLLM struct {
	text string
	err  error
	reqs []LLMRequest
}

func (s *stubLLM) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	return LLMResponse{Text: s.text}, nil
}

func testExtractor(client LLMClient) *LLMExtractor {
	mx, _ := time.LoadLocation("America/Mexico_City")
	return NewLLMExtractor(client, ExtractorConfig{
		Establishment: "Centro de Padel",
		Hours: domain.BusinessHours{
			Open:            civil.Time{Hour: 8},
			Close:           civil.Time{Hour: 22},
			DefaultDuration: time.Hour,
			Location:        mx,
		},
		Courts: []domain.Court{
			{ID: "cancha_1", Name: "Cancha 1"},
			{ID: "cancha_2", Name: "Cancha 2"},
		},
	}, logging.Default(), WithClock(func() time.Time {
		return time.Date(2025, 3, 10, 9, 30, 0, 0, mx)
	}))
}

func strPtr(s string) *string { return &s }

func TestExtractBuildsPromptAndParsesResult(t *testing.T) {
	llm := &stubLLM{text: "```json\n{\"intencion\":\"reservar\",\"datos\":{\"hora\":\"18:00\"},\"informacion_faltante\":[\"cancha\"]}\n```"}
	ex := testExtractor(llm)

	res, err := ex.Extract(context.Background(), Input{
		Text:    "a las 6 de la tarde",
		Context: "Canchas libres ahora: Cancha 2",
		History: []ChatMessage{
			{Role: ChatRoleUser, Content: "quiero reservar mañana"},
			{Role: ChatRoleAssistant, Content: "¿A qué hora?"},
		},
		Prior: domain.ReservationRequest{Date: strPtr("mañana")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Intent != IntentReserve || res.Fields.Time == nil || *res.Fields.Time != "18:00" {
		t.Fatalf("unexpected result %+v", res)
	}

	if len(llm.reqs) != 1 {
		t.Fatalf("expected one llm call, got %d", len(llm.reqs))
	}
	req := llm.reqs[0]
	if len(req.Messages) != 3 || req.Messages[2].Content != "a las 6 de la tarde" || req.Messages[2].Role != ChatRoleUser {
		t.Fatalf("expected history followed by the current text, got %+v", req.Messages)
	}
	system := strings.Join(req.System, "\n")
	for _, want := range []string{
		"Centro de Padel",
		"08:00 - 22:00",
		"2025-03-10 09:30",
		"Cancha 2 (ID: cancha_2)",
		"Canchas libres ahora: Cancha 2",
		`"fecha":"mañana"`,
	} {
		if !strings.Contains(system, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, system)
		}
	}
}

func TestExtractWrapsClientFailure(t *testing.T) {
	ex := testExtractor(&stubLLM{err: errors.New("quota exceeded")})
	_, err := ex.Extract(context.Background(), Input{Text: "hola"})
	if !errors.Is(err, domain.ErrBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestExtractWrapsMalformedOutput(t *testing.T) {
	ex := testExtractor(&stubLLM{text: "lo siento, no puedo ayudar"})
	_, err := ex.Extract(context.Background(), Input{Text: "hola"})
	var backend *domain.BackendError
	if !errors.As(err, &backend) {
		t.Fatalf("expected *domain.BackendError, got %T %v", err, err)
	}
	if backend.Op != "nlu.parse" {
		t.Fatalf("unexpected op %q", backend.Op)
	}
}

func TestExtractAppliesTimeout(t *testing.T) {
	blocking := ClientFunc(func(ctx context.Context, req LLMRequest) (LLMResponse, error) {
		<-ctx.Done()
		return LLMResponse{}, ctx.Err()
	})
	ex := testExtractor(blocking)
	ex.cfg.Timeout = 10 * time.Millisecond

	_, err := ex.Extract(context.Background(), Input{Text: "hola"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
