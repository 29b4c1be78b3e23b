package nlu

import "testing"

func TestTranscriptSkipsBlankHistory(t *testing.T) {
	history := []ChatMessage{
		{Role: ChatRoleUser, Content: "hola"},
		{Role: ChatRoleAssistant, Content: "  "},
		{Role: ChatRoleAssistant, Content: "¿Qué cancha?"},
	}
	got := Transcript(history, "la 2")
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d: %+v", len(got), got)
	}
	last := got[len(got)-1]
	if last.Role != ChatRoleUser || last.Content != "la 2" {
		t.Fatalf("new text should close the transcript, got %+v", last)
	}
	if len(history) != 3 {
		t.Fatalf("history must not be modified")
	}
}

func TestResponseTruncated(t *testing.T) {
	cases := map[string]bool{
		"max_tokens":            true,
		"FinishReasonMaxTokens": true,
		"MAX_TOKENS":            true,
		"length":                true,
		"end_turn":              false,
		"FinishReasonStop":      false,
		"":                      false,
	}
	for reason, want := range cases {
		if got := (LLMResponse{StopReason: reason}).Truncated(); got != want {
			t.Fatalf("Truncated(%q) = %v, want %v", reason, got, want)
		}
	}
}
