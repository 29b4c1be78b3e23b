package nlu

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wolfman30/padel-booking-bot/internal/domain"
)

var (
	digitsRE     = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	errNoPayload = errors.New("nlu: model output contained no json object")
)

// wireResult is the JSON object the model is instructed to emit. Field values
// are decoded loosely since models mix strings, numbers and nulls.
type wireResult struct {
	Intent            string    `json:"intencion"`
	Fields            wireField `json:"datos"`
	Reply             string    `json:"mensaje_respuesta"`
	NeedsConfirmation any       `json:"necesita_confirmacion"`
	Missing           []any     `json:"informacion_faltante"`
}

type wireField struct {
	Court        any `json:"cancha"`
	Date         any `json:"fecha"`
	Time         any `json:"hora"`
	Duration     any `json:"duracion"`
	CustomerName any `json:"nombre_cliente"`
}

// ParseResult decodes raw model output. Code fences and prose around the
// JSON object are ignored; unknown intents become IntentOther.
func ParseResult(raw string) (Result, error) {
	text := extractJSONObject(stripCodeFence(raw))
	if !strings.HasPrefix(text, "{") {
		return Result{}, errNoPayload
	}

	var wire wireResult
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return Result{}, fmt.Errorf("nlu: decode extraction: %w", err)
	}

	res := Result{
		Intent:            normalizeIntent(wire.Intent),
		Reply:             strings.TrimSpace(wire.Reply),
		NeedsConfirmation: looseBool(wire.NeedsConfirmation),
		Fields: domain.ReservationRequest{
			Court:           looseString(wire.Fields.Court),
			Date:            looseString(wire.Fields.Date),
			Time:            looseString(wire.Fields.Time),
			DurationMinutes: looseMinutes(wire.Fields.Duration),
			CustomerName:    looseString(wire.Fields.CustomerName),
		},
	}
	for _, m := range wire.Missing {
		if s := looseString(m); s != nil {
			res.Missing = append(res.Missing, strings.ToLower(*s))
		}
	}
	return res, nil
}

func normalizeIntent(raw string) Intent {
	intent := Intent(strings.ToLower(strings.TrimSpace(raw)))
	switch intent {
	case IntentReserve, IntentCancel, IntentSchedule, IntentCourts, IntentOther:
		return intent
	default:
		return IntentOther
	}
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func extractJSONObject(text string) string {
	if strings.HasPrefix(text, "{") {
		return text
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

func looseString(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return nil
	}
	switch strings.ToLower(s) {
	case "", "null", "none", "n/a":
		return nil
	}
	return &s
}

// looseMinutes accepts 90, "90", "90 minutos" and "2 horas".
func looseMinutes(v any) *int {
	var minutes float64
	switch t := v.(type) {
	case float64:
		minutes = t
	case string:
		match := digitsRE.FindString(t)
		if match == "" {
			return nil
		}
		n, err := strconv.ParseFloat(strings.Replace(match, ",", ".", 1), 64)
		if err != nil {
			return nil
		}
		minutes = n
		if strings.Contains(strings.ToLower(t), "hora") {
			minutes = n * 60
		}
	default:
		return nil
	}
	if minutes <= 0 {
		return nil
	}
	m := int(minutes)
	return &m
}

func looseBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	default:
		return false
	}
}
