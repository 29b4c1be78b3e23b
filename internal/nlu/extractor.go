package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/padel-booking-bot/internal/domain"
	"github.com/wolfman30/padel-booking-bot/internal/observability/metrics"
	"github.com/wolfman30/padel-booking-bot/internal/timeutil"
	"github.com/wolfman30/padel-booking-bot/pkg/logging"
)

var tracer = otel.Tracer("padel.internal.nlu")

// Intent is what the customer wants from the turn.
type Intent string

const (
	IntentReserve  Intent = "reservar"
	IntentCancel   Intent = "cancelar"
	IntentSchedule Intent = "consultar_horarios"
	IntentCourts   Intent = "consultar_canchas"
	IntentOther    Intent = "otra_consulta"
)

// Input is one customer turn. History holds the earlier messages of the
// conversation, oldest first, and excludes Text.
type Input struct {
	Text    string
	Context string
	History []ChatMessage
	Prior   domain.ReservationRequest
}

// Result is the best-effort structured reading of a turn.
type Result struct {
	Intent            Intent
	Fields            domain.ReservationRequest
	Reply             string
	Missing           []string
	NeedsConfirmation bool
}

// Extractor is the seam the conversation engine depends on.
type Extractor interface {
	Extract(ctx context.Context, in Input) (Result, error)
}

// ExtractorConfig describes the establishment to the model.
type ExtractorConfig struct {
	Model         string
	Establishment string
	Hours         domain.BusinessHours
	Courts        []domain.Court
	MaxTokens     int32
	Temperature   float32
	Timeout       time.Duration
}

// LLMExtractor implements Extractor over an LLMClient.
type LLMExtractor struct {
	client  LLMClient
	cfg     ExtractorConfig
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
	now     func() time.Time
}

type ExtractorOption func(*LLMExtractor)

func WithMetrics(m *metrics.BookingMetrics) ExtractorOption {
	return func(e *LLMExtractor) { e.metrics = m }
}

// WithClock sets the clock used for the current date in the prompt.
func WithClock(now func() time.Time) ExtractorOption {
	return func(e *LLMExtractor) {
		if now != nil {
			e.now = now
		}
	}
}

func NewLLMExtractor(client LLMClient, cfg ExtractorConfig, logger *logging.Logger, opts ...ExtractorOption) *LLMExtractor {
	if client == nil {
		panic("nlu: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.Hours.Location == nil {
		cfg.Hours.Location = time.UTC
	}
	e := &LLMExtractor{client: client, cfg: cfg, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract asks the model for the turn's intent and fields. Transport and
// decoding failures are returned as *domain.BackendError.
func (e *LLMExtractor) Extract(ctx context.Context, in Input) (Result, error) {
	ctx, span := tracer.Start(ctx, "nlu.extract")
	defer span.End()

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	started := time.Now()
	resp, err := e.client.Complete(ctx, LLMRequest{
		Model:       e.cfg.Model,
		System:      []string{e.systemPrompt(in)},
		Messages:    Transcript(in.History, in.Text),
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	latency := time.Since(started)
	span.SetAttributes(
		attribute.Float64("padel.llm.latency_ms", float64(latency.Milliseconds())),
		attribute.Int("padel.llm.output_tokens", int(resp.Usage.OutputTokens)),
	)
	if err != nil {
		e.metrics.ObserveExtractLatency("error", latency.Seconds())
		span.RecordError(err)
		e.logger.Error("llm extraction failed", "error", err, "latency_ms", latency.Milliseconds())
		return Result{}, domain.Backend("nlu.extract", err)
	}

	if resp.Truncated() {
		e.logger.Warn("llm reply hit the token limit", "max_tokens", e.cfg.MaxTokens, "stop_reason", resp.StopReason)
	}

	result, err := ParseResult(resp.Text)
	if err != nil {
		e.metrics.ObserveExtractLatency("malformed", latency.Seconds())
		span.RecordError(err)
		e.logger.Warn("llm output could not be parsed", "error", err, "raw_len", len(resp.Text))
		return Result{}, domain.Backend("nlu.parse", err)
	}

	e.metrics.ObserveExtractLatency("ok", latency.Seconds())
	span.SetAttributes(attribute.String("padel.intent", string(result.Intent)))
	e.logger.Debug("llm extraction complete",
		"intent", result.Intent,
		"missing", result.Missing,
		"latency_ms", latency.Milliseconds(),
	)
	return result, nil
}

func (e *LLMExtractor) systemPrompt(in Input) string {
	now := e.now().In(e.cfg.Hours.Location)
	var b strings.Builder

	b.WriteString("Eres un asistente virtual especializado en reservas de canchas de padel.\n")
	b.WriteString("Tu tarea es entender las solicitudes de los usuarios y extraer la información relevante.\n\n")

	b.WriteString("INFORMACIÓN DEL ESTABLECIMIENTO:\n")
	fmt.Fprintf(&b, "- Nombre: %s\n", e.cfg.Establishment)
	fmt.Fprintf(&b, "- Horario: %s - %s\n", timeutil.FormatClock(e.cfg.Hours.Open), timeutil.FormatClock(e.cfg.Hours.Close))
	fmt.Fprintf(&b, "- Duración por defecto: %d minutos\n", int(e.cfg.Hours.DefaultDuration.Minutes()))
	fmt.Fprintf(&b, "- Fecha y hora actual: %s\n\n", now.Format("2006-01-02 15:04"))

	b.WriteString("CANCHAS:\n")
	for _, c := range e.cfg.Courts {
		fmt.Fprintf(&b, "- %s (ID: %s)\n", c.Name, c.ID)
	}
	if ctx := strings.TrimSpace(in.Context); ctx != "" {
		fmt.Fprintf(&b, "\nCONTEXTO ACTUAL:\n%s\n", ctx)
	}
	if !in.Prior.Empty() {
		prior, _ := json.Marshal(in.Prior)
		fmt.Fprintf(&b, "\nDATOS YA PROPORCIONADOS EN ESTA CONVERSACIÓN:\n%s\n", prior)
	}

	b.WriteString(`
INSTRUCCIONES:
1. Identifica la intención: reservar, cancelar, consultar_horarios, consultar_canchas u otra_consulta.
2. Extrae solo los datos mencionados en el mensaje actual o que el usuario corrija:
   - cancha: ID o nombre de la cancha
   - fecha: YYYY-MM-DD, o "hoy", "mañana", "pasado mañana"
   - hora: HH:MM en formato de 24 horas
   - duracion: minutos
   - nombre_cliente: nombre del cliente
3. Para reservar se necesitan cancha, fecha y hora.
4. Responde únicamente con un objeto JSON con esta estructura:
{
  "intencion": "reservar|cancelar|consultar_horarios|consultar_canchas|otra_consulta",
  "datos": {"cancha": null, "fecha": null, "hora": null, "duracion": null, "nombre_cliente": null},
  "mensaje_respuesta": "mensaje amigable para el usuario",
  "necesita_confirmacion": false,
  "informacion_faltante": []
}
Usa null para los datos que no se mencionan. Sé amable y profesional en "mensaje_respuesta".`)
	return b.String()
}
