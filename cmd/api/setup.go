package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/padel-booking-bot/cmd/mainconfig"
	"github.com/wolfman30/padel-booking-bot/internal/availability"
	"github.com/wolfman30/padel-booking-bot/internal/calendar"
	appconfig "github.com/wolfman30/padel-booking-bot/internal/config"
	"github.com/wolfman30/padel-booking-bot/internal/conversation"
	"github.com/wolfman30/padel-booking-bot/internal/courts"
	"github.com/wolfman30/padel-booking-bot/internal/domain"
	"github.com/wolfman30/padel-booking-bot/internal/nlu"
	"github.com/wolfman30/padel-booking-bot/internal/observability/metrics"
	"github.com/wolfman30/padel-booking-bot/internal/reservations"
	"github.com/wolfman30/padel-booking-bot/pkg/logging"
)

const memoryQueueBuffer = 1024

func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewBookingMetrics(reg)
}

// bookingCore groups the court, calendar and reservation collaborators.
type bookingCore struct {
	courts       *courts.Registry
	oracle       *availability.Oracle
	reservations *reservations.Service
	redis        redis.UniversalClient
}

func (c *bookingCore) close() {
	if c.redis != nil {
		_ = c.redis.Close()
	}
}

func setupBooking(ctx context.Context, cfg *appconfig.Config, hours domain.BusinessHours, m *metrics.BookingMetrics, logger *logging.Logger) (*bookingCore, error) {
	registry, err := courts.NewRegistry(cfg.Courts, cfg.CourtAliases)
	if err != nil {
		return nil, err
	}
	backend, err := setupCalendar(ctx, cfg, hours, logger)
	if err != nil {
		return nil, err
	}
	rdb, err := setupRedis(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	core := &bookingCore{courts: registry, redis: rdb}
	core.oracle = availability.NewOracle(registry, backend, hours, logger)

	opts := []reservations.Option{
		reservations.WithMetrics(m),
		reservations.WithTransactionTimeout(cfg.ReservationTimeout()),
	}
	if rdb != nil {
		opts = append(opts, reservations.WithLocker(reservations.NewRedisLocker(rdb, reservations.WithLeaseTTL(cfg.RedisLockTTL))))
	}
	core.reservations = reservations.NewService(registry, core.oracle, backend, logger, opts...)
	return core, nil
}

func setupCalendar(ctx context.Context, cfg *appconfig.Config, hours domain.BusinessHours, logger *logging.Logger) (calendar.Backend, error) {
	var backend calendar.Backend
	switch cfg.CalendarBackend {
	case "memory":
		logger.Warn("using in-memory calendar; reservations are lost on restart")
		backend = calendar.NewMemoryBackend()
	default:
		google, err := calendar.NewGoogleBackend(ctx, calendar.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURI:  cfg.GoogleRedirectURI,
			RefreshToken: cfg.GoogleRefreshToken,
		}, hours.Location, logger)
		if err != nil {
			return nil, err
		}
		backend = google
	}
	return calendar.WithTimeout(backend, cfg.CalendarTimeout), nil
}

// setupRedis returns nil when REDIS_ADDR is unset; callers fall back to
// process-local locks and reminder marks.
func setupRedis(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (redis.UniversalClient, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	logger.Info("redis connected", "addr", addr)
	return client, nil
}

func setupExtractor(ctx context.Context, cfg *appconfig.Config, hours domain.BusinessHours, all []domain.Court, m *metrics.BookingMetrics, logger *logging.Logger) (nlu.Extractor, func(), error) {
	client, closeFn, err := setupLLM(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	extractor := nlu.NewLLMExtractor(client, nlu.ExtractorConfig{
		Establishment: cfg.EstablishmentName,
		Hours:         hours,
		Courts:        all,
		Timeout:       cfg.LLMTimeout,
	}, logger, nlu.WithMetrics(m))
	return extractor, closeFn, nil
}

// setupLLM builds the primary client for LLM_PROVIDER. With gemini selected
// and BEDROCK_MODEL_ID set, Bedrock becomes the fallback.
func setupLLM(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (nlu.LLMClient, func(), error) {
	newBedrock := func() (*nlu.BedrockClient, error) {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		return nlu.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), nil
	}

	if cfg.LLMProvider == "bedrock" {
		client, err := newBedrock()
		if err != nil {
			return nil, nil, err
		}
		logger.Info("llm configured", "provider", "bedrock", "model", cfg.BedrockModelID)
		return client, func() {}, nil
	}

	gemini, err := nlu.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { _ = gemini.Close() }
	if strings.TrimSpace(cfg.BedrockModelID) == "" {
		logger.Info("llm configured", "provider", "gemini", "model", cfg.GeminiModel)
		return gemini, closeFn, nil
	}
	bedrock, err := newBedrock()
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	logger.Info("llm configured", "provider", "gemini", "model", cfg.GeminiModel, "fallback", cfg.BedrockModelID)
	return nlu.NewFallbackClient(gemini, bedrock, logger), closeFn, nil
}

func setupQueue(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.Queue, error) {
	if cfg.UseMemoryQueue || strings.TrimSpace(cfg.ConversationQueueURL) == "" {
		if !cfg.UseMemoryQueue {
			logger.Warn("CONVERSATION_QUEUE_URL is empty; falling back to in-memory queue")
		}
		return conversation.NewMemoryQueue(memoryQueueBuffer), nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	logger.Info("using sqs conversation queue", "url", cfg.ConversationQueueURL)
	return conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ConversationQueueURL), nil
}
