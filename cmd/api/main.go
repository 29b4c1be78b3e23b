package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/padel-booking-bot/internal/api/router"
	appconfig "github.com/wolfman30/padel-booking-bot/internal/config"
	"github.com/wolfman30/padel-booking-bot/internal/conversation"
	httpmiddleware "github.com/wolfman30/padel-booking-bot/internal/http/middleware"
	"github.com/wolfman30/padel-booking-bot/internal/messaging"
	"github.com/wolfman30/padel-booking-bot/internal/reminders"
	"github.com/wolfman30/padel-booking-bot/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting padel booking bot",
		"env", cfg.Env,
		"port", cfg.Port,
		"establishment", cfg.EstablishmentName,
		"courts", len(cfg.Courts),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	deps, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      deps.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	deps.store.Start(gctx)
	deps.worker.Start(gctx)
	if deps.reminders != nil {
		deps.reminders.Start(gctx)
	}

	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		deps.store.Stop()
		deps.worker.Wait()
		if deps.reminders != nil {
			deps.reminders.Wait()
		}
		deps.store.Wait()
		return err
	})

	return g.Wait()
}

// app is everything run needs after wiring.
type app struct {
	handler   http.Handler
	store     *conversation.Store
	worker    *conversation.Worker
	reminders *reminders.Scheduler
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	a := &app{}
	hours, err := cfg.BusinessHours()
	if err != nil {
		return nil, err
	}
	metricsHandler, bookingMetrics := setupMetrics()

	core, err := setupBooking(ctx, cfg, hours, bookingMetrics, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, core.close)

	extractor, closeLLM, err := setupExtractor(ctx, cfg, hours, core.courts.All(), bookingMetrics, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, closeLLM)

	queue, err := setupQueue(ctx, cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	a.store = conversation.NewStore(logger,
		conversation.WithTTL(cfg.ConversationTTL),
		conversation.WithSweepInterval(cfg.SweepInterval),
		conversation.WithHistoryLimit(cfg.HistoryLimit),
	)
	engine := conversation.NewEngine(a.store, extractor, core.courts, core.oracle, core.reservations, hours, logger,
		conversation.WithEngineMetrics(bookingMetrics),
		conversation.WithEstablishment(cfg.EstablishmentName),
	)
	sender := messaging.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber, logger)
	a.worker = conversation.NewWorker(engine, queue, sender, logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithWorkerMetrics(bookingMetrics),
	)

	if cfg.RemindersEnabled {
		opts := []reminders.Option{
			reminders.WithInterval(cfg.ReminderInterval),
			reminders.WithMetrics(bookingMetrics),
		}
		if core.redis != nil {
			opts = append(opts, reminders.WithMarks(reminders.NewRedisMarks(core.redis)))
		}
		a.reminders = reminders.NewScheduler(core.reservations, sender, hours.Location, logger, opts...)
	}

	handlerOpts := []messaging.HandlerOption{messaging.WithHandlerMetrics(bookingMetrics)}
	if cfg.TwilioValidateSignature {
		handlerOpts = append(handlerOpts, messaging.WithSignature(messaging.SignatureConfig{
			Enabled:    true,
			AuthToken:  cfg.TwilioAuthToken,
			WebhookURL: cfg.TwilioWebhookURL,
		}))
	}
	messagingHandler := messaging.NewHandler(conversation.NewPublisher(queue, logger), logger, handlerOpts...)

	var limiter *httpmiddleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	a.handler = router.New(&router.Config{
		Logger:           logger,
		MessagingHandler: messagingHandler,
		MetricsHandler:   metricsHandler,
		WebhookLimiter:   limiter,
	})
	return a, nil
}
