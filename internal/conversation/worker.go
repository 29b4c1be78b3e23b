package conversation

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/wolfman30/padel-booking-bot/internal/observability/metrics"
	"github.com/wolfman30/padel-booking-bot/pkg/logging"
)

type turnHandler interface {
	HandleTurn(ctx context.Context, requester, text string) (Outcome, error)
}

// Worker consumes inbound messages from the queue, runs each through the
// engine and sends the reply. Messages from one requester always land on the
// same lane, so they are handled in arrival order.
type Worker struct {
	engine    turnHandler
	queue     Queue
	messenger ReplyMessenger
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	metrics          *metrics.BookingMetrics
}

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of lanes processing turns concurrently.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

func WithWorkerMetrics(m *metrics.BookingMetrics) WorkerOption {
	return func(cfg *workerConfig) {
		cfg.metrics = m
	}
}

// NewWorker builds a worker. Call Start to begin consuming.
func NewWorker(engine turnHandler, queue Queue, messenger ReplyMessenger, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if engine == nil || queue == nil || messenger == nil {
		panic("conversation: engine, queue and messenger are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		engine:    engine,
		queue:     queue,
		messenger: messenger,
		metrics:   cfg.metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start launches the receive loop and its lanes. They exit when ctx is done.
func (w *Worker) Start(ctx context.Context) {
	lanes := make([]chan queuePayloadMessage, w.cfg.workers)
	for i := range lanes {
		lanes[i] = make(chan queuePayloadMessage, w.cfg.receiveBatchSize)
		w.wg.Add(1)
		go w.lane(ctx, i+1, lanes[i])
	}
	w.wg.Add(1)
	go w.run(ctx, lanes)
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// queuePayloadMessage pairs a decoded payload with its receipt.
type queuePayloadMessage struct {
	payload queuePayload
	receipt string
}

func (w *Worker) run(ctx context.Context, lanes []chan queuePayloadMessage) {
	defer w.wg.Done()
	defer func() {
		for _, lane := range lanes {
			close(lane)
		}
	}()
	w.logger.Debug("conversation worker started", "lanes", len(lanes))

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation worker stopping")
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive inbound messages", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			payload, err := decodePayload(msg.Body)
			if err != nil {
				w.logger.Error("dropping undecodable message", "error", err, "message_id", msg.ID)
				w.deleteMessage(ctx, msg.ReceiptHandle)
				continue
			}
			lane := lanes[laneFor(payload.Message.From, len(lanes))]
			select {
			case lane <- queuePayloadMessage{payload: payload, receipt: msg.ReceiptHandle}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Worker) lane(ctx context.Context, id int, in <-chan queuePayloadMessage) {
	defer w.wg.Done()
	for item := range in {
		if ctx.Err() != nil {
			// Left on the queue for redelivery.
			continue
		}
		w.handleMessage(ctx, id, item)
	}
}

func (w *Worker) handleMessage(ctx context.Context, laneID int, item queuePayloadMessage) {
	msg := item.payload.Message
	logger := w.logger.With("job_id", item.payload.ID, "requester", msg.From, "lane", laneID)

	reply := w.process(ctx, logger, msg)
	if err := w.messenger.SendReply(ctx, OutboundReply{To: msg.From, Body: reply}); err != nil {
		logger.Error("failed to send reply", "error", err)
		w.metrics.ObserveOutbound("error")
	} else {
		w.metrics.ObserveOutbound("sent")
	}

	w.deleteMessage(ctx, item.receipt)
}

// process runs the turn and always yields a reply.
func (w *Worker) process(ctx context.Context, logger *logging.Logger, msg InboundMessage) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("conversation turn panicked", "panic", fmt.Sprint(r))
			reply = FallbackMessage
		}
	}()

	out, err := w.engine.HandleTurn(ctx, msg.From, msg.Body)
	if err != nil {
		logger.Warn("turn failed, sending fallback", "error", err)
		return FallbackMessage
	}
	logger.Info("turn handled", "intent", out.Intent, "outcome", out.Kind, "phase", out.Phase)
	return out.Reply
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete inbound message", "error", err)
	}
}

func laneFor(requester string, lanes int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(requester))
	return int(h.Sum32() % uint32(lanes))
}
