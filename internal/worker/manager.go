package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"helparo/internal/queue"
)

const (
	DefaultWorkerCount  = 2
	DefaultBatchSize    = 10
	DefaultBlockTimeout = 5 * time.Second

	// readErrorBackoff is the pause after a failed stream read.
	readErrorBackoff = time.Second
)

// EventHandler processes one decoded stream event.
type EventHandler interface {
	HandleEvent(ctx context.Context, event queue.RequestEvent) error
}

// Manager runs worker goroutines that consume the request stream through a
// consumer group, so each event is pushed once across all server instances.
type Manager struct {
	consumer    queue.Consumer
	handler     EventHandler
	workerCount int
	batchSize   int64
	blockTime   time.Duration
	consumerID  string
	log         *zap.SugaredLogger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// ManagerConfig holds configuration for the worker manager.
type ManagerConfig struct {
	WorkerCount  int
	BatchSize    int64
	BlockTimeout time.Duration
	// ConsumerID distinguishes this process inside the consumer group,
	// usually the hostname.
	ConsumerID string
}

func NewManager(consumer queue.Consumer, handler EventHandler, cfg ManagerConfig, log *zap.SugaredLogger) *Manager {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = DefaultBlockTimeout
	}
	if cfg.ConsumerID == "" {
		cfg.ConsumerID = "local"
	}

	return &Manager{
		consumer:    consumer,
		handler:     handler,
		workerCount: cfg.WorkerCount,
		batchSize:   cfg.BatchSize,
		blockTime:   cfg.BlockTimeout,
		consumerID:  cfg.ConsumerID,
		log:         log.Named("worker"),
	}
}

// Start ensures the consumer group and spins up the workers. Stop (or
// cancelling ctx) shuts them down.
func (m *Manager) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)

	if err := m.consumer.EnsureGroup(ctx, queue.StreamRequests, queue.ConsumerGroupRequests); err != nil {
		m.cancel()
		return err
	}

	m.log.Infow("Starting workers",
		"count", m.workerCount,
		"stream", queue.StreamRequests,
		"group", queue.ConsumerGroupRequests)

	for i := 1; i <= m.workerCount; i++ {
		m.wg.Add(1)
		go m.runWorker(ctx, i, m.consumerName(i))
	}
	return nil
}

// Stop cancels the workers and waits for in-flight batches to finish.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.log.Infow("Stopping workers")
	m.cancel()
	m.wg.Wait()
	m.log.Infow("All workers stopped")
}

func (m *Manager) runWorker(ctx context.Context, workerID int, consumerName string) {
	defer m.wg.Done()
	log := m.log.With("worker", workerID, "consumer", consumerName)
	log.Debugw("Started")

	// Crash recovery: messages delivered to this consumer name before a
	// restart but never acked.
	m.processPending(ctx, log, consumerName)

	for {
		select {
		case <-ctx.Done():
			log.Debugw("Shutting down")
			return
		default:
		}

		messages, err := m.consumer.Read(ctx, queue.StreamRequests, queue.ConsumerGroupRequests, consumerName, m.batchSize, m.blockTime)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warnw("Read FAILED", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(readErrorBackoff):
			}
			continue
		}
		m.handleMessages(ctx, log, messages)
	}
}

func (m *Manager) processPending(ctx context.Context, log *zap.SugaredLogger, consumerName string) {
	for ctx.Err() == nil {
		messages, err := m.consumer.ReadPending(ctx, queue.StreamRequests, queue.ConsumerGroupRequests, consumerName, m.batchSize)
		if err != nil {
			log.Warnw("ReadPending FAILED", "err", err)
			return
		}
		if len(messages) == 0 {
			return
		}
		log.Infow("Processing pending messages", "count", len(messages))
		m.handleMessages(ctx, log, messages)
	}
}

// handleMessages acks every message, failed or not. A push that failed once
// is stale by the time it could be retried.
func (m *Manager) handleMessages(ctx context.Context, log *zap.SugaredLogger, messages []queue.Message) {
	for _, msg := range messages {
		if err := m.handler.HandleEvent(ctx, msg.Event); err != nil {
			log.Warnw("Handler error", "msgID", msg.ID, "type", msg.Event.Type, "err", err)
		}
		if err := m.consumer.Ack(ctx, queue.StreamRequests, queue.ConsumerGroupRequests, msg.ID); err != nil {
			log.Warnw("ACK error", "msgID", msg.ID, "err", err)
		}
	}
}

func (m *Manager) consumerName(workerID int) string {
	return fmt.Sprintf("%s-worker-%d", m.consumerID, workerID)
}
