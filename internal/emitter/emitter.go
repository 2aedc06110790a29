package emitter

import (
	"context"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/nfturvy/market-ledger/internal/domain"
	"github.com/nfturvy/market-ledger/internal/logger"
	"github.com/nfturvy/market-ledger/internal/messaging"
)

const publishTimeout = 10 * time.Second

// Config holds emitter pool configuration
type Config struct {
	PoolSize  int
	QueueSize int
}

// Emitter fans market events out to the broker without blocking the mutation
// path. Emission is best-effort: the ledger's state is already committed by
// the time an event is emitted, so failures are logged, never propagated.
type Emitter interface {
	// Emit queues a market event for publishing. The event id and timestamp
	// are assigned here if unset.
	Emit(event *domain.MarketEvent)
	// Stop drains the queue and releases the pool
	Stop()
}

type marketEmitter struct {
	publisher messaging.Publisher
	pool      pond.Pool
}

// New creates an emitter backed by a bounded worker pool
func New(ctx context.Context, cfg Config, publisher messaging.Publisher) Emitter {
	pool := pond.NewPool(
		cfg.PoolSize,
		pond.WithQueueSize(cfg.QueueSize),
		pond.WithContext(ctx),
	)

	return &marketEmitter{
		publisher: publisher,
		pool:      pool,
	}
}

// Emit queues a market event for publishing
func (e *marketEmitter) Emit(event *domain.MarketEvent) {
	if event.EventID == "" {
		event.EventID = ulid.Make().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if !event.Valid() {
		logger.Warn("Dropping malformed market event", zap.Any("event", event))
		return
	}

	e.pool.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := e.publisher.PublishEvent(ctx, event); err != nil {
			logger.Error(err,
				zap.String("event_id", event.EventID),
				zap.String("event_type", string(event.EventType)),
				zap.Uint64("listing_id", event.ListingID),
			)
		}
	})
}

// Stop drains the queue and releases the pool
func (e *marketEmitter) Stop() {
	e.pool.StopAndWait()
}
