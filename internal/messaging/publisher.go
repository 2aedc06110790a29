package messaging

import (
	"context"

	"github.com/nfturvy/market-ledger/internal/domain"
)

// Publisher defines the interface for publishing market events to the
// message broker. Consumers (notification services, analytics, cache warmers)
// subscribe downstream; the ledger itself never depends on delivery.
type Publisher interface {
	// PublishEvent publishes a market event to the message broker
	PublishEvent(ctx context.Context, event *domain.MarketEvent) error
	// Close closes the connection
	Close()
}
