package registry

import (
	"context"

	"github.com/nfturvy/market-ledger/internal/domain"
)

// Registry defines the interface to the external token registry that owns
// identity and custody of items. The ledger never mutates custody itself; it
// only requests transfers and treats a refusal as a validated failure.
type Registry interface {
	// Transfer moves custody of an item between accounts. A refusal (caller
	// does not hold the item, escrow not approved, reverted transaction)
	// surfaces as domain.ErrTransferRejected.
	Transfer(ctx context.Context, registryRef domain.RegistryRef, itemNumber, from, to string) error

	// OwnerOf resolves the current holder of an item
	OwnerOf(ctx context.Context, registryRef domain.RegistryRef, itemNumber string) (string, error)

	// MetadataURI resolves the metadata URI for an item. Used by read paths
	// only; no ledger invariant depends on it.
	MetadataURI(ctx context.Context, registryRef domain.RegistryRef, itemNumber string) (string, error)

	// Close closes the underlying connection
	Close()
}
