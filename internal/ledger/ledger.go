package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nfturvy/market-ledger/internal/domain"
	"github.com/nfturvy/market-ledger/internal/emitter"
	"github.com/nfturvy/market-ledger/internal/fee"
	"github.com/nfturvy/market-ledger/internal/logger"
	"github.com/nfturvy/market-ledger/internal/registry"
	"github.com/nfturvy/market-ledger/internal/store"
	"github.com/nfturvy/market-ledger/internal/store/schema"
)

// Ledger is the authoritative record keeper for marketplace listings. All
// mutations flow through it; reads are fresh scans of the record set. It owns
// no custody itself: item transfers are delegated to the token registry, and
// the registry's acceptance is what commits a mutation.
type Ledger struct {
	store    store.Store
	registry registry.Registry
	fees     *fee.Policy
	emitter  emitter.Emitter
	escrow   string
}

// New creates a ledger bound to its escrow identity. The emitter may be nil
// when event fan-out is not configured.
func New(st store.Store, reg registry.Registry, fees *fee.Policy, em emitter.Emitter, escrow string) *Ledger {
	return &Ledger{
		store:    st,
		registry: reg,
		fees:     fees,
		emitter:  em,
		escrow:   domain.NormalizeAddress(escrow),
	}
}

// CreateListing records a new listing for an item the seller holds. The
// seller's custody moves to escrow first; only after the registry accepts
// that transfer is an id consumed and the record stored, with the fee routed
// to the operator in the same transaction.
func (l *Ledger) CreateListing(ctx context.Context, registryRef domain.RegistryRef, itemNumber, seller string, price, feePaid domain.Amount) (uint64, error) {
	if !price.Positive() {
		return 0, domain.ErrInvalidPrice
	}

	required, err := l.fees.CurrentFee(ctx)
	if err != nil {
		return 0, err
	}
	if !feePaid.Equal(required) {
		return 0, domain.ErrFeeMismatch
	}

	seller = domain.NormalizeAddress(seller)

	// Custody moves seller -> escrow. A refusal here proves the seller does
	// not hold transferable custody, and nothing local has happened yet.
	if err := l.registry.Transfer(ctx, registryRef, itemNumber, seller, l.escrow); err != nil {
		return 0, err
	}

	listing, err := l.store.CreateListing(ctx, store.CreateListingInput{
		RegistryRef: registryRef,
		ItemNumber:  itemNumber,
		Seller:      seller,
		Escrow:      l.escrow,
		Price:       price,
		Fee:         feePaid,
		Operator:    l.fees.Operator(),
	})
	if err != nil {
		// Custody already moved to escrow; the record failed to land. This is
		// the one path that needs an operator to reconcile, so make it loud.
		logger.ErrorCtx(ctx, err,
			zap.String("registry_ref", registryRef.String()),
			zap.String("item_number", itemNumber),
			zap.String("seller", seller),
		)
		return 0, fmt.Errorf("failed to record listing: %w", err)
	}

	l.emit(&domain.MarketEvent{
		EventType:   domain.MarketEventTypeListingCreated,
		ListingID:   listing.ID,
		RegistryRef: listing.RegistryRef,
		ItemNumber:  listing.ItemNumber,
		Seller:      listing.Seller,
		Owner:       listing.Owner,
		Price:       listing.Price,
		Sold:        false,
	})

	return listing.ID, nil
}

// ExecuteSale settles a purchase. Validation, the custody transfer out of
// escrow, the seller credit, and the record flip happen as one unit: readers
// observe the sale either fully applied or not at all.
func (l *Ledger) ExecuteSale(ctx context.Context, listingID uint64, buyer string, payment domain.Amount) error {
	buyer = domain.NormalizeAddress(buyer)

	settled, err := l.store.SettleSale(ctx, listingID, buyer, payment,
		func(ctx context.Context, listing *schema.Listing) error {
			return l.registry.Transfer(ctx, listing.RegistryRef, listing.ItemNumber, l.escrow, buyer)
		})
	if err != nil {
		return err
	}

	l.emit(&domain.MarketEvent{
		EventType:   domain.MarketEventTypeSaleSettled,
		ListingID:   settled.ID,
		RegistryRef: settled.RegistryRef,
		ItemNumber:  settled.ItemNumber,
		Seller:      settled.Seller,
		Owner:       settled.Owner,
		Price:       settled.Price,
		Sold:        true,
	})

	return nil
}

// CurrentFee returns the listing fee in effect
func (l *Ledger) CurrentFee(ctx context.Context) (domain.Amount, error) {
	return l.fees.CurrentFee(ctx)
}

// SetFee updates the listing fee and announces the change
func (l *Ledger) SetFee(ctx context.Context, amount domain.Amount) error {
	if err := l.fees.SetFee(ctx, amount); err != nil {
		return err
	}

	l.emit(&domain.MarketEvent{
		EventType: domain.MarketEventTypeFeeUpdated,
		Price:     amount.Canonical(),
	})

	return nil
}

// GetListing retrieves a single listing, or nil if it does not exist
func (l *Ledger) GetListing(ctx context.Context, listingID uint64) (*schema.Listing, error) {
	return l.store.GetListingByID(ctx, listingID)
}

// AllListings returns every listing in ascending id order
func (l *Ledger) AllListings(ctx context.Context) ([]*schema.Listing, error) {
	return l.store.AllListings(ctx)
}

// UnsoldListings returns listings still held in escrow, in ascending id order
func (l *Ledger) UnsoldListings(ctx context.Context) ([]*schema.Listing, error) {
	return l.store.UnsoldListings(ctx)
}

// ListingsBySeller returns listings created by the seller, sold or not, in
// ascending id order
func (l *Ledger) ListingsBySeller(ctx context.Context, seller string) ([]*schema.Listing, error) {
	return l.store.ListingsBySeller(ctx, domain.NormalizeAddress(seller))
}

// ListingEvents returns the audit trail for a listing in insertion order
func (l *Ledger) ListingEvents(ctx context.Context, listingID uint64) ([]*schema.LedgerEvent, error) {
	return l.store.ListingEvents(ctx, listingID)
}

// AccountBalance returns the credited proceeds for an account
func (l *Ledger) AccountBalance(ctx context.Context, address string) (domain.Amount, error) {
	return l.store.GetAccountBalance(ctx, domain.NormalizeAddress(address))
}

// MetadataURI resolves an item's metadata URI through the registry
func (l *Ledger) MetadataURI(ctx context.Context, registryRef domain.RegistryRef, itemNumber string) (string, error) {
	return l.registry.MetadataURI(ctx, registryRef, itemNumber)
}

func (l *Ledger) emit(event *domain.MarketEvent) {
	if l.emitter == nil {
		return
	}
	l.emitter.Emit(event)
}
