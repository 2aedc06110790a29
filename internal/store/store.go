package store

import (
	"context"

	"github.com/nfturvy/market-ledger/internal/domain"
	"github.com/nfturvy/market-ledger/internal/store/schema"
)

// CreateListingInput holds everything needed to record a new listing.
// The custody transfer to escrow has already succeeded by the time this is
// used; recording is purely local.
type CreateListingInput struct {
	RegistryRef domain.RegistryRef
	ItemNumber  string
	Seller      string
	// Escrow is the marketplace custodial identity recorded as owner
	Escrow string
	Price  domain.Amount
	// Fee is the listing fee already collected from the seller
	Fee domain.Amount
	// Operator is the account credited with the fee
	Operator string
}

// TransferFunc performs the external custody transfer for a sale. It is
// invoked inside the settlement transaction, after all validation and while
// the listing row is locked, and its success is the commit point: local
// effects are applied only if it returns nil.
type TransferFunc func(ctx context.Context, listing *schema.Listing) error

// Store defines the interface for database operations
type Store interface {
	// CreateListing allocates the next listing id, inserts the listing record
	// with owner = escrow and sold = false, and credits the listing fee to the
	// operator account, all in a single transaction
	CreateListing(ctx context.Context, input CreateListingInput) (*schema.Listing, error)
	// SettleSale validates and settles a purchase of the given listing. It
	// locks the listing row, checks existence, sold status, and exact payment,
	// invokes transfer as the commit point, then flips the record to the buyer
	// and credits the seller. Any failure rolls the whole settlement back.
	SettleSale(ctx context.Context, listingID uint64, buyer string, payment domain.Amount, transfer TransferFunc) (*schema.Listing, error)
	// GetListingByID retrieves a single listing, or nil if it does not exist
	GetListingByID(ctx context.Context, listingID uint64) (*schema.Listing, error)
	// AllListings returns every listing in ascending id order
	AllListings(ctx context.Context) ([]*schema.Listing, error)
	// UnsoldListings returns listings with sold = false in ascending id order
	UnsoldListings(ctx context.Context) ([]*schema.Listing, error)
	// ListingsBySeller returns listings created by the seller, sold or not, in ascending id order
	ListingsBySeller(ctx context.Context, seller string) ([]*schema.Listing, error)
	// GetListingFee retrieves the operator's listing fee setting ("" when unset)
	GetListingFee(ctx context.Context) (domain.Amount, error)
	// SetListingFee stores the operator's listing fee setting
	SetListingFee(ctx context.Context, fee domain.Amount) error
	// GetAccountBalance retrieves the credited balance for an account ("0" when never credited)
	GetAccountBalance(ctx context.Context, address string) (domain.Amount, error)
	// ListingEvents returns the audit trail for a listing in insertion order
	ListingEvents(ctx context.Context, listingID uint64) ([]*schema.LedgerEvent, error)
}
