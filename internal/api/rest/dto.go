package rest

import (
	"encoding/json"
	"time"

	"github.com/nfturvy/market-ledger/internal/store/schema"
)

// CreateListingRequest is the payload for listing an item for sale
type CreateListingRequest struct {
	RegistryRef string `json:"registry_ref" binding:"required"`
	ItemNumber  string `json:"item_number" binding:"required"`
	Seller      string `json:"seller" binding:"required"`
	Price       string `json:"price" binding:"required"`
	FeePaid     string `json:"fee_paid" binding:"required"`
}

// CreateListingResponse returns the id assigned to the new listing
type CreateListingResponse struct {
	ListingID uint64 `json:"listing_id"`
}

// PurchaseRequest is the payload for buying a listed item
type PurchaseRequest struct {
	Buyer   string `json:"buyer" binding:"required"`
	Payment string `json:"payment" binding:"required"`
}

// ListingView is the wire representation of a listing record
type ListingView struct {
	ID          uint64     `json:"id"`
	RegistryRef string     `json:"registry_ref"`
	ItemNumber  string     `json:"item_number"`
	Seller      string     `json:"seller"`
	Owner       string     `json:"owner"`
	Price       string     `json:"price"`
	Sold        bool       `json:"sold"`
	CreatedAt   time.Time  `json:"created_at"`
	SoldAt      *time.Time `json:"sold_at,omitempty"`
	MetadataURI string     `json:"metadata_uri,omitempty"`
}

// ListingsResponse wraps a listing collection
type ListingsResponse struct {
	Listings []ListingView `json:"listings"`
}

// LedgerEventView is the wire representation of an audit trail entry
type LedgerEventView struct {
	ID        uint64          `json:"id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// LedgerEventsResponse wraps a listing's audit trail
type LedgerEventsResponse struct {
	Events []LedgerEventView `json:"events"`
}

// FeeResponse returns the listing fee in effect
type FeeResponse struct {
	Fee string `json:"fee"`
}

// UpdateFeeRequest is the payload for changing the listing fee
type UpdateFeeRequest struct {
	Fee string `json:"fee" binding:"required"`
}

// BalanceResponse returns an account's credited proceeds
type BalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// ContentResponse returns the URI of uploaded content
type ContentResponse struct {
	URI string `json:"uri"`
}

func listingView(listing *schema.Listing) ListingView {
	return ListingView{
		ID:          listing.ID,
		RegistryRef: listing.RegistryRef.String(),
		ItemNumber:  listing.ItemNumber,
		Seller:      listing.Seller,
		Owner:       listing.Owner,
		Price:       listing.Price.String(),
		Sold:        listing.Sold,
		CreatedAt:   listing.CreatedAt,
		SoldAt:      listing.SoldAt,
	}
}
