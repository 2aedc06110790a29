package domain

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RegistryRef identifies the external token registry an item belongs to.
// For Ethereum-backed registries this is the ERC-721 contract address.
type RegistryRef string

// String returns the string representation of the RegistryRef
func (r RegistryRef) String() string {
	return string(r)
}

// Valid checks if the registry reference is a well-formed contract address
func (r RegistryRef) Valid() bool {
	return common.IsHexAddress(string(r))
}

// MarketEventType represents the type of market event
type MarketEventType string

const (
	// MarketEventTypeListingCreated indicates a new listing was recorded
	MarketEventTypeListingCreated MarketEventType = "listing_created"
	// MarketEventTypeSaleSettled indicates a listing was purchased and settled
	MarketEventTypeSaleSettled MarketEventType = "sale_settled"
	// MarketEventTypeFeeUpdated indicates the operator changed the listing fee
	MarketEventTypeFeeUpdated MarketEventType = "fee_updated"
)

// MarketEvent represents a normalized marketplace event
// This is the standard format published to NATS
type MarketEvent struct {
	EventID     string          `json:"event_id"` // ULID, assigned at emission
	EventType   MarketEventType `json:"event_type"`
	ListingID   uint64          `json:"listing_id"` // zero for fee_updated
	RegistryRef RegistryRef     `json:"registry_ref,omitempty"`
	ItemNumber  string          `json:"item_number,omitempty"`
	Seller      string          `json:"seller,omitempty"`
	Owner       string          `json:"owner,omitempty"` // escrow while unsold, buyer once sold
	Price       Amount          `json:"price,omitempty"`
	Sold        bool            `json:"sold"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Valid checks if the event carries the fields its type requires
func (e *MarketEvent) Valid() bool {
	switch e.EventType {
	case MarketEventTypeListingCreated:
		return e.ListingID > 0 && e.RegistryRef.Valid() && e.Seller != "" && e.Price.Valid()
	case MarketEventTypeSaleSettled:
		return e.ListingID > 0 && e.Owner != "" && e.Sold
	case MarketEventTypeFeeUpdated:
		return e.Price.Valid()
	default:
		return false
	}
}

// NormalizeAddress normalizes an account address to its checksummed form
func NormalizeAddress(address string) string {
	if strings.HasPrefix(address, "0x") {
		return common.HexToAddress(address).String()
	}
	return address
}

// ValidAddress checks if an account address is well formed
func ValidAddress(address string) bool {
	return common.IsHexAddress(address)
}
