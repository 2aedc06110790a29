package schema

import (
	"time"

	"github.com/nfturvy/market-ledger/internal/domain"
)

// Listing represents the listings table - one row per listing event. An item
// may be listed, sold, and re-listed; each listing produces a new row. Rows
// are append-only: after creation only owner, sold, and sold_at may change,
// and only once, at settlement.
type Listing struct {
	// ID is the listing id. It is allocated from the listing counter (not a
	// database sequence) so ids form a gapless, strictly increasing run from 1.
	ID uint64 `gorm:"column:id;primaryKey"`
	// RegistryRef is the token registry (contract address) the item belongs to
	RegistryRef domain.RegistryRef `gorm:"column:registry_ref;not null;type:text;index:idx_listings_registry_item,priority:1"`
	// ItemNumber is the item id within the registry (string to support very large numbers)
	ItemNumber string `gorm:"column:item_number;not null;type:text;index:idx_listings_registry_item,priority:2"`
	// Seller is the account that created the listing
	Seller string `gorm:"column:seller;not null;type:text;index:idx_listings_seller"`
	// Owner is the current holder of record: the escrow identity while unsold, the buyer once sold
	Owner string `gorm:"column:owner;not null;type:text"`
	// Price is the asking price in the payment unit, fixed at creation
	Price domain.Amount `gorm:"column:price;not null;type:numeric(78,0)"`
	// Sold indicates whether the listing has been settled; flips false -> true exactly once
	Sold bool `gorm:"column:sold;not null;default:false;index:idx_listings_sold"`
	// CreatedAt is the timestamp when the listing was recorded
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// SoldAt is the timestamp of settlement (nil while unsold)
	SoldAt *time.Time `gorm:"column:sold_at;type:timestamptz"`
}

// TableName specifies the table name for the Listing model
func (Listing) TableName() string {
	return "listings"
}
