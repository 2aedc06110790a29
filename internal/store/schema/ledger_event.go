package schema

import (
	"time"

	"gorm.io/datatypes"
)

// LedgerEvent is the append-only audit trail of ledger mutations. A row is
// written inside the same transaction as the mutation it describes, so the
// trail cannot drift from the listings table. The async broker stream is
// best-effort; this table is the durable record.
type LedgerEvent struct {
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// ListingID is the listing the event belongs to (0 for fee changes)
	ListingID uint64 `gorm:"column:listing_id;not null;index:idx_ledger_events_listing"`
	// EventType is one of listing_created, sale_settled, fee_updated
	EventType string `gorm:"column:event_type;not null;type:text"`
	// Payload is the JSON snapshot of the record after the mutation
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb"`
	CreatedAt time.Time      `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the LedgerEvent model
func (LedgerEvent) TableName() string {
	return "ledger_events"
}
