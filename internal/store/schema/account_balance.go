package schema

import (
	"time"

	"github.com/nfturvy/market-ledger/internal/domain"
)

// AccountBalance represents the account_balances table - credited proceeds
// per account. Sellers accrue sale payments here; the operator accrues
// listing fees. Balances only ever increase through ledger operations.
type AccountBalance struct {
	// Address is the account address (primary key)
	Address string `gorm:"column:address;primaryKey;type:text"`
	// Balance is the credited amount in the payment unit
	Balance domain.Amount `gorm:"column:balance;not null;default:0;type:numeric(78,0)"`
	// UpdatedAt is the timestamp of the last credit
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
	// CreatedAt is the timestamp when this account was first credited
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for the AccountBalance model
func (AccountBalance) TableName() string {
	return "account_balances"
}
