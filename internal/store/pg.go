package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nfturvy/market-ledger/internal/domain"
	"github.com/nfturvy/market-ledger/internal/store/schema"
)

const (
	// listingCounterKey is the key_value_store row holding the last assigned
	// listing id. Ids come from this row, not a database sequence, so a rolled
	// back creation never burns an id.
	listingCounterKey = "listing_counter"
	// listingFeeKey is the key_value_store row holding the operator's fee setting
	listingFeeKey = "listing_fee"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// Migrate creates or updates the ledger tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.Listing{},
		&schema.AccountBalance{},
		&schema.KeyValueStore{},
		&schema.LedgerEvent{},
	)
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. If any of the pool settings are 0, reasonable defaults
// are used:
//   - MaxOpenConns: 20 (if 0)
//   - MaxIdleConns: 5 (if 0)
//   - ConnMaxLifetime: 5 minutes (if 0)
//   - ConnMaxIdleTime: 10 minutes (if 0)
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings
// into safe values.
//
// Notes:
//   - database/sql treats MaxOpenConns=0 as "unlimited"
//   - database/sql treats MaxIdleConns=0 as "no idle connections"
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	// Set defaults if not provided
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// Ensure MaxIdleConns doesn't exceed MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// CreateListing allocates the next listing id, inserts the listing record,
// and credits the fee to the operator in a single transaction
func (s *pgStore) CreateListing(ctx context.Context, input CreateListingInput) (*schema.Listing, error) {
	var created schema.Listing

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Allocate the next id from the locked counter row
		id, err := s.nextListingID(tx)
		if err != nil {
			return err
		}

		// 2. Insert the listing record with the marketplace as custodian
		created = schema.Listing{
			ID:          id,
			RegistryRef: input.RegistryRef,
			ItemNumber:  input.ItemNumber,
			Seller:      input.Seller,
			Owner:       input.Escrow,
			Price:       input.Price.Canonical(),
			Sold:        false,
		}
		if err := tx.Create(&created).Error; err != nil {
			return fmt.Errorf("failed to create listing: %w", err)
		}

		// 3. Route the listing fee to the operator account
		if err := creditBalance(tx, input.Operator, input.Fee); err != nil {
			return fmt.Errorf("failed to credit operator fee: %w", err)
		}

		// 4. Append the audit trail entry in the same transaction
		if err := recordEvent(tx, string(domain.MarketEventTypeListingCreated), created.ID, &created); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &created, nil
}

// SettleSale validates and settles a purchase. The listing row lock serializes
// rival buyers: the loser blocks here and then observes sold = true.
func (s *pgStore) SettleSale(ctx context.Context, listingID uint64, buyer string, payment domain.Amount, transfer TransferFunc) (*schema.Listing, error) {
	var settled schema.Listing

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Lock the listing row for the duration of the settlement
		var listing schema.Listing
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", listingID).
			First(&listing).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrUnknownListing
			}
			return fmt.Errorf("failed to lock listing: %w", err)
		}

		// 2. Validate sale preconditions before any effect
		if listing.Sold {
			return domain.ErrAlreadySold
		}
		if !payment.Equal(listing.Price) {
			return domain.ErrPaymentMismatch
		}

		// 3. External custody transfer escrow -> buyer. Its success is the
		// commit point: nothing local has been applied yet, so a refusal
		// rolls back to a pure no-op and the payment is never consumed.
		if err := transfer(ctx, &listing); err != nil {
			return err
		}

		// 4. Flip the record to the buyer
		now := time.Now().UTC()
		listing.Owner = buyer
		listing.Sold = true
		listing.SoldAt = &now
		if err := tx.Save(&listing).Error; err != nil {
			return fmt.Errorf("failed to update listing: %w", err)
		}

		// 5. Credit the payment to the seller
		if err := creditBalance(tx, listing.Seller, payment); err != nil {
			return fmt.Errorf("failed to credit seller: %w", err)
		}

		// 6. Append the audit trail entry in the same transaction
		if err := recordEvent(tx, string(domain.MarketEventTypeSaleSettled), listing.ID, &listing); err != nil {
			return err
		}

		settled = listing
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &settled, nil
}

// GetListingByID retrieves a listing by id
func (s *pgStore) GetListingByID(ctx context.Context, listingID uint64) (*schema.Listing, error) {
	var listing schema.Listing
	err := s.db.WithContext(ctx).Where("id = ?", listingID).First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &listing, nil
}

// AllListings returns every listing in ascending id order
func (s *pgStore) AllListings(ctx context.Context) ([]*schema.Listing, error) {
	var listings []*schema.Listing
	err := s.db.WithContext(ctx).Order("id ASC").Find(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get listings: %w", err)
	}
	return listings, nil
}

// UnsoldListings returns listings that have not been sold, in ascending id order
func (s *pgStore) UnsoldListings(ctx context.Context) ([]*schema.Listing, error) {
	var listings []*schema.Listing
	err := s.db.WithContext(ctx).
		Where("sold = ?", false).
		Order("id ASC").
		Find(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get unsold listings: %w", err)
	}
	return listings, nil
}

// ListingsBySeller returns listings created by the seller, in ascending id order
func (s *pgStore) ListingsBySeller(ctx context.Context, seller string) ([]*schema.Listing, error) {
	var listings []*schema.Listing
	err := s.db.WithContext(ctx).
		Where("seller = ?", seller).
		Order("id ASC").
		Find(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get listings by seller: %w", err)
	}
	return listings, nil
}

// GetListingFee retrieves the operator's listing fee setting
func (s *pgStore) GetListingFee(ctx context.Context) (domain.Amount, error) {
	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", listingFeeKey).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get listing fee: %w", err)
	}
	return domain.Amount(kv.Value), nil
}

// SetListingFee stores the operator's listing fee setting
func (s *pgStore) SetListingFee(ctx context.Context, fee domain.Amount) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		kv := schema.KeyValueStore{
			Key:   listingFeeKey,
			Value: fee.Canonical().String(),
		}
		if err := tx.Save(&kv).Error; err != nil {
			return fmt.Errorf("failed to set listing fee: %w", err)
		}
		return recordEvent(tx, string(domain.MarketEventTypeFeeUpdated), 0, map[string]string{
			"fee": fee.Canonical().String(),
		})
	})
}

// GetAccountBalance retrieves the credited balance for an account
func (s *pgStore) GetAccountBalance(ctx context.Context, address string) (domain.Amount, error) {
	var balance schema.AccountBalance
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "0", nil
		}
		return "", fmt.Errorf("failed to get account balance: %w", err)
	}
	return balance.Balance, nil
}

// nextListingID increments and returns the listing id counter. The counter
// row is locked FOR UPDATE so concurrent creations serialize on it and ids
// come out gapless and strictly increasing.
func (s *pgStore) nextListingID(tx *gorm.DB) (uint64, error) {
	// Seed the counter row on first use; DO NOTHING keeps rival seeders safe
	seed := schema.KeyValueStore{Key: listingCounterKey, Value: "0"}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return 0, fmt.Errorf("failed to seed listing counter: %w", err)
	}

	var kv schema.KeyValueStore
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("key = ?", listingCounterKey).
		First(&kv).Error; err != nil {
		return 0, fmt.Errorf("failed to lock listing counter: %w", err)
	}

	last, err := strconv.ParseUint(kv.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse listing counter: %w", err)
	}

	next := last + 1
	if err := tx.Model(&schema.KeyValueStore{}).
		Where("key = ?", listingCounterKey).
		Update("value", strconv.FormatUint(next, 10)).Error; err != nil {
		return 0, fmt.Errorf("failed to advance listing counter: %w", err)
	}

	return next, nil
}

// ListingEvents returns the audit trail for a listing in insertion order
func (s *pgStore) ListingEvents(ctx context.Context, listingID uint64) ([]*schema.LedgerEvent, error) {
	var events []*schema.LedgerEvent
	err := s.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get listing events: %w", err)
	}
	return events, nil
}

// recordEvent appends an audit trail entry. It runs inside the mutation
// transaction, so the entry commits or rolls back with the mutation itself.
func recordEvent(tx *gorm.DB, eventType string, listingID uint64, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	event := schema.LedgerEvent{
		ListingID: listingID,
		EventType: eventType,
		Payload:   datatypes.JSON(data),
	}
	if err := tx.Create(&event).Error; err != nil {
		return fmt.Errorf("failed to record ledger event: %w", err)
	}
	return nil
}

// creditBalance adds amount to the account's balance, creating the row on
// first credit. The arithmetic happens in SQL to avoid read-modify-write races.
func creditBalance(tx *gorm.DB, address string, amount domain.Amount) error {
	balance := schema.AccountBalance{
		Address: address,
		Balance: amount.Canonical(),
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":    gorm.Expr("account_balances.balance + excluded.balance"),
			"updated_at": gorm.Expr("now()"),
		}),
	}).Create(&balance).Error
}
