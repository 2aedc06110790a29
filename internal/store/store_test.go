package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfturvy/market-ledger/internal/domain"
	"github.com/nfturvy/market-ledger/internal/store/schema"
)

const (
	testRegistryRef = "0x1234567890123456789012345678901234567890"
	testEscrow      = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testOperator    = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	testSeller      = "0xcccccccccccccccccccccccccccccccccccccccc"
	testBuyer       = "0xdddddddddddddddddddddddddddddddddddddddd"
)

// noTransfer is a settlement transfer that always succeeds
func noTransfer(ctx context.Context, listing *schema.Listing) error {
	return nil
}

// buildTestListing creates a listing input with the given item number and price
func buildTestListing(itemNumber string, price domain.Amount) CreateListingInput {
	return CreateListingInput{
		RegistryRef: domain.RegistryRef(testRegistryRef),
		ItemNumber:  itemNumber,
		Seller:      testSeller,
		Escrow:      testEscrow,
		Price:       price,
		Fee:         "25000000000000000",
		Operator:    testOperator,
	}
}

// RunStoreTests runs the full store test suite against a store implementation
func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store, cleanupDB func(t *testing.T)) {
	t.Run("CreateListingAssignsSequentialIDs", func(t *testing.T) {
		s := initDB(t)
		defer cleanupDB(t)
		ctx := context.Background()

		for i := 1; i <= 3; i++ {
			listing, err := s.CreateListing(ctx, buildTestListing(fmt.Sprintf("%d", i), "1000"))
			require.NoError(t, err)
			assert.Equal(t, uint64(i), listing.ID)
		}
	})

	t.Run("CreateListingRecordsEscrowCustody", func(t *testing.T) {
		s := initDB(t)
		defer cleanupDB(t)
		ctx := context.Background()

		listing, err := s.CreateListing(ctx, buildTestListing("7", "0000500"))
		require.NoError(t, err)

		assert.Equal(t, testSeller, listing.Seller)
		assert.Equal(t, testEscrow, listing.Owner)
		assert.Equal(t, domain.Amount("500"), listing.Price)
		assert.False(t, listing.Sold)
		assert.Nil(t, listing.SoldAt)
	})

	t.Run("CreateListingCreditsOperatorFee", func(t *testing.T) {
		s := initDB(t)
		defer cleanupDB(t)
		ctx := context.Background()

		_, err := s.CreateListing(ctx, buildTestListing("1", "1000"))
		require.NoError(t, err)
		_, err = s.CreateListing(ctx, buildTestListing("2", "1000"))
		require.NoError(t, err)

		balance, err := s.GetAccountBalance(ctx, testOperator)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount("50000000000000000"), balance)
	})

	t.Run("SettleSaleTransfersAndCreditsSeller", func(t *testing.T) {
		s := initDB(t)
		defer cleanupDB(t)
		ctx := context.Background()

		created, err := s.CreateListing(ctx, buildTestListing("1", "1000"))
		require.NoError(t, err)

		settled, err := s.SettleSale(ctx, created.ID, testBuyer, "1000", noTransfer)
		require.NoError(t, err)

		assert.Equal(t, testBuyer, settled.Owner)
		assert.True(t, settled.Sold)
		require.NotNil(t, settled.SoldAt)

		balance, err := s.GetAccountBalance(ctx, testSeller)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount("1000"), balance)
	})

	t.Run("SettleSaleUnknownListing", func(t *testing.T) {
		s := initDB(t)
		defer cleanupDB(t)
		ctx := context.Background()

		_, err := s.SettleSale(ctx, 42, testBuyer, "1000", noTransfer)
		assert.ErrorIs(t, err, domain.ErrUnknownListing)
	})

	t.Run("SettleSaleRejectsSecondBuyer", func(t *testing.T) {
		s := initDB(t)
		defer cleanupDB(t)
		ctx := context.Background()

		created, err := s.CreateListing(ctx, buildTestListing("1", "1000"))
		require.NoError(t, err)

		_, err = s.SettleSale(ctx, created.ID, testBuyer, "1000", noTransfer)
		require.NoError(t, err)

		rival := "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
		_, err = s.SettleSale(ctx, created.ID, rival, "1000", noTransfer)
		assert.ErrorIs(t, err, domain.ErrAlreadySold)

		// First buyer's settlement is untouched
		listing, err := s.GetListingByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, testBuyer, listing.Owner)
	})

	t.Run("SettleSaleRejectsWrongPayment", func(t *testing.T) {
		s := initDB(t)
		defer cleanupDB(t)
		ctx := context.Background()

		created, err := s.CreateListing(ctx, buildTestListing("1", "1000"))
		require.NoError(t, err)

		for _, payment := range []domain.Amount{"999", "1001", "0"} {
			_, err = s.SettleSale(ctx, created.ID, testBuyer, payment, noTransfer)
			assert.ErrorIs(t, err, domain.ErrPaymentMismatch)
		}

		// Equal-value but non-identical digits still settles
		_, err = s.SettleSale(ctx, created.ID, testBuyer, "01000", noTransfer)
		require.NoError(t, err)
	})

	t.Run("SettleSaleRollsBackOnTransferFailure", func(t *testing.T) {
		s := initDB(t)
		defer cleanupDB(t)
		ctx := context.Background()

		created, err := s.CreateListing(ctx, buildTestListing("1", "1000"))
		require.NoError(t, err)

		transferErr := fmt.Errorf("%w: escrow does not hold item", domain.ErrTransferRejected)
		_, err = s.SettleSale(ctx, created.ID, testBuyer, "1000",
			func(ctx context.Context, listing *schema.Listing) error {
				return transferErr
			})
		assert.True(t, errors.Is(err, domain.ErrTransferRejected))

		// Nothing local happened
		listing, err := s.GetListingByID(ctx, created.ID)
		require.NoError(t, err)
		assert.False(t, listing.Sold)
		assert.Equal(t, testEscrow, listing.Owner)

		balance, err := s.GetAccountBalance(ctx, testSeller)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount("0"), balance)
	})

	t.Run("QueriesFilterAndOrder", func(t *testing.T) {
		s := initDB(t)
		defer cleanupDB(t)
		ctx := context.Background()

		otherSeller := "0xffffffffffffffffffffffffffffffffffffffff"

		first, err := s.CreateListing(ctx, buildTestListing("1", "100"))
		require.NoError(t, err)

		secondInput := buildTestListing("2", "200")
		secondInput.Seller = otherSeller
		second, err := s.CreateListing(ctx, secondInput)
		require.NoError(t, err)

		third, err := s.CreateListing(ctx, buildTestListing("3", "300"))
		require.NoError(t, err)

		_, err = s.SettleSale(ctx, second.ID, testBuyer, "200", noTransfer)
		require.NoError(t, err)

		all, err := s.AllListings(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []uint64{first.ID, second.ID, third.ID}, []uint64{all[0].ID, all[1].ID, all[2].ID})

		unsold, err := s.UnsoldListings(ctx)
		require.NoError(t, err)
		require.Len(t, unsold, 2)
		assert.Equal(t, first.ID, unsold[0].ID)
		assert.Equal(t, third.ID, unsold[1].ID)

		bySeller, err := s.ListingsBySeller(ctx, testSeller)
		require.NoError(t, err)
		require.Len(t, bySeller, 2)
		assert.Equal(t, first.ID, bySeller[0].ID)
		assert.Equal(t, third.ID, bySeller[1].ID)

		byOther, err := s.ListingsBySeller(ctx, otherSeller)
		require.NoError(t, err)
		require.Len(t, byOther, 1)
		assert.True(t, byOther[0].Sold)
	})

	t.Run("GetListingByIDReturnsNilForMissing", func(t *testing.T) {
		s := initDB(t)
		defer cleanupDB(t)
		ctx := context.Background()

		listing, err := s.GetListingByID(ctx, 404)
		require.NoError(t, err)
		assert.Nil(t, listing)
	})

	t.Run("ListingFeeSetting", func(t *testing.T) {
		s := initDB(t)
		defer cleanupDB(t)
		ctx := context.Background()

		fee, err := s.GetListingFee(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount(""), fee)

		require.NoError(t, s.SetListingFee(ctx, "0050"))

		fee, err = s.GetListingFee(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount("50"), fee)

		require.NoError(t, s.SetListingFee(ctx, "75"))

		fee, err = s.GetListingFee(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount("75"), fee)
	})

	t.Run("AccountBalanceDefaultsToZero", func(t *testing.T) {
		s := initDB(t)
		defer cleanupDB(t)
		ctx := context.Background()

		balance, err := s.GetAccountBalance(ctx, testBuyer)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount("0"), balance)
	})

	t.Run("ListingEventsTrail", func(t *testing.T) {
		s := initDB(t)
		defer cleanupDB(t)
		ctx := context.Background()

		created, err := s.CreateListing(ctx, buildTestListing("1", "1000"))
		require.NoError(t, err)

		_, err = s.SettleSale(ctx, created.ID, testBuyer, "1000", noTransfer)
		require.NoError(t, err)

		events, err := s.ListingEvents(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, string(domain.MarketEventTypeListingCreated), events[0].EventType)
		assert.Equal(t, string(domain.MarketEventTypeSaleSettled), events[1].EventType)
	})

	t.Run("MarketplaceScenario", func(t *testing.T) {
		s := initDB(t)
		defer cleanupDB(t)
		ctx := context.Background()

		// Two sellers list three items, one sells
		alice := testSeller
		bob := "0xffffffffffffffffffffffffffffffffffffffff"

		inputs := []CreateListingInput{
			buildTestListing("10", "1000"),
			buildTestListing("11", "2000"),
			buildTestListing("12", "3000"),
		}
		inputs[2].Seller = bob

		ids := make([]uint64, 0, 3)
		for _, input := range inputs {
			listing, err := s.CreateListing(ctx, input)
			require.NoError(t, err)
			ids = append(ids, listing.ID)
		}
		assert.Equal(t, []uint64{1, 2, 3}, ids)

		_, err := s.SettleSale(ctx, 2, testBuyer, "2000", noTransfer)
		require.NoError(t, err)

		unsold, err := s.UnsoldListings(ctx)
		require.NoError(t, err)
		assert.Len(t, unsold, 2)

		aliceListings, err := s.ListingsBySeller(ctx, alice)
		require.NoError(t, err)
		assert.Len(t, aliceListings, 2)

		aliceBalance, err := s.GetAccountBalance(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount("2000"), aliceBalance)

		operatorBalance, err := s.GetAccountBalance(ctx, testOperator)
		require.NoError(t, err)
		assert.Equal(t, domain.Amount("75000000000000000"), operatorBalance)
	})
}
