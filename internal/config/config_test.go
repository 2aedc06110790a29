package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfturvy/market-ledger/internal/domain"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("NFTURVY_MARKET_ESCROW_ADDRESS", "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	t.Setenv("NFTURVY_MARKET_OPERATOR_ADDRESS", "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
}

func TestLoadAPIConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadAPIConfig("", t.TempDir())
	require.NoError(t, err)

	assert.False(t, cfg.Debug)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "MARKET_EVENTS", cfg.NATS.StreamName)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, domain.Amount("25000000000000000"), cfg.Market.DefaultListingFee)
	assert.Equal(t, 8, cfg.Worker.PoolSize)
}

func TestLoadAPIConfigFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("NFTURVY_DEBUG", "true")
	t.Setenv("NFTURVY_SERVER_PORT", "9000")
	t.Setenv("NFTURVY_DATABASE_HOST", "db.internal")
	t.Setenv("NFTURVY_DATABASE_USER", "market")
	t.Setenv("NFTURVY_DATABASE_PASSWORD", "secret")
	t.Setenv("NFTURVY_DATABASE_DBNAME", "market_ledger")
	t.Setenv("NFTURVY_MARKET_DEFAULT_LISTING_FEE", "50")
	t.Setenv("NFTURVY_ETHEREUM_CHAIN_ID", "1")

	cfg, err := LoadAPIConfig("", t.TempDir())
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, domain.Amount("50"), cfg.Market.DefaultListingFee)
	assert.Equal(t, int64(1), cfg.Ethereum.ChainID)
	assert.Equal(t,
		"host=db.internal port=5432 user=market password=secret dbname=market_ledger sslmode=disable",
		cfg.Database.DSN())
}

func TestLoadAPIConfigRequiredFields(t *testing.T) {
	t.Run("MissingEscrow", func(t *testing.T) {
		t.Setenv("NFTURVY_MARKET_OPERATOR_ADDRESS", "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
		_, err := LoadAPIConfig("", t.TempDir())
		assert.ErrorContains(t, err, "market.escrow_address")
	})

	t.Run("MissingOperator", func(t *testing.T) {
		t.Setenv("NFTURVY_MARKET_ESCROW_ADDRESS", "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
		_, err := LoadAPIConfig("", t.TempDir())
		assert.ErrorContains(t, err, "market.operator_address")
	})

	t.Run("MalformedDefaultFee", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("NFTURVY_MARKET_DEFAULT_LISTING_FEE", "free")
		_, err := LoadAPIConfig("", t.TempDir())
		assert.ErrorContains(t, err, "default_listing_fee")
	})
}
