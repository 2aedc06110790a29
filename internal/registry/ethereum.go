package registry

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/nfturvy/market-ledger/internal/domain"
	"github.com/nfturvy/market-ledger/internal/logger"
)

// erc721ABI is the subset of the ERC-721 interface the marketplace needs:
// custody transfer plus the two read methods callers resolve metadata with.
const erc721ABI = `[
	{"name":"safeTransferFrom","type":"function","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"name":"ownerOf","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"tokenURI","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]}
]`

// Backend is the subset of the Ethereum client the registry needs. It is
// satisfied by *ethclient.Client.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	Close()
}

type ethereumRegistry struct {
	backend Backend
	chainID *big.Int
	// escrowKey signs transfers executed on behalf of the marketplace. The
	// registry accepts them for items the escrow holds or is approved on.
	escrowKey   *ecdsa.PrivateKey
	parsedABI   abi.ABI
	readBackoff time.Duration
}

// NewEthereumRegistry creates a token registry client backed by ERC-721
// contracts on a single Ethereum chain
func NewEthereumRegistry(backend Backend, chainID int64, escrowPrivateKey string) (Registry, error) {
	parsedABI, err := abi.JSON(strings.NewReader(erc721ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC721 ABI: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(escrowPrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse escrow private key: %w", err)
	}

	return &ethereumRegistry{
		backend:     backend,
		chainID:     big.NewInt(chainID),
		escrowKey:   key,
		parsedABI:   parsedABI,
		readBackoff: 30 * time.Second,
	}, nil
}

// Transfer moves custody of an item by submitting a safeTransferFrom
// transaction signed by the escrow key and waiting for it to be mined. Any
// failure maps to domain.ErrTransferRejected so the ledger can treat it as a
// validated refusal.
func (r *ethereumRegistry) Transfer(ctx context.Context, registryRef domain.RegistryRef, itemNumber, from, to string) error {
	itemID, err := parseItemNumber(itemNumber)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransferRejected, err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(r.escrowKey, r.chainID)
	if err != nil {
		return fmt.Errorf("failed to build transactor: %w", err)
	}
	opts.Context = ctx

	contract := bind.NewBoundContract(common.HexToAddress(registryRef.String()), r.parsedABI, r.backend, r.backend, r.backend)
	tx, err := contract.Transact(opts, "safeTransferFrom",
		common.HexToAddress(from),
		common.HexToAddress(to),
		itemID,
	)
	if err != nil {
		// Estimation failures already mean the registry would revert
		return fmt.Errorf("%w: %v", domain.ErrTransferRejected, err)
	}

	receipt, err := bind.WaitMined(ctx, r.backend, tx)
	if err != nil {
		// The transaction is already submitted and may still mine even though
		// the caller rolls back. This is not a registry refusal, so it must not
		// map to ErrTransferRejected; an operator has to reconcile against the
		// transaction hash.
		logger.ErrorCtx(ctx, err,
			zap.String("registry_ref", registryRef.String()),
			zap.String("item_number", itemNumber),
			zap.String("tx_hash", tx.Hash().Hex()),
		)
		return fmt.Errorf("failed to confirm transfer %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		logger.WarnCtx(ctx, "Registry reverted custody transfer",
			zap.String("registry_ref", registryRef.String()),
			zap.String("item_number", itemNumber),
			zap.String("tx_hash", tx.Hash().Hex()),
		)
		return fmt.Errorf("%w: transaction %s reverted", domain.ErrTransferRejected, tx.Hash().Hex())
	}

	return nil
}

// OwnerOf resolves the current holder of an item
func (r *ethereumRegistry) OwnerOf(ctx context.Context, registryRef domain.RegistryRef, itemNumber string) (string, error) {
	itemID, err := parseItemNumber(itemNumber)
	if err != nil {
		return "", err
	}

	var out []interface{}
	err = r.callWithRetry(ctx, registryRef, "ownerOf", &out, itemID)
	if err != nil {
		return "", fmt.Errorf("failed to call ownerOf: %w", err)
	}

	owner, ok := out[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("unexpected ownerOf result type %T", out[0])
	}
	return owner.String(), nil
}

// MetadataURI resolves the metadata URI for an item
func (r *ethereumRegistry) MetadataURI(ctx context.Context, registryRef domain.RegistryRef, itemNumber string) (string, error) {
	itemID, err := parseItemNumber(itemNumber)
	if err != nil {
		return "", err
	}

	var out []interface{}
	err = r.callWithRetry(ctx, registryRef, "tokenURI", &out, itemID)
	if err != nil {
		return "", fmt.Errorf("failed to call tokenURI: %w", err)
	}

	uri, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected tokenURI result type %T", out[0])
	}
	return uri, nil
}

// Close closes the underlying connection
func (r *ethereumRegistry) Close() {
	r.backend.Close()
}

// callWithRetry performs a read-only contract call with exponential backoff.
// Reads are safe to retry; transfers never are.
func (r *ethereumRegistry) callWithRetry(ctx context.Context, registryRef domain.RegistryRef, method string, out *[]interface{}, args ...interface{}) error {
	contractAddr := common.HexToAddress(registryRef.String())

	operation := func() error {
		data, err := r.parsedABI.Pack(method, args...)
		if err != nil {
			return backoff.Permanent(err)
		}

		result, err := r.backend.CallContract(ctx, ethereum.CallMsg{
			To:   &contractAddr,
			Data: data,
		}, nil)
		if err != nil {
			return err
		}

		unpacked, err := r.parsedABI.Unpack(method, result)
		if err != nil {
			return backoff.Permanent(err)
		}
		*out = unpacked
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = r.readBackoff

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// parseItemNumber converts an item number to the uint256 the registry expects
func parseItemNumber(itemNumber string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(itemNumber, 10)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid item number %q", itemNumber)
	}
	return n, nil
}
