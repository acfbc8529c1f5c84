package custody

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/feral-file/launch-ledger/internal/domain"
)

// Custody moves payment-currency funds between user wallets and the ledger
// custody account. Implementations are external and untrusted; the ledger
// always calls them last inside a transaction so a failed transfer rolls
// back every ledger effect.
//
//go:generate mockgen -source=custody.go -destination=../mocks/custody.go -package=mocks -mock_names=Custody=MockCustody
type Custody interface {
	// TransferIn pulls amount of currency from the user wallet into custody
	TransferIn(ctx context.Context, currency, from string, amount *big.Int) error
	// TransferOut pays amount of currency out of custody to the recipient
	TransferOut(ctx context.Context, currency, to string, amount *big.Int) error
}

const erc20ABIJSON = `[
	{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transferFrom","type":"function","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const transferGasLimit = 120000

// ERC20Custody executes custody transfers as ERC-20 token transactions
// signed by the custody key. TransferIn relies on a prior user approval of
// the custody account.
type ERC20Custody struct {
	client         *ethclient.Client
	key            *ecdsa.PrivateKey
	custodyAddress common.Address
	chainID        *big.Int
	abi            abi.ABI
	receiptTimeout time.Duration
}

// NewERC20Custody creates an ERC-20 custody adapter
func NewERC20Custody(client *ethclient.Client, key *ecdsa.PrivateKey, chainID *big.Int, receiptTimeout time.Duration) (*ERC20Custody, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 abi: %w", err)
	}
	if receiptTimeout == 0 {
		receiptTimeout = 2 * time.Minute
	}
	return &ERC20Custody{
		client:         client,
		key:            key,
		custodyAddress: crypto.PubkeyToAddress(key.PublicKey),
		chainID:        chainID,
		abi:            parsed,
		receiptTimeout: receiptTimeout,
	}, nil
}

// Address returns the custody account address
func (c *ERC20Custody) Address() string {
	return c.custodyAddress.String()
}

func (c *ERC20Custody) TransferIn(ctx context.Context, currency, from string, amount *big.Int) error {
	data, err := c.abi.Pack("transferFrom", common.HexToAddress(from), c.custodyAddress, amount)
	if err != nil {
		return fmt.Errorf("%w: failed to pack transferFrom: %s", domain.ErrTransferFailed, err)
	}
	return c.execute(ctx, common.HexToAddress(currency), data)
}

func (c *ERC20Custody) TransferOut(ctx context.Context, currency, to string, amount *big.Int) error {
	data, err := c.abi.Pack("transfer", common.HexToAddress(to), amount)
	if err != nil {
		return fmt.Errorf("%w: failed to pack transfer: %s", domain.ErrTransferFailed, err)
	}
	return c.execute(ctx, common.HexToAddress(currency), data)
}

// execute signs, sends, and waits for the receipt of one token call
func (c *ERC20Custody) execute(ctx context.Context, contract common.Address, data []byte) error {
	nonce, err := c.client.PendingNonceAt(ctx, c.custodyAddress)
	if err != nil {
		return fmt.Errorf("%w: failed to get nonce: %s", domain.ErrTransferFailed, err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get gas price: %s", domain.ErrTransferFailed, err)
	}

	tx := types.NewTransaction(nonce, contract, big.NewInt(0), transferGasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return fmt.Errorf("%w: failed to sign transaction: %s", domain.ErrTransferFailed, err)
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("%w: failed to send transaction: %s", domain.ErrTransferFailed, err)
	}

	return c.waitReceipt(ctx, signed.Hash())
}

// waitReceipt polls for the transaction receipt with exponential backoff
// and fails on a reverted execution
func (c *ERC20Custody) waitReceipt(ctx context.Context, txHash common.Hash) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = c.receiptTimeout

	return backoff.Retry(func() error {
		receipt, err := c.client.TransactionReceipt(ctx, txHash)
		if err != nil {
			return fmt.Errorf("receipt not available: %w", err)
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return backoff.Permanent(fmt.Errorf("%w: transaction %s reverted", domain.ErrTransferFailed, txHash))
		}
		return nil
	}, backoff.WithContext(policy, ctx))
}
