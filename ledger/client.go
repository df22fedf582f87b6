package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
)

const defaultPollInterval = 2 * time.Second

// ErrExecutionReverted is returned by AwaitConfirmation when the transaction
// was mined but its receipt reports a failed execution.
var ErrExecutionReverted = errors.New("ledger: transaction reverted")

// Client is the live Backend implementation over a JSON-RPC endpoint. It
// signs with a single key and submits EIP-1559 transactions.
type Client struct {
	eth     *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int

	// confirmTimeout bounds each AwaitConfirmation call; zero means no bound
	// beyond the caller's context.
	confirmTimeout time.Duration
	pollInterval   time.Duration

	log log.Logger
}

// NewClient dials the given JSON-RPC endpoint and returns a submission client
// signing with key on the given chain.
func NewClient(ctx context.Context, rpcURL string, key *ecdsa.PrivateKey, chainID *big.Int, confirmTimeout time.Duration) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial %s: %w", rpcURL, err)
	}
	return &Client{
		eth:            eth,
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		chainID:        chainID,
		confirmTimeout: confirmTimeout,
		pollInterval:   defaultPollInterval,
		log:            log.New("component", "ledger"),
	}, nil
}

// From returns the sending account derived from the signing key.
func (c *Client) From() common.Address { return c.from }

// Close releases the underlying RPC connection.
func (c *Client) Close() { c.eth.Close() }

// Submit estimates gas for the call, signs it and broadcasts it. The returned
// hash is the handle for AwaitConfirmation.
func (c *Client) Submit(ctx context.Context, msg CallMsg) (common.Hash, error) {
	value := msg.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: nonce: %w", err)
	}
	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  c.from,
		To:    &msg.To,
		Value: value,
		Data:  msg.Data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: estimate gas: %w", err)
	}
	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: gas tip: %w", err)
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: head: %w", err)
	}
	if head.BaseFee == nil {
		return common.Hash{}, fmt.Errorf("ledger: chain %s does not report a base fee; EIP-1559 support required", c.chainID)
	}
	// feeCap = 2*baseFee + tip, the same headroom ethclient-based tooling
	// commonly applies so the tx survives moderate basefee growth.
	feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &msg.To,
		Value:     value,
		Data:      msg.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("ledger: sign: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("ledger: broadcast: %w", err)
	}

	c.log.Info("Submitted transaction", "hash", signed.Hash(), "to", msg.To, "nonce", nonce, "gas", gas, "value", value)
	return signed.Hash(), nil
}

// AwaitConfirmation polls for the receipt of tx until it is mined, the
// configured confirmation timeout elapses, or the context is cancelled. A
// mined-but-reverted transaction is reported as ErrExecutionReverted.
func (c *Client) AwaitConfirmation(ctx context.Context, tx common.Hash) error {
	if c.confirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.confirmTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, tx)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: tx %s in block %d", ErrExecutionReverted, tx, receipt.BlockNumber)
			}
			c.log.Info("Transaction confirmed", "hash", tx, "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed)
			return nil
		case errors.Is(err, ethereum.NotFound):
			// Not mined yet, keep polling.
		default:
			return fmt.Errorf("ledger: receipt lookup: %w", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("ledger: confirmation wait for %s: %w", tx, ctx.Err())
		case <-ticker.C:
		}
	}
}
