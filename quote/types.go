// Package quote models the route quotes returned by a LI.FI-style routing
// API and implements the HTTP client that fetches them. A quote is a list of
// candidate routes; each route is an ordered list of steps, and each step
// carries a ready-to-send transaction skeleton with raw calldata.
package quote

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// TxRequest is the transaction skeleton attached to a step. Gas fields are
// carried through untouched; the dispatcher re-estimates on submission.
type TxRequest struct {
	To       common.Address `json:"to"`
	From     common.Address `json:"from"`
	Data     hexutil.Bytes  `json:"data"`
	Value    *hexutil.Big   `json:"value"`
	ChainID  int64          `json:"chainId"`
	GasLimit string         `json:"gasLimit,omitempty"`
	GasPrice string         `json:"gasPrice,omitempty"`
}

// Step is one proposed on-chain call within a route, e.g. a token-spending
// approval or the cross-chain send itself.
type Step struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Tool    string    `json:"tool"`
	ChainID int64     `json:"chainId"`
	Tx      TxRequest `json:"transactionRequest"`
}

// Token identifies an asset on a specific chain.
type Token struct {
	Address  common.Address `json:"address"`
	ChainID  int64          `json:"chainId"`
	Symbol   string         `json:"symbol"`
	Decimals int            `json:"decimals"`
}

// FeeCost is one fee line item quoted for a route.
type FeeCost struct {
	Name     string `json:"name"`
	Token    Token  `json:"token"`
	Amount   string `json:"amount"`
	Included bool   `json:"included"`
}

// Route is one candidate path for completing the transfer. Routes are
// immutable once decoded; the dispatcher never mutates them.
type Route struct {
	ID          string         `json:"id"`
	FromChainID int64          `json:"fromChainId"`
	ToChainID   int64          `json:"toChainId"`
	FromToken   Token          `json:"fromToken"`
	ToToken     Token          `json:"toToken"`
	FromAddress common.Address `json:"fromAddress"`
	ToAddress   common.Address `json:"toAddress"`
	FromAmount  string         `json:"fromAmount"`
	ToAmountMin string         `json:"toAmountMin"`
	FeeCosts    []FeeCost      `json:"feeCosts"`
	Steps       []Step         `json:"steps"`
}

// Amounts returns the route's source amount and minimum destination amount
// as 256-bit integers. The quote API serializes amounts as decimal strings.
func (r *Route) Amounts() (from, toMin *uint256.Int, err error) {
	from, err = uint256.FromDecimal(r.FromAmount)
	if err != nil {
		return nil, nil, fmt.Errorf("quote: bad fromAmount %q: %w", r.FromAmount, err)
	}
	toMin, err = uint256.FromDecimal(r.ToAmountMin)
	if err != nil {
		return nil, nil, fmt.Errorf("quote: bad toAmountMin %q: %w", r.ToAmountMin, err)
	}
	return from, toMin, nil
}
