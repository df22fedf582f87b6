// Package ledger abstracts transaction submission and confirmation behind a
// small backend interface, with an ethclient-based implementation for live
// networks. The dispatcher only ever sees the Backend contract, which keeps
// scenario tests free of any network dependency.
package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CallMsg carries the minimal fields required to broadcast one call: the
// target contract, the raw calldata and the native value to attach. Gas and
// nonce handling are the backend's concern.
type CallMsg struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// Backend submits calls to the network and waits for their inclusion.
//
// Submit broadcasts the call and returns a handle (the transaction hash) for
// the confirmation wait. AwaitConfirmation blocks until the transaction is
// mined and returns a non-nil error if it could not be confirmed or reverted
// on-chain. Both may fail with transport errors, which callers are expected
// to catch and scope to the route being attempted.
type Backend interface {
	Submit(ctx context.Context, msg CallMsg) (common.Hash, error)
	AwaitConfirmation(ctx context.Context, tx common.Hash) error
}
