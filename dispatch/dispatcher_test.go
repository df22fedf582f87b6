package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"github.com/bridgekit/oftdispatch/ledger"
	"github.com/bridgekit/oftdispatch/oft"
	"github.com/bridgekit/oftdispatch/quote"
)

var (
	overrideRefund = common.HexToAddress("0xdeaDDeADDEaDdeaDdEAddEADDEAdDeadDEADDEaD")
	quotedRefund   = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

// fakeBackend is a scripted in-memory ledger backend. submitErr and
// confirmErr, when set, are consulted before recording the call.
type fakeBackend struct {
	submitted  []ledger.CallMsg
	confirmed  []common.Hash
	submitErr  func(msg ledger.CallMsg) error
	confirmErr func(tx common.Hash) error
}

func (f *fakeBackend) Submit(_ context.Context, msg ledger.CallMsg) (common.Hash, error) {
	if f.submitErr != nil {
		if err := f.submitErr(msg); err != nil {
			return common.Hash{}, err
		}
	}
	f.submitted = append(f.submitted, msg)
	return common.BytesToHash([]byte{byte(len(f.submitted))}), nil
}

func (f *fakeBackend) AwaitConfirmation(_ context.Context, tx common.Hash) error {
	if f.confirmErr != nil {
		if err := f.confirmErr(tx); err != nil {
			return err
		}
	}
	f.confirmed = append(f.confirmed, tx)
	return nil
}

func transferStep(t *testing.T, target common.Address, refund common.Address) quote.Step {
	t.Helper()
	var to [32]byte
	to[31] = 0x42
	data, err := oft.EncodeSend(oft.SendCall{
		Params: oft.SendParams{
			DstEid:      30101,
			To:          to,
			AmountLD:    big.NewInt(5_000_000),
			MinAmountLD: big.NewInt(4_900_000),
		},
		Fee:    oft.MessagingFee{NativeFee: big.NewInt(1_000), LzTokenFee: big.NewInt(0)},
		Refund: refund,
	})
	require.NoError(t, err)
	return quote.Step{
		Type: "cross",
		Tool: "stargateV2",
		Tx: quote.TxRequest{
			To:    target,
			Data:  hexutil.Bytes(data),
			Value: (*hexutil.Big)(big.NewInt(1_000)),
		},
	}
}

func approvalStep(target common.Address) quote.Step {
	data := append(oft.ApproveSelector[:], make([]byte, 64)...)
	return quote.Step{
		Type: "approve",
		Tool: "erc20",
		Tx:   quote.TxRequest{To: target, Data: hexutil.Bytes(data)},
	}
}

func route(id string, steps ...quote.Step) quote.Route {
	return quote.Route{ID: id, Steps: steps}
}

func TestRunSkipsRouteWithoutTransfer(t *testing.T) {
	backend := &fakeBackend{}
	d := New(backend, overrideRefund)

	approveOnly := route("r-approve-only", approvalStep(common.HexToAddress("0xa1")))
	confirmed, results, err := d.Run(context.Background(), []quote.Route{approveOnly})
	require.NoError(t, err)
	require.Nil(t, confirmed)
	require.Len(t, results, 1)
	require.Equal(t, OutcomeSkipped, results[0].Outcome)
	// Not even the approval may be submitted for a route with no transfer.
	require.Empty(t, backend.submitted)
}

func TestApprovalFailureIsRouteScoped(t *testing.T) {
	backend := &fakeBackend{
		submitErr: func(msg ledger.CallMsg) error {
			if bytes.HasPrefix(msg.Data, oft.ApproveSelector[:]) {
				return fmt.Errorf("nonce too low")
			}
			return nil
		},
	}
	d := New(backend, overrideRefund)

	r1 := route("r1", approvalStep(common.HexToAddress("0xa1")), transferStep(t, common.HexToAddress("0xb1"), quotedRefund))
	r2 := route("r2", transferStep(t, common.HexToAddress("0xb2"), quotedRefund))

	confirmed, results, err := d.Run(context.Background(), []quote.Route{r1, r2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, OutcomeFailed, results[0].Outcome)
	require.ErrorContains(t, results[0].Err, "approval submission")
	require.Equal(t, OutcomeConfirmed, results[1].Outcome)
	require.NotNil(t, confirmed)
	require.Equal(t, "r2", confirmed.RouteID)

	// Route 1's transfer must never have been submitted.
	require.Len(t, backend.submitted, 1)
	require.Equal(t, common.HexToAddress("0xb2"), backend.submitted[0].To)
}

func TestDecodeFailureAbortsRun(t *testing.T) {
	backend := &fakeBackend{}
	d := New(backend, overrideRefund)

	// Right selector, garbage body: classification finds it, decode rejects it.
	garbage := quote.Step{
		Type: "cross",
		Tx:   quote.TxRequest{Data: hexutil.Bytes(append(oft.SendSelector[:], 0x01, 0x02, 0x03))},
	}
	healthy := route("r2", transferStep(t, common.HexToAddress("0xb2"), quotedRefund))

	confirmed, results, err := d.Run(context.Background(), []quote.Route{route("r1", garbage), healthy})
	require.ErrorIs(t, err, oft.ErrMalformed)
	require.Nil(t, confirmed)
	// The run aborts before route 2 is attempted and nothing is submitted.
	require.Empty(t, results)
	require.Empty(t, backend.submitted)
}

func TestOverrideNoopStillSubmits(t *testing.T) {
	backend := &fakeBackend{}
	d := New(backend, overrideRefund)

	// The quoted refund already equals the override: warn-and-continue.
	r := route("r-noop", transferStep(t, common.HexToAddress("0xb1"), overrideRefund))
	confirmed, _, err := d.Run(context.Background(), []quote.Route{r})
	require.NoError(t, err)
	require.NotNil(t, confirmed)

	require.Len(t, backend.submitted, 1)
	call, err := oft.DecodeSend(backend.submitted[0].Data)
	require.NoError(t, err)
	require.Equal(t, overrideRefund, call.Refund)
}

// TestFirstConfirmedStopsRun is the full three-route scenario: route 1 fails
// at transfer submission after a confirmed approval, route 2 confirms, and
// route 3 is never touched.
func TestFirstConfirmedStopsRun(t *testing.T) {
	var (
		approveTarget = common.HexToAddress("0xa1")
		target1       = common.HexToAddress("0xb1")
		target2       = common.HexToAddress("0xb2")
		target3       = common.HexToAddress("0xb3")
	)
	backend := &fakeBackend{
		submitErr: func(msg ledger.CallMsg) error {
			if msg.To == target1 {
				return errors.New("connection reset by peer")
			}
			return nil
		},
	}
	d := New(backend, overrideRefund)

	events := make(chan Event, 64)
	sub := d.SubscribeEvents(events)
	defer sub.Unsubscribe()

	routes := []quote.Route{
		route("r1", approvalStep(approveTarget), transferStep(t, target1, quotedRefund)),
		route("r2", transferStep(t, target2, quotedRefund)),
		route("r3", transferStep(t, target3, quotedRefund)),
	}
	confirmed, results, err := d.Run(context.Background(), routes)
	require.NoError(t, err)

	require.Len(t, results, 2, "route 3 must not be attempted")
	require.Equal(t, OutcomeFailed, results[0].Outcome)
	require.ErrorContains(t, results[0].Err, "transfer submission")
	require.Equal(t, OutcomeConfirmed, results[1].Outcome)
	require.Equal(t, confirmed, &results[1])

	// Submissions: route 1's approval, then route 2's transfer. Route 1's
	// transfer was rejected at submit and route 3 never reached.
	require.Len(t, backend.submitted, 2)
	require.Equal(t, approveTarget, backend.submitted[0].To)
	require.Equal(t, target2, backend.submitted[1].To)

	// The submitted transfer carries the rewritten refund and an untouched
	// value field.
	call, err := oft.DecodeSend(backend.submitted[1].Data)
	require.NoError(t, err)
	require.Equal(t, overrideRefund, call.Refund)
	require.Equal(t, int64(1_000), backend.submitted[1].Value.Int64())

	// Event stream: both routes report a terminal outcome, in order.
	var finished []Event
	for len(events) > 0 {
		ev := <-events
		if ev.Kind == RouteFinished {
			finished = append(finished, ev)
		}
	}
	require.Len(t, finished, 2)
	require.Equal(t, "r1", finished[0].RouteID)
	require.Equal(t, OutcomeFailed, finished[0].Outcome)
	require.Equal(t, "r2", finished[1].RouteID)
	require.Equal(t, OutcomeConfirmed, finished[1].Outcome)
}
