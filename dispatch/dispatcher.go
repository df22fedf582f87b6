// Package dispatch drives the per-route transaction sequence: classify the
// quoted steps, submit and confirm the optional approval, decode the
// transfer call, rewrite its refund address, verify the re-encoding, then
// submit and confirm the transfer. Routes are attempted strictly in order
// and the first confirmed submission ends the run.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/bridgekit/oftdispatch/ledger"
	"github.com/bridgekit/oftdispatch/oft"
	"github.com/bridgekit/oftdispatch/quote"
)

// ErrVerifyMismatch is returned when the rewritten call does not survive an
// encode/decode round trip with only the refund field changed. It indicates
// a codec defect and aborts the whole run.
var ErrVerifyMismatch = errors.New("dispatch: rewritten call failed round-trip verification")

// Outcome is the terminal state of one route attempt.
type Outcome int

const (
	// OutcomeSkipped means the route carried no transfer-shaped step.
	OutcomeSkipped Outcome = iota
	// OutcomeFailed means a submission or confirmation failed; the failure
	// is scoped to the route and the run continues.
	OutcomeFailed
	// OutcomeConfirmed means the rewritten transfer was mined successfully.
	OutcomeConfirmed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	case OutcomeConfirmed:
		return "confirmed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// RouteResult records how one route attempt ended. TxHash is set only for
// confirmed routes; Err only for failed ones.
type RouteResult struct {
	RouteID string
	Outcome Outcome
	TxHash  common.Hash
	Err     error
}

// Dispatcher executes route attempts against a ledger backend. It is not
// safe for concurrent use; routes within one run are strictly sequential by
// construction.
type Dispatcher struct {
	backend ledger.Backend
	refund  common.Address

	feed event.Feed
	log  log.Logger
}

// New returns a dispatcher that rewrites every transfer call's refund
// address to refund before submission.
func New(backend ledger.Backend, refund common.Address) *Dispatcher {
	return &Dispatcher{
		backend: backend,
		refund:  refund,
		log:     log.New("component", "dispatch"),
	}
}

// Run attempts the given routes in order. It returns the confirmed route's
// result (nil if no route confirmed), the per-route results accumulated so
// far, and a fatal error if the run had to abort. Submission and
// confirmation failures are route-scoped and never surface as the error;
// decode and verification failures do, by design: they indicate the quote or
// the codec is wrong, and retrying other routes would rewrite calldata this
// tool does not understand.
//
// Exhausting every route without a confirmation is not an error here; the
// caller decides whether an unconfirmed run is a failure.
func (d *Dispatcher) Run(ctx context.Context, routes []quote.Route) (*RouteResult, []RouteResult, error) {
	results := make([]RouteResult, 0, len(routes))
	for i := range routes {
		res, err := d.runRoute(ctx, &routes[i], i)
		if err != nil {
			return nil, results, err
		}
		results = append(results, res)
		if res.Outcome == OutcomeConfirmed {
			// One confirmed transfer fully satisfies the quoted amount;
			// remaining routes are alternatives, not additions.
			return &results[len(results)-1], results, nil
		}
	}
	d.log.Warn("All routes exhausted without a confirmed transfer", "attempted", len(routes))
	return nil, results, nil
}

func (d *Dispatcher) runRoute(ctx context.Context, route *quote.Route, idx int) (RouteResult, error) {
	routesAttemptedCounter.Inc(1)
	d.log.Info("Attempting route", "index", idx, "route", route.ID, "steps", len(route.Steps), "fromChain", route.FromChainID, "toChain", route.ToChainID)
	d.emit(Event{Kind: RouteStarted, RouteID: route.ID})

	cls := Classify(route.Steps)
	if cls.Transfer == nil {
		d.logUnclassified(route)
		routesSkippedCounter.Inc(1)
		res := RouteResult{RouteID: route.ID, Outcome: OutcomeSkipped}
		d.emit(Event{Kind: RouteFinished, RouteID: route.ID, Outcome: OutcomeSkipped})
		return res, nil
	}
	d.emit(Event{Kind: StepsClassified, RouteID: route.ID, HasApproval: cls.Approval != nil, TransferIndex: cls.TransferIndex})

	if cls.Approval != nil {
		approvalsCounter.Inc(1)
		d.log.Info("Submitting approval step", "route", route.ID, "spender", cls.Approval.Tx.To)
		hash, err := d.backend.Submit(ctx, stepCallMsg(cls.Approval, nil))
		if err != nil {
			return d.routeFailed(route, fmt.Errorf("approval submission: %w", err)), nil
		}
		if err := d.backend.AwaitConfirmation(ctx, hash); err != nil {
			return d.routeFailed(route, fmt.Errorf("approval confirmation: %w", err)), nil
		}
		d.emit(Event{Kind: ApprovalConfirmed, RouteID: route.ID, TxHash: hash})
	}

	call, err := oft.DecodeSend(cls.Transfer.Tx.Data)
	if err != nil {
		// Decode failures abort the run: every route quotes the same call
		// shape, so a quote this tool cannot parse safely on one route will
		// not parse on the next either.
		return RouteResult{}, fmt.Errorf("dispatch: route %s step %d: %w", route.ID, cls.TransferIndex, err)
	}

	quoted := call.Refund
	if quoted == d.refund {
		d.log.Warn("Refund override equals quoted refund address, rewriting is a no-op", "route", route.ID, "refund", quoted)
	}
	call.Refund = d.refund
	d.emit(Event{Kind: RefundOverridden, RouteID: route.ID, QuotedRefund: quoted, OverrideRefund: d.refund})
	d.log.Info("Refund address overridden", "route", route.ID, "quoted", quoted, "override", d.refund)

	encoded, err := d.verifyRewrite(call)
	if err != nil {
		return RouteResult{}, fmt.Errorf("dispatch: route %s: %w", route.ID, err)
	}
	d.emit(Event{Kind: Verified, RouteID: route.ID})

	hash, err := d.backend.Submit(ctx, stepCallMsg(cls.Transfer, encoded))
	if err != nil {
		return d.routeFailed(route, fmt.Errorf("transfer submission: %w", err)), nil
	}
	d.emit(Event{Kind: Submitted, RouteID: route.ID, TxHash: hash})
	if err := d.backend.AwaitConfirmation(ctx, hash); err != nil {
		return d.routeFailed(route, fmt.Errorf("transfer confirmation: %w", err)), nil
	}

	routesConfirmedCounter.Inc(1)
	d.log.Info("Route confirmed", "route", route.ID, "tx", hash)
	res := RouteResult{RouteID: route.ID, Outcome: OutcomeConfirmed, TxHash: hash}
	d.emit(Event{Kind: RouteFinished, RouteID: route.ID, Outcome: OutcomeConfirmed, TxHash: hash})
	return res, nil
}

// verifyRewrite re-encodes the rewritten call and decodes it again,
// asserting that the refund now matches the override while params and fee
// survived untouched. A mismatch means encode and decode disagree with each
// other, which is fatal for the run.
func (d *Dispatcher) verifyRewrite(call oft.SendCall) ([]byte, error) {
	encoded, err := oft.EncodeSend(call)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrVerifyMismatch, err)
	}
	check, err := oft.DecodeSend(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrVerifyMismatch, err)
	}
	if check.Refund != call.Refund || !check.Params.Equal(call.Params) || !check.Fee.Equal(call.Fee) {
		return nil, ErrVerifyMismatch
	}
	return encoded, nil
}

func (d *Dispatcher) routeFailed(route *quote.Route, err error) RouteResult {
	routesFailedCounter.Inc(1)
	d.log.Warn("Route failed, moving on", "route", route.ID, "err", err)
	d.emit(Event{Kind: RouteFinished, RouteID: route.ID, Outcome: OutcomeFailed, Err: err})
	return RouteResult{RouteID: route.ID, Outcome: OutcomeFailed, Err: err}
}

// logUnclassified dumps every step of a route that yielded no transfer call,
// so a bad quote can be debugged without re-running the whole pipeline.
func (d *Dispatcher) logUnclassified(route *quote.Route) {
	d.log.Warn("No transfer step in route, skipping", "route", route.ID, "steps", len(route.Steps))
	for i := range route.Steps {
		step := &route.Steps[i]
		selector := "none"
		if len(step.Tx.Data) >= 4 {
			selector = fmt.Sprintf("0x%x", step.Tx.Data[:4])
		}
		d.log.Warn("Unclassified step", "index", i, "type", step.Type, "tool", step.Tool, "selector", selector)
	}
}

// stepCallMsg builds the submission message for a step. A non-nil data
// argument replaces the quoted calldata (used for the rewritten transfer).
func stepCallMsg(step *quote.Step, data []byte) ledger.CallMsg {
	if data == nil {
		data = step.Tx.Data
	}
	var value *big.Int
	if step.Tx.Value != nil {
		value = step.Tx.Value.ToInt()
	}
	return ledger.CallMsg{To: step.Tx.To, Data: data, Value: value}
}
