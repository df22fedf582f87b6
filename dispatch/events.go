package dispatch

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
)

// EventKind enumerates the progress notifications emitted while a route is
// being attempted. Presentation layers subscribe to the dispatcher's feed
// instead of the dispatcher printing anything itself.
type EventKind int

const (
	// RouteStarted marks the beginning of a route attempt.
	RouteStarted EventKind = iota
	// StepsClassified reports the classification result for a route's steps.
	StepsClassified
	// ApprovalConfirmed reports that the prerequisite approval was mined.
	ApprovalConfirmed
	// RefundOverridden reports the refund address rewrite.
	RefundOverridden
	// Verified reports a successful re-encode round-trip check.
	Verified
	// Submitted reports the broadcast of the rewritten transfer call.
	Submitted
	// RouteFinished carries the terminal outcome of a route attempt.
	RouteFinished
)

// Event is one progress notification. Only the fields relevant to the kind
// are populated.
type Event struct {
	Kind    EventKind
	RouteID string

	// StepsClassified
	HasApproval   bool
	TransferIndex int

	// RefundOverridden
	QuotedRefund   common.Address
	OverrideRefund common.Address

	// ApprovalConfirmed, Submitted
	TxHash common.Hash

	// RouteFinished
	Outcome Outcome
	Err     error
}

// SubscribeEvents registers ch to receive progress events for every route
// the dispatcher attempts. The subscription follows go-ethereum feed
// semantics: unsubscribe to stop delivery, and drain the channel promptly
// because sends are synchronous.
func (d *Dispatcher) SubscribeEvents(ch chan<- Event) event.Subscription {
	return d.feed.Subscribe(ch)
}

func (d *Dispatcher) emit(ev Event) {
	d.feed.Send(ev)
}
