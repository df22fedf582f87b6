package dispatch

import (
	"bytes"

	"github.com/bridgekit/oftdispatch/oft"
	"github.com/bridgekit/oftdispatch/quote"
)

// Classification is the result of scanning a route's steps: the optional
// prerequisite approval call and the transfer call, identified by their
// 4-byte selectors. Either pointer may be nil; TransferIndex is -1 when no
// transfer step was found.
type Classification struct {
	Approval      *quote.Step
	Transfer      *quote.Step
	TransferIndex int
}

// Classify scans steps in order and records the first approval-shaped and
// the first transfer-shaped call. First match wins for both: a second
// approval before the transfer is silently dropped (a known limitation of
// the quote shape this tool consumes), and later transfer-shaped steps are
// ignored. The scan always runs to the end so callers can enumerate every
// step for diagnostics; steps without at least a full selector of calldata
// are skipped.
func Classify(steps []quote.Step) Classification {
	cls := Classification{TransferIndex: -1}
	for i := range steps {
		data := steps[i].Tx.Data
		if len(data) < 4 {
			continue
		}
		switch {
		case bytes.Equal(data[:4], oft.ApproveSelector[:]):
			if cls.Approval == nil {
				cls.Approval = &steps[i]
			}
		case bytes.Equal(data[:4], oft.SendSelector[:]):
			if cls.Transfer == nil {
				cls.Transfer = &steps[i]
				cls.TransferIndex = i
			}
		}
	}
	return cls
}
