package dispatch

import "github.com/ethereum/go-ethereum/metrics"

var (
	routesAttemptedCounter = metrics.NewRegisteredCounter("dispatch/routes/attempted", nil)
	routesSkippedCounter   = metrics.NewRegisteredCounter("dispatch/routes/skipped", nil)
	routesFailedCounter    = metrics.NewRegisteredCounter("dispatch/routes/failed", nil)
	routesConfirmedCounter = metrics.NewRegisteredCounter("dispatch/routes/confirmed", nil)
	approvalsCounter       = metrics.NewRegisteredCounter("dispatch/approvals/submitted", nil)
)
