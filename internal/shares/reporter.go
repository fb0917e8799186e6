package shares

import (
	"context"
	"time"

	"github.com/Iron-Ham/poolminer/internal/logging"
)

// Reporter periodically logs the accountant's counters.
type Reporter struct {
	acct     *Accountant
	interval time.Duration
	logger   *logging.Logger
	onReport func(Snapshot)
}

// NewReporter creates a Reporter. A non-positive interval disables the
// periodic report; the final report is still written.
func NewReporter(acct *Accountant, interval time.Duration, logger *logging.Logger) *Reporter {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Reporter{
		acct:     acct,
		interval: interval,
		logger:   logger.WithComponent("reporter"),
	}
}

// OnReport registers fn to receive every reported snapshot.
func (r *Reporter) OnReport(fn func(Snapshot)) {
	r.onReport = fn
}

// Run reports every interval until ctx is done, then reports once more.
func (r *Reporter) Run(ctx context.Context) {
	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			r.report("final share report")
			return
		case <-tick:
			r.report("share report")
		}
	}
}

func (r *Reporter) report(msg string) {
	snap := r.acct.Snapshot()
	r.logger.Info(msg, "accepted", snap.Accepted, "rejected", snap.Rejected)
	if r.onReport != nil {
		r.onReport(snap)
	}
}
