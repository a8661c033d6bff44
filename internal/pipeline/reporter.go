package pipeline

import "context"

// Progress milestones reported during a run.
const (
	ProgressStarted   = 0
	ProgressValidated = 10
	ProgressRetrieved = 40
	ProgressProcessed = 70
	ProgressStored    = 90
	ProgressDone      = 100
)

// Reporter receives coarse progress updates. Implementations must not block
// the run for long and must swallow their own failures.
type Reporter interface {
	Report(ctx context.Context, percent int, message string)
}

// NopReporter discards progress updates.
type NopReporter struct{}

func (NopReporter) Report(context.Context, int, string) {}

func orNop(r Reporter) Reporter {
	if r == nil {
		return NopReporter{}
	}
	return r
}
