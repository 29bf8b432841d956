package tools

import (
	"context"
	"time"

	"github.com/danmuck/devctl/internal/classify"
	"github.com/danmuck/devctl/internal/poll"
)

// WaitFor polls check under the tool scope joined with ctx. Cancellation of
// either is reported as a killed error.
func (t *Tool) WaitFor(ctx context.Context, interval time.Duration, check poll.Check) error {
	if cause := t.signal.Check(); cause != nil {
		return t.Classify(classify.Failure{Err: cause, ExitCode: -1, Canceled: true})
	}
	sig, release := t.signal.Join(ctx)
	defer release()

	err := poll.Until(sig, interval, check)
	if err != nil && sig.Aborted() && classify.ReasonOf(err) == "" {
		return t.Classify(classify.Failure{Err: err, ExitCode: -1, Canceled: true})
	}
	return err
}
