package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/busylang/busyflow/types"
)

// monitoredFunc is the unit of work dispatched under a deadline.
type monitoredFunc func(ctx context.Context) (any, error)

// executeWithMonitoring runs fn under a real cancellable deadline. The
// deadline context is handed to fn, so when the timer wins the losing work
// observes cancellation and is reclaimed instead of running on discarded.
func executeWithMonitoring(ctx context.Context, timeout time.Duration, fn monitoredFunc) (any, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := fn(runCtx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && runCtx.Err() == context.DeadlineExceeded {
			return nil, timeoutError(timeout, out.err)
		}
		return out.result, out.err
	case <-runCtx.Done():
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, timeoutError(timeout, nil)
		}
		return nil, runCtx.Err()
	}
}

func timeoutError(timeout time.Duration, cause error) error {
	err := types.NewError(types.ErrTimeout,
		fmt.Sprintf("operation exceeded deadline of %s", timeout))
	if cause != nil {
		err = err.WithCause(cause)
	}
	return err
}
