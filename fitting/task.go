package fitting

import (
	"context"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// FitTask is a fit running in the background.
type FitTask struct {
	done   chan struct{}
	result *Result
	err    error
}

func startFitTask(run func() (*Result, error), release func()) *FitTask {
	task := &FitTask{done: make(chan struct{})}
	utils.PanicCapturingGoWithCallback(func() {
		result, err := run()
		release()
		task.result, task.err = result, err
		close(task.done)
	}, func(err interface{}) {
		release()
		task.err = errors.Errorf("fit panicked: %v", err)
		close(task.done)
	})
	return task
}

// Done is closed once the fit has finished.
func (t *FitTask) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the fit finishes or ctx is done. Cancelling ctx does not stop the fit.
func (t *FitTask) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return t.result, t.err
	}
}
