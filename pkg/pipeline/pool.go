package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/unspun/unspun/pkg/models"
	"github.com/unspun/unspun/pkg/protocol"
)

// stageResult pairs a stage's output with the error that produced it.
type stageReturn struct {
	output *protocol.StageOutput
	err    error
}

// workerPool offloads synchronous stage work so the coordinator's
// control loop never blocks inside a stage. Capacity bounds how many
// stage executions may be in flight at once, which also caps the
// goroutines a timed-out stage can leave running.
type workerPool struct {
	slots chan struct{}
}

func newWorkerPool(capacity int) *workerPool {
	if capacity < 1 {
		capacity = 1
	}

	return &workerPool{slots: make(chan struct{}, capacity)}
}

var errStageTimeout = fmt.Errorf("stage timed out")

// run executes the stage on a pool worker and waits for its result,
// the timeout, or context cancellation, whichever comes first. A
// panic inside the stage is converted to an error rather than taking
// the coordinator down.
func (p *workerPool) run(ctx context.Context, stage protocol.Stage, job *models.Job, timeout time.Duration) (*protocol.StageOutput, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	results := make(chan stageReturn, 1)

	go func() {
		defer func() { <-p.slots }()

		output, err := safeRun(ctx, stage, job)
		results <- stageReturn{output: output, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ret := <-results:
		return ret.output, ret.err
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", errStageTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// safeRun converts a stage panic into an error so one misbehaving
// stage cannot crash the whole run.
func safeRun(ctx context.Context, stage protocol.Stage, job *models.Job) (output *protocol.StageOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			err = fmt.Errorf("stage %s panicked: %v\n%s", stage.Kind(), r, stack)
			output = nil
		}
	}()

	return stage.Run(ctx, job)
}
