package runner

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cascadia-health/epiforecast/internal/model"
)

// RunExecutor drives one simulation run to a terminal status.
type RunExecutor interface {
	ExecuteRun(ctx context.Context, run *model.Run) error
}

// Calibrator drives one calibration to a terminal status.
type Calibrator interface {
	ExecuteCalibration(ctx context.Context, cal *model.Calibration) error
}

// ErrQueueFull is returned when the dispatcher queue cannot accept more
// work. Callers should surface it as backpressure, not retry immediately.
var ErrQueueFull = eris.New("runner: queue full")

type job struct {
	run         *model.Run
	calibration *model.Calibration
}

// Dispatcher owns the background work queue. Accepted jobs run on a fixed
// worker pool; a run is in "queued" status until a worker picks it up.
type Dispatcher struct {
	executor   RunExecutor
	calibrator Calibrator
	queue      chan job
	workers    int
	wg         sync.WaitGroup
}

// NewDispatcher builds a dispatcher with the given worker count and queue
// depth. Non-positive values select modest defaults.
func NewDispatcher(exec RunExecutor, cal Calibrator, workers, queueDepth int) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	if queueDepth <= 0 {
		queueDepth = 32
	}
	return &Dispatcher{
		executor:   exec,
		calibrator: cal,
		queue:      make(chan job, queueDepth),
		workers:    workers,
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled;
// Wait blocks until they have drained.
func (d *Dispatcher) Start(ctx context.Context) {
	for w := 0; w < d.workers; w++ {
		d.wg.Add(1)
		go func(worker int) {
			defer d.wg.Done()
			log := zap.L().With(zap.Int("worker", worker))
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-d.queue:
					d.process(ctx, j, log)
				}
			}
		}(w)
	}
	zap.L().Info("runner: dispatcher started", zap.Int("workers", d.workers))
}

// Wait blocks until all workers have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) process(ctx context.Context, j job, log *zap.Logger) {
	switch {
	case j.run != nil:
		if err := d.executor.ExecuteRun(ctx, j.run); err != nil {
			log.Error("runner: run execution failed",
				zap.String("run_id", j.run.ID),
				zap.Error(err),
			)
		}
	case j.calibration != nil:
		if err := d.calibrator.ExecuteCalibration(ctx, j.calibration); err != nil {
			log.Error("runner: calibration execution failed",
				zap.String("calibration_id", j.calibration.ID),
				zap.Error(err),
			)
		}
	}
}

// SubmitRun enqueues a run without blocking. Returns ErrQueueFull when the
// queue is at capacity.
func (d *Dispatcher) SubmitRun(run *model.Run) error {
	select {
	case d.queue <- job{run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitCalibration enqueues a calibration without blocking.
func (d *Dispatcher) SubmitCalibration(cal *model.Calibration) error {
	select {
	case d.queue <- job{calibration: cal}:
		return nil
	default:
		return ErrQueueFull
	}
}
