// Package worker implements the harvest task execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/proxyharvest/internal/harvest"
	"github.com/JakeFAU/proxyharvest/internal/logging"
	"github.com/JakeFAU/proxyharvest/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	// Phase labels logs and metrics ("github", "platforms").
	Phase string
}

// Worker consumes queued locations and runs the handler for each.
type Worker struct {
	queue   harvest.Queue
	handler harvest.Handler
	results chan<- harvest.Result
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker.
func New(
	queue harvest.Queue,
	handler harvest.Handler,
	results chan<- harvest.Result,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		queue:   queue,
		handler: handler,
		results: results,
		cfg:     cfg,
		logger:  logging.OrNop(logger),
	}
}

// Run blocks, consuming tasks until the queue is closed and drained or the
// context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, harvest.ErrQueueClosed) {
				w.logger.Error("queue dequeue failed", zap.Error(err))
			}
			return
		}
		w.logger.Debug("dequeued location", zap.String("location", task.Location), zap.Int("seq", task.Seq))
		res := w.process(ctx, task)
		select {
		case w.results <- res:
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, task harvest.Task) harvest.Result {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := time.Now()
	res := w.invoke(ctx, task.Location)
	res.Location = task.Location
	res.Duration = time.Since(start)

	outcome := "ok"
	if !res.OK() {
		outcome = string(res.Failure)
		if res.Failure == harvest.FailureNone {
			outcome = string(harvest.FailureEmpty)
		}
	}
	metrics.ObserveTask(w.cfg.Phase, outcome, res.Duration)

	switch res.Failure {
	case harvest.FailureNone, harvest.FailureEmpty:
		w.logger.Debug("location processed",
			zap.String("location", task.Location),
			zap.Int("links", len(res.Links)),
			zap.Duration("duration", res.Duration),
		)
	default:
		w.logger.Warn("location failed",
			zap.String("location", task.Location),
			zap.String("reason", string(res.Failure)),
			zap.Error(res.Err),
		)
	}
	return res
}

// invoke runs the handler, converting a panic into a failed result so one
// location can never take the pool down.
func (w *Worker) invoke(ctx context.Context, location string) (res harvest.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = harvest.Failed(location, harvest.FailureHandlerPanic, fmt.Errorf("handler panic: %v", r))
		}
	}()
	if w.handler == nil {
		return harvest.Failed(location, harvest.FailureFetch, errors.New("no handler configured"))
	}
	return w.handler(ctx, location)
}
