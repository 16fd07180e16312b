// Package dispatcher fans harvest locations out to a bounded worker pool.
package dispatcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/proxyharvest/internal/harvest"
	"github.com/JakeFAU/proxyharvest/internal/logging"
	"github.com/JakeFAU/proxyharvest/internal/queue/memory"
	"github.com/JakeFAU/proxyharvest/internal/worker"
)

// Dispatcher runs a handler over a set of locations with at most Workers
// handlers in flight. One Dispatcher serves every phase of a run.
type Dispatcher struct {
	workers int
	logger  *zap.Logger
}

// New creates a Dispatcher. A non-positive worker count is coerced to 1.
func New(workers int, logger *zap.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		workers: workers,
		logger:  logging.OrNop(logger),
	}
}

// Workers returns the pool size.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// Run processes every location once and streams one result per processed
// location in completion order, including failed and empty ones; callers
// filter with Result.OK. phase labels worker logs and task metrics. The
// returned channel is closed after the last worker exits.
func (d *Dispatcher) Run(ctx context.Context, phase string, locations []string, handler harvest.Handler) <-chan harvest.Result {
	queue := memory.NewQueue(len(locations))
	results := make(chan harvest.Result, d.workers)
	logger := d.logger.With(zap.String("phase", phase))

	go func() {
		defer queue.Close()
		for i, loc := range locations {
			if err := queue.Enqueue(ctx, harvest.Task{Location: loc, Seq: i}); err != nil {
				logger.Warn("stopped enqueueing locations",
					zap.Int("enqueued", i),
					zap.Int("total", len(locations)),
					zap.Error(err),
				)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		w := worker.New(queue, handler, results, worker.Config{Phase: phase}, logger)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}
