/*
Package worker runs the asynchronous balance recompute loop.

PURPOSE:
  Implements the engine's TaskRunner contract with an in-process queue and
  a single background goroutine. Scheduling is fire-and-forget from the
  caller's perspective; delivery is at-least-once and the recompute itself
  is idempotent, so a task observed twice (retry after failure, duplicate
  schedule) converges to the same ledger state.

FAILURE MODEL:
  A failed recompute leaves its entries flagged being_processed and is
  retried up to MaxRetries with a fixed delay. Exhausted tasks are logged
  and dropped; the flags stay visible so a later mutation or a manual
  re-run picks the work up again.

SEE ALSO:
  - engine/recompute.go: the orchestrator this worker drives
*/
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/avincentLoyco/yalty-backend-sub001/engine"
)

// =============================================================================
// RECOMPUTE WORKER
// =============================================================================

type task struct {
	name    string
	args    map[string]string
	attempt int
}

type Worker struct {
	store     engine.TxStore
	recompute *engine.RecomputeOrchestrator
	log       zerolog.Logger

	// MaxRetries bounds re-delivery of a failing task.
	MaxRetries int
	// RetryDelay separates attempts of the same task.
	RetryDelay time.Duration

	queue chan task
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func New(store engine.TxStore, recompute *engine.RecomputeOrchestrator, log zerolog.Logger) *Worker {
	return &Worker{
		store:      store,
		recompute:  recompute,
		log:        log.With().Str("component", "recompute-worker").Logger(),
		MaxRetries: 3,
		RetryDelay: time.Second,
		queue:      make(chan task, 256),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

var _ engine.TaskRunner = (*Worker)(nil)

// Schedule enqueues one task. Never blocks the caller: when the queue is
// full the task is dropped with a warning, relying on flags staying set.
func (w *Worker) Schedule(ctx context.Context, name string, args map[string]string) error {
	select {
	case w.queue <- task{name: name, args: args}:
		return nil
	default:
		w.log.Warn().Str("task", name).Msg("queue full, dropping task")
		return nil
	}
}

// Start launches the background loop. Call once.
func (w *Worker) Start() {
	go w.loop()
}

// Stop drains the loop and waits for the in-flight task to finish.
func (w *Worker) Stop() {
	w.once.Do(func() { close(w.stop) })
	<-w.done
}

func (w *Worker) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case t := <-w.queue:
			w.handle(t)
		}
	}
}

func (w *Worker) handle(t task) {
	if t.name != engine.TaskRecompute {
		w.log.Warn().Str("task", t.name).Msg("unknown task")
		return
	}

	employeeID := t.args["employee_id"]
	categoryID := t.args["category_id"]
	log := w.log.With().
		Str("employee_id", employeeID).
		Str("category_id", categoryID).
		Int("attempt", t.attempt+1).
		Logger()

	err := w.recompute.Process(context.Background(), w.store, employeeID, categoryID)
	if err == nil {
		log.Debug().Msg("recompute completed")
		return
	}

	if t.attempt+1 >= w.MaxRetries {
		log.Error().Err(err).Msg("recompute failed, retries exhausted")
		return
	}
	log.Warn().Err(err).Msg("recompute failed, retrying")

	t.attempt++
	go func(t task) {
		select {
		case <-w.stop:
		case <-time.After(w.RetryDelay):
			select {
			case w.queue <- t:
			default:
			}
		}
	}(t)
}

// RunNow processes one (employee, category) synchronously, bypassing the
// queue. Used by tests and admin tooling.
func (w *Worker) RunNow(ctx context.Context, employeeID, categoryID string) error {
	return w.recompute.Process(ctx, w.store, employeeID, categoryID)
}
