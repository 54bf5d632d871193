package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/repositories"
	"github.com/desertthunder/progdb/internal/shared"
)

// queueSize bounds operations waiting for the worker. Only one can be active, so the queue only
// holds runs that were cancelled before the worker reached them plus at most one live run.
const queueSize = 8

// orphanMessage is stored on runs left active by a previous process.
const orphanMessage = "Sync was interrupted by a restart"

// Runner owns the single sync worker.
//
// [Runner.Trigger] creates the operation and returns at once; the worker picks it up from a channel
// and runs it to completion. Only one operation can be pending or running at a time.
type Runner struct {
	orchestrator *Orchestrator
	ops          *repositories.SyncOperationRepository
	records      *repositories.SyncRecordRepository
	queue        chan string
	progress     chan<- ProgressUpdate
	logger       *log.Logger

	sharedStore bool

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// RunnerOption customizes a [Runner].
type RunnerOption func(*Runner)

// WithProgress forwards every run's progress updates to ch. Sends never block.
func WithProgress(ch chan<- ProgressUpdate) RunnerOption {
	return func(r *Runner) { r.progress = ch }
}

// WithSharedStore marks the database as shared with another sync process, such as a server.
// Start then refuses with [shared.ErrSyncActive] when a run is active instead of failing it as
// orphaned.
func WithSharedStore() RunnerOption {
	return func(r *Runner) { r.sharedStore = true }
}

// NewRunner creates a [Runner] executing runs with orchestrator.
func NewRunner(db *sql.DB, orchestrator *Orchestrator, logger *log.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	r := &Runner{
		orchestrator: orchestrator,
		ops:          repositories.NewSyncOperationRepository(db),
		records:      repositories.NewSyncRecordRepository(db),
		queue:        make(chan string, queueSize),
		logger:       logger,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start fails runs orphaned by a previous process and starts the worker.
// See [WithSharedStore] for databases another process may be syncing.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("sync runner already started")
	}
	if r.closed {
		return shared.ErrRunnerClosed
	}

	if r.sharedStore {
		active, err := r.ops.GetActive()
		switch {
		case err == nil:
			return fmt.Errorf("%w (run %s is owned by another process)", shared.ErrSyncActive, active.ID())
		case !errors.Is(err, shared.ErrNoActiveSync):
			return err
		}
	} else {
		n, err := r.ops.FailActive(orphanMessage)
		if err != nil {
			return err
		}
		if n > 0 {
			r.logger.Warn("failed orphaned sync operations", "count", n)
		}
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.started = true
	go r.work(ctx)

	r.logger.Info("sync runner started")
	return nil
}

// Stop stops accepting work and waits for the current run to finish.
//
// When ctx expires first, the run's context is cancelled so in-flight network calls return, and
// Stop keeps waiting for the worker to record the outcome.
func (r *Runner) Stop(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	started := r.started
	close(r.queue)
	r.mu.Unlock()

	if !started {
		return
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		r.logger.Warn("sync runner stop timed out, interrupting current run")
		r.cancel()
		<-r.done
	}
	r.cancel()
	r.logger.Info("sync runner stopped")
}

// Trigger creates a pending operation requested from origin and queues it.
//
// Returns [shared.ErrSyncActive] when another operation is pending or running.
func (r *Runner) Trigger(origin string) (*models.SyncOperation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.started {
		return nil, shared.ErrRunnerClosed
	}

	op := models.NewSyncOperation(origin)
	if err := r.ops.CreateIfNoneActive(op); err != nil {
		return nil, err
	}

	select {
	case r.queue <- op.ID():
	default:
		op.Status = models.StatusFailed
		op.ErrorMessage = "Sync queue is full"
		if _, err := r.ops.Finish(op); err != nil {
			r.logger.Error("failed to release unqueued sync operation", "run", op.ID(), "error", err)
		}
		return nil, fmt.Errorf("%w: queue is full", shared.ErrRunnerClosed)
	}

	r.logger.Info("sync queued", "run", op.ID(), "origin", origin)
	return op, nil
}

// Cancel requests cancellation of the active operation and returns its id.
//
// Returns [shared.ErrNoActiveSync] when nothing is pending or running.
func (r *Runner) Cancel() (string, error) {
	id, err := r.ops.CancelActive()
	if err != nil {
		return "", err
	}
	r.logger.Info("sync cancellation requested", "run", id)
	return id, nil
}

// Status returns the active operation, or the most recent one when none is active.
func (r *Runner) Status() (*models.SyncOperation, error) {
	op, err := r.ops.GetActive()
	if errors.Is(err, shared.ErrNoActiveSync) {
		return r.ops.Latest()
	}
	return op, err
}

// History returns up to limit sync records, newest first.
func (r *Runner) History(limit int) ([]*models.SyncRecord, error) {
	return r.records.List(limit)
}

func (r *Runner) work(ctx context.Context) {
	defer close(r.done)
	for id := range r.queue {
		r.execute(ctx, id)
	}
}

// execute runs one operation, converting a panic into a failed run so the worker survives.
func (r *Runner) execute(ctx context.Context, id string) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("sync worker panicked", "run", id, "panic", p, "stack", string(debug.Stack()))
			op, err := r.ops.Get(id)
			if err != nil {
				r.logger.Error("failed to load panicked sync operation", "run", id, "error", err)
				return
			}
			op.Status = models.StatusFailed
			op.StageMessage = "Sync failed"
			op.ErrorMessage = "Synchronization hit an unexpected error. See the server log for details."
			if _, err := r.ops.Finish(op); err != nil {
				r.logger.Error("failed to record panicked sync operation", "run", id, "error", err)
			}
		}
	}()

	if _, err := r.orchestrator.Run(ctx, id, r.progress); err != nil {
		r.logger.Error("sync run could not be recorded", "run", id, "error", err)
	}
}
