package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/progdb/internal/formatter"
	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/repositories"
	"github.com/desertthunder/progdb/internal/shared"
	"github.com/desertthunder/progdb/internal/tasks"
	"github.com/desertthunder/progdb/internal/ui"
)

// watchStopTimeout bounds how long `sync watch --local` waits for a cancelled run on exit.
const watchStopTimeout = 30 * time.Second

// SyncRun runs a recorded sync in the foreground, printing progress as it goes.
//
// The first interrupt requests cancellation, which takes effect after the current tab; a second
// interrupt aborts the run.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	return r.runSync(ctx, cmd.String("file"))
}

func (r *Runner) runSync(ctx context.Context, file string) error {
	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	src, err := r.source(ctx, file)
	if err != nil {
		return err
	}
	orch, err := r.orchestrator(db, src)
	if err != nil {
		return err
	}

	ops := repositories.NewSyncOperationRepository(db)
	op := models.NewSyncOperation(cliOrigin())
	if err := ops.CreateIfNoneActive(op); err != nil {
		if errors.Is(err, shared.ErrSyncActive) {
			return fmt.Errorf("%w: use 'progdb sync status' to follow it or 'progdb sync cancel' to stop it", err)
		}
		return err
	}

	ctx, stop := r.interruptible(ctx, ops)
	defer stop()

	progress := make(chan tasks.ProgressUpdate, 32)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for update := range progress {
			r.printProgress(update)
		}
	}()

	res, err := orch.Run(ctx, op.ID(), progress)
	close(progress)
	<-printed
	if err != nil {
		return err
	}
	return r.printResult(res)
}

// interruptible cancels the active run in the store on the first interrupt and cancels the
// returned context on the second.
func (r *Runner) interruptible(ctx context.Context, ops *repositories.SyncOperationRepository) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigs:
		case <-ctx.Done():
			return
		}
		r.logger.Warn("interrupt received, cancelling after the current tab (interrupt again to abort)")
		if _, err := ops.CancelActive(); err != nil {
			r.logger.Error("failed to cancel sync", "error", err)
		}

		select {
		case <-sigs:
			r.logger.Warn("aborting sync")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}

func (r *Runner) printProgress(u tasks.ProgressUpdate) {
	switch u.Phase {
	case tasks.Completed, tasks.Failed, tasks.Cancelled:
	case tasks.Processing, tasks.TabFailed:
		r.writePlain("  %s\n", u.Message)
	default:
		r.writePlain("%s\n", u.Message)
	}
}

// printResult summarizes a finished run. Failed runs return an error so the exit status reflects them.
func (r *Runner) printResult(res *tasks.RunResult) error {
	op := res.Operation

	r.writePlainln("")
	r.writePlainHeader("Sync " + string(op.Status))
	r.writePlain("%s\n", op.DisplayStatus())
	if op.ErrorMessage != "" {
		r.writePlain("%s\n", op.ErrorMessage)
	}
	r.writePlain("Created: %d  Updated: %d  Skipped: %d  Failed: %d\n", res.Created, res.Updated, res.Skipped, res.Failed)
	for _, f := range res.FailedTabs {
		r.writePlain("  ✗ tab %s: %s\n", f.Tab, f.Message)
	}
	for _, f := range res.FailedRows {
		r.writePlain("  ✗ %s row %d (%s): %s\n", f.Tab, f.Row, f.Album, f.Message)
	}
	if res.Record != nil {
		r.writePlain("Catalog: %d albums\n", res.Record.TotalAlbumsInCatalog)
	}
	if d, ok := op.Duration(time.Now()); ok {
		r.writePlain("Took:    %s\n", formatter.FormatDuration(d.Seconds()))
	}

	if op.Status == models.StatusFailed {
		return fmt.Errorf("sync failed: %s", op.ErrorMessage)
	}
	return nil
}

// SyncTrigger asks a running server to start a sync.
func (r *Runner) SyncTrigger(ctx context.Context, cmd *cli.Command) error {
	id, err := r.api(cmd.String("server")).TriggerSync(ctx)
	if errors.Is(err, shared.ErrSyncActive) {
		return fmt.Errorf("%w (run %s)", err, id)
	}
	if err != nil {
		return err
	}

	r.logger.Info("sync triggered", "run", id)
	return r.writePlain("✓ Sync started: %s\n", id)
}

// SyncStatus prints the active or most recent sync.
func (r *Runner) SyncStatus(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	backend, closeFn, err := r.backend(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	op, err := backend.Status()
	if errors.Is(err, shared.ErrNotFound) {
		return r.writePlain("No sync has run yet.\n")
	}
	if err != nil {
		return err
	}
	return formatter.WriteOperation(r.output, formatter.NewOperationView(op, time.Now()), format)
}

// SyncCancel requests cancellation of the active sync.
func (r *Runner) SyncCancel(ctx context.Context, cmd *cli.Command) error {
	backend, closeFn, err := r.backend(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	id, err := backend.Cancel()
	if errors.Is(err, shared.ErrNoActiveSync) {
		return r.writePlain("No sync in progress.\n")
	}
	if err != nil {
		return err
	}
	return r.writePlain("✓ Cancellation requested for %s; the sync stops after its current tab.\n", id)
}

// SyncHistory lists recent sync records from the local database.
func (r *Runner) SyncHistory(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	limit := int(cmd.Int("limit"))
	if limit <= 0 {
		return fmt.Errorf("%w: --limit must be positive", shared.ErrInvalidFlag)
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := repositories.NewSyncRecordRepository(db).List(limit)
	if err != nil {
		return err
	}
	return formatter.WriteHistory(r.output, formatter.NewRecordViews(records), format)
}

// SyncWatch opens the sync dashboard.
//
// By default it drives a running server. With --local, runs execute in this process and the
// dashboard follows their live progress; it refuses to start while another process has a run active.
func (r *Runner) SyncWatch(ctx context.Context, cmd *cli.Command) error {
	logger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return err
	}
	r.SetLogger(logger)

	var (
		backend ui.Backend
		opts    []ui.Option
	)

	if cmd.Bool("local") {
		db, err := r.openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		src, err := r.source(ctx, cmd.String("file"))
		if err != nil {
			return err
		}
		orch, err := r.orchestrator(db, src)
		if err != nil {
			return err
		}

		updates := make(chan tasks.ProgressUpdate, 64)
		runner := tasks.NewRunner(db, orch, r.logger, tasks.WithProgress(updates), tasks.WithSharedStore())
		if err := runner.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if id, err := runner.Cancel(); err == nil {
				r.logger.Info("cancelled sync on exit", "run", id)
			}
			stopCtx, cancel := context.WithTimeout(context.Background(), watchStopTimeout)
			defer cancel()
			runner.Stop(stopCtx)
		}()

		backend = runner
		opts = append(opts, ui.WithUpdates(updates))
	} else {
		backend = r.api(cmd.String("server")).SyncClient(ctx)
	}

	p := tea.NewProgram(ui.NewModel(backend, cliOrigin(), opts...), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard error: %w", err)
	}
	return nil
}

// backend returns the sync surface for status and cancel: the server with --remote, otherwise an
// unstarted runner over the local database, which reads and cancels runs through the store. The
// returned func releases it.
func (r *Runner) backend(ctx context.Context, cmd *cli.Command) (ui.Backend, func(), error) {
	if cmd.Bool("remote") {
		return r.api(cmd.String("server")).SyncClient(ctx), func() {}, nil
	}

	db, err := r.openDatabase()
	if err != nil {
		return nil, nil, err
	}
	return tasks.NewRunner(db, nil, r.logger), func() { db.Close() }, nil
}

// cliOrigin identifies runs started from this machine's command line.
func cliOrigin() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return "cli:" + u.Username
	}
	return "cli"
}
