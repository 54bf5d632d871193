package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/progdb/internal/catalog"
	"github.com/desertthunder/progdb/internal/repositories"
	"github.com/desertthunder/progdb/internal/server"
	"github.com/desertthunder/progdb/internal/tasks"
)

// drainTimeout bounds how long shutdown waits for a sync in progress before interrupting it.
const drainTimeout = 30 * time.Second

// Serve runs the sync worker, the optional scheduler and the HTTP API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	lookup, err := r.metadataService()
	if err != nil {
		return err
	}
	if lookup == nil {
		r.logger.Warn("Spotify credentials not configured, cover art lookups are disabled")
	}

	runner := tasks.NewRunner(db, orch, r.logger)
	if err := runner.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		runner.Stop(stopCtx)
	}()

	if schedule := r.config.Sync.Schedule; schedule != "" {
		scheduler, err := tasks.NewScheduler(schedule, runner, r.logger)
		if err != nil {
			return err
		}
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	covers := catalog.NewCoverCache(repositories.NewAlbumRepository(db), lookup, r.logger)
	router := server.NewRouter(runner, covers, r.logger)

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}
	r.logger.Info("server listening", "addr", addr)
	return server.New(addr, router, r.logger).Serve(ctx)
}
