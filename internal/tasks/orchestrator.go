package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/progdb/internal/catalog"
	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/repositories"
	"github.com/desertthunder/progdb/internal/sheets"
)

// DefaultProgressInterval is the number of rows between persisted progress writes.
const DefaultProgressInterval = 5

// TabFailure records a tab skipped after a fault.
type TabFailure struct {
	Tab      string
	Category Category
	Message  string
}

// RowFailure records a row whose import failed.
type RowFailure struct {
	Tab     string
	Row     int
	Album   string
	Message string
}

// RunResult summarizes one orchestrated run.
type RunResult struct {
	Operation     *models.SyncOperation
	Record        *models.SyncRecord
	Created       int
	Updated       int
	Skipped       int
	Failed        int
	TabsCompleted int
	FailedTabs    []TabFailure
	FailedRows    []RowFailure
}

// Orchestrator runs the sync protocol for one [models.SyncOperation] at a time.
//
// It is the only writer of the operation's progress fields. Cancellation is observed through the
// store before each tab and once more after the tab loop.
type Orchestrator struct {
	source           sheets.Source
	importer         *catalog.Importer
	ops              *repositories.SyncOperationRepository
	records          *repositories.SyncRecordRepository
	albums           *repositories.AlbumRepository
	progressInterval int
	logger           *log.Logger
}

// OrchestratorOption customizes an [Orchestrator].
type OrchestratorOption func(*Orchestrator)

// WithProgressInterval sets how many rows pass between progress writes. Values below 1 are ignored.
func WithProgressInterval(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.progressInterval = n
		}
	}
}

// WithImporter replaces the default just-in-time importer.
func WithImporter(imp *catalog.Importer) OrchestratorOption {
	return func(o *Orchestrator) {
		if imp != nil {
			o.importer = imp
		}
	}
}

// NewOrchestrator creates an [Orchestrator] reading workbooks from source.
func NewOrchestrator(db *sql.DB, source sheets.Source, logger *log.Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	o := &Orchestrator{
		source:           source,
		ops:              repositories.NewSyncOperationRepository(db),
		records:          repositories.NewSyncRecordRepository(db),
		albums:           repositories.NewAlbumRepository(db),
		progressInterval: DefaultProgressInterval,
		logger:           logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.importer == nil {
		o.importer = catalog.NewImporter(db, logger)
	}
	return o
}

// run carries the mutable state of one execution.
type run struct {
	op       *models.SyncOperation
	result   *RunResult
	progress chan<- ProgressUpdate
	logger   *log.Logger
}

// Run executes the pending operation with the given id to a terminal state.
//
// Faults are recorded on the operation rather than returned; the returned error is reserved for
// failures to read or write the operation itself. A run cancelled before it started returns the
// cancelled operation and no record.
func (o *Orchestrator) Run(ctx context.Context, opID string, progress chan<- ProgressUpdate) (*RunResult, error) {
	op, err := o.ops.Get(opID)
	if err != nil {
		return nil, err
	}

	r := &run{
		op:       op,
		result:   &RunResult{Operation: op},
		progress: progress,
		logger:   o.logger.With("run", op.ID()),
	}

	op.Stage = models.StageFetching
	op.StageMessage = fetchingUpdate().Message
	started, err := o.ops.MarkRunning(op)
	if err != nil {
		return nil, err
	}
	if !started {
		current, err := o.ops.Get(opID)
		if err != nil {
			return nil, err
		}
		r.logger.Warn("sync operation is no longer pending", "status", current.Status)
		r.result.Operation = current
		return r.result, nil
	}

	r.logger.Info("sync started", "origin", op.CreatedBy)
	sendProgress(progress, fetchingUpdate())

	wb, tabs, err := o.open(ctx, r)
	if err != nil {
		return o.fail(r, err)
	}
	defer wb.Close()

	outcome, err := o.processTabs(ctx, r, wb, tabs)
	if err != nil {
		return o.fail(r, err)
	}

	op.CurrentTab = ""
	op.Stage = models.StageFinalizing
	op.StageMessage = finalizingUpdate().Message
	if err := o.ops.SaveProgress(op); err != nil {
		return o.fail(r, err)
	}
	sendProgress(progress, finalizingUpdate())

	cancelled := outcome.cancelled
	if !cancelled {
		if cancelled, err = o.isCancelled(op); err != nil {
			return o.fail(r, err)
		}
	}
	if cancelled {
		return o.cancel(r)
	}

	return o.complete(r, outcome.fatal)
}

// open fetches the workbook and returns its in-scope tabs in processing order.
func (o *Orchestrator) open(ctx context.Context, r *run) (sheets.Workbook, []sheets.TabDescriptor, error) {
	wb, err := o.source.Open(ctx)
	if err != nil {
		return nil, nil, err
	}

	tabs := sheets.SortChronologically(sheets.Filter(sheets.Enumerate(wb, r.logger)))
	if len(tabs) == 0 {
		wb.Close()
		return nil, nil, ErrNoTabs
	}

	labels := make([]string, len(tabs))
	for i, t := range tabs {
		labels[i] = t.Label
	}
	r.logger.Info("release tabs found", "count", len(tabs), "tabs", strings.Join(labels, ", "))
	sendProgress(r.progress, tabsFoundUpdate(tabs))
	return wb, tabs, nil
}

// loopOutcome is how the tab loop ended.
type loopOutcome struct {
	fatal     error // fault that aborted the loop
	cancelled bool
}

// processTabs runs the tab loop. A non-nil error means the store could not be used.
func (o *Orchestrator) processTabs(ctx context.Context, r *run, wb sheets.Workbook, tabs []sheets.TabDescriptor) (loopOutcome, error) {
	op := r.op

	// Seeded from tab estimates; each estimate is swapped for the exact count once extracted.
	total := 0
	for _, tab := range tabs {
		total += max(tab.EstimatedRows, 0)
	}
	op.TotalAlbums = &total

	for i, tab := range tabs {
		cancelled, err := o.isCancelled(op)
		if err != nil {
			return loopOutcome{}, err
		}
		if cancelled {
			r.logger.Info("sync cancelled before tab", "tab", tab.Label)
			return loopOutcome{cancelled: true}, nil
		}

		op.Stage = models.StageProcessing
		op.CurrentTab = tab.Label
		op.StageMessage = tabMessage(i+1, len(tabs), tab)
		if err := o.ops.SaveProgress(op); err != nil {
			return loopOutcome{}, err
		}
		sendProgress(r.progress, tabUpdate(i+1, len(tabs), tab))

		year := 0
		if tab.HasYear {
			year = tab.Year
		}
		rows, err := sheets.FetchAlbumsFromTab(wb, tab.RawLabel, year, r.logger)
		if err != nil {
			d := Classify(err)
			if d.Action == Abort {
				r.logger.Error("tab fault aborted the run", "tab", tab.Label, "category", d.Category, "error", err)
				return loopOutcome{fatal: err}, nil
			}

			total -= max(tab.EstimatedRows, 0)
			failure := TabFailure{Tab: tab.Label, Category: d.Category, Message: d.Message}
			r.result.FailedTabs = append(r.result.FailedTabs, failure)
			r.logger.Warn("skipping tab", "tab", tab.Label, "category", d.Category, "error", err)
			sendProgress(r.progress, tabFailedUpdate(i+1, len(tabs), failure))
			continue
		}

		total += len(rows) - max(tab.EstimatedRows, 0)

		if fatal := o.processRows(ctx, r, tab, rows); fatal != nil {
			return loopOutcome{fatal: fatal}, nil
		}
		r.result.TabsCompleted++
	}

	return loopOutcome{}, nil
}

// processRows imports one tab's rows. Row faults are counted; only a shutdown is returned.
func (o *Orchestrator) processRows(ctx context.Context, r *run, tab sheets.TabDescriptor, rows []sheets.CandidateRow) error {
	op := r.op
	res := r.result

	for i, row := range rows {
		if err := o.processRow(ctx, r, row); err != nil {
			return err
		}

		op.AlbumsProcessed++
		if op.AlbumsProcessed%o.progressInterval == 0 || i == len(rows)-1 {
			op.StageMessage = fmt.Sprintf("Syncing album %d of %d...", op.AlbumsProcessed, *op.TotalAlbums)
			if err := o.ops.SaveProgress(op); err != nil {
				r.logger.Warn("failed to save progress", "error", err)
			}
			sendProgress(r.progress, rowsUpdate(op))
		}
	}

	r.logger.Info("tab processed", "tab", tab.Label, "rows", len(rows),
		"created", res.Created, "updated", res.Updated, "skipped", res.Skipped, "failed", res.Failed)
	return nil
}

func (o *Orchestrator) processRow(ctx context.Context, r *run, row sheets.CandidateRow) error {
	res := r.result

	exists, err := o.albums.ExistsBySpotifyID(row.SpotifyID)
	if err == nil && exists {
		r.logger.Debug("album already in catalog, skipping", "album", row.SpotifyID, "tab", row.Tab)
		res.Skipped++
		return nil
	}

	var imported catalog.ImportResult
	if err == nil {
		imported, err = o.importer.ImportRow(ctx, row)
	}
	if err != nil {
		d := ClassifyRow(err)
		if d.Action == Abort {
			return err
		}
		r.logger.Error("failed to import album",
			"tab", row.Tab, "row", row.Row, "artist", row.Artist, "album", row.Album, "error", err)
		res.Failed++
		res.FailedRows = append(res.FailedRows, RowFailure{Tab: row.Tab, Row: row.Row, Album: row.Album, Message: d.Message})
		return nil
	}

	if imported.Created {
		res.Created++
	} else {
		res.Updated++
	}
	return nil
}

func (o *Orchestrator) isCancelled(op *models.SyncOperation) (bool, error) {
	status, err := o.ops.Status(op.ID())
	if err != nil {
		return false, err
	}
	return status == models.StatusCancelled, nil
}

// complete writes the summary record and moves the operation to completed, or to failed when
// nothing succeeded.
func (o *Orchestrator) complete(r *run, fatal error) (*RunResult, error) {
	op, res := r.op, r.result
	succeeded := res.Created + res.Updated + res.Skipped
	problems := failureNotes(res, fatal)

	rec := models.NewSyncRecord(op.ID())
	rec.AlbumsCreated = res.Created
	rec.AlbumsUpdated = res.Updated
	rec.AlbumsSkipped = res.Skipped + res.Failed

	switch {
	case len(problems) == 0:
		op.Status = models.StatusCompleted
		op.StageMessage = fmt.Sprintf("Sync complete! Processed %d albums (%d created, %d updated, %d skipped)",
			op.AlbumsProcessed, res.Created, res.Updated, res.Skipped)
		rec.Success = true
	case succeeded > 0:
		op.Status = models.StatusCompleted
		op.StageMessage = "Sync completed with warnings"
		op.ErrorMessage = fmt.Sprintf("Warning: %d of %d albums synced successfully. %s",
			succeeded, op.AlbumsProcessed, strings.Join(problems, " "))
		rec.ErrorMessage = "Partial failure: " + strings.Join(problems, " ")
	default:
		op.Status = models.StatusFailed
		op.StageMessage = "Sync failed"
		if fatal != nil {
			op.ErrorMessage = ClassifyRun(fatal).Message
		} else {
			op.ErrorMessage = "No albums could be synced. " + strings.Join(problems, " ")
		}
		rec.ErrorMessage = op.ErrorMessage
	}

	o.finish(r, rec)
	return res, nil
}

// cancel records the partial progress of a run that observed its cancellation.
func (o *Orchestrator) cancel(r *run) (*RunResult, error) {
	op, res := r.op, r.result

	rec := models.NewSyncRecord(op.ID())
	rec.AlbumsCreated = res.Created
	rec.AlbumsUpdated = res.Updated
	rec.AlbumsSkipped = res.Skipped + res.Failed
	rec.ErrorMessage = "Cancelled by user"
	o.writeRecord(r, rec)

	op.StageMessage = fmt.Sprintf("Sync cancelled after processing %d albums", op.AlbumsProcessed)
	if err := o.ops.SaveCancelled(op); err != nil {
		r.logger.Error("failed to save cancelled sync", "error", err)
	}

	r.logger.Info("sync cancelled", "processed", op.AlbumsProcessed, "created", res.Created)
	sendProgress(r.progress, doneUpdate(op))
	return res, nil
}

// fail moves the run to failed with a categorized message and writes a best-effort record.
func (o *Orchestrator) fail(r *run, cause error) (*RunResult, error) {
	op, res := r.op, r.result
	d := ClassifyRun(cause)
	r.logger.Error("sync failed", "category", d.Category, "error", cause)

	op.Status = models.StatusFailed
	op.StageMessage = "Sync failed"
	op.ErrorMessage = d.Message

	rec := models.NewSyncRecord(op.ID())
	rec.AlbumsCreated = res.Created
	rec.AlbumsUpdated = res.Updated
	rec.AlbumsSkipped = res.Skipped + res.Failed
	rec.ErrorMessage = d.Message

	o.finish(r, rec)
	return res, nil
}

// finish persists the record, then the terminal status. A run cancelled in between keeps its cancelled status.
func (o *Orchestrator) finish(r *run, rec *models.SyncRecord) {
	op := r.op
	o.writeRecord(r, rec)

	ok, err := o.ops.Finish(op)
	switch {
	case err != nil:
		r.logger.Error("failed to finish sync operation", "error", err)
	case !ok:
		r.logger.Warn("sync operation left the active states before finishing", "wanted", op.Status)
		if current, err := o.ops.Get(op.ID()); err == nil {
			*op = *current
		}
	}

	r.logger.Info("sync finished", "status", op.Status,
		"created", r.result.Created, "updated", r.result.Updated,
		"skipped", r.result.Skipped, "failed", r.result.Failed, "failed_tabs", len(r.result.FailedTabs))
	sendProgress(r.progress, doneUpdate(op))
}

func (o *Orchestrator) writeRecord(r *run, rec *models.SyncRecord) {
	if total, err := o.albums.Count(); err == nil {
		rec.TotalAlbumsInCatalog = total
	} else {
		r.logger.Warn("failed to count catalog albums", "error", err)
	}

	if err := o.records.Create(rec); err != nil {
		r.logger.Error("failed to write sync record", "error", err)
		return
	}
	r.result.Record = rec
}

// failureNotes lists the user-facing failure notes of a run, one sentence each.
func failureNotes(res *RunResult, fatal error) []string {
	var notes []string
	for _, f := range res.FailedTabs {
		notes = append(notes, fmt.Sprintf("Tab %q failed: %s", f.Tab, f.Message))
	}
	if res.Failed > 0 {
		notes = append(notes, fmt.Sprintf("%d albums failed to import.", res.Failed))
	}
	if fatal != nil {
		notes = append(notes, "Stopped early: "+ClassifyRun(fatal).Message)
	}
	return notes
}
