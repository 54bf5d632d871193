package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/progdb/internal/shared"
	"github.com/desertthunder/progdb/internal/sheets"
	"github.com/desertthunder/progdb/internal/tasks"
)

// Import merges the spreadsheet's albums into the catalog without recording a sync operation.
//
// With --sync it behaves like 'sync run' instead.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("sync") {
		return r.runSync(ctx, cmd.String("file"))
	}

	limit := int(cmd.Int("limit"))
	if limit < 0 {
		return fmt.Errorf("%w: --limit cannot be negative", shared.ErrInvalidFlag)
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	src, err := r.source(ctx, cmd.String("file"))
	if err != nil {
		return err
	}
	imp, err := r.importer(db)
	if err != nil {
		return err
	}

	r.logger.Info("fetching workbook")
	wb, err := src.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer wb.Close()

	tabs := sheets.SortChronologically(sheets.Filter(sheets.Enumerate(wb, r.logger)))
	if len(tabs) == 0 {
		return tasks.ErrNoTabs
	}

	var rows []sheets.CandidateRow
	for _, tab := range tabs {
		year := 0
		if tab.HasYear {
			year = tab.Year
		}

		tabRows, err := sheets.FetchAlbumsFromTab(wb, tab.RawLabel, year, r.logger)
		if err != nil {
			d := tasks.Classify(err)
			if d.Action == tasks.Abort {
				return err
			}
			r.logger.Warn("skipping tab", "tab", tab.Label, "category", d.Category, "error", err)
			r.writePlain("✗ %s: %s\n", tab.Label, d.Message)
			continue
		}

		rows = append(rows, tabRows...)
		if limit > 0 && len(rows) >= limit {
			rows = rows[:limit]
			break
		}
	}

	r.logger.Info("importing albums", "rows", len(rows), "mode", imp.Mode())
	sum, err := imp.ImportAll(ctx, rows, cmd.Bool("skip-existing"))
	if err != nil {
		return fmt.Errorf("import stopped: %w", err)
	}

	r.writePlain("✓ Imported %d rows from %d tabs\n", len(rows), len(tabs))
	r.writePlain("Created: %d  Updated: %d  Skipped: %d  Failed: %d\n", sum.Created, sum.Updated, sum.Skipped, sum.Failed)
	return nil
}
