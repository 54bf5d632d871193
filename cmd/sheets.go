package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/progdb/internal/sheets"
)

// tabView is the JSON shape of one workbook tab.
type tabView struct {
	Label         string `json:"label"`
	RawLabel      string `json:"raw_label"`
	Position      int    `json:"position"`
	Year          *int   `json:"year"`
	InScope       bool   `json:"in_scope"`
	SyncOrder     *int   `json:"sync_order"`
	EstimatedRows int    `json:"estimated_rows"`
}

// SheetsTabs lists the workbook's tabs in the order a sync would process them.
func (r *Runner) SheetsTabs(ctx context.Context, cmd *cli.Command) error {
	src, err := r.source(ctx, cmd.String("file"))
	if err != nil {
		return err
	}

	wb, err := src.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer wb.Close()

	all := sheets.Enumerate(wb, r.logger)
	ordered := sheets.SortChronologically(sheets.Filter(all))

	views := make([]tabView, 0, len(all))
	for i, tab := range ordered {
		views = append(views, newTabView(tab, i+1))
	}
	if cmd.Bool("all") {
		for _, tab := range all {
			if !tab.InScope {
				views = append(views, newTabView(tab, 0))
			}
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(views, true)
	}

	r.writePlainHeader(fmt.Sprintf("%d release tabs (%d in workbook)", len(ordered), len(all)))
	for _, v := range views {
		order, year := "  -", "    "
		if v.SyncOrder != nil {
			order = fmt.Sprintf("%3d", *v.SyncOrder)
		}
		if v.Year != nil {
			year = fmt.Sprintf("%d", *v.Year)
		}
		scope := ""
		if !v.InScope {
			scope = "  (out of scope)"
		}
		r.writePlain("%s. %-32s %s  ~%d rows%s\n", order, v.Label, year, v.EstimatedRows, scope)
	}
	return nil
}

// newTabView describes tab; order 0 means the tab is not synced.
func newTabView(tab sheets.TabDescriptor, order int) tabView {
	v := tabView{
		Label:         tab.Label,
		RawLabel:      tab.RawLabel,
		Position:      tab.Position,
		InScope:       tab.InScope,
		EstimatedRows: tab.EstimatedRows,
	}
	if tab.HasYear {
		year := tab.Year
		v.Year = &year
	}
	if order > 0 {
		v.SyncOrder = &order
	}
	return v
}
