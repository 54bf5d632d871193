package tasks

import (
	"fmt"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/sheets"
)

// ProgressUpdate represents a progress event during a sync run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase; 0 when unknown
	Tab     string // Tab being processed, if any
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Phase of a sync run as seen by progress listeners.
type Phase int

const (
	Fetching Phase = iota
	Processing
	TabFailed
	Finalizing
	Completed
	Failed
	Cancelled
)

func (p Phase) String() string {
	switch p {
	case Fetching:
		return "fetching"
	case Processing:
		return "processing"
	case TabFailed:
		return "tab_failed"
	case Finalizing:
		return "finalizing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return ""
	}
}

// Done reports whether no further updates follow p.
func (p Phase) Done() bool {
	return p == Completed || p == Failed || p == Cancelled
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func fetchingUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   Fetching,
		Message: "Fetching albums from the release spreadsheet...",
	}
}

func tabsFoundUpdate(tabs []sheets.TabDescriptor) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Fetching,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d release tabs", len(tabs)),
		Data:    tabs,
	}
}

func tabUpdate(step, total int, tab sheets.TabDescriptor) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Processing,
		Step:    step,
		Total:   total,
		Tab:     tab.Label,
		Message: tabMessage(step, total, tab),
	}
}

func rowsUpdate(op *models.SyncOperation) ProgressUpdate {
	total := 0
	if op.TotalAlbums != nil {
		total = *op.TotalAlbums
	}
	return ProgressUpdate{
		Phase:   Processing,
		Step:    op.AlbumsProcessed,
		Total:   total,
		Tab:     op.CurrentTab,
		Message: op.StageMessage,
	}
}

func tabFailedUpdate(step, total int, failure TabFailure) ProgressUpdate {
	return ProgressUpdate{
		Phase:   TabFailed,
		Step:    step,
		Total:   total,
		Tab:     failure.Tab,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %s", step, total, failure.Tab, failure.Message),
		Data:    failure,
	}
}

func finalizingUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   Finalizing,
		Message: "Finalizing synchronization...",
	}
}

func doneUpdate(op *models.SyncOperation) ProgressUpdate {
	phase := Completed
	switch op.Status {
	case models.StatusFailed:
		phase = Failed
	case models.StatusCancelled:
		phase = Cancelled
	}

	msg := op.DisplayStatus()
	if op.ErrorMessage != "" {
		msg = fmt.Sprintf("%s (%s)", msg, op.ErrorMessage)
	}

	snapshot := *op
	return ProgressUpdate{
		Phase:   phase,
		Step:    op.AlbumsProcessed,
		Total:   op.AlbumsProcessed,
		Message: msg,
		Data:    &snapshot,
	}
}

func tabMessage(step, total int, tab sheets.TabDescriptor) string {
	return fmt.Sprintf("Processing tab %s (%d of %d)...", tab.Label, step, total)
}
