package models

import (
	"fmt"
	"time"
)

// SyncStatus is the lifecycle state of a [SyncOperation].
type SyncStatus string

const (
	StatusPending   SyncStatus = "pending"
	StatusRunning   SyncStatus = "running"
	StatusCompleted SyncStatus = "completed"
	StatusFailed    SyncStatus = "failed"
	StatusCancelled SyncStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s SyncStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether s counts against the single active run.
func (s SyncStatus) IsActive() bool {
	return s == StatusPending || s == StatusRunning
}

func (s SyncStatus) Valid() bool {
	return s.IsActive() || s.IsTerminal()
}

// SyncStage is the sub-stage of a running [SyncOperation]; empty outside of running.
type SyncStage string

const (
	StageNone       SyncStage = ""
	StageFetching   SyncStage = "fetching"
	StageProcessing SyncStage = "processing"
	StageFinalizing SyncStage = "finalizing"
)

func (s SyncStage) rank() int {
	switch s {
	case StageFetching:
		return 1
	case StageProcessing:
		return 2
	case StageFinalizing:
		return 3
	default:
		return 0
	}
}

// Before reports whether s comes strictly before other in a run.
func (s SyncStage) Before(other SyncStage) bool {
	return s.rank() < other.rank()
}

// SyncOperation is the live record of one sync run.
//
// It is written only by the worker executing the run and polled by status readers.
type SyncOperation struct {
	record
	Status          SyncStatus
	Stage           SyncStage
	StageMessage    string
	AlbumsProcessed int
	TotalAlbums     *int
	CurrentTab      string
	ErrorMessage    string
	CreatedBy       string
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// NewSyncOperation creates an unsaved pending [SyncOperation] requested from origin.
func NewSyncOperation(origin string) *SyncOperation {
	return &SyncOperation{record: newRecord(), Status: StatusPending, CreatedBy: origin}
}

func (o *SyncOperation) IsActive() bool      { return o.Status.IsActive() }
func (o *SyncOperation) IsCancellable() bool { return o.Status.IsActive() }

// ProgressPercentage returns completion in [0, 100], or false when the total is unknown.
func (o *SyncOperation) ProgressPercentage() (int, bool) {
	if o.TotalAlbums == nil || *o.TotalAlbums <= 0 {
		return 0, false
	}
	pct := o.AlbumsProcessed * 100 / *o.TotalAlbums
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// Duration returns the elapsed run time, measured to now while the run is still going.
func (o *SyncOperation) Duration(now time.Time) (time.Duration, bool) {
	if o.StartedAt == nil {
		return 0, false
	}
	if o.CompletedAt != nil {
		return o.CompletedAt.Sub(*o.StartedAt), true
	}
	if o.Status == StatusRunning {
		return now.Sub(*o.StartedAt), true
	}
	return 0, false
}

// DisplayStatus returns the stage message when present and a formatted status otherwise.
func (o *SyncOperation) DisplayStatus() string {
	if o.StageMessage != "" {
		return o.StageMessage
	}
	return fmt.Sprintf("Status: %s", o.Status)
}

func (o *SyncOperation) Validate() error {
	if !o.Status.Valid() {
		return fmt.Errorf("%w: unknown sync status %q", ErrInvalidModel, o.Status)
	}
	if o.Stage != StageNone && o.Stage.rank() == 0 {
		return fmt.Errorf("%w: unknown sync stage %q", ErrInvalidModel, o.Stage)
	}
	if o.AlbumsProcessed < 0 {
		return fmt.Errorf("%w: albums processed cannot be negative", ErrInvalidModel)
	}
	if o.TotalAlbums != nil && *o.TotalAlbums < 0 {
		return fmt.Errorf("%w: total albums cannot be negative", ErrInvalidModel)
	}
	return nil
}

// SyncRecord is the write-once summary of a finished run.
type SyncRecord struct {
	record
	SyncOperationID      string
	SyncedAt             time.Time
	AlbumsCreated        int
	AlbumsUpdated        int
	AlbumsSkipped        int
	TotalAlbumsInCatalog int
	Success              bool
	ErrorMessage         string
}

// NewSyncRecord creates an unsaved [SyncRecord] for the given run.
func NewSyncRecord(operationID string) *SyncRecord {
	r := &SyncRecord{record: newRecord(), SyncOperationID: operationID}
	r.SyncedAt = r.CreatedAt()
	return r
}

func (r *SyncRecord) Validate() error {
	if r.AlbumsCreated < 0 || r.AlbumsUpdated < 0 || r.AlbumsSkipped < 0 || r.TotalAlbumsInCatalog < 0 {
		return fmt.Errorf("%w: sync record counts cannot be negative", ErrInvalidModel)
	}
	if r.SyncedAt.IsZero() {
		return fmt.Errorf("%w: sync record timestamp is required", ErrInvalidModel)
	}
	return nil
}
