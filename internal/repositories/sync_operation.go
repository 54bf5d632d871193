package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/shared"
)

// syncLockKey scopes the single-active-run index. Every run shares it.
const syncLockKey = "sync"

// SyncOperationRepository persists [models.SyncOperation] rows.
//
// Only the worker executing a run writes its progress; readers poll with [SyncOperationRepository.Get]
// and [SyncOperationRepository.Latest]. Status transitions are conditional updates so a concurrent
// cancel is never overwritten by a progress write.
type SyncOperationRepository struct {
	db Querier
}

// NewSyncOperationRepository creates a new [SyncOperationRepository] with the given database connection
func NewSyncOperationRepository(db Querier) *SyncOperationRepository {
	return &SyncOperationRepository{db: db}
}

const syncOperationColumns = `id, status, stage, stage_message, albums_processed, total_albums, current_tab,
	error_message, created_by, started_at, completed_at, created_at, updated_at`

// CreateIfNoneActive inserts op in the pending state unless a pending or running operation exists.
//
// The existence check and the insert are a single statement, and the partial unique index on
// non-terminal rows rejects any insert that slips past it. Both cases return [shared.ErrSyncActive].
func (r *SyncOperationRepository) CreateIfNoneActive(op *models.SyncOperation) error {
	op.SetID(shared.GenerateID())
	op.Status = models.StatusPending

	if err := op.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO sync_operations (id, status, stage, stage_message, created_by, lock_key, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM sync_operations WHERE lock_key = ? AND status IN ('pending', 'running')
		)
	`

	result, err := r.db.Exec(query,
		op.ID(),
		op.Status,
		op.Stage,
		op.StageMessage,
		op.CreatedBy,
		syncLockKey,
		op.CreatedAt(),
		op.UpdatedAt(),
		syncLockKey,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrSyncActive
		}
		return storageErr("failed to insert sync operation", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr("failed to get affected rows", err)
	}
	if rows == 0 {
		return shared.ErrSyncActive
	}
	return nil
}

// Get retrieves a sync operation by ID
func (r *SyncOperationRepository) Get(id string) (*models.SyncOperation, error) {
	return r.scanOne(r.db.QueryRow(`SELECT `+syncOperationColumns+` FROM sync_operations WHERE id = ?`, id))
}

// GetActive retrieves the pending or running operation, or [shared.ErrNoActiveSync]
func (r *SyncOperationRepository) GetActive() (*models.SyncOperation, error) {
	op, err := r.scanOne(r.db.QueryRow(
		`SELECT `+syncOperationColumns+` FROM sync_operations
		 WHERE lock_key = ? AND status IN ('pending', 'running')
		 ORDER BY created_at DESC LIMIT 1`,
		syncLockKey,
	))
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.ErrNoActiveSync
	}
	return op, err
}

// Latest retrieves the most recently created operation regardless of status
func (r *SyncOperationRepository) Latest() (*models.SyncOperation, error) {
	return r.scanOne(r.db.QueryRow(
		`SELECT ` + syncOperationColumns + ` FROM sync_operations ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	))
}

// Status reads only the status column; this is the cancellation checkpoint read
func (r *SyncOperationRepository) Status(id string) (models.SyncStatus, error) {
	var status string
	err := r.db.QueryRow(`SELECT status FROM sync_operations WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: sync operation %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return "", storageErr("failed to read sync status", err)
	}
	return models.SyncStatus(status), nil
}

// MarkRunning moves a pending operation to running and stamps its start time.
//
// Returns false when the operation is no longer pending (for example, cancelled before it started).
func (r *SyncOperationRepository) MarkRunning(op *models.SyncOperation) (bool, error) {
	now := time.Now().UTC()

	result, err := r.db.Exec(
		`UPDATE sync_operations SET status = 'running', stage = ?, stage_message = ?, started_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		op.Stage, op.StageMessage, now, now, op.ID(),
	)
	if err != nil {
		return false, storageErr("failed to start sync operation", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, storageErr("failed to get affected rows", err)
	}
	if rows == 0 {
		return false, nil
	}

	op.Status = models.StatusRunning
	op.StartedAt = &now
	op.SetUpdatedAt(now)
	return true, nil
}

// SaveProgress writes the progress fields of op. The status column is never touched.
func (r *SyncOperationRepository) SaveProgress(op *models.SyncOperation) error {
	if err := op.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	op.SetUpdatedAt(now)

	_, err := r.db.Exec(
		`UPDATE sync_operations
		 SET stage = ?, stage_message = ?, albums_processed = ?, total_albums = ?, current_tab = ?, updated_at = ?
		 WHERE id = ?`,
		op.Stage, op.StageMessage, op.AlbumsProcessed, nullInt(op.TotalAlbums), op.CurrentTab, now, op.ID(),
	)
	if err != nil {
		return storageErr("failed to save sync progress", err)
	}
	return nil
}

// Finish moves an active operation to the terminal status carried by op.
//
// Returns false when the operation already left the active states, in which case nothing is written.
func (r *SyncOperationRepository) Finish(op *models.SyncOperation) (bool, error) {
	if !op.Status.IsTerminal() {
		return false, fmt.Errorf("%w: %s is not a terminal status", shared.ErrInvalidInput, op.Status)
	}
	if err := op.Validate(); err != nil {
		return false, fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	if op.CompletedAt == nil {
		op.CompletedAt = &now
	}
	op.SetUpdatedAt(now)

	result, err := r.db.Exec(
		`UPDATE sync_operations
		 SET status = ?, stage = ?, stage_message = ?, albums_processed = ?, total_albums = ?, current_tab = '',
		     error_message = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN ('pending', 'running')`,
		op.Status, op.Stage, op.StageMessage, op.AlbumsProcessed, nullInt(op.TotalAlbums),
		op.ErrorMessage, nullTime(op.CompletedAt), now, op.ID(),
	)
	if err != nil {
		return false, storageErr("failed to finish sync operation", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, storageErr("failed to get affected rows", err)
	}
	op.CurrentTab = ""
	return rows > 0, nil
}

// SaveCancelled records the final state of a run that observed its own cancellation
func (r *SyncOperationRepository) SaveCancelled(op *models.SyncOperation) error {
	now := time.Now().UTC()
	op.Status = models.StatusCancelled
	op.CurrentTab = ""
	op.CompletedAt = &now
	op.SetUpdatedAt(now)

	_, err := r.db.Exec(
		`UPDATE sync_operations
		 SET stage = ?, stage_message = ?, albums_processed = ?, total_albums = ?, current_tab = '',
		     completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'cancelled'`,
		op.Stage, op.StageMessage, op.AlbumsProcessed, nullInt(op.TotalAlbums), now, now, op.ID(),
	)
	if err != nil {
		return storageErr("failed to save cancelled sync operation", err)
	}
	return nil
}

// CancelActive flips the active operation to cancelled and returns its id.
//
// The worker observes the change at its next checkpoint. Returns [shared.ErrNoActiveSync] when nothing is active.
func (r *SyncOperationRepository) CancelActive() (string, error) {
	op, err := r.GetActive()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	result, err := r.db.Exec(
		`UPDATE sync_operations SET status = 'cancelled', stage_message = ?, updated_at = ?
		 WHERE id = ? AND status IN ('pending', 'running')`,
		"Cancellation requested", now, op.ID(),
	)
	if err != nil {
		return "", storageErr("failed to cancel sync operation", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return "", storageErr("failed to get affected rows", err)
	}
	if rows == 0 {
		return "", shared.ErrNoActiveSync
	}
	return op.ID(), nil
}

// FailActive marks every pending or running operation as failed with message.
//
// Used at startup to release runs orphaned by a previous process.
func (r *SyncOperationRepository) FailActive(message string) (int, error) {
	now := time.Now().UTC()
	result, err := r.db.Exec(
		`UPDATE sync_operations
		 SET status = 'failed', stage_message = ?, error_message = ?, current_tab = '', completed_at = ?, updated_at = ?
		 WHERE status IN ('pending', 'running')`,
		message, message, now, now,
	)
	if err != nil {
		return 0, storageErr("failed to fail orphaned sync operations", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("failed to get affected rows", err)
	}
	return int(rows), nil
}

// scanOne scans a single [sql.Row] into a [models.SyncOperation]
func (r *SyncOperationRepository) scanOne(row *sql.Row) (*models.SyncOperation, error) {
	var (
		id, status, stage, message    string
		processed                     int
		total                         sql.NullInt64
		currentTab, errMsg, createdBy string
		startedAt, completedAt        sql.NullTime
		createdAt, updatedAt          time.Time
	)

	err := row.Scan(
		&id, &status, &stage, &message, &processed, &total, &currentTab,
		&errMsg, &createdBy, &startedAt, &completedAt, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: sync operation", shared.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("failed to scan sync operation", err)
	}

	op := models.NewSyncOperation(createdBy)
	op.SetID(id)
	op.Status = models.SyncStatus(status)
	op.Stage = models.SyncStage(stage)
	op.StageMessage = message
	op.AlbumsProcessed = processed
	op.TotalAlbums = intPtr(total)
	op.CurrentTab = currentTab
	op.ErrorMessage = errMsg
	op.StartedAt = timePtr(startedAt)
	op.CompletedAt = timePtr(completedAt)
	op.SetCreatedAt(createdAt)
	op.SetUpdatedAt(updatedAt)
	return op, nil
}
