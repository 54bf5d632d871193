package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/shared"
)

// SyncRecordRepository persists write-once [models.SyncRecord] rows.
type SyncRecordRepository struct {
	db Querier
}

// NewSyncRecordRepository creates a new [SyncRecordRepository] with the given database connection
func NewSyncRecordRepository(db Querier) *SyncRecordRepository {
	return &SyncRecordRepository{db: db}
}

const syncRecordColumns = `id, sync_operation_id, synced_at, albums_created, albums_updated, albums_skipped,
	total_albums_in_catalog, success, error_message`

// Create inserts a new sync record with a generated ID
func (r *SyncRecordRepository) Create(rec *models.SyncRecord) error {
	rec.SetID(shared.GenerateID())

	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO sync_records (
			id, sync_operation_id, synced_at, albums_created, albums_updated, albums_skipped,
			total_albums_in_catalog, success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		rec.ID(),
		nullString(rec.SyncOperationID),
		rec.SyncedAt,
		rec.AlbumsCreated,
		rec.AlbumsUpdated,
		rec.AlbumsSkipped,
		rec.TotalAlbumsInCatalog,
		rec.Success,
		rec.ErrorMessage,
	)
	if err != nil {
		return storageErr("failed to insert sync record", err)
	}
	return nil
}

// List retrieves the most recent records first, at most limit of them (all when limit <= 0)
func (r *SyncRecordRepository) List(limit int) ([]*models.SyncRecord, error) {
	query := `SELECT ` + syncRecordColumns + ` FROM sync_records ORDER BY synced_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, storageErr("failed to query sync records", err)
	}
	defer rows.Close()

	var records []*models.SyncRecord
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("row iteration error", err)
	}
	return records, nil
}

// LastSuccessful retrieves the most recent successful record
func (r *SyncRecordRepository) LastSuccessful() (*models.SyncRecord, error) {
	row := r.db.QueryRow(`SELECT ` + syncRecordColumns + ` FROM sync_records WHERE success = 1 ORDER BY synced_at DESC, rowid DESC LIMIT 1`)
	rec, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: successful sync record", shared.ErrNotFound)
	}
	return rec, err
}

// ForOperation retrieves the record written for a sync operation
func (r *SyncRecordRepository) ForOperation(operationID string) (*models.SyncRecord, error) {
	row := r.db.QueryRow(`SELECT `+syncRecordColumns+` FROM sync_records WHERE sync_operation_id = ? ORDER BY synced_at DESC LIMIT 1`, operationID)
	rec, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: sync record for operation %s", shared.ErrNotFound, operationID)
	}
	return rec, err
}

func (r *SyncRecordRepository) scan(s scanner) (*models.SyncRecord, error) {
	var (
		id                        string
		operationID               sql.NullString
		syncedAt                  time.Time
		created, updated, skipped int
		total                     int
		success                   bool
		errMsg                    string
	)

	err := s.Scan(&id, &operationID, &syncedAt, &created, &updated, &skipped, &total, &success, &errMsg)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, storageErr("failed to scan sync record", err)
	}

	rec := models.NewSyncRecord(operationID.String)
	rec.SetID(id)
	rec.SyncedAt = syncedAt
	rec.SetCreatedAt(syncedAt)
	rec.SetUpdatedAt(syncedAt)
	rec.AlbumsCreated = created
	rec.AlbumsUpdated = updated
	rec.AlbumsSkipped = skipped
	rec.TotalAlbumsInCatalog = total
	rec.Success = success
	rec.ErrorMessage = errMsg
	return rec, nil
}
