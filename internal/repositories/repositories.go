package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/desertthunder/progdb/internal/shared"
)

// Querier is the subset of *sql.DB and *sql.Tx used by repositories.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Store groups the catalog repositories over one [Querier].
type Store struct {
	Artists     *ArtistRepository
	Genres      *GenreRepository
	VocalStyles *VocalStyleRepository
	Albums      *AlbumRepository
}

// NewStore creates a [Store] whose repositories all share q.
func NewStore(q Querier) *Store {
	return &Store{
		Artists:     NewArtistRepository(q),
		Genres:      NewGenreRepository(q),
		VocalStyles: NewVocalStyleRepository(q),
		Albums:      NewAlbumRepository(q),
	}
}

// RunInTx runs fn against a [Store] bound to a new transaction, committing when fn returns nil.
func RunInTx(db *sql.DB, fn func(s *Store) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", shared.ErrStorage, err)
	}
	defer tx.Rollback()

	if err := fn(NewStore(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", shared.ErrStorage, err)
	}
	return nil
}

// NextSequence increments and returns the next sequence number for the given table.
//
// Sequence numbers provide human-readable ordering for entities (e.g. album #42).
// When q is a transaction the increment is part of it; otherwise it gets its own.
func NextSequence(q Querier, table string) (int, error) {
	if db, ok := q.(*sql.DB); ok {
		tx, err := db.Begin()
		if err != nil {
			return 0, fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		seq, err := NextSequence(tx, table)
		if err != nil {
			return 0, err
		}
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("failed to commit sequence transaction: %w", err)
		}
		return seq, nil
	}

	sequenceTable := table + "_sequence"

	_, err := q.Exec(fmt.Sprintf("UPDATE %s SET value = value + 1 WHERE id = 1", sequenceTable))
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	var sequence int
	err = q.QueryRow(fmt.Sprintf("SELECT value FROM %s WHERE id = 1", sequenceTable)).Scan(&sequence)
	if err != nil {
		return 0, fmt.Errorf("failed to get sequence value: %w", err)
	}

	return sequence, nil
}

// IsUniqueViolation reports whether err comes from a UNIQUE or PRIMARY KEY constraint.
func IsUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// storageErr wraps a driver failure so callers can classify it with [shared.ErrStorage].
func storageErr(action string, err error) error {
	return fmt.Errorf("%w: %s: %v", shared.ErrStorage, action, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	i := int(ni.Int64)
	return &i
}
