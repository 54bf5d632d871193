package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/shared"
)

var _ models.Repository[*models.Genre] = (*GenreRepository)(nil)

// GenreRepository implements [models.Repository] for [models.Genre].
//
// Names are unique without regard to case; a conflicting insert returns [shared.ErrConflict]
// so resolvers can re-fetch the winning row.
type GenreRepository struct {
	db Querier
}

// NewGenreRepository creates a new [GenreRepository] with the given database connection
func NewGenreRepository(db Querier) *GenreRepository {
	return &GenreRepository{db: db}
}

const genreColumns = `id, name, slug, is_ignored, canonical_id, created_at, updated_at`

// Create inserts a new genre with a generated ID
func (r *GenreRepository) Create(genre *models.Genre) error {
	genre.SetID(shared.GenerateID())

	if err := genre.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO genres (id, name, slug, is_ignored, canonical_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		genre.ID(),
		genre.Name,
		genre.Slug,
		genre.IsIgnored,
		nullString(genre.CanonicalID),
		genre.CreatedAt(),
		genre.UpdatedAt(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: genre %q", shared.ErrConflict, genre.Name)
		}
		return storageErr("failed to insert genre", err)
	}

	return nil
}

// Get retrieves a genre by ID
func (r *GenreRepository) Get(id string) (*models.Genre, error) {
	query := `SELECT ` + genreColumns + ` FROM genres WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByName retrieves a genre by name, ignoring case
func (r *GenreRepository) GetByName(name string) (*models.Genre, error) {
	query := `SELECT ` + genreColumns + ` FROM genres WHERE name = ? COLLATE NOCASE`
	return r.scanOne(r.db.QueryRow(query, name))
}

// Update modifies name, slug, visibility and alias target of an existing genre.
//
// An alias may only point at a genre that is not itself an alias, and a genre
// that other genres alias cannot become an alias.
func (r *GenreRepository) Update(genre *models.Genre) error {
	if err := genre.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if genre.CanonicalID != "" {
		target, err := r.Get(genre.CanonicalID)
		if err != nil {
			return fmt.Errorf("canonical genre: %w", err)
		}
		if target.IsAlias() {
			return fmt.Errorf("%w: cannot reference a genre that is itself an alias", models.ErrInvalidModel)
		}

		var aliases int
		if err := r.db.QueryRow(`SELECT COUNT(*) FROM genres WHERE canonical_id = ?`, genre.ID()).Scan(&aliases); err != nil {
			return storageErr("failed to count aliases", err)
		}
		if aliases > 0 {
			return fmt.Errorf("%w: genre %q is the canonical genre of %d aliases", models.ErrInvalidModel, genre.Name, aliases)
		}
	}

	now := time.Now().UTC()
	genre.SetUpdatedAt(now)

	query := `
		UPDATE genres
		SET name = ?, slug = ?, is_ignored = ?, canonical_id = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, genre.Name, genre.Slug, genre.IsIgnored, nullString(genre.CanonicalID), now, genre.ID())
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: genre %q", shared.ErrConflict, genre.Name)
		}
		return storageErr("failed to update genre", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr("failed to get affected rows", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: genre %s", shared.ErrNotFound, genre.ID())
	}

	return nil
}

// Delete removes a genre; album links are removed by cascade and aliases fall back to standalone genres
func (r *GenreRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM genres WHERE id = ?`, id)
	if err != nil {
		return storageErr("failed to delete genre", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr("failed to get affected rows", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: genre %s", shared.ErrNotFound, id)
	}

	return nil
}

// List retrieves all genres ordered by name.
//
// Supported criteria: "ignored" (bool) filters on visibility, "aliases" (bool) filters on alias status.
func (r *GenreRepository) List(criteria map[string]any) ([]*models.Genre, error) {
	query := `SELECT ` + genreColumns + ` FROM genres WHERE 1 = 1`
	args := []any{}

	if ignored, ok := criteria["ignored"].(bool); ok {
		query += " AND is_ignored = ?"
		args = append(args, ignored)
	}

	if aliases, ok := criteria["aliases"].(bool); ok {
		if aliases {
			query += " AND canonical_id IS NOT NULL"
		} else {
			query += " AND canonical_id IS NULL"
		}
	}

	query += " ORDER BY name COLLATE NOCASE ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, storageErr("failed to query genres", err)
	}
	defer rows.Close()

	var genres []*models.Genre
	for rows.Next() {
		genre, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		genres = append(genres, genre)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("row iteration error", err)
	}

	return genres, nil
}

// Count returns the number of genres
func (r *GenreRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM genres`).Scan(&n); err != nil {
		return 0, storageErr("failed to count genres", err)
	}
	return n, nil
}

// scanOne scans a single [sql.Row] into a [models.Genre]
func (r *GenreRepository) scanOne(row *sql.Row) (*models.Genre, error) {
	genre, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: genre", shared.ErrNotFound)
	}
	return genre, err
}

func (r *GenreRepository) scan(s scanner) (*models.Genre, error) {
	var (
		id          string
		name        string
		slug        string
		ignored     bool
		canonicalID sql.NullString
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := s.Scan(&id, &name, &slug, &ignored, &canonicalID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, storageErr("failed to scan genre", err)
	}

	genre := models.NewGenre(name, slug)
	genre.IsIgnored = ignored
	genre.CanonicalID = canonicalID.String
	genre.SetID(id)
	genre.SetCreatedAt(createdAt)
	genre.SetUpdatedAt(updatedAt)
	return genre, nil
}
