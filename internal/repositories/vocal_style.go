package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/shared"
)

// VocalStyleRepository persists [models.VocalStyle] rows.
type VocalStyleRepository struct {
	db Querier
}

// NewVocalStyleRepository creates a new [VocalStyleRepository] with the given database connection
func NewVocalStyleRepository(db Querier) *VocalStyleRepository {
	return &VocalStyleRepository{db: db}
}

const vocalStyleColumns = `id, name, slug, created_at, updated_at`

// Create inserts a new vocal style with a generated ID
func (r *VocalStyleRepository) Create(style *models.VocalStyle) error {
	style.SetID(shared.GenerateID())

	if err := style.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	_, err := r.db.Exec(
		`INSERT INTO vocal_styles (id, name, slug, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		style.ID(), style.Name, style.Slug, style.CreatedAt(), style.UpdatedAt(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: vocal style %q", shared.ErrConflict, style.Name)
		}
		return storageErr("failed to insert vocal style", err)
	}
	return nil
}

// Get retrieves a vocal style by ID
func (r *VocalStyleRepository) Get(id string) (*models.VocalStyle, error) {
	query := `SELECT ` + vocalStyleColumns + ` FROM vocal_styles WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByName retrieves a vocal style by name, ignoring case
func (r *VocalStyleRepository) GetByName(name string) (*models.VocalStyle, error) {
	query := `SELECT ` + vocalStyleColumns + ` FROM vocal_styles WHERE name = ? COLLATE NOCASE`
	return r.scanOne(r.db.QueryRow(query, name))
}

// List retrieves every vocal style ordered by name
func (r *VocalStyleRepository) List() ([]*models.VocalStyle, error) {
	rows, err := r.db.Query(`SELECT ` + vocalStyleColumns + ` FROM vocal_styles ORDER BY name COLLATE NOCASE ASC`)
	if err != nil {
		return nil, storageErr("failed to query vocal styles", err)
	}
	defer rows.Close()

	var styles []*models.VocalStyle
	for rows.Next() {
		style, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		styles = append(styles, style)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("row iteration error", err)
	}
	return styles, nil
}

func (r *VocalStyleRepository) scanOne(row *sql.Row) (*models.VocalStyle, error) {
	style, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: vocal style", shared.ErrNotFound)
	}
	return style, err
}

func (r *VocalStyleRepository) scan(s scanner) (*models.VocalStyle, error) {
	var (
		id, name, slug       string
		createdAt, updatedAt time.Time
	)

	err := s.Scan(&id, &name, &slug, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, storageErr("failed to scan vocal style", err)
	}

	style := models.NewVocalStyle(name, slug)
	style.SetID(id)
	style.SetCreatedAt(createdAt)
	style.SetUpdatedAt(updatedAt)
	return style, nil
}
