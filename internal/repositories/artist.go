package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/shared"
)

// ArtistRepository persists [models.Artist] rows.
type ArtistRepository struct {
	db Querier
}

// NewArtistRepository creates a new [ArtistRepository] with the given database connection
func NewArtistRepository(db Querier) *ArtistRepository {
	return &ArtistRepository{db: db}
}

const artistColumns = `id, name, country, spotify_artist_id, created_at, updated_at`

// Create inserts a new artist with a generated ID
func (r *ArtistRepository) Create(artist *models.Artist) error {
	artist.SetID(shared.GenerateID())

	if err := artist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO artists (id, name, country, spotify_artist_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		artist.ID(),
		artist.Name,
		artist.Country,
		nullString(artist.SpotifyArtistID),
		artist.CreatedAt(),
		artist.UpdatedAt(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: artist %s", shared.ErrConflict, artist.SpotifyArtistID)
		}
		return storageErr("failed to insert artist", err)
	}

	return nil
}

// Get retrieves an artist by ID
func (r *ArtistRepository) Get(id string) (*models.Artist, error) {
	query := `SELECT ` + artistColumns + ` FROM artists WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetBySpotifyID retrieves the artist carrying the given Spotify artist id
func (r *ArtistRepository) GetBySpotifyID(spotifyID string) (*models.Artist, error) {
	query := `SELECT ` + artistColumns + ` FROM artists WHERE spotify_artist_id = ?`
	return r.scanOne(r.db.QueryRow(query, spotifyID))
}

// GetByName retrieves the oldest artist with exactly this name
func (r *ArtistRepository) GetByName(name string) (*models.Artist, error) {
	query := `SELECT ` + artistColumns + ` FROM artists WHERE name = ? ORDER BY created_at ASC LIMIT 1`
	return r.scanOne(r.db.QueryRow(query, name))
}

// GetUnclaimedByName retrieves the oldest artist named name that has no Spotify artist id yet.
func (r *ArtistRepository) GetUnclaimedByName(name string) (*models.Artist, error) {
	query := `SELECT ` + artistColumns + ` FROM artists
		WHERE name = ? AND (spotify_artist_id IS NULL OR spotify_artist_id = '')
		ORDER BY created_at ASC LIMIT 1`
	return r.scanOne(r.db.QueryRow(query, name))
}

// Update modifies an existing artist
func (r *ArtistRepository) Update(artist *models.Artist) error {
	if err := artist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	artist.SetUpdatedAt(now)

	query := `
		UPDATE artists
		SET name = ?, country = ?, spotify_artist_id = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, artist.Name, artist.Country, nullString(artist.SpotifyArtistID), now, artist.ID())
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: artist %s", shared.ErrConflict, artist.SpotifyArtistID)
		}
		return storageErr("failed to update artist", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr("failed to get affected rows", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: artist %s", shared.ErrNotFound, artist.ID())
	}

	return nil
}

// BackfillCountry sets the artist's country only when it is still blank.
//
// Returns true when the row changed.
func (r *ArtistRepository) BackfillCountry(id, country string) (bool, error) {
	if country == "" {
		return false, nil
	}

	result, err := r.db.Exec(
		`UPDATE artists SET country = ?, updated_at = ? WHERE id = ? AND country = ''`,
		country, time.Now().UTC(), id,
	)
	if err != nil {
		return false, storageErr("failed to backfill artist country", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, storageErr("failed to get affected rows", err)
	}
	return rows > 0, nil
}

// Count returns the number of artists
func (r *ArtistRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM artists`).Scan(&n); err != nil {
		return 0, storageErr("failed to count artists", err)
	}
	return n, nil
}

// scanOne scans a single [sql.Row] into a [models.Artist]
func (r *ArtistRepository) scanOne(row *sql.Row) (*models.Artist, error) {
	var (
		id        string
		name      string
		country   string
		spotifyID sql.NullString
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(&id, &name, &country, &spotifyID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: artist", shared.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("failed to scan artist", err)
	}

	artist := models.NewArtist(name, country)
	artist.SpotifyArtistID = spotifyID.String
	artist.SetID(id)
	artist.SetCreatedAt(createdAt)
	artist.SetUpdatedAt(updatedAt)
	return artist, nil
}
