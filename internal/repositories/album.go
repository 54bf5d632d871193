package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/shared"
)

var _ models.Repository[*models.Album] = (*AlbumRepository)(nil)

// AlbumRepository implements [models.Repository] for [models.Album].
//
// Albums are keyed by their Spotify album id. Sync-sourced fields are written by [AlbumRepository.Update];
// the cover and metadata caches have their own conditional writers so a sync pass never clobbers them.
type AlbumRepository struct {
	db Querier
}

// NewAlbumRepository creates a new [AlbumRepository] with the given database connection
func NewAlbumRepository(db Querier) *AlbumRepository {
	return &AlbumRepository{db: db}
}

const albumColumns = `id, sequence, spotify_album_id, title, artist_id, vocal_style_id, release_date,
	cover_art_url, cover_cached_at, spotify_url, spotify_metadata, metadata_cached_at,
	source_tab, imported_at, updated_at`

// Create inserts a new album with a generated ID and sequence number, then links its genres
func (r *AlbumRepository) Create(album *models.Album) error {
	album.SetID(shared.GenerateID())

	if err := album.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	seq, err := NextSequence(r.db, "albums")
	if err != nil {
		return storageErr("failed to get next sequence", err)
	}
	album.Sequence = seq

	query := `
		INSERT INTO albums (
			id, sequence, spotify_album_id, title, artist_id, vocal_style_id, release_date,
			cover_art_url, cover_cached_at, spotify_url, spotify_metadata, metadata_cached_at,
			source_tab, imported_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		album.ID(),
		album.Sequence,
		album.SpotifyAlbumID,
		album.Title,
		album.ArtistID,
		nullString(album.VocalStyleID),
		nullTime(album.ReleaseDate),
		album.CoverArtURL,
		nullTime(album.CoverCachedAt),
		album.SpotifyURL,
		nullString(string(album.SpotifyMetadata)),
		nullTime(album.MetadataCachedAt),
		album.SourceTab,
		album.CreatedAt(),
		album.UpdatedAt(),
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: album %s", shared.ErrConflict, album.SpotifyAlbumID)
		}
		return storageErr("failed to insert album", err)
	}

	if len(album.GenreIDs) > 0 {
		return r.SetGenres(album.ID(), album.GenreIDs)
	}
	return nil
}

// Get retrieves an album by ID along with its genre ids
func (r *AlbumRepository) Get(id string) (*models.Album, error) {
	album, err := r.scanOne(r.db.QueryRow(`SELECT `+albumColumns+` FROM albums WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	return r.withGenres(album)
}

// GetBySpotifyID retrieves an album by its Spotify album id along with its genre ids
func (r *AlbumRepository) GetBySpotifyID(spotifyID string) (*models.Album, error) {
	album, err := r.scanOne(r.db.QueryRow(`SELECT `+albumColumns+` FROM albums WHERE spotify_album_id = ?`, spotifyID))
	if err != nil {
		return nil, err
	}
	return r.withGenres(album)
}

// ExistsBySpotifyID reports whether an album with the given Spotify id is already in the catalog
func (r *AlbumRepository) ExistsBySpotifyID(spotifyID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM albums WHERE spotify_album_id = ?)`, spotifyID).Scan(&exists)
	if err != nil {
		return false, storageErr("failed to check album existence", err)
	}
	return exists, nil
}

// Update overwrites the sync-sourced fields of an existing album.
//
// Cover art and cached metadata are left untouched; use [AlbumRepository.UpdateCover],
// [AlbumRepository.UpdateMetadata] or [AlbumRepository.RefreshCache] for those.
func (r *AlbumRepository) Update(album *models.Album) error {
	if err := album.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	album.SetUpdatedAt(now)

	query := `
		UPDATE albums
		SET title = ?, artist_id = ?, vocal_style_id = ?, release_date = ?, spotify_url = ?, source_tab = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		album.Title,
		album.ArtistID,
		nullString(album.VocalStyleID),
		nullTime(album.ReleaseDate),
		album.SpotifyURL,
		album.SourceTab,
		now,
		album.ID(),
	)
	if err != nil {
		return storageErr("failed to update album", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr("failed to get affected rows", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: album %s", shared.ErrNotFound, album.ID())
	}

	return r.SetGenres(album.ID(), album.GenreIDs)
}

// UpdateCover stores a cover URL together with its cache timestamp, only if no cover is cached yet.
//
// Returns false when another writer cached a cover first.
func (r *AlbumRepository) UpdateCover(id, url string, at time.Time) (bool, error) {
	if url == "" {
		return false, fmt.Errorf("%w: cover URL is required", shared.ErrInvalidInput)
	}

	result, err := r.db.Exec(
		`UPDATE albums SET cover_art_url = ?, cover_cached_at = ?, updated_at = ? WHERE id = ? AND cover_cached_at IS NULL`,
		url, at, time.Now().UTC(), id,
	)
	if err != nil {
		return false, storageErr("failed to cache cover", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, storageErr("failed to get affected rows", err)
	}
	return rows > 0, nil
}

// UpdateMetadata stores a metadata blob together with its cache timestamp, only if none is cached yet
func (r *AlbumRepository) UpdateMetadata(id string, metadata json.RawMessage, at time.Time) (bool, error) {
	if len(metadata) == 0 {
		return false, fmt.Errorf("%w: metadata is required", shared.ErrInvalidInput)
	}

	result, err := r.db.Exec(
		`UPDATE albums SET spotify_metadata = ?, metadata_cached_at = ?, updated_at = ? WHERE id = ? AND metadata_cached_at IS NULL`,
		string(metadata), at, time.Now().UTC(), id,
	)
	if err != nil {
		return false, storageErr("failed to cache metadata", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, storageErr("failed to get affected rows", err)
	}
	return rows > 0, nil
}

// RefreshCache unconditionally overwrites the cover and metadata caches from album
func (r *AlbumRepository) RefreshCache(album *models.Album) error {
	if err := album.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	_, err := r.db.Exec(
		`UPDATE albums SET cover_art_url = ?, cover_cached_at = ?, spotify_metadata = ?, metadata_cached_at = ?, updated_at = ? WHERE id = ?`,
		album.CoverArtURL,
		nullTime(album.CoverCachedAt),
		nullString(string(album.SpotifyMetadata)),
		nullTime(album.MetadataCachedAt),
		time.Now().UTC(),
		album.ID(),
	)
	if err != nil {
		return storageErr("failed to refresh album cache", err)
	}
	return nil
}

// SetGenres replaces the album's genre set
func (r *AlbumRepository) SetGenres(albumID string, genreIDs []string) error {
	if _, err := r.db.Exec(`DELETE FROM album_genres WHERE album_id = ?`, albumID); err != nil {
		return storageErr("failed to clear album genres", err)
	}

	for _, genreID := range genreIDs {
		_, err := r.db.Exec(`INSERT OR IGNORE INTO album_genres (album_id, genre_id) VALUES (?, ?)`, albumID, genreID)
		if err != nil {
			return storageErr("failed to link album genre", err)
		}
	}
	return nil
}

// GenreIDs returns the ids of the genres linked to an album
func (r *AlbumRepository) GenreIDs(albumID string) ([]string, error) {
	rows, err := r.db.Query(
		`SELECT ag.genre_id FROM album_genres ag JOIN genres g ON g.id = ag.genre_id
		 WHERE ag.album_id = ? ORDER BY g.name COLLATE NOCASE`,
		albumID,
	)
	if err != nil {
		return nil, storageErr("failed to query album genres", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("failed to scan album genre", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("row iteration error", err)
	}
	return ids, nil
}

// GenreNames returns the display names of an album's genres: aliases resolve to their canonical
// genre and ignored genres are hidden.
func (r *AlbumRepository) GenreNames(albumID string) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT DISTINCT COALESCE(c.name, g.name) AS display
		FROM album_genres ag
		JOIN genres g ON g.id = ag.genre_id
		LEFT JOIN genres c ON c.id = g.canonical_id
		WHERE ag.album_id = ? AND COALESCE(c.is_ignored, g.is_ignored) = 0
		ORDER BY display COLLATE NOCASE
	`, albumID)
	if err != nil {
		return nil, storageErr("failed to query album genre names", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, storageErr("failed to scan genre name", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("row iteration error", err)
	}
	return names, nil
}

// Delete removes an album; its genre links go with it
func (r *AlbumRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM albums WHERE id = ?`, id)
	if err != nil {
		return storageErr("failed to delete album", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr("failed to get affected rows", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: album %s", shared.ErrNotFound, id)
	}
	return nil
}

// List retrieves albums newest release first; undated albums come last in sequence order.
//
// Supported criteria: "artist_id" (string), "genre_id" (string), "vocal_style_id" (string),
// "year" (int), "limit" (int), "offset" (int). Genre ids are not loaded.
func (r *AlbumRepository) List(criteria map[string]any) ([]*models.Album, error) {
	var (
		where []string
		args  []any
	)

	if v, ok := criteria["artist_id"].(string); ok && v != "" {
		where = append(where, "artist_id = ?")
		args = append(args, v)
	}
	if v, ok := criteria["vocal_style_id"].(string); ok && v != "" {
		where = append(where, "vocal_style_id = ?")
		args = append(args, v)
	}
	if v, ok := criteria["genre_id"].(string); ok && v != "" {
		where = append(where, "id IN (SELECT album_id FROM album_genres WHERE genre_id = ?)")
		args = append(args, v)
	}
	if v, ok := criteria["year"].(int); ok && v > 0 {
		where = append(where, "substr(release_date, 1, 4) = ?")
		args = append(args, fmt.Sprintf("%04d", v))
	}

	query := `SELECT ` + albumColumns + ` FROM albums`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY release_date IS NULL, release_date DESC, sequence ASC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset, ok := criteria["offset"].(int); ok && offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, storageErr("failed to query albums", err)
	}
	defer rows.Close()

	var albums []*models.Album
	for rows.Next() {
		album, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		albums = append(albums, album)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("row iteration error", err)
	}
	return albums, nil
}

// Count returns the number of albums in the catalog
func (r *AlbumRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM albums`).Scan(&n); err != nil {
		return 0, storageErr("failed to count albums", err)
	}
	return n, nil
}

func (r *AlbumRepository) withGenres(album *models.Album) (*models.Album, error) {
	ids, err := r.GenreIDs(album.ID())
	if err != nil {
		return nil, err
	}
	album.GenreIDs = ids
	return album, nil
}

// scanOne scans a single [sql.Row] into a [models.Album]
func (r *AlbumRepository) scanOne(row *sql.Row) (*models.Album, error) {
	album, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: album", shared.ErrNotFound)
	}
	return album, err
}

func (r *AlbumRepository) scan(s scanner) (*models.Album, error) {
	var (
		id, spotifyID, title, artistID string
		sequence                       int
		vocalStyleID                   sql.NullString
		releaseDate                    sql.NullTime
		coverURL                       string
		coverCachedAt                  sql.NullTime
		spotifyURL                     string
		metadata                       sql.NullString
		metadataCachedAt               sql.NullTime
		sourceTab                      string
		importedAt, updatedAt          time.Time
	)

	err := s.Scan(
		&id, &sequence, &spotifyID, &title, &artistID, &vocalStyleID, &releaseDate,
		&coverURL, &coverCachedAt, &spotifyURL, &metadata, &metadataCachedAt,
		&sourceTab, &importedAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, storageErr("failed to scan album", err)
	}

	album := models.NewAlbum(spotifyID, title, spotifyURL)
	album.SetID(id)
	album.Sequence = sequence
	album.ArtistID = artistID
	album.VocalStyleID = vocalStyleID.String
	album.ReleaseDate = timePtr(releaseDate)
	album.CoverArtURL = coverURL
	album.CoverCachedAt = timePtr(coverCachedAt)
	if metadata.Valid && metadata.String != "" {
		album.SpotifyMetadata = json.RawMessage(metadata.String)
	}
	album.MetadataCachedAt = timePtr(metadataCachedAt)
	album.SourceTab = sourceTab
	album.SetCreatedAt(importedAt)
	album.SetUpdatedAt(updatedAt)
	return album, nil
}
