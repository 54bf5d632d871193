package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/repositories"
	"github.com/desertthunder/progdb/internal/services"
	"github.com/desertthunder/progdb/internal/shared"
	"github.com/desertthunder/progdb/internal/sheets"
)

// MetadataMode selects when album metadata is fetched from the catalog API.
type MetadataMode string

const (
	// ModeJIT defers cover art and metadata to the first view of an album.
	ModeJIT MetadataMode = "jit"
	// ModeEager looks up every imported album during the sync.
	ModeEager MetadataMode = "eager"
)

// ParseMetadataMode validates a configured mode. Empty means [ModeJIT].
func ParseMetadataMode(s string) (MetadataMode, error) {
	switch MetadataMode(s) {
	case "", ModeJIT:
		return ModeJIT, nil
	case ModeEager:
		return ModeEager, nil
	default:
		return "", fmt.Errorf("%w: unknown metadata mode %q (expected jit or eager)", shared.ErrInvalidConfig, s)
	}
}

// ImportResult describes the outcome of merging one row.
type ImportResult struct {
	Created    bool
	Album      *models.Album
	Genres     []Resolution[*models.Genre]
	VocalStyle Resolution[*models.VocalStyle]
}

// Importer merges candidate rows into the catalog, one transaction per row.
type Importer struct {
	db     *sql.DB
	mode   MetadataMode
	lookup services.MetadataService
	logger *log.Logger
}

// ImporterOption customizes an [Importer].
type ImporterOption func(*Importer)

// WithEagerMetadata makes the importer look up every album with lookup and fill its caches.
func WithEagerMetadata(lookup services.MetadataService) ImporterOption {
	return func(i *Importer) {
		if lookup != nil {
			i.mode = ModeEager
			i.lookup = lookup
		}
	}
}

// NewImporter creates an [Importer] in [ModeJIT] unless configured otherwise.
func NewImporter(db *sql.DB, logger *log.Logger, opts ...ImporterOption) *Importer {
	if logger == nil {
		logger = log.Default()
	}
	i := &Importer{db: db, mode: ModeJIT, logger: logger}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Mode returns the active metadata mode.
func (i *Importer) Mode() MetadataMode {
	return i.mode
}

// ImportRow creates or updates the album for row, keyed by its Spotify album id.
//
// The artist, genres, vocal style and album are written in one transaction. On update only the
// fields read from the sheet are overwritten; caches are refreshed only in eager mode.
func (i *Importer) ImportRow(ctx context.Context, row sheets.CandidateRow) (ImportResult, error) {
	if !models.IsSpotifyID(row.SpotifyID) {
		return ImportResult{}, fmt.Errorf("%w: malformed spotify album id %q", shared.ErrInvalidInput, row.SpotifyID)
	}

	// Looked up before the transaction so no connection is held during the network call.
	var meta *services.AlbumMetadata
	if i.mode == ModeEager {
		var err error
		if meta, err = i.lookup.LookupAlbum(ctx, row.SpotifyID); err != nil {
			return ImportResult{}, fmt.Errorf("metadata lookup for %s failed: %w", row.SpotifyID, err)
		}
		if meta == nil {
			i.logger.Warn("album not found upstream, importing sheet data only", "album", row.SpotifyID)
		}
	}

	var result ImportResult
	err := repositories.RunInTx(i.db, func(s *repositories.Store) error {
		artist, err := resolveArtist(s, row, meta)
		if err != nil {
			return err
		}

		resolver := NewResolver(s, i.logger)
		if result.Genres, err = resolver.MapGenres(row.Genre); err != nil {
			return err
		}
		if result.VocalStyle, err = resolver.MapVocalStyle(row.VocalStyle); err != nil {
			return err
		}

		album, err := s.Albums.GetBySpotifyID(row.SpotifyID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			album = models.NewAlbum(row.SpotifyID, row.Album, models.SpotifyAlbumURLPrefix+row.SpotifyID)
			result.Created = true
		case err != nil:
			return err
		}

		album.Title = row.Album
		album.ArtistID = artist.ID()
		album.VocalStyleID = result.VocalStyle.Entity.ID()
		album.ReleaseDate = ParseReleaseDate(row.ReleaseDate, row.TabYear)
		album.SpotifyURL = models.SpotifyAlbumURLPrefix + row.SpotifyID
		album.SourceTab = row.Tab
		album.GenreIDs = effectiveGenreIDs(result.Genres)

		if meta != nil && album.ReleaseDate == nil {
			if released, ok := meta.ReleaseTime(); ok {
				album.ReleaseDate = &released
			}
		}

		if result.Created {
			err = s.Albums.Create(album)
		} else {
			err = s.Albums.Update(album)
		}
		if err != nil {
			return err
		}

		if meta != nil {
			if err := fillCache(album, meta, time.Now().UTC()); err != nil {
				return err
			}
			if err := s.Albums.RefreshCache(album); err != nil {
				return err
			}
		}

		result.Album = album
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}

	i.logger.Debug("imported album",
		"album", row.SpotifyID, "title", row.Album, "tab", row.Tab, "created", result.Created)
	return result, nil
}

// ImportSummary aggregates a batch import.
type ImportSummary struct {
	Created int
	Updated int
	Skipped int
	Failed  int
}

// ImportAll merges rows in order, counting per-row failures instead of stopping.
// Storage faults are row faults too, since each row commits in its own transaction; only
// cancellation of ctx stops the batch.
//
// With skipExisting, rows whose album is already in the catalog are skipped without a write.
func (i *Importer) ImportAll(ctx context.Context, rows []sheets.CandidateRow, skipExisting bool) (ImportSummary, error) {
	var sum ImportSummary
	albums := repositories.NewAlbumRepository(i.db)

	for n, row := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		var (
			res    ImportResult
			exists bool
			err    error
		)
		if skipExisting {
			exists, err = albums.ExistsBySpotifyID(row.SpotifyID)
		}
		if err == nil && exists {
			sum.Skipped++
			continue
		}
		if err == nil {
			res, err = i.ImportRow(ctx, row)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return sum, err
			}
			i.logger.Error("failed to import album", "row", n+1, "artist", row.Artist, "album", row.Album, "error", err)
			sum.Failed++
			continue
		}
		if res.Created {
			sum.Created++
		} else {
			sum.Updated++
		}
	}

	i.logger.Info("album import complete",
		"created", sum.Created, "updated", sum.Updated, "skipped", sum.Skipped, "failed", sum.Failed)
	return sum, nil
}

// resolveArtist finds the row's artist by Spotify artist id when metadata is known, else by name,
// creating it on first sighting and backfilling a blank country.
//
// With a known artist id, a name match is only claimed when it carries no artist id of its own, so
// two artists sharing a name stay distinct.
func resolveArtist(s *repositories.Store, row sheets.CandidateRow, meta *services.AlbumMetadata) (*models.Artist, error) {
	var (
		artist   *models.Artist
		err      error
		artistID string
	)

	if meta != nil && models.IsSpotifyID(meta.ArtistID) {
		artistID = meta.ArtistID
		artist, err = s.Artists.GetBySpotifyID(artistID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}

	if artist == nil {
		if artistID != "" {
			artist, err = s.Artists.GetUnclaimedByName(row.Artist)
		} else {
			artist, err = s.Artists.GetByName(row.Artist)
		}
		switch {
		case err == nil:
			if artistID != "" {
				artist.SpotifyArtistID = artistID
				if err := s.Artists.Update(artist); err != nil {
					return nil, err
				}
			}
		case errors.Is(err, shared.ErrNotFound):
			artist = models.NewArtist(row.Artist, row.Country)
			artist.SpotifyArtistID = artistID
			if err := s.Artists.Create(artist); err != nil {
				return nil, err
			}
			return artist, nil
		default:
			return nil, err
		}
	}

	if artist.Country == "" && row.Country != "" {
		if _, err := s.Artists.BackfillCountry(artist.ID(), row.Country); err != nil {
			return nil, err
		}
		artist.Country = row.Country
	}
	return artist, nil
}

// effectiveGenreIDs maps resolutions to canonical genre ids, dropping repeats.
func effectiveGenreIDs(genres []Resolution[*models.Genre]) []string {
	seen := make(map[string]bool, len(genres))
	ids := make([]string, 0, len(genres))
	for _, g := range genres {
		id := g.Entity.EffectiveID()
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// fillCache copies looked-up metadata into the album's cache fields.
func fillCache(album *models.Album, meta *services.AlbumMetadata, at time.Time) error {
	blob, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	album.SpotifyMetadata = blob
	album.MetadataCachedAt = &at
	if meta.CoverArtURL != "" {
		album.CoverArtURL = meta.CoverArtURL
		album.CoverCachedAt = &at
	}
	return nil
}
