package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/repositories"
	"github.com/desertthunder/progdb/internal/services"
	"github.com/desertthunder/progdb/internal/shared"
)

// CoverCache serves album cover art and metadata, fetching them from the catalog API on first use.
//
// Concurrent misses for the same album share one upstream lookup, and the stored value is only
// written when no other writer cached it first.
type CoverCache struct {
	albums *repositories.AlbumRepository
	lookup services.MetadataService
	group  singleflight.Group
	logger *log.Logger
	now    func() time.Time
}

// NewCoverCache creates a [CoverCache].
func NewCoverCache(albums *repositories.AlbumRepository, lookup services.MetadataService, logger *log.Logger) *CoverCache {
	if logger == nil {
		logger = log.Default()
	}
	return &CoverCache{
		albums: albums,
		lookup: lookup,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CoverURL returns the cover art URL of the album with the given Spotify id.
//
// An empty URL with no error means the catalog API has no cover for the album.
func (c *CoverCache) CoverURL(ctx context.Context, spotifyID string) (string, error) {
	album, err := c.album(spotifyID)
	if err != nil {
		return "", err
	}
	// Cached metadata without a cover means the album has none upstream.
	if album.HasCover() || album.HasMetadata() {
		c.logger.Debug("cover cache hit", "album", spotifyID)
		return album.CoverArtURL, nil
	}

	album, err = c.fill(ctx, album)
	if err != nil {
		return "", err
	}
	return album.CoverArtURL, nil
}

// Metadata returns the cached metadata of the album with the given Spotify id, fetching it on a miss.
//
// A nil record with no error means the catalog API does not know the album.
func (c *CoverCache) Metadata(ctx context.Context, spotifyID string) (*services.AlbumMetadata, error) {
	album, err := c.album(spotifyID)
	if err != nil {
		return nil, err
	}
	if !album.HasMetadata() {
		if album, err = c.fill(ctx, album); err != nil {
			return nil, err
		}
		if !album.HasMetadata() {
			return nil, nil
		}
	}

	var meta services.AlbumMetadata
	if err := json.Unmarshal(album.SpotifyMetadata, &meta); err != nil {
		return nil, fmt.Errorf("%w: cached metadata for %s is corrupt: %v", shared.ErrStorage, spotifyID, err)
	}
	return &meta, nil
}

func (c *CoverCache) album(spotifyID string) (*models.Album, error) {
	album, err := c.albums.GetBySpotifyID(spotifyID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", shared.ErrAlbumNotFound, spotifyID)
	}
	return album, err
}

// fill performs at most one upstream lookup per album at a time and stores whatever is still missing.
func (c *CoverCache) fill(ctx context.Context, album *models.Album) (*models.Album, error) {
	if c.lookup == nil {
		return album, nil
	}

	v, err, dup := c.group.Do(album.SpotifyAlbumID, func() (any, error) {
		current, err := c.albums.Get(album.ID())
		if err != nil {
			return nil, err
		}
		if current.HasMetadata() {
			return current, nil
		}

		meta, err := c.lookup.LookupAlbum(ctx, current.SpotifyAlbumID)
		if err != nil {
			return nil, err
		}
		if meta == nil {
			c.logger.Warn("album not found upstream", "album", current.SpotifyAlbumID)
			return current, nil
		}

		at := c.now()
		if !current.HasCover() && meta.CoverArtURL != "" {
			if _, err := c.albums.UpdateCover(current.ID(), meta.CoverArtURL, at); err != nil {
				return nil, err
			}
		}
		if !current.HasMetadata() {
			blob, err := json.Marshal(meta)
			if err != nil {
				return nil, fmt.Errorf("failed to encode metadata: %w", err)
			}
			if _, err := c.albums.UpdateMetadata(current.ID(), blob, at); err != nil {
				return nil, err
			}
		}

		c.logger.Info("cached album metadata", "album", current.SpotifyAlbumID)
		return c.albums.Get(current.ID())
	})
	if err != nil {
		return nil, err
	}
	if dup {
		c.logger.Debug("shared in-flight lookup", "album", album.SpotifyAlbumID)
	}
	return v.(*models.Album), nil
}
