package services

import (
	"context"
	"time"
)

// MetadataService looks up album metadata in an external music catalog.
type MetadataService interface {
	// LookupAlbum returns the album with the given catalog id, or nil (and no error) when it does not exist.
	LookupAlbum(ctx context.Context, albumID string) (*AlbumMetadata, error)

	// Name returns the name of the service (e.g., "Spotify")
	Name() string
}

// Release date precisions reported by the catalog.
const (
	PrecisionDay   = "day"
	PrecisionMonth = "month"
	PrecisionYear  = "year"
)

// AlbumMetadata is the normalized album record returned by a [MetadataService].
//
// It is also the shape of the metadata blob cached on an album.
type AlbumMetadata struct {
	AlbumID              string `json:"album_id"`
	Title                string `json:"name"`
	ArtistName           string `json:"artist_name"`
	ArtistID             string `json:"artist_id"`
	ReleaseDate          string `json:"release_date"`
	ReleaseDatePrecision string `json:"release_date_precision"`
	CoverArtURL          string `json:"cover_art_url"`
	SpotifyURL           string `json:"spotify_url"`
	TotalTracks          int    `json:"total_tracks"`
}

// ReleaseTime parses ReleaseDate at its precision. Missing month and day default to 1.
func (m *AlbumMetadata) ReleaseTime() (time.Time, bool) {
	layout := "2006-01-02"
	switch m.ReleaseDatePrecision {
	case PrecisionMonth:
		layout = "2006-01"
	case PrecisionYear:
		layout = "2006"
	}

	t, err := time.Parse(layout, m.ReleaseDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
