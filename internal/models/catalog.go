package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// SpotifyAlbumURLPrefix is the required prefix of every album source URL.
	SpotifyAlbumURLPrefix = "https://open.spotify.com/album/"
	// SpotifyIDLength is the fixed length of Spotify album and artist ids.
	SpotifyIDLength = 22

	DefaultGenreName = "Progressive Metal"

	VocalStyleMixed        = "Mixed Vocals (Clean & Harsh)"
	VocalStyleClean        = "Clean Vocals"
	VocalStyleHarsh        = "Harsh Vocals"
	VocalStyleInstrumental = "Instrumental (No Vocals)"
)

var (
	ErrInvalidModel = errors.New("invalid model")

	spotifyIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{22}$`)
)

// IsSpotifyID reports whether id has the shape of a Spotify album or artist id.
func IsSpotifyID(id string) bool {
	return spotifyIDPattern.MatchString(id)
}

// Artist is a performing artist.
//
// SpotifyArtistID is empty when the artist was created from sheet text alone.
type Artist struct {
	record
	Name            string
	Country         string
	SpotifyArtistID string
}

// NewArtist creates an unsaved [Artist].
func NewArtist(name, country string) *Artist {
	return &Artist{record: newRecord(), Name: strings.TrimSpace(name), Country: strings.TrimSpace(country)}
}

func (a *Artist) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: artist name is required", ErrInvalidModel)
	}
	if a.SpotifyArtistID != "" && !IsSpotifyID(a.SpotifyArtistID) {
		return fmt.Errorf("%w: malformed spotify artist id %q", ErrInvalidModel, a.SpotifyArtistID)
	}
	return nil
}

// Genre is a catalog genre. A genre with a CanonicalID is an alias and is displayed as its canonical genre.
type Genre struct {
	record
	Name        string
	Slug        string
	IsIgnored   bool
	CanonicalID string
}

// NewGenre creates an unsaved [Genre] with a slug derived from name.
func NewGenre(name, slug string) *Genre {
	return &Genre{record: newRecord(), Name: strings.TrimSpace(name), Slug: slug}
}

// IsAlias reports whether the genre redirects to a canonical genre.
func (g *Genre) IsAlias() bool {
	return g.CanonicalID != ""
}

// EffectiveID returns the canonical genre id for aliases and the genre's own id otherwise.
func (g *Genre) EffectiveID() string {
	if g.IsAlias() {
		return g.CanonicalID
	}
	return g.ID()
}

func (g *Genre) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("%w: genre name is required", ErrInvalidModel)
	}
	if g.Slug == "" {
		return fmt.Errorf("%w: genre slug is required", ErrInvalidModel)
	}
	if g.CanonicalID != "" && g.CanonicalID == g.ID() {
		return fmt.Errorf("%w: a genre cannot be its own canonical genre", ErrInvalidModel)
	}
	return nil
}

// VocalStyle groups albums by vocal delivery.
type VocalStyle struct {
	record
	Name string
	Slug string
}

// NewVocalStyle creates an unsaved [VocalStyle].
func NewVocalStyle(name, slug string) *VocalStyle {
	return &VocalStyle{record: newRecord(), Name: strings.TrimSpace(name), Slug: slug}
}

func (v *VocalStyle) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("%w: vocal style name is required", ErrInvalidModel)
	}
	if v.Slug == "" {
		return fmt.Errorf("%w: vocal style slug is required", ErrInvalidModel)
	}
	return nil
}

// Album is one catalog release keyed by SpotifyAlbumID.
//
// CoverArtURL and SpotifyMetadata are caches filled just-in-time on first view (or eagerly during sync)
// and always travel with their cached-at timestamps.
type Album struct {
	record
	Sequence         int
	SpotifyAlbumID   string
	Title            string
	ArtistID         string
	VocalStyleID     string
	ReleaseDate      *time.Time
	CoverArtURL      string
	CoverCachedAt    *time.Time
	SpotifyURL       string
	SpotifyMetadata  json.RawMessage
	MetadataCachedAt *time.Time
	SourceTab        string
	GenreIDs         []string
}

// NewAlbum creates an unsaved [Album].
func NewAlbum(spotifyID, title, spotifyURL string) *Album {
	return &Album{
		record:         newRecord(),
		SpotifyAlbumID: spotifyID,
		Title:          strings.TrimSpace(title),
		SpotifyURL:     spotifyURL,
	}
}

// ImportedAt is the time the album was first imported.
func (a *Album) ImportedAt() time.Time {
	return a.CreatedAt()
}

// HasCover reports whether a cover URL has been cached.
func (a *Album) HasCover() bool {
	return a.CoverArtURL != "" && a.CoverCachedAt != nil
}

// HasMetadata reports whether detailed metadata has been cached.
func (a *Album) HasMetadata() bool {
	return len(a.SpotifyMetadata) > 0 && a.MetadataCachedAt != nil
}

// FormattedReleaseDate renders the release date at the precision it was recorded with.
//
// Day 1 of January is treated as year precision and day 1 of other months as month precision.
func (a *Album) FormattedReleaseDate() string {
	if a.ReleaseDate == nil {
		return "Unknown"
	}
	d := *a.ReleaseDate
	switch {
	case d.Day() != 1:
		return d.Format("Jan 02, 2006")
	case d.Month() != time.January:
		return d.Format("January 2006")
	default:
		return d.Format("2006")
	}
}

func (a *Album) Validate() error {
	if a.Title == "" {
		return fmt.Errorf("%w: album title is required", ErrInvalidModel)
	}
	if a.ArtistID == "" {
		return fmt.Errorf("%w: album artist is required", ErrInvalidModel)
	}
	if len(a.SpotifyAlbumID) != SpotifyIDLength || !IsSpotifyID(a.SpotifyAlbumID) {
		return fmt.Errorf("%w: invalid Spotify album ID format %q, must be %d characters", ErrInvalidModel, a.SpotifyAlbumID, SpotifyIDLength)
	}
	if !strings.HasPrefix(a.SpotifyURL, SpotifyAlbumURLPrefix) {
		return fmt.Errorf("%w: invalid Spotify album URL %q, must start with %s", ErrInvalidModel, a.SpotifyURL, SpotifyAlbumURLPrefix)
	}
	if a.CoverArtURL != "" && a.CoverCachedAt == nil {
		return fmt.Errorf("%w: cover cached_at must be set when cover URL is cached", ErrInvalidModel)
	}
	if a.CoverArtURL == "" && a.CoverCachedAt != nil {
		return fmt.Errorf("%w: cover cached_at set without a cover URL", ErrInvalidModel)
	}
	if len(a.SpotifyMetadata) > 0 && a.MetadataCachedAt == nil {
		return fmt.Errorf("%w: metadata cached_at must be set when metadata is cached", ErrInvalidModel)
	}
	if len(a.SpotifyMetadata) == 0 && a.MetadataCachedAt != nil {
		return fmt.Errorf("%w: metadata cached_at set without metadata", ErrInvalidModel)
	}
	return nil
}
