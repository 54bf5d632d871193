package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/progdb/internal/catalog"
	"github.com/desertthunder/progdb/internal/formatter"
	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/repositories"
	"github.com/desertthunder/progdb/internal/shared"
)

// AlbumsList prints catalog albums, newest release first.
func (r *Runner) AlbumsList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	criteria := map[string]any{
		"limit":  int(cmd.Int("limit")),
		"offset": int(cmd.Int("offset")),
		"year":   int(cmd.Int("year")),
	}
	if name := cmd.String("genre"); name != "" {
		genre, err := repositories.NewGenreRepository(db).GetByName(name)
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: unknown genre %q", shared.ErrInvalidFlag, name)
		}
		if err != nil {
			return err
		}
		criteria["genre_id"] = genre.EffectiveID()
	}

	albums, err := repositories.NewAlbumRepository(db).List(criteria)
	if err != nil {
		return err
	}

	views, err := albumViews(repositories.NewStore(db), albums)
	if err != nil {
		return err
	}
	return formatter.WriteAlbums(r.output, views, format)
}

// albumViews joins each album with its artist, vocal style and genre names.
func albumViews(store *repositories.Store, albums []*models.Album) ([]formatter.AlbumView, error) {
	artists := map[string]*models.Artist{}
	styles := map[string]*models.VocalStyle{}

	views := make([]formatter.AlbumView, 0, len(albums))
	for _, album := range albums {
		artist, ok := artists[album.ArtistID]
		if !ok {
			a, err := store.Artists.Get(album.ArtistID)
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return nil, err
			}
			artist, artists[album.ArtistID] = a, a
		}

		var style *models.VocalStyle
		if album.VocalStyleID != "" {
			if style, ok = styles[album.VocalStyleID]; !ok {
				s, err := store.VocalStyles.Get(album.VocalStyleID)
				if err != nil && !errors.Is(err, shared.ErrNotFound) {
					return nil, err
				}
				style, styles[album.VocalStyleID] = s, s
			}
		}

		genres, err := store.Albums.GenreNames(album.ID())
		if err != nil {
			return nil, err
		}
		views = append(views, formatter.NewAlbumView(album, artist, style, genres))
	}
	return views, nil
}

// AlbumsCover prints an album's cover art URL, looking it up on Spotify the first time.
func (r *Runner) AlbumsCover(ctx context.Context, cmd *cli.Command) error {
	id, err := albumArg(cmd)
	if err != nil {
		return err
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	lookup, err := r.metadataService()
	if err != nil {
		return err
	}
	covers := catalog.NewCoverCache(repositories.NewAlbumRepository(db), lookup, r.logger)

	url, err := covers.CoverURL(ctx, id)
	if err != nil {
		return err
	}
	if url == "" {
		return r.writePlain("No cover art available for %s\n", id)
	}

	r.writePlain("%s\n", url)
	if cmd.Bool("open") {
		return shared.OpenBrowser(url)
	}
	return nil
}

// AlbumsOpen opens an album's Spotify page in the browser.
func (r *Runner) AlbumsOpen(ctx context.Context, cmd *cli.Command) error {
	id, err := albumArg(cmd)
	if err != nil {
		return err
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	album, err := repositories.NewAlbumRepository(db).GetBySpotifyID(id)
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: %s", shared.ErrAlbumNotFound, id)
	}
	if err != nil {
		return err
	}

	r.writePlain("Opening %s\n", album.SpotifyURL)
	return shared.OpenBrowser(album.SpotifyURL)
}

func albumArg(cmd *cli.Command) (string, error) {
	id := cmd.StringArg("id")
	if id == "" {
		return "", fmt.Errorf("%w: album id", shared.ErrMissingArgument)
	}
	if !models.IsSpotifyID(id) {
		return "", fmt.Errorf("%w: %q is not a Spotify album id", shared.ErrInvalidArgument, id)
	}
	return id, nil
}
