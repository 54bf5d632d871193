package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/repositories"
	"github.com/desertthunder/progdb/internal/services"
	"github.com/desertthunder/progdb/internal/shared"
	"github.com/desertthunder/progdb/internal/sheets"
)

const (
	idGhost  = "4uLU6hMCjMI75M1A2tKUQC"
	idFauna  = "1kfnOfDgPrn5bQ2P4vg3Xq"
	idFear   = "7dTKiakxlfbaH1ZXBgvEqz"
	idArtist = "0ybFZ2Ab08V8hueghSXm6E"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func candidate(tab string, year int, id, artist, album string) sheets.CandidateRow {
	return sheets.CandidateRow{
		Tab:         tab,
		Row:         3,
		Artist:      artist,
		Album:       album,
		ReleaseDate: sheets.Cell{Value: "January 15", Text: "January 15"},
		Genre:       "Progressive Metal",
		VocalStyle:  "Mixed",
		SpotifyURL:  models.SpotifyAlbumURLPrefix + id + "?si=abc",
		SpotifyID:   id,
		TabYear:     year,
	}
}

// fakeLookup is an in-memory [services.MetadataService].
type fakeLookup struct {
	mu     sync.Mutex
	albums map[string]*services.AlbumMetadata
	calls  map[string]int
	delay  time.Duration
	err    error
}

func newFakeLookup(albums ...*services.AlbumMetadata) *fakeLookup {
	f := &fakeLookup{albums: make(map[string]*services.AlbumMetadata), calls: make(map[string]int)}
	for _, a := range albums {
		f.albums[a.AlbumID] = a
	}
	return f
}

func (f *fakeLookup) Name() string { return "fake" }

func (f *fakeLookup) LookupAlbum(ctx context.Context, id string) (*services.AlbumMetadata, error) {
	f.mu.Lock()
	f.calls[id]++
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.albums[id], nil
}

func (f *fakeLookup) Calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func ghostMetadata() *services.AlbumMetadata {
	return &services.AlbumMetadata{
		AlbumID:              idGhost,
		Title:                "Ghost Reveries",
		ArtistName:           "Opeth",
		ArtistID:             idArtist,
		ReleaseDate:          "2005-08-29",
		ReleaseDatePrecision: services.PrecisionDay,
		CoverArtURL:          "https://i.scdn.co/image/ghost",
		SpotifyURL:           models.SpotifyAlbumURLPrefix + idGhost,
		TotalTracks:          8,
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseReleaseDate(t *testing.T) {
	tests := []struct {
		name string
		cell sheets.Cell
		year int
		want *time.Time
	}{
		{"Month and day", sheets.Cell{Text: "January 15"}, 2025, ptr(date(2025, time.January, 15))},
		{"Month only", sheets.Cell{Text: "January"}, 2025, ptr(date(2025, time.January, 1))},
		{"Lowercase month", sheets.Cell{Text: "march 3"}, 2024, ptr(date(2024, time.March, 3))},
		{"Value without text", sheets.Cell{Value: "May 15"}, 2023, ptr(date(2023, time.May, 15))},
		{"Not a date", sheets.Cell{Text: "not a date"}, 2025, nil},
		{"Numeric text", sheets.Cell{Text: "2025-01-15"}, 2025, nil},
		{"Empty", sheets.Cell{}, 2025, nil},
		{"Feb 29 in a common year", sheets.Cell{Text: "February 29"}, 2025, nil},
		{"Native date keeps its year", sheets.Cell{Value: date(2024, time.March, 15)}, 2024, ptr(date(2024, time.March, 15))},
		{"Native date takes the tab year", sheets.Cell{Value: date(2023, time.March, 15)}, 2024, ptr(date(2024, time.March, 15))},
		{"Native date without tab year", sheets.Cell{Value: date(2021, time.June, 4)}, 0, ptr(date(2021, time.June, 4))},
		{"Native leap day clamps", sheets.Cell{Value: date(2024, time.February, 29)}, 2025, ptr(date(2025, time.February, 28))},
		{"Native time is truncated", sheets.Cell{Value: time.Date(2024, 7, 4, 13, 30, 0, 0, time.UTC)}, 2024, ptr(date(2024, time.July, 4))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseReleaseDate(tt.cell, tt.year)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("expected no date, got %v", *got)
			case tt.want != nil && got == nil:
				t.Errorf("expected %v, got nil", *tt.want)
			case tt.want != nil && !got.Equal(*tt.want):
				t.Errorf("expected %v, got %v", *tt.want, *got)
			}
		})
	}

	t.Run("Current year when the tab has none", func(t *testing.T) {
		defer func(orig func() time.Time) { now = orig }(now)
		now = func() time.Time { return date(2031, time.May, 2) }

		got := ParseReleaseDate(sheets.Cell{Text: "October 9"}, 0)
		if got == nil || !got.Equal(date(2031, time.October, 9)) {
			t.Errorf("expected 2031-10-09, got %v", got)
		}
	})
}

func ptr[T any](v T) *T { return &v }

func TestResolver(t *testing.T) {
	t.Run("MapGenres", func(t *testing.T) {
		t.Run("Splits on commas and is idempotent", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()
			store := repositories.NewStore(db)
			r := NewResolver(store, nil)

			got, err := r.MapGenres("Black Metal, Mathcore")
			if err != nil {
				t.Fatalf("MapGenres failed: %v", err)
			}
			if len(got) != 2 || got[0].Entity.Name != "Black Metal" || got[1].Entity.Name != "Mathcore" {
				t.Fatalf("unexpected genres %+v", got)
			}
			for _, res := range got {
				if res.Kind != Created {
					t.Errorf("expected %s to be created, got %s", res.Entity.Name, res.Kind)
				}
			}

			before, _ := store.Genres.Count()
			again, err := r.MapGenres("Black Metal, Mathcore")
			if err != nil {
				t.Fatalf("second MapGenres failed: %v", err)
			}
			after, _ := store.Genres.Count()
			if before != after {
				t.Errorf("expected no new genres, count went from %d to %d", before, after)
			}
			if again[0].Kind != ExactMatch || again[0].Entity.ID() != got[0].Entity.ID() {
				t.Errorf("expected exact match on the same genre, got %+v", again[0])
			}
		})

		t.Run("Empty input uses the default genre", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()
			r := NewResolver(repositories.NewStore(db), nil)

			for _, text := range []string{"", "  ", " , "} {
				got, err := r.MapGenres(text)
				if err != nil {
					t.Fatalf("MapGenres(%q) failed: %v", text, err)
				}
				if len(got) != 1 || got[0].Kind != DefaultMatch || got[0].Entity.Name != models.DefaultGenreName {
					t.Errorf("MapGenres(%q) = %+v, want default genre", text, got)
				}
			}
		})

		t.Run("Longest contained genre wins", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()
			store := repositories.NewStore(db)
			r := NewResolver(store, nil)

			for _, name := range []string{"Metal", "Death Metal"} {
				if err := store.Genres.Create(models.NewGenre(name, shared.Slugify(name))); err != nil {
					t.Fatalf("seeding %s failed: %v", name, err)
				}
			}

			got, err := r.MapGenres("Technical death metal")
			if err != nil {
				t.Fatalf("MapGenres failed: %v", err)
			}
			if got[0].Kind != SubstringMatch || got[0].Entity.Name != "Death Metal" {
				t.Errorf("expected substring match on Death Metal, got %s %s", got[0].Kind, got[0].Entity.Name)
			}
		})

		t.Run("Token order kept without dedup", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()
			r := NewResolver(repositories.NewStore(db), nil)

			got, err := r.MapGenres("Djent, djent, Zeuhl")
			if err != nil {
				t.Fatalf("MapGenres failed: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("expected 3 resolutions, got %d", len(got))
			}
			if got[0].Entity.ID() != got[1].Entity.ID() || got[1].Kind != ExactMatch {
				t.Errorf("expected repeated token to resolve to the same genre")
			}
			if got[2].Entity.Name != "Zeuhl" {
				t.Errorf("expected Zeuhl last, got %s", got[2].Entity.Name)
			}
		})

		t.Run("Slug derived from name", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()
			r := NewResolver(repositories.NewStore(db), nil)

			got, err := r.MapGenres("Experimental Big Band")
			if err != nil {
				t.Fatalf("MapGenres failed: %v", err)
			}
			if got[0].Entity.Slug != "experimental-big-band" {
				t.Errorf("expected slug experimental-big-band, got %s", got[0].Entity.Slug)
			}
		})
	})

	t.Run("MapVocalStyle", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		r := NewResolver(repositories.NewStore(db), nil)

		tests := []struct {
			text string
			kind MatchKind
			name string
		}{
			{"", DefaultMatch, models.VocalStyleMixed},
			{"Mixed Vocals (Clean & Harsh)", ExactMatch, models.VocalStyleMixed},
			{"mostly screams", FuzzyKeywordMatch, models.VocalStyleHarsh},
			{"Instrumental, some mixed bits", FuzzyKeywordMatch, models.VocalStyleInstrumental},
			{"no vocals", FuzzyKeywordMatch, models.VocalStyleInstrumental},
			{"Clean / mixed", FuzzyKeywordMatch, models.VocalStyleMixed},
			{"clean", FuzzyKeywordMatch, models.VocalStyleClean},
			{"Growls", FuzzyKeywordMatch, models.VocalStyleHarsh},
			{"clean vocals", ExactMatch, models.VocalStyleClean},
			{"Operatic Vocals", Created, "Operatic Vocals"},
			{"operatic vocals", ExactMatch, "Operatic Vocals"},
		}

		for _, tt := range tests {
			t.Run(fmt.Sprintf("%q", tt.text), func(t *testing.T) {
				got, err := r.MapVocalStyle(tt.text)
				if err != nil {
					t.Fatalf("MapVocalStyle failed: %v", err)
				}
				if got.Kind != tt.kind || got.Entity.Name != tt.name {
					t.Errorf("MapVocalStyle(%q) = %s %q, want %s %q", tt.text, got.Kind, got.Entity.Name, tt.kind, tt.name)
				}
			})
		}

		t.Run("Created style slug", func(t *testing.T) {
			v, err := repositories.NewVocalStyleRepository(db).GetByName("Operatic Vocals")
			if err != nil {
				t.Fatalf("expected created style to persist: %v", err)
			}
			if v.Slug != "operatic-vocals" {
				t.Errorf("expected slug operatic-vocals, got %s", v.Slug)
			}
		})
	})
}

func TestImporter(t *testing.T) {
	ctx := context.Background()

	t.Run("ImportRow creates then updates", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		imp := NewImporter(db, nil)

		row := candidate("2025 Prog-metal", 2025, idGhost, "Opeth", "Ghost Reveries")
		row.Genre = "Progressive Metal, Death Metal"
		row.Country = "Sweden"

		first, err := imp.ImportRow(ctx, row)
		if err != nil {
			t.Fatalf("ImportRow failed: %v", err)
		}
		if !first.Created {
			t.Error("expected first import to create the album")
		}

		album := first.Album
		if album.SpotifyURL != models.SpotifyAlbumURLPrefix+idGhost {
			t.Errorf("expected canonical spotify URL, got %s", album.SpotifyURL)
		}
		if album.ReleaseDate == nil || !album.ReleaseDate.Equal(date(2025, time.January, 15)) {
			t.Errorf("expected release date 2025-01-15, got %v", album.ReleaseDate)
		}
		if album.SourceTab != "2025 Prog-metal" {
			t.Errorf("expected source tab, got %q", album.SourceTab)
		}
		if len(album.GenreIDs) != 2 {
			t.Errorf("expected 2 genres, got %d", len(album.GenreIDs))
		}
		if first.VocalStyle.Entity.Name != models.VocalStyleMixed {
			t.Errorf("expected mixed vocals, got %s", first.VocalStyle.Entity.Name)
		}

		second, err := imp.ImportRow(ctx, row)
		if err != nil {
			t.Fatalf("second ImportRow failed: %v", err)
		}
		if second.Created {
			t.Error("expected second import to update")
		}
		if second.Album.ID() != album.ID() {
			t.Error("expected the same album row")
		}

		albums := repositories.NewAlbumRepository(db)
		if n, _ := albums.Count(); n != 1 {
			t.Errorf("expected 1 album, got %d", n)
		}
		if n, _ := repositories.NewArtistRepository(db).Count(); n != 1 {
			t.Errorf("expected 1 artist, got %d", n)
		}

		stored, err := albums.GetBySpotifyID(idGhost)
		if err != nil {
			t.Fatalf("failed to load album: %v", err)
		}
		if stored.Title != album.Title || !stored.ReleaseDate.Equal(*album.ReleaseDate) || stored.ArtistID != album.ArtistID {
			t.Errorf("expected identical fields after re-import")
		}
	})

	t.Run("Update leaves caches untouched", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		imp := NewImporter(db, nil)
		albums := repositories.NewAlbumRepository(db)

		row := candidate("2025", 2025, idGhost, "Opeth", "Ghost Reveries")
		res, err := imp.ImportRow(ctx, row)
		if err != nil {
			t.Fatalf("ImportRow failed: %v", err)
		}
		if _, err := albums.UpdateCover(res.Album.ID(), "https://i.scdn.co/image/cached", time.Now().UTC()); err != nil {
			t.Fatalf("failed to cache cover: %v", err)
		}

		row.Album = "Ghost Reveries (Remaster)"
		if _, err := imp.ImportRow(ctx, row); err != nil {
			t.Fatalf("re-import failed: %v", err)
		}

		stored, _ := albums.GetBySpotifyID(idGhost)
		if stored.Title != "Ghost Reveries (Remaster)" {
			t.Errorf("expected title to be updated, got %s", stored.Title)
		}
		if stored.CoverArtURL != "https://i.scdn.co/image/cached" || stored.CoverCachedAt == nil {
			t.Errorf("expected cached cover to survive, got %q", stored.CoverArtURL)
		}
	})

	t.Run("Artist country backfilled once", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		imp := NewImporter(db, nil)
		artists := repositories.NewArtistRepository(db)

		if _, err := imp.ImportRow(ctx, candidate("2024", 2024, idGhost, "Opeth", "Ghost Reveries")); err != nil {
			t.Fatalf("ImportRow failed: %v", err)
		}

		row := candidate("2024", 2024, idFear, "Opeth", "Watershed")
		row.Country = "Sweden"
		if _, err := imp.ImportRow(ctx, row); err != nil {
			t.Fatalf("ImportRow failed: %v", err)
		}

		row = candidate("2024", 2024, idFauna, "Opeth", "Pale Communion")
		row.Country = "Norway"
		if _, err := imp.ImportRow(ctx, row); err != nil {
			t.Fatalf("ImportRow failed: %v", err)
		}

		artist, err := artists.GetByName("Opeth")
		if err != nil {
			t.Fatalf("failed to load artist: %v", err)
		}
		if artist.Country != "Sweden" {
			t.Errorf("expected first country to stick, got %q", artist.Country)
		}
		if n, _ := artists.Count(); n != 1 {
			t.Errorf("expected one artist, got %d", n)
		}
	})

	t.Run("Alias genres attach their canonical genre", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		genres := repositories.NewGenreRepository(db)

		canonical := models.NewGenre("Progressive Metal", "progressive-metal")
		if err := genres.Create(canonical); err != nil {
			t.Fatalf("failed to create genre: %v", err)
		}
		alias := models.NewGenre("Prog Metal", "prog-metal")
		if err := genres.Create(alias); err != nil {
			t.Fatalf("failed to create alias: %v", err)
		}
		alias.CanonicalID = canonical.ID()
		if err := genres.Update(alias); err != nil {
			t.Fatalf("failed to make alias: %v", err)
		}

		row := candidate("2025", 2025, idGhost, "Opeth", "Ghost Reveries")
		row.Genre = "Prog Metal, Progressive Metal"
		res, err := NewImporter(db, nil).ImportRow(ctx, row)
		if err != nil {
			t.Fatalf("ImportRow failed: %v", err)
		}
		if len(res.Album.GenreIDs) != 1 || res.Album.GenreIDs[0] != canonical.ID() {
			t.Errorf("expected only the canonical genre, got %v", res.Album.GenreIDs)
		}
	})

	t.Run("Rejects malformed ids", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		_, err := NewImporter(db, nil).ImportRow(ctx, candidate("2025", 2025, "short", "Opeth", "Ghost Reveries"))
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Eager mode", func(t *testing.T) {
		t.Run("Fills caches and artist id", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()
			lookup := newFakeLookup(ghostMetadata())
			imp := NewImporter(db, nil, WithEagerMetadata(lookup))

			if imp.Mode() != ModeEager {
				t.Fatalf("expected eager mode, got %s", imp.Mode())
			}

			row := candidate("2025", 2025, idGhost, "Opeth", "Ghost Reveries")
			row.ReleaseDate = sheets.Cell{}
			res, err := imp.ImportRow(ctx, row)
			if err != nil {
				t.Fatalf("ImportRow failed: %v", err)
			}

			stored, _ := repositories.NewAlbumRepository(db).GetBySpotifyID(idGhost)
			if !stored.HasCover() || stored.CoverArtURL != "https://i.scdn.co/image/ghost" {
				t.Errorf("expected cover to be cached, got %q", stored.CoverArtURL)
			}
			if !stored.HasMetadata() {
				t.Error("expected metadata to be cached")
			}
			if stored.ReleaseDate == nil || !stored.ReleaseDate.Equal(date(2005, time.August, 29)) {
				t.Errorf("expected upstream release date when the sheet has none, got %v", stored.ReleaseDate)
			}

			artist, _ := repositories.NewArtistRepository(db).Get(res.Album.ArtistID)
			if artist.SpotifyArtistID != idArtist {
				t.Errorf("expected spotify artist id, got %q", artist.SpotifyArtistID)
			}
		})

		t.Run("Claims a name-matched artist", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			if _, err := NewImporter(db, nil).ImportRow(ctx, candidate("2024", 2024, idFear, "Opeth", "Watershed")); err != nil {
				t.Fatalf("ImportRow failed: %v", err)
			}

			imp := NewImporter(db, nil, WithEagerMetadata(newFakeLookup(ghostMetadata())))
			if _, err := imp.ImportRow(ctx, candidate("2025", 2025, idGhost, "Opeth", "Ghost Reveries")); err != nil {
				t.Fatalf("ImportRow failed: %v", err)
			}

			artists := repositories.NewArtistRepository(db)
			if n, _ := artists.Count(); n != 1 {
				t.Errorf("expected one artist, got %d", n)
			}
			if _, err := artists.GetBySpotifyID(idArtist); err != nil {
				t.Errorf("expected the existing artist to gain the spotify id: %v", err)
			}
		})

		t.Run("Keeps same-named artists with different ids apart", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()

			other := "1aaaaaaaaaaaaaaaaaaaaa"
			fauna := &services.AlbumMetadata{
				AlbumID:    idFauna,
				Title:      "Fauna",
				ArtistName: "Opeth",
				ArtistID:   other,
				SpotifyURL: models.SpotifyAlbumURLPrefix + idFauna,
			}
			imp := NewImporter(db, nil, WithEagerMetadata(newFakeLookup(ghostMetadata(), fauna)))

			if _, err := imp.ImportRow(ctx, candidate("2025", 2025, idGhost, "Opeth", "Ghost Reveries")); err != nil {
				t.Fatalf("ImportRow failed: %v", err)
			}
			res, err := imp.ImportRow(ctx, candidate("2025", 2025, idFauna, "Opeth", "Fauna"))
			if err != nil {
				t.Fatalf("ImportRow failed: %v", err)
			}

			artists := repositories.NewArtistRepository(db)
			if n, _ := artists.Count(); n != 2 {
				t.Errorf("expected two artists, got %d", n)
			}
			artist, err := artists.GetBySpotifyID(other)
			if err != nil {
				t.Fatalf("expected an artist for %s: %v", other, err)
			}
			if res.Album.ArtistID != artist.ID() {
				t.Errorf("expected album attached to %s, got artist %s", artist.ID(), res.Album.ArtistID)
			}
			first, err := artists.GetBySpotifyID(idArtist)
			if err != nil || first.ID() == artist.ID() {
				t.Errorf("expected the first artist to keep its own id, got %+v (%v)", first, err)
			}
		})

		t.Run("Unknown upstream album", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()
			imp := NewImporter(db, nil, WithEagerMetadata(newFakeLookup()))

			res, err := imp.ImportRow(ctx, candidate("2025", 2025, idFauna, "Haken", "Fauna"))
			if err != nil {
				t.Fatalf("ImportRow failed: %v", err)
			}
			if res.Album.HasCover() || res.Album.HasMetadata() {
				t.Error("expected no caches for an unknown album")
			}
		})

		t.Run("Lookup failure aborts the row", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()
			lookup := newFakeLookup()
			lookup.err = shared.ErrServiceUnavailable
			imp := NewImporter(db, nil, WithEagerMetadata(lookup))

			_, err := imp.ImportRow(ctx, candidate("2025", 2025, idFauna, "Haken", "Fauna"))
			if !errors.Is(err, shared.ErrServiceUnavailable) {
				t.Errorf("expected lookup error, got %v", err)
			}
			if n, _ := repositories.NewAlbumRepository(db).Count(); n != 0 {
				t.Errorf("expected no album, got %d", n)
			}
		})
	})

	t.Run("ImportAll", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		imp := NewImporter(db, nil)

		rows := []sheets.CandidateRow{
			candidate("2025", 2025, idGhost, "Opeth", "Ghost Reveries"),
			candidate("2025", 2025, idFauna, "Haken", "Fauna"),
			candidate("2025", 2025, "bad", "Nobody", "Nothing"),
		}

		sum, err := imp.ImportAll(ctx, rows, true)
		if err != nil {
			t.Fatalf("ImportAll failed: %v", err)
		}
		if sum.Created != 2 || sum.Failed != 1 || sum.Skipped != 0 {
			t.Errorf("unexpected first summary %+v", sum)
		}

		sum, err = imp.ImportAll(ctx, rows[:2], true)
		if err != nil {
			t.Fatalf("ImportAll failed: %v", err)
		}
		if sum.Skipped != 2 || sum.Created != 0 || sum.Updated != 0 {
			t.Errorf("expected all rows skipped, got %+v", sum)
		}

		sum, err = imp.ImportAll(ctx, rows[:2], false)
		if err != nil {
			t.Fatalf("ImportAll failed: %v", err)
		}
		if sum.Updated != 2 {
			t.Errorf("expected updates without skip-existing, got %+v", sum)
		}

		t.Run("Storage faults skip the row", func(t *testing.T) {
			db := setupTestDB(t)
			defer db.Close()
			if _, err := db.Exec("DROP TABLE album_genres"); err != nil {
				t.Fatalf("failed to drop table: %v", err)
			}

			sum, err := NewImporter(db, nil).ImportAll(ctx, rows[:2], false)
			if err != nil {
				t.Fatalf("expected row faults to be counted, got %v", err)
			}
			if sum.Failed != 2 || sum.Created != 0 {
				t.Errorf("expected both rows failed, got %+v", sum)
			}
		})

		t.Run("Cancellation stops the batch", func(t *testing.T) {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			if _, err := imp.ImportAll(cancelled, rows[:2], false); !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		})
	})
}

func TestParseMetadataMode(t *testing.T) {
	for in, want := range map[string]MetadataMode{"": ModeJIT, "jit": ModeJIT, "eager": ModeEager} {
		if got, err := ParseMetadataMode(in); err != nil || got != want {
			t.Errorf("ParseMetadataMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseMetadataMode("lazy"); !errors.Is(err, shared.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestCoverCache(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, db *sql.DB) {
		t.Helper()
		if _, err := NewImporter(db, nil).ImportRow(ctx, candidate("2025", 2025, idGhost, "Opeth", "Ghost Reveries")); err != nil {
			t.Fatalf("failed to seed album: %v", err)
		}
	}

	t.Run("Fetches once and caches", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		seed(t, db)

		lookup := newFakeLookup(ghostMetadata())
		cache := NewCoverCache(repositories.NewAlbumRepository(db), lookup, nil)

		url, err := cache.CoverURL(ctx, idGhost)
		if err != nil {
			t.Fatalf("CoverURL failed: %v", err)
		}
		if url != "https://i.scdn.co/image/ghost" {
			t.Errorf("unexpected cover %q", url)
		}

		if _, err := cache.CoverURL(ctx, idGhost); err != nil {
			t.Fatalf("second CoverURL failed: %v", err)
		}
		meta, err := cache.Metadata(ctx, idGhost)
		if err != nil {
			t.Fatalf("Metadata failed: %v", err)
		}
		if meta == nil || meta.TotalTracks != 8 {
			t.Errorf("unexpected metadata %+v", meta)
		}

		if n := lookup.Calls(idGhost); n != 1 {
			t.Errorf("expected one upstream lookup, got %d", n)
		}

		stored, _ := repositories.NewAlbumRepository(db).GetBySpotifyID(idGhost)
		if err := stored.Validate(); err != nil {
			t.Errorf("expected cache timestamps to be consistent: %v", err)
		}
	})

	t.Run("Concurrent viewers share one lookup", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		seed(t, db)

		lookup := newFakeLookup(ghostMetadata())
		lookup.delay = 50 * time.Millisecond
		cache := NewCoverCache(repositories.NewAlbumRepository(db), lookup, nil)

		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				url, err := cache.CoverURL(ctx, idGhost)
				if err == nil && url == "" {
					err = errors.New("empty cover")
				}
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			if err != nil {
				t.Errorf("CoverURL failed: %v", err)
			}
		}
		if n := lookup.Calls(idGhost); n != 1 {
			t.Errorf("expected exactly one upstream lookup, got %d", n)
		}
	})

	t.Run("Unknown album", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		cache := NewCoverCache(repositories.NewAlbumRepository(db), newFakeLookup(), nil)
		if _, err := cache.CoverURL(ctx, idFauna); !errors.Is(err, shared.ErrAlbumNotFound) {
			t.Errorf("expected ErrAlbumNotFound, got %v", err)
		}
	})

	t.Run("Missing upstream", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		seed(t, db)

		cache := NewCoverCache(repositories.NewAlbumRepository(db), newFakeLookup(), nil)
		url, err := cache.CoverURL(ctx, idGhost)
		if err != nil || url != "" {
			t.Errorf("expected empty cover without error, got %q, %v", url, err)
		}
		meta, err := cache.Metadata(ctx, idGhost)
		if err != nil || meta != nil {
			t.Errorf("expected nil metadata without error, got %+v, %v", meta, err)
		}
	})

	t.Run("Lookup error surfaces", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		seed(t, db)

		lookup := newFakeLookup()
		lookup.err = shared.ErrAuthFailed
		cache := NewCoverCache(repositories.NewAlbumRepository(db), lookup, nil)

		if _, err := cache.CoverURL(ctx, idGhost); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})
}
