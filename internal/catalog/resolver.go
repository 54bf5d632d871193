package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/repositories"
	"github.com/desertthunder/progdb/internal/shared"
)

// MatchKind records how free text was resolved to a catalog entity.
type MatchKind int

const (
	ExactMatch        MatchKind = iota // case-insensitive name match
	SubstringMatch                     // an existing name occurs inside the text
	FuzzyKeywordMatch                  // a keyword mapped the text onto a known bucket
	DefaultMatch                       // empty text fell back to the default entity
	Created                            // nothing matched, a new entity was created from the text
)

func (k MatchKind) String() string {
	switch k {
	case ExactMatch:
		return "exact"
	case SubstringMatch:
		return "substring"
	case FuzzyKeywordMatch:
		return "keyword"
	case DefaultMatch:
		return "default"
	case Created:
		return "created"
	default:
		return fmt.Sprintf("MatchKind(%d)", int(k))
	}
}

// Resolution is the outcome of resolving one piece of text.
type Resolution[T models.Model] struct {
	Kind   MatchKind
	Entity T
}

// vocalKeywords is checked in order; the first keyword found in the text wins.
var vocalKeywords = []struct {
	keywords []string
	style    string
}{
	{[]string{"instrumental", "no vocal"}, models.VocalStyleInstrumental},
	{[]string{"mixed"}, models.VocalStyleMixed},
	{[]string{"clean"}, models.VocalStyleClean},
	{[]string{"harsh", "scream", "growl"}, models.VocalStyleHarsh},
}

// Resolver maps free-text genre and vocal style fields onto catalog rows, creating rows as needed.
type Resolver struct {
	store  *repositories.Store
	logger *log.Logger
}

// NewResolver creates a [Resolver] over store. Pass a transaction-bound store to make resolution part of a row import.
func NewResolver(store *repositories.Store, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// MapGenres resolves a comma separated genre field.
//
// Each token is matched by exact name, then by the longest existing genre name contained in it,
// and is otherwise created. Results follow token order and are not de-duplicated. Empty input
// resolves to the default genre.
func (r *Resolver) MapGenres(text string) ([]Resolution[*models.Genre], error) {
	tokens := splitGenres(text)
	if len(tokens) == 0 {
		g, _, err := r.getOrCreateGenre(models.DefaultGenreName)
		if err != nil {
			return nil, err
		}
		return []Resolution[*models.Genre]{{Kind: DefaultMatch, Entity: g}}, nil
	}

	var (
		known  []*models.Genre
		loaded bool
	)
	resolutions := make([]Resolution[*models.Genre], 0, len(tokens))

	for _, token := range tokens {
		g, err := r.store.Genres.GetByName(token)
		if err == nil {
			resolutions = append(resolutions, Resolution[*models.Genre]{Kind: ExactMatch, Entity: g})
			continue
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}

		if !loaded {
			if known, err = r.store.Genres.List(nil); err != nil {
				return nil, err
			}
			loaded = true
		}
		if g := longestContained(known, token); g != nil {
			resolutions = append(resolutions, Resolution[*models.Genre]{Kind: SubstringMatch, Entity: g})
			continue
		}

		g, created, err := r.getOrCreateGenre(token)
		if err != nil {
			return nil, err
		}
		kind := Created
		if !created {
			kind = ExactMatch
		} else {
			known = append(known, g)
			r.logger.Info("created genre", "name", g.Name, "slug", g.Slug)
		}
		resolutions = append(resolutions, Resolution[*models.Genre]{Kind: kind, Entity: g})
	}

	return resolutions, nil
}

// MapVocalStyle resolves a vocal style field.
//
// Empty input gets the mixed style. Otherwise an exact name match wins, then the keyword buckets
// (instrumental, mixed, clean, harsh) in that order. Unmatched text creates a style named after it.
func (r *Resolver) MapVocalStyle(text string) (Resolution[*models.VocalStyle], error) {
	text = strings.TrimSpace(text)
	if text == "" {
		v, _, err := r.getOrCreateVocalStyle(models.VocalStyleMixed)
		return Resolution[*models.VocalStyle]{Kind: DefaultMatch, Entity: v}, err
	}

	v, err := r.store.VocalStyles.GetByName(text)
	if err == nil {
		return Resolution[*models.VocalStyle]{Kind: ExactMatch, Entity: v}, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return Resolution[*models.VocalStyle]{}, err
	}

	normalized := strings.ToLower(text)
	for _, bucket := range vocalKeywords {
		for _, kw := range bucket.keywords {
			if strings.Contains(normalized, kw) {
				v, _, err := r.getOrCreateVocalStyle(bucket.style)
				return Resolution[*models.VocalStyle]{Kind: FuzzyKeywordMatch, Entity: v}, err
			}
		}
	}

	v, _, err = r.getOrCreateVocalStyle(text)
	if err != nil {
		return Resolution[*models.VocalStyle]{}, err
	}
	r.logger.Info("created vocal style", "name", v.Name, "slug", v.Slug)
	return Resolution[*models.VocalStyle]{Kind: Created, Entity: v}, nil
}

// getOrCreateGenre returns the genre named name, creating it if absent.
// A unique-name conflict means another writer won, so the row is fetched again.
func (r *Resolver) getOrCreateGenre(name string) (*models.Genre, bool, error) {
	g, err := r.store.Genres.GetByName(name)
	if err == nil {
		return g, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}

	g = models.NewGenre(name, slugOr(name, "genre"))
	if err := r.store.Genres.Create(g); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			existing, ferr := r.store.Genres.GetByName(name)
			return existing, false, ferr
		}
		return nil, false, err
	}
	return g, true, nil
}

func (r *Resolver) getOrCreateVocalStyle(name string) (*models.VocalStyle, bool, error) {
	v, err := r.store.VocalStyles.GetByName(name)
	if err == nil {
		return v, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}

	v = models.NewVocalStyle(name, slugOr(name, "vocal-style"))
	if err := r.store.VocalStyles.Create(v); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			existing, ferr := r.store.VocalStyles.GetByName(name)
			return existing, false, ferr
		}
		return nil, false, err
	}
	return v, true, nil
}

func splitGenres(text string) []string {
	var tokens []string
	for _, part := range strings.Split(text, ",") {
		if token := strings.TrimSpace(part); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// longestContained returns the genre with the longest name occurring in token, ignoring case.
func longestContained(genres []*models.Genre, token string) *models.Genre {
	lower := strings.ToLower(token)
	var best *models.Genre
	for _, g := range genres {
		name := strings.ToLower(g.Name)
		if name == "" || !strings.Contains(lower, name) {
			continue
		}
		if best == nil || len(g.Name) > len(best.Name) {
			best = g
		}
	}
	return best
}

func slugOr(name, fallback string) string {
	if slug := shared.Slugify(name); slug != "" {
		return slug
	}
	return fallback
}
