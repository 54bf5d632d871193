// Spotify Web API implementation of [MetadataService]
//
// Response fields based on https://developer.spotify.com/documentation/web-api/reference/get-an-album
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/shared"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	defaultSpotifyTimeout = 10 * time.Second
	// DefaultLookupRate is the sustained request rate against the Web API, in requests per second.
	DefaultLookupRate = 5
)

// SpotifyService implements [MetadataService] with the client credentials flow.
//
// The [oauth2] transport fetches and refreshes the app token on demand, so no user login is involved.
type SpotifyService struct {
	config     *clientcredentials.Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// SpotifyOption customizes a [SpotifyService].
type SpotifyOption func(*SpotifyService)

// WithEndpoints points the service at a different API base and token URL.
func WithEndpoints(baseURL, tokenURL string) SpotifyOption {
	return func(s *SpotifyService) {
		s.baseURL = baseURL
		s.config.TokenURL = tokenURL
	}
}

// WithRateLimit bounds lookups to perSecond requests with the given burst.
func WithRateLimit(perSecond float64, burst int) SpotifyOption {
	return func(s *SpotifyService) {
		if perSecond <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithSpotifyLogger sets the logger used for request diagnostics.
func WithSpotifyLogger(l *log.Logger) SpotifyOption {
	return func(s *SpotifyService) { s.logger = l }
}

// NewSpotifyService creates a new Spotify service from "client_id" and "client_secret" credentials.
func NewSpotifyService(credentials map[string]string, opts ...SpotifyOption) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id in credentials", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret in credentials", shared.ErrMissingCredentials)
	}

	s := &SpotifyService{
		config: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     spotifyTokenURL,
		},
		baseURL: spotifyBaseURL,
		limiter: rate.NewLimiter(rate.Limit(DefaultLookupRate), DefaultLookupRate),
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	base := &http.Client{Timeout: defaultSpotifyTimeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	s.httpClient = s.config.Client(ctx)
	s.httpClient.Timeout = defaultSpotifyTimeout

	return s, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// LookupAlbum fetches one album and normalizes it to [AlbumMetadata]. A 404 yields nil without error.
func (s *SpotifyService) LookupAlbum(ctx context.Context, albumID string) (*AlbumMetadata, error) {
	if !models.IsSpotifyID(albumID) {
		return nil, fmt.Errorf("%w: malformed album id %q", shared.ErrInvalidInput, albumID)
	}

	body, status, err := s.doRequest(ctx, "/albums/"+albumID)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusNotFound:
		s.logger.Debug("album not found", "album", albumID)
		return nil, nil
	case status == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s", shared.ErrAuthFailed, apiErrorMessage(body, status))
	case status == http.StatusTooManyRequests || status >= 500:
		return nil, fmt.Errorf("%w: %s", shared.ErrServiceUnavailable, apiErrorMessage(body, status))
	case status < 200 || status >= 300:
		return nil, fmt.Errorf("%w: %s", shared.ErrAPIRequest, apiErrorMessage(body, status))
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON in album response", shared.ErrAPIRequest)
	}
	return parseAlbum(body), nil
}

// doRequest performs a rate limited GET against the API and returns the body and status code.
func (s *SpotifyService) doRequest(ctx context.Context, endpoint string) ([]byte, int, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", shared.ErrTimeout, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, 0, fmt.Errorf("%w: token request failed: %v", shared.ErrAuthFailed, retrieveErr)
		}
		return nil, 0, fmt.Errorf("%w: %w", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	s.logger.Debug("spotify request", "endpoint", endpoint, "status", resp.StatusCode)
	return body, resp.StatusCode, nil
}

func parseAlbum(body []byte) *AlbumMetadata {
	doc := gjson.ParseBytes(body)
	return &AlbumMetadata{
		AlbumID:              doc.Get("id").String(),
		Title:                doc.Get("name").String(),
		ArtistName:           doc.Get("artists.0.name").String(),
		ArtistID:             doc.Get("artists.0.id").String(),
		ReleaseDate:          doc.Get("release_date").String(),
		ReleaseDatePrecision: precisionOrDefault(doc.Get("release_date_precision").String()),
		CoverArtURL:          doc.Get("images.0.url").String(),
		SpotifyURL:           doc.Get("external_urls.spotify").String(),
		TotalTracks:          int(doc.Get("total_tracks").Int()),
	}
}

func precisionOrDefault(p string) string {
	if p == "" {
		return PrecisionDay
	}
	return p
}

// apiErrorMessage extracts the Web API error message, falling back to the status code.
func apiErrorMessage(body []byte, status int) string {
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() && msg.String() != "" {
		return fmt.Sprintf("spotify API error %d: %s", status, msg.String())
	}
	return "spotify API error: status " + strconv.Itoa(status)
}

var _ MetadataService = (*SpotifyService)(nil)
