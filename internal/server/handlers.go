package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/progdb/internal/formatter"
	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/shared"
)

const (
	routeSyncStatus  = "GET /api/sync/status"
	routeSyncTrigger = "POST /api/sync/trigger"
	routeSyncCancel  = "POST /api/sync/cancel"
	routeSyncHistory = "GET /api/sync/history"
	routeAlbumCover  = "GET /api/albums/{id}/cover"

	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// SyncController is the sync surface exposed over HTTP.
type SyncController interface {
	Trigger(origin string) (*models.SyncOperation, error)
	Cancel() (string, error)
	Status() (*models.SyncOperation, error)
	History(limit int) ([]*models.SyncRecord, error)
}

// CoverSource resolves album cover URLs.
type CoverSource interface {
	CoverURL(ctx context.Context, spotifyID string) (string, error)
}

// SyncHandler serves the sync control endpoints.
type SyncHandler struct {
	sync   SyncController
	logger *log.Logger
	now    func() time.Time
}

// NewSyncHandler creates a [SyncHandler].
func NewSyncHandler(sync SyncController, logger *log.Logger) *SyncHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &SyncHandler{sync: sync, logger: logger, now: time.Now}
}

// Routes returns the HTTP routes this handler serves.
func (h *SyncHandler) Routes() []string {
	return []string{routeSyncStatus, routeSyncTrigger, routeSyncCancel, routeSyncHistory}
}

// ServeHTTP dispatches on the matched route pattern.
func (h *SyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Pattern {
	case routeSyncStatus:
		h.status(w, r)
	case routeSyncTrigger:
		h.trigger(w, r)
	case routeSyncCancel:
		h.cancel(w, r)
	case routeSyncHistory:
		h.history(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *SyncHandler) status(w http.ResponseWriter, _ *http.Request) {
	op, err := h.sync.Status()
	if errors.Is(err, shared.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no sync has run yet")
		return
	}
	if err != nil {
		h.internalError(w, "failed to load sync status", err)
		return
	}
	writeJSON(w, http.StatusOK, formatter.NewOperationView(op, h.now()))
}

func (h *SyncHandler) trigger(w http.ResponseWriter, r *http.Request) {
	op, err := h.sync.Trigger(RemoteHost(r))
	switch {
	case errors.Is(err, shared.ErrSyncActive):
		body := map[string]string{"error": "A sync is already in progress"}
		if active, err := h.sync.Status(); err == nil && active.IsActive() {
			body["id"] = active.ID()
			body["status"] = string(active.Status)
		}
		writeJSON(w, http.StatusConflict, body)
	case errors.Is(err, shared.ErrRunnerClosed):
		writeError(w, http.StatusServiceUnavailable, "sync runner is shutting down")
	case err != nil:
		h.internalError(w, "failed to trigger sync", err)
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":      op.ID(),
			"status":  string(op.Status),
			"message": "Sync started",
		})
	}
}

func (h *SyncHandler) cancel(w http.ResponseWriter, _ *http.Request) {
	id, err := h.sync.Cancel()
	switch {
	case errors.Is(err, shared.ErrNoActiveSync):
		writeError(w, http.StatusNotFound, "No sync in progress")
	case err != nil:
		h.internalError(w, "failed to cancel sync", err)
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":      id,
			"message": "Cancellation requested",
		})
	}
}

func (h *SyncHandler) history(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.sync.History(limit)
	if err != nil {
		h.internalError(w, "failed to load sync history", err)
		return
	}
	writeJSON(w, http.StatusOK, formatter.NewRecordViews(records))
}

func (h *SyncHandler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

// CoverHandler serves album cover URLs, filling the cache on first request.
type CoverHandler struct {
	covers CoverSource
	logger *log.Logger
}

// NewCoverHandler creates a [CoverHandler].
func NewCoverHandler(covers CoverSource, logger *log.Logger) *CoverHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &CoverHandler{covers: covers, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *CoverHandler) Routes() []string {
	return []string{routeAlbumCover}
}

// ServeHTTP returns {"spotify_album_id", "cover_art_url"}; the URL is null when the album has no cover.
func (h *CoverHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !models.IsSpotifyID(id) {
		writeError(w, http.StatusBadRequest, "invalid Spotify album ID")
		return
	}

	url, err := h.covers.CoverURL(r.Context(), id)
	switch {
	case errors.Is(err, shared.ErrAlbumNotFound):
		writeError(w, http.StatusNotFound, "album not found")
		return
	case errors.Is(err, shared.ErrServiceUnavailable), errors.Is(err, shared.ErrTimeout):
		h.logger.Warn("cover lookup unavailable", "album", id, "error", err)
		writeError(w, http.StatusServiceUnavailable, "cover art is temporarily unavailable")
		return
	case err != nil:
		h.logger.Error("cover lookup failed", "album", id, "error", err)
		writeError(w, http.StatusBadGateway, "cover art lookup failed")
		return
	}

	body := map[string]any{"spotify_album_id": id, "cover_art_url": nil}
	if url != "" {
		body["cover_art_url"] = url
	}
	writeJSON(w, http.StatusOK, body)
}

// RemoteHost returns the client host of r without its port, used as the origin of triggered syncs.
func RemoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewRouter wires the API handlers behind the recovery and logging middleware.
func NewRouter(sync SyncController, covers CoverSource, logger *log.Logger) *BasicRouter {
	router := NewBasicRouter()
	router.Use(Logging(logger), Recover(logger))
	router.Handler(NewSyncHandler(sync, logger))
	if covers != nil {
		router.Handler(NewCoverHandler(covers, logger))
	}
	router.Handle(http.MethodGet, "/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))
	return router
}
