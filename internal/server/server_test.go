package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/shared"
)

const coverAlbumID = "4uLU6hMCjMI75M1A2tKUQC"

type fakeSync struct {
	mu         sync.Mutex
	active     *models.SyncOperation
	latest     *models.SyncOperation
	records    []*models.SyncRecord
	origins    []string
	limits     []int
	triggerErr error
	statusErr  error
}

func (f *fakeSync) Trigger(origin string) (*models.SyncOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.origins = append(f.origins, origin)
	if f.triggerErr != nil {
		return nil, f.triggerErr
	}
	if f.active != nil {
		return nil, shared.ErrSyncActive
	}
	op := models.NewSyncOperation(origin)
	op.SetID(fmt.Sprintf("run-%d", len(f.origins)))
	f.active = op
	return op, nil
}

func (f *fakeSync) Cancel() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == nil {
		return "", shared.ErrNoActiveSync
	}
	f.active.Status = models.StatusCancelled
	id := f.active.ID()
	f.latest, f.active = f.active, nil
	return id, nil
}

func (f *fakeSync) Status() (*models.SyncOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if f.active != nil {
		return f.active, nil
	}
	if f.latest != nil {
		return f.latest, nil
	}
	return nil, fmt.Errorf("%w: no sync operations", shared.ErrNotFound)
}

func (f *fakeSync) History(limit int) ([]*models.SyncRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	if len(f.records) > limit {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func (f *fakeSync) calls() ([]string, []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.origins...), append([]int(nil), f.limits...)
}

type fakeCovers struct {
	urls map[string]string
	err  error
}

func (f *fakeCovers) CoverURL(_ context.Context, id string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	url, ok := f.urls[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", shared.ErrAlbumNotFound, id)
	}
	return url, nil
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestServer(t *testing.T, s SyncController, c CoverSource) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewRouter(s, c, quietLogger()))
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	var body map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("invalid JSON body %q: %v", raw, err)
		}
	}
	return resp, body
}

func TestSyncHandler(t *testing.T) {
	t.Run("status before any sync", func(t *testing.T) {
		srv := newTestServer(t, &fakeSync{}, nil)

		resp, body := doRequest(t, http.MethodGet, srv.URL+"/api/sync/status")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
		if body["error"] == "" {
			t.Error("expected error message")
		}
	})

	t.Run("trigger then status", func(t *testing.T) {
		fake := &fakeSync{}
		srv := newTestServer(t, fake, nil)

		resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/sync/trigger")
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", resp.StatusCode)
		}
		if body["id"] != "run-1" || body["status"] != "pending" {
			t.Errorf("unexpected trigger body: %v", body)
		}
		if origins, _ := fake.calls(); origins[0] != "127.0.0.1" {
			t.Errorf("expected remote host origin, got %q", origins[0])
		}

		resp, body = doRequest(t, http.MethodGet, srv.URL+"/api/sync/status")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if resp.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
		}
		if body["id"] != "run-1" || body["status"] != "pending" || body["is_cancellable"] != true {
			t.Errorf("unexpected status body: %v", body)
		}
		if _, ok := body["total_albums"]; !ok {
			t.Error("status body missing total_albums")
		}
	})

	t.Run("second trigger conflicts", func(t *testing.T) {
		srv := newTestServer(t, &fakeSync{}, nil)

		doRequest(t, http.MethodPost, srv.URL+"/api/sync/trigger")
		resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/sync/trigger")
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("expected 409, got %d", resp.StatusCode)
		}
		if body["id"] != "run-1" {
			t.Errorf("conflict should name the active run, got %v", body)
		}
	})

	t.Run("trigger after shutdown", func(t *testing.T) {
		srv := newTestServer(t, &fakeSync{triggerErr: shared.ErrRunnerClosed}, nil)

		resp, _ := doRequest(t, http.MethodPost, srv.URL+"/api/sync/trigger")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", resp.StatusCode)
		}
	})

	t.Run("trigger storage failure", func(t *testing.T) {
		srv := newTestServer(t, &fakeSync{triggerErr: shared.ErrStorage}, nil)

		resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/sync/trigger")
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", resp.StatusCode)
		}
		if msg, _ := body["error"].(string); strings.Contains(msg, "storage") {
			t.Errorf("internal error leaked to client: %q", msg)
		}
	})

	t.Run("cancel", func(t *testing.T) {
		fake := &fakeSync{}
		srv := newTestServer(t, fake, nil)

		resp, _ := doRequest(t, http.MethodPost, srv.URL+"/api/sync/cancel")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404 with nothing running, got %d", resp.StatusCode)
		}

		doRequest(t, http.MethodPost, srv.URL+"/api/sync/trigger")
		resp, body := doRequest(t, http.MethodPost, srv.URL+"/api/sync/cancel")
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", resp.StatusCode)
		}
		if body["id"] != "run-1" {
			t.Errorf("unexpected cancel body: %v", body)
		}

		_, body = doRequest(t, http.MethodGet, srv.URL+"/api/sync/status")
		if body["status"] != "cancelled" || body["is_cancellable"] != false {
			t.Errorf("expected latest cancelled run, got %v", body)
		}
	})

	t.Run("history", func(t *testing.T) {
		fake := &fakeSync{}
		for i := range 3 {
			rec := models.NewSyncRecord(fmt.Sprintf("run-%d", i))
			rec.AlbumsCreated = i
			rec.Success = true
			fake.records = append(fake.records, rec)
		}
		srv := newTestServer(t, fake, nil)

		resp, err := http.Get(srv.URL + "/api/sync/history?limit=2")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		var records []map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}
		if records[0]["sync_operation_id"] != "run-0" || records[0]["success"] != true {
			t.Errorf("unexpected record: %v", records[0])
		}

		doRequest(t, http.MethodGet, srv.URL+"/api/sync/history")
		doRequest(t, http.MethodGet, srv.URL+"/api/sync/history?limit=5000")
		if _, limits := fake.calls(); limits[1] != defaultHistoryLimit || limits[2] != maxHistoryLimit {
			t.Errorf("unexpected limits %v", limits)
		}
	})

	t.Run("history rejects bad limit", func(t *testing.T) {
		srv := newTestServer(t, &fakeSync{}, nil)

		for _, q := range []string{"abc", "0", "-3"} {
			resp, _ := doRequest(t, http.MethodGet, srv.URL+"/api/sync/history?limit="+q)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("limit=%s: expected 400, got %d", q, resp.StatusCode)
			}
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		srv := newTestServer(t, &fakeSync{}, nil)

		resp, _ := doRequest(t, http.MethodGet, srv.URL+"/api/sync/trigger")
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", resp.StatusCode)
		}
	})
}

func TestCoverHandler(t *testing.T) {
	covers := &fakeCovers{urls: map[string]string{
		coverAlbumID:             "https://i.scdn.co/image/cover",
		"1DFixLWuPkv3KT3TnV35m3": "",
	}}

	tests := []struct {
		name   string
		covers *fakeCovers
		id     string
		status int
		cover  any
	}{
		{"cached cover", covers, coverAlbumID, http.StatusOK, "https://i.scdn.co/image/cover"},
		{"album without cover", covers, "1DFixLWuPkv3KT3TnV35m3", http.StatusOK, nil},
		{"unknown album", covers, "0000000000000000000000", http.StatusNotFound, nil},
		{"malformed id", covers, "not-an-id", http.StatusBadRequest, nil},
		{"upstream unavailable", &fakeCovers{err: shared.ErrServiceUnavailable}, coverAlbumID, http.StatusServiceUnavailable, nil},
		{"upstream failure", &fakeCovers{err: errors.New("boom")}, coverAlbumID, http.StatusBadGateway, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeSync{}, tt.covers)

			resp, body := doRequest(t, http.MethodGet, srv.URL+"/api/albums/"+tt.id+"/cover")
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			if tt.status == http.StatusOK {
				if body["cover_art_url"] != tt.cover {
					t.Errorf("expected cover %v, got %v", tt.cover, body["cover_art_url"])
				}
				if body["spotify_album_id"] != tt.id {
					t.Errorf("unexpected album id %v", body["spotify_album_id"])
				}
			}
		})
	}

	t.Run("not registered without a source", func(t *testing.T) {
		srv := newTestServer(t, &fakeSync{}, nil)
		resp, _ := doRequest(t, http.MethodGet, srv.URL+"/api/albums/"+coverAlbumID+"/cover")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("order", func(t *testing.T) {
		var calls []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					calls = append(calls, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewBasicRouter()
		router.Use(mark("first"), mark("second"))
		router.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls = append(calls, "handler")
		}))

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
		if strings.Join(calls, ",") != "first,second,handler" {
			t.Errorf("unexpected call order %v", calls)
		}
	})

	t.Run("recover", func(t *testing.T) {
		router := NewBasicRouter()
		router.Use(Recover(quietLogger()))
		router.Handle(http.MethodGet, "/panic", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "internal server error") {
			t.Errorf("unexpected body %q", rec.Body.String())
		}
	})

	t.Run("logging records status", func(t *testing.T) {
		var buf strings.Builder
		router := NewBasicRouter()
		router.Use(Logging(log.New(&buf)))
		router.Handle(http.MethodGet, "/teapot", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil))
		out := buf.String()
		if !strings.Contains(out, "status=418") || !strings.Contains(out, "path=/teapot") {
			t.Errorf("unexpected log line %q", out)
		}
	})

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewRouter(&fakeSync{}, nil, quietLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})
}

func TestRemoteHost(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/sync/trigger", nil)
	req.RemoteAddr = "192.0.2.7:51234"
	if got := RemoteHost(req); got != "192.0.2.7" {
		t.Errorf("expected host without port, got %q", got)
	}

	req.RemoteAddr = "unix-socket"
	if got := RemoteHost(req); got != "unix-socket" {
		t.Errorf("expected raw address fallback, got %q", got)
	}
}

func TestServer(t *testing.T) {
	t.Run("shuts down with context", func(t *testing.T) {
		srv := New("127.0.0.1:0", NewBasicRouter(), quietLogger())
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() { done <- srv.Serve(ctx) }()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			if err != nil {
				t.Errorf("expected clean shutdown, got %v", err)
			}
		case <-time.After(shutdownTimeout + time.Second):
			t.Fatal("server did not shut down")
		}
	})

	t.Run("listen error", func(t *testing.T) {
		srv := New("127.0.0.1:-1", NewBasicRouter(), quietLogger())
		if err := srv.Serve(context.Background()); err == nil {
			t.Error("expected listen error")
		}
	})
}
