// API client for a running progdb server
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/shared"
)

// Server API paths.
const (
	PathSyncStatus  = "/api/sync/status"
	PathSyncTrigger = "/api/sync/trigger"
	PathSyncCancel  = "/api/sync/cancel"
	PathSyncHistory = "/api/sync/history"
)

// APIService provides methods for making raw HTTP requests to a progdb server.
type APIService struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIService creates a new API service instance for the server at baseURL.
func NewAPIService(baseURL string, client *http.Client) *APIService {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		baseURL:    baseURL,
		httpClient: client,
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Field returns a JSON field of the body by gjson path, or "" when absent.
func (r *APIResponse) Field(path string) string {
	if !r.IsJSON {
		return ""
	}
	return gjson.GetBytes(r.Body, path).String()
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.do(ctx, http.MethodPost, path, data)
}

func (a *APIService) do(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	fullURL := a.baseURL + path

	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
	}

	var jsonData any
	if err := json.Unmarshal(raw, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// TriggerSync asks the server to start a sync and returns the new run's id.
func (a *APIService) TriggerSync(ctx context.Context) (string, error) {
	resp, err := a.Post(ctx, PathSyncTrigger, nil)
	if err != nil {
		return "", err
	}

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusOK:
		return resp.Field("id"), nil
	case http.StatusConflict:
		return resp.Field("id"), shared.ErrSyncActive
	default:
		return "", unexpectedStatus(resp)
	}
}

// CancelSync asks the server to cancel the active sync and returns its id.
func (a *APIService) CancelSync(ctx context.Context) (string, error) {
	resp, err := a.Post(ctx, PathSyncCancel, nil)
	if err != nil {
		return "", err
	}

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusOK:
		return resp.Field("id"), nil
	case http.StatusNotFound:
		return "", shared.ErrNoActiveSync
	default:
		return "", unexpectedStatus(resp)
	}
}

// SyncStatus fetches the current (or most recent) sync operation as JSON.
func (a *APIService) SyncStatus(ctx context.Context) (*APIResponse, error) {
	resp, err := a.Get(ctx, PathSyncStatus)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return resp, unexpectedStatus(resp)
	}
	return resp, nil
}

// SyncHistory fetches up to limit sync records, newest first.
func (a *APIService) SyncHistory(ctx context.Context, limit int) ([]*models.SyncRecord, error) {
	path := PathSyncHistory
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	resp, err := a.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, unexpectedStatus(resp)
	}

	var records []*models.SyncRecord
	for _, item := range gjson.ParseBytes(resp.Body).Array() {
		rec := models.NewSyncRecord(item.Get("sync_operation_id").String())
		rec.SetID(item.Get("id").String())
		rec.SyncedAt = parseTime(item.Get("synced_at"))
		rec.SetCreatedAt(rec.SyncedAt)
		rec.AlbumsCreated = int(item.Get("albums_created").Int())
		rec.AlbumsUpdated = int(item.Get("albums_updated").Int())
		rec.AlbumsSkipped = int(item.Get("albums_skipped").Int())
		rec.TotalAlbumsInCatalog = int(item.Get("total_albums_in_catalog").Int())
		rec.Success = item.Get("success").Bool()
		rec.ErrorMessage = item.Get("error_message").String()
		records = append(records, rec)
	}
	return records, nil
}

// SyncOperation fetches the current (or most recent) sync operation.
//
// Returns [shared.ErrNotFound] when the server has never run a sync.
func (a *APIService) SyncOperation(ctx context.Context) (*models.SyncOperation, error) {
	resp, err := a.Get(ctx, PathSyncStatus)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return decodeOperation(gjson.ParseBytes(resp.Body)), nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: no sync operations", shared.ErrNotFound)
	default:
		return nil, unexpectedStatus(resp)
	}
}

// SyncClient exposes a remote server's sync endpoints with the method set of a local sync runner.
type SyncClient struct {
	api *APIService
	ctx context.Context
}

// SyncClient binds the sync endpoints to ctx.
func (a *APIService) SyncClient(ctx context.Context) *SyncClient {
	return &SyncClient{api: a, ctx: ctx}
}

// Trigger starts a sync on the server. The server records the caller's address as the origin.
func (c *SyncClient) Trigger(string) (*models.SyncOperation, error) {
	id, err := c.api.TriggerSync(c.ctx)
	if err != nil {
		return nil, err
	}
	op := models.NewSyncOperation("")
	op.SetID(id)
	return op, nil
}

func (c *SyncClient) Cancel() (string, error) { return c.api.CancelSync(c.ctx) }

func (c *SyncClient) Status() (*models.SyncOperation, error) { return c.api.SyncOperation(c.ctx) }

func (c *SyncClient) History(limit int) ([]*models.SyncRecord, error) {
	return c.api.SyncHistory(c.ctx, limit)
}

func decodeOperation(v gjson.Result) *models.SyncOperation {
	op := models.NewSyncOperation(v.Get("created_by").String())
	op.SetID(v.Get("id").String())
	op.Status = models.SyncStatus(v.Get("status").String())
	op.Stage = models.SyncStage(v.Get("stage").String())
	op.StageMessage = v.Get("stage_message").String()
	op.AlbumsProcessed = int(v.Get("albums_processed").Int())
	if total := v.Get("total_albums"); total.Exists() && total.Type != gjson.Null {
		n := int(total.Int())
		op.TotalAlbums = &n
	}
	op.CurrentTab = v.Get("current_tab").String()
	op.ErrorMessage = v.Get("error_message").String()
	if created := parseTime(v.Get("created_at")); !created.IsZero() {
		op.SetCreatedAt(created)
	}
	if started := parseTime(v.Get("started_at")); !started.IsZero() {
		op.StartedAt = &started
	}
	if completed := parseTime(v.Get("completed_at")); !completed.IsZero() {
		op.CompletedAt = &completed
	}
	return op
}

func parseTime(v gjson.Result) time.Time {
	if v.Type != gjson.String {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v.String())
	if err != nil {
		return time.Time{}
	}
	return t
}

func unexpectedStatus(resp *APIResponse) error {
	if msg := resp.Field("error"); msg != "" {
		return fmt.Errorf("%w: server returned %d: %s", shared.ErrAPIRequest, resp.StatusCode, msg)
	}
	return fmt.Errorf("%w: server returned %d", shared.ErrAPIRequest, resp.StatusCode)
}
