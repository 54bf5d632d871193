package sheets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-retryablehttp"
)

// DefaultFetchTimeout bounds a whole export download, retries included.
const DefaultFetchTimeout = 30 * time.Second

// maxWorkbookSize caps the export body read into memory.
const maxWorkbookSize = 64 << 20

// ExportSource downloads an XLSX export over HTTP, retrying transient failures.
type ExportSource struct {
	URL     string
	client  *retryablehttp.Client
	timeout time.Duration
	maxSize int64
}

// NewExportSource creates an [ExportSource]. A zero timeout uses [DefaultFetchTimeout].
func NewExportSource(url string, timeout time.Duration, retryMax int, logger *log.Logger) *ExportSource {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = timeout
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if logger != nil {
		client.Logger = leveledLogger{logger}
	} else {
		client.Logger = nil
	}

	return &ExportSource{URL: url, client: client, timeout: timeout, maxSize: maxWorkbookSize}
}

// Open downloads and parses the workbook.
func (s *ExportSource) Open(ctx context.Context) (Workbook, error) {
	if s.URL == "" {
		return nil, fmt.Errorf("%w: export URL is not configured", ErrFetch)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrFetch, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %w", ErrFetch, &HTTPStatusError{StatusCode: resp.StatusCode, URL: s.URL})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrFetch, err)
	}
	if int64(len(body)) > s.maxSize {
		return nil, fmt.Errorf("%w: workbook too large (over %d bytes)", ErrFetch, s.maxSize)
	}

	return OpenExcel(bytes.NewReader(body))
}

// FileSource opens a local XLSX file.
type FileSource struct {
	Path string
}

func (s FileSource) Open(ctx context.Context) (Workbook, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return OpenExcelFile(s.Path)
}

// leveledLogger adapts a charmbracelet logger to [retryablehttp.LeveledLogger].
type leveledLogger struct {
	l *log.Logger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.l.Error(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.l.Debug(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.l.Debug(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.l.Warn(msg, kv...) }

var (
	_ Source                      = (*ExportSource)(nil)
	_ Source                      = FileSource{}
	_ retryablehttp.LeveledLogger = leveledLogger{}
)
