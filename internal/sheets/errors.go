package sheets

import (
	"errors"
	"fmt"
)

var (
	// ErrHeaderNotFound is returned when no row within the scan window starts with the Artist header
	ErrHeaderNotFound = errors.New("could not find header row with 'Artist' column")

	// ErrMissingColumns is returned when a mandatory column (Artist, Album, Spotify) is absent
	ErrMissingColumns = errors.New("missing required columns")

	// ErrEmptyTab is returned when a tab has no cells at all
	ErrEmptyTab = errors.New("tab is empty")

	// ErrTabNotFound is returned when a tab name is not in the workbook
	ErrTabNotFound = errors.New("tab not found")

	// ErrMalformedValue is returned when a cell cannot be read as its expected type
	ErrMalformedValue = errors.New("malformed cell value")

	// ErrFetch is returned when the workbook cannot be downloaded or opened
	ErrFetch = errors.New("failed to fetch workbook")

	// ErrHTTPStatus is wrapped by [HTTPStatusError]
	ErrHTTPStatus = errors.New("unexpected HTTP status")
)

// HTTPStatusError reports a non-200 response from the workbook source.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("workbook source returned HTTP %d", e.StatusCode)
}

func (e *HTTPStatusError) Unwrap() error {
	return ErrHTTPStatus
}
