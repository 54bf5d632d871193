package tasks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"syscall"

	"google.golang.org/api/googleapi"

	"github.com/desertthunder/progdb/internal/shared"
	"github.com/desertthunder/progdb/internal/sheets"
)

// Action is what the orchestrator does after a fault.
type Action int

const (
	Abort   Action = iota // stop the run
	SkipTab               // record the tab as failed and move on
	SkipRow               // count the row as failed and move on
)

func (a Action) String() string {
	switch a {
	case Abort:
		return "abort"
	case SkipTab:
		return "skip_tab"
	case SkipRow:
		return "skip_row"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// Category groups faults by the message shown to users.
type Category string

const (
	CategoryNetwork      Category = "network"
	CategoryTimeout      Category = "timeout"
	CategoryHTTP         Category = "http"
	CategoryStorage      Category = "storage"
	CategoryHeader       Category = "header"
	CategoryColumns      Category = "columns"
	CategoryStructure    Category = "structure"
	CategoryMalformed    Category = "malformed"
	CategoryNoTabs       Category = "no_tabs"
	CategoryCancelled    Category = "cancelled"
	CategoryUnclassified Category = "unclassified"
)

// Decision is the classified outcome of a fault.
type Decision struct {
	Action   Action
	Category Category
	Message  string // short, user-facing; never the raw error
}

// ErrNoTabs is returned when a workbook has no in-scope release tabs.
var ErrNoTabs = errors.New("no release tabs found in workbook")

// Classify decides whether a tab-scope fault aborts the run.
//
// Precedence, most severe first: shutdown, unreachable network, storage failures, then the tab-local
// faults (layout, malformed values, timeouts). Anything else skips the tab and is reported as
// unclassified.
func Classify(err error) Decision {
	switch {
	case errors.Is(err, context.Canceled):
		return Decision{Abort, CategoryCancelled, "Synchronization was interrupted before it could finish."}
	case isUnreachable(err):
		return Decision{Abort, CategoryNetwork,
			"Unable to reach external services. Check your internet connection and verify that the spreadsheet and Spotify are accessible."}
	case isStorage(err):
		return Decision{Abort, CategoryStorage,
			"Synchronization failed while reading or writing the catalog database."}
	case errors.Is(err, ErrNoTabs):
		return Decision{Abort, CategoryNoTabs,
			"No release tabs were found in the spreadsheet. Verify the source URL and that the tab names have not changed."}
	case errors.Is(err, sheets.ErrHeaderNotFound):
		return Decision{SkipTab, CategoryHeader,
			"Spreadsheet configuration error: unable to find the expected header row. Verify the sheet format has not changed."}
	case errors.Is(err, sheets.ErrMissingColumns):
		return Decision{SkipTab, CategoryColumns,
			"Spreadsheet configuration error: missing expected columns. Verify the sheet contains Artist, Album and Spotify columns."}
	case errors.Is(err, sheets.ErrEmptyTab), errors.Is(err, sheets.ErrTabNotFound):
		return Decision{SkipTab, CategoryStructure, "Spreadsheet tab has no readable data or was not found."}
	case errors.Is(err, sheets.ErrMalformedValue), errors.Is(err, shared.ErrInvalidInput):
		return Decision{SkipTab, CategoryMalformed, "Spreadsheet contains values that could not be read."}
	case isTimeout(err):
		return Decision{SkipTab, CategoryTimeout,
			"Request timed out while fetching data. The external services may be slow or unavailable. Please try again later."}
	case httpStatus(err) != 0:
		return Decision{SkipTab, CategoryHTTP, fmt.Sprintf(
			"HTTP error %d while fetching data. The external service may be temporarily unavailable.", httpStatus(err))}
	default:
		return Decision{SkipTab, CategoryUnclassified, "Synchronization hit an unexpected error. See the server log for details."}
	}
}

// ClassifyRow decides the fate of a fault raised while importing a single row.
// Row faults never stop the tab; only a shutdown stops the run.
func ClassifyRow(err error) Decision {
	d := Classify(err)
	if d.Category == CategoryCancelled {
		return d
	}
	d.Action = SkipRow
	return d
}

// ClassifyRun classifies a fault raised before or outside the tab loop. Every such fault is fatal.
func ClassifyRun(err error) Decision {
	d := Classify(err)
	d.Action = Abort
	return d
}

// isUnreachable matches connection-level failures that are not timeouts.
func isUnreachable(err error) bool {
	if isTimeout(err) {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH)
}

func isStorage(err error) bool {
	if errors.Is(err, shared.ErrStorage) {
		return true
	}
	var pathErr *fs.PathError
	return errors.As(err, &pathErr)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, shared.ErrTimeout) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// httpStatus returns the status code of an HTTP fault from either workbook source, or 0.
func httpStatus(err error) int {
	var statusErr *sheets.HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
