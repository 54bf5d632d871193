// Package sheets reads the release spreadsheet: it classifies and orders tabs, then extracts candidate
// album rows from each in-scope tab.
//
// Workbooks come from an XLSX export (read with excelize) or from the Google Sheets API. Both expose
// cells through [Cell], which keeps the native value, the display text, any hyperlink target and any
// formula, so link recovery and date handling work the same for either source.
package sheets

import (
	"context"
	"strings"
	"time"
)

// Cell is one spreadsheet cell.
//
// Value holds the native value: string, float64, bool, time.Time for date-formatted numbers, or nil when empty.
type Cell struct {
	Value     any
	Text      string
	Hyperlink string
	Formula   string
}

// IsEmpty reports whether the cell carries no value and no text.
func (c Cell) IsEmpty() bool {
	return c.Value == nil && strings.TrimSpace(c.Text) == ""
}

// Date returns the native date value, if the cell holds one.
func (c Cell) Date() (time.Time, bool) {
	t, ok := c.Value.(time.Time)
	return t, ok
}

// Sheet is one tab of a [Workbook]. Rows and columns are 1-based.
type Sheet interface {
	Name() string
	// Rows estimates the used rows; 0 means the tab has no cells.
	Rows() int
	Cell(row, col int) (Cell, error)
}

// Workbook is a fetched spreadsheet.
type Workbook interface {
	// SheetNames lists tab labels in source order.
	SheetNames() []string
	// Sheet returns the tab with the exact given label or [ErrTabNotFound].
	Sheet(name string) (Sheet, error)
	Close() error
}

// Source fetches a [Workbook].
type Source interface {
	Open(ctx context.Context) (Workbook, error)
}

// serialEpoch is day zero of spreadsheet date serials in the 1900 date system.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// serialToTime converts a spreadsheet date serial to a UTC time.
func serialToTime(serial float64) time.Time {
	days := int(serial)
	frac := serial - float64(days)
	return serialEpoch.AddDate(0, 0, days).Add(time.Duration(frac * float64(24*time.Hour))).Round(time.Second)
}
