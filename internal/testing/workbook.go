package testing

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/xuri/excelize/v2"
)

// LinkStyle selects how a fixture row stores its Spotify link.
type LinkStyle int

const (
	LinkHyperlink LinkStyle = iota // display text with a native hyperlink
	LinkFormula                    // =HYPERLINK("url","Listen") formula
	LinkNone                       // plain text, no extractable link
)

// ReleaseRow is one data row of a release tab fixture.
//
// ReleaseDate is written as-is: a time.Time becomes a date-formatted cell, a string stays text.
type ReleaseRow struct {
	Artist      string
	Album       string
	ReleaseDate any
	Genre       string
	VocalStyle  string
	Country     string
	SpotifyID   string
	Link        LinkStyle
}

// ReleaseHeaders is the header row of a release tab fixture.
var ReleaseHeaders = []string{
	"Artist", "Album", "Release Date", "Length", "Genre / Subgenres", "Vocal Style", "Country / State", "Spotify",
}

// AlbumURL returns the Spotify album URL for id.
func AlbumURL(id string) string {
	return "https://open.spotify.com/album/" + id
}

// WorkbookBuilder assembles XLSX fixtures in memory.
type WorkbookBuilder struct {
	t     *testing.T
	f     *excelize.File
	empty bool
}

// NewWorkbookBuilder starts an empty workbook.
func NewWorkbookBuilder(t *testing.T) *WorkbookBuilder {
	t.Helper()
	return &WorkbookBuilder{t: t, f: excelize.NewFile(), empty: true}
}

// sheet creates a new tab, reusing the default first sheet for the first call.
func (b *WorkbookBuilder) sheet(name string) {
	b.t.Helper()
	if b.empty {
		if err := b.f.SetSheetName(b.f.GetSheetName(0), name); err != nil {
			b.t.Fatalf("failed to rename sheet: %v", err)
		}
		b.empty = false
		return
	}
	if _, err := b.f.NewSheet(name); err != nil {
		b.t.Fatalf("failed to create sheet %q: %v", name, err)
	}
}

// AddReleaseTab adds a tab with a title row, the release headers on row 2 and one row per release.
func (b *WorkbookBuilder) AddReleaseTab(name string, rows ...ReleaseRow) *WorkbookBuilder {
	b.t.Helper()
	b.sheet(name)

	b.set(name, 1, 1, name+" releases")
	for i, h := range ReleaseHeaders {
		b.set(name, 2, i+1, h)
	}

	for i, r := range rows {
		row := i + 3
		b.set(name, row, 1, r.Artist)
		b.set(name, row, 2, r.Album)
		if r.ReleaseDate != nil {
			b.set(name, row, 3, r.ReleaseDate)
		}
		b.set(name, row, 5, r.Genre)
		b.set(name, row, 6, r.VocalStyle)
		b.set(name, row, 7, r.Country)
		b.link(name, row, 8, r)
	}
	return b
}

// AddSheet adds a tab with arbitrary cells keyed by A1 reference.
func (b *WorkbookBuilder) AddSheet(name string, cells map[string]any) *WorkbookBuilder {
	b.t.Helper()
	b.sheet(name)
	for ref, v := range cells {
		if err := b.f.SetCellValue(name, ref, v); err != nil {
			b.t.Fatalf("failed to set %s!%s: %v", name, ref, err)
		}
	}
	return b
}

func (b *WorkbookBuilder) set(sheet string, row, col int, v any) {
	b.t.Helper()
	if s, ok := v.(string); ok && s == "" {
		return
	}
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		b.t.Fatalf("invalid coordinates: %v", err)
	}
	if err := b.f.SetCellValue(sheet, ref, v); err != nil {
		b.t.Fatalf("failed to set %s!%s: %v", sheet, ref, err)
	}
}

func (b *WorkbookBuilder) link(sheet string, row, col int, r ReleaseRow) {
	b.t.Helper()
	if r.SpotifyID == "" {
		return
	}
	ref, _ := excelize.CoordinatesToCellName(col, row)
	url := AlbumURL(r.SpotifyID)

	var err error
	switch r.Link {
	case LinkHyperlink:
		if err = b.f.SetCellValue(sheet, ref, "Listen"); err == nil {
			err = b.f.SetCellHyperLink(sheet, ref, url, "External")
		}
	case LinkFormula:
		err = b.f.SetCellFormula(sheet, ref, fmt.Sprintf(`HYPERLINK("%s","Listen")`, url))
	case LinkNone:
		err = b.f.SetCellValue(sheet, ref, "Listen")
	}
	if err != nil {
		b.t.Fatalf("failed to write link %s!%s: %v", sheet, ref, err)
	}
}

// File returns the underlying workbook.
func (b *WorkbookBuilder) File() *excelize.File {
	return b.f
}

// Bytes serializes the workbook as XLSX.
func (b *WorkbookBuilder) Bytes() []byte {
	b.t.Helper()
	buf, err := b.f.WriteToBuffer()
	if err != nil {
		b.t.Fatalf("failed to write workbook: %v", err)
	}
	return bytes.Clone(buf.Bytes())
}

// Save writes the workbook to path.
func (b *WorkbookBuilder) Save(path string) {
	b.t.Helper()
	if err := b.f.SaveAs(path); err != nil {
		b.t.Fatalf("failed to save workbook: %v", err)
	}
}
