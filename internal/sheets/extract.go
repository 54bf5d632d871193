package sheets

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
)

// Column headers of the release sheet.
const (
	ColumnArtist      = "Artist"
	ColumnAlbum       = "Album"
	ColumnReleaseDate = "Release Date"
	ColumnLength      = "Length"
	ColumnGenre       = "Genre / Subgenres"
	ColumnVocalStyle  = "Vocal Style"
	ColumnCountry     = "Country / State"
	ColumnSpotify     = "Spotify"
)

// HeaderScanRows is how many leading rows are searched for the header row.
const HeaderScanRows = 20

// MaxDataRows bounds the data scan of a tab whose Artist column never runs empty.
const MaxDataRows = 10000

// maxHeaderColumns bounds the header scan on sheets with no trailing empty cell.
const maxHeaderColumns = 256

const hyperlinkMarker = "=HYPERLINK"

var (
	// ExpectedColumns are the headers a well-formed tab carries. Missing ones are logged.
	ExpectedColumns = []string{
		ColumnArtist, ColumnAlbum, ColumnReleaseDate, ColumnLength,
		ColumnGenre, ColumnVocalStyle, ColumnCountry, ColumnSpotify,
	}

	// RequiredColumns must all be present for a tab to be read.
	RequiredColumns = []string{ColumnArtist, ColumnAlbum, ColumnSpotify}

	hyperlinkFormulaPattern = regexp.MustCompile(`=HYPERLINK\("([^"]+)"`)
	spotifyAlbumPattern     = regexp.MustCompile(`open\.spotify\.com/album/([a-zA-Z0-9]{22})`)
)

// CandidateRow is one data row that passed extraction and can be merged into the catalog.
type CandidateRow struct {
	Tab         string
	Row         int
	Artist      string
	Album       string
	ReleaseDate Cell // native value preserved; see [Cell.Date]
	Genre       string
	VocalStyle  string
	Country     string
	SpotifyURL  string
	SpotifyID   string
	TabYear     int // 0 when the tab has no year
}

// FindHeaderRow returns the 1-based row whose first cell is exactly "Artist".
func FindHeaderRow(sheet Sheet) (int, error) {
	for row := 1; row <= HeaderScanRows; row++ {
		cell, err := sheet.Cell(row, 1)
		if err != nil {
			return 0, err
		}
		if cell.Text == ColumnArtist {
			return row, nil
		}
	}
	return 0, fmt.Errorf("%w in tab %q", ErrHeaderNotFound, sheet.Name())
}

// ExtractURL returns the link target of a cell: its hyperlink, else the URL argument of a HYPERLINK formula.
func ExtractURL(cell Cell) (string, bool) {
	if target := strings.TrimSpace(cell.Hyperlink); target != "" {
		return target, true
	}

	for _, candidate := range []string{cell.Formula, cell.Text} {
		if !strings.HasPrefix(candidate, hyperlinkMarker) {
			continue
		}
		if m := hyperlinkFormulaPattern.FindStringSubmatch(candidate); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// ExtractAlbumID pulls the 22-character Spotify album id out of a URL.
func ExtractAlbumID(url string) (string, bool) {
	m := spotifyAlbumPattern.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// FetchAlbumsFromTab extracts candidate rows from one tab.
//
// Rows are read from just below the header until the first row with an empty Artist cell.
// Rows lacking an album title or a Spotify album link are skipped. tabYear is attached to every row
// for release date completion; pass 0 when the tab has no year.
func FetchAlbumsFromTab(wb Workbook, tabName string, tabYear int, logger *log.Logger) ([]CandidateRow, error) {
	sheet, err := wb.Sheet(tabName)
	if err != nil {
		return nil, err
	}

	if sheet.Rows() == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyTab, tabName)
	}

	headerRow, err := FindHeaderRow(sheet)
	if err != nil {
		return nil, err
	}

	columns, err := headerColumns(sheet, headerRow)
	if err != nil {
		return nil, err
	}

	if missing := missingColumns(columns, ExpectedColumns); len(missing) > 0 && logger != nil {
		logger.Warn("tab is missing expected columns", "tab", tabName, "missing", missing)
	}
	if missing := missingColumns(columns, RequiredColumns); len(missing) > 0 {
		return nil, fmt.Errorf("%w in tab %q: %s", ErrMissingColumns, tabName, strings.Join(missing, ", "))
	}

	read := func(row int, column string) (Cell, error) {
		col, ok := columns[column]
		if !ok {
			return Cell{}, nil
		}
		return sheet.Cell(row, col)
	}
	text := func(row int, column string) (string, error) {
		c, err := read(row, column)
		return strings.TrimSpace(c.Text), err
	}

	var (
		rows    []CandidateRow
		skipped int
	)

	for row := headerRow + 1; row <= headerRow+MaxDataRows; row++ {
		artist, err := text(row, ColumnArtist)
		if err != nil {
			return nil, err
		}
		if artist == "" {
			break
		}

		album, err := text(row, ColumnAlbum)
		if err != nil {
			return nil, err
		}
		if album == "" {
			skipped++
			continue
		}

		linkCell, err := read(row, ColumnSpotify)
		if err != nil {
			return nil, err
		}
		url, ok := ExtractURL(linkCell)
		if !ok {
			skipped++
			continue
		}
		id, ok := ExtractAlbumID(url)
		if !ok {
			if logger != nil {
				logger.Debug("skipping row without a spotify album link", "tab", tabName, "row", row, "url", url)
			}
			skipped++
			continue
		}

		candidate := CandidateRow{
			Tab:        tabName,
			Row:        row,
			Artist:     artist,
			Album:      album,
			SpotifyURL: url,
			SpotifyID:  id,
			TabYear:    tabYear,
		}

		if candidate.ReleaseDate, err = read(row, ColumnReleaseDate); err != nil {
			return nil, err
		}
		if candidate.Genre, err = text(row, ColumnGenre); err != nil {
			return nil, err
		}
		if candidate.VocalStyle, err = text(row, ColumnVocalStyle); err != nil {
			return nil, err
		}
		if candidate.Country, err = text(row, ColumnCountry); err != nil {
			return nil, err
		}

		rows = append(rows, candidate)
	}

	if logger != nil {
		logger.Info("extracted albums from tab", "tab", tabName, "albums", len(rows), "skipped", skipped)
	}
	return rows, nil
}

// headerColumns maps header text to 1-based column, reading until the first empty header cell.
func headerColumns(sheet Sheet, headerRow int) (map[string]int, error) {
	columns := make(map[string]int)
	for col := 1; col <= maxHeaderColumns; col++ {
		cell, err := sheet.Cell(headerRow, col)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSpace(cell.Text)
		if name == "" {
			break
		}
		if _, dup := columns[name]; !dup {
			columns[name] = col
		}
	}
	return columns, nil
}

func missingColumns(columns map[string]int, want []string) []string {
	var missing []string
	for _, name := range want {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
