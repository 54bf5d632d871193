package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// gridFields limits the spreadsheet response to what extraction reads.
const gridFields = "sheets(properties(title,gridProperties(rowCount))," +
	"data(startRow,startColumn,rowData(values(formattedValue,hyperlink,userEnteredValue,effectiveValue,effectiveFormat(numberFormat)))))"

// SheetsSource opens a spreadsheet through the Google Sheets API.
type SheetsSource struct {
	SpreadsheetID string
	opts          []option.ClientOption
}

// NewSheetsSource creates a [SheetsSource]. An empty credentialsFile uses application default credentials.
func NewSheetsSource(ctx context.Context, spreadsheetID, credentialsFile string, opts ...option.ClientOption) (*SheetsSource, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("%w: spreadsheet id is required", ErrFetch)
	}

	if credentialsFile != "" {
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsReadonlyScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
	}

	return &SheetsSource{SpreadsheetID: spreadsheetID, opts: opts}, nil
}

// Open downloads every tab with its grid data.
func (s *SheetsSource) Open(ctx context.Context) (Workbook, error) {
	srv, err := sheets.NewService(ctx, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create sheets service: %w", ErrFetch, err)
	}

	doc, err := srv.Spreadsheets.Get(s.SpreadsheetID).
		IncludeGridData(true).
		Fields(googleapi.Field(gridFields)).
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: %w", ErrFetch, &HTTPStatusError{StatusCode: apiErr.Code, URL: s.SpreadsheetID})
		}
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	return NewGridWorkbook(doc), nil
}

// GridWorkbook is a [Workbook] over a Sheets API spreadsheet fetched with grid data.
type GridWorkbook struct {
	names  []string
	sheets map[string]*gridSheet
}

// NewGridWorkbook wraps a spreadsheet response.
func NewGridWorkbook(doc *sheets.Spreadsheet) *GridWorkbook {
	wb := &GridWorkbook{sheets: make(map[string]*gridSheet)}
	if doc == nil {
		return wb
	}

	for _, sh := range doc.Sheets {
		if sh == nil || sh.Properties == nil {
			continue
		}
		gs := &gridSheet{name: sh.Properties.Title}
		if gp := sh.Properties.GridProperties; gp != nil {
			gs.rowCount = int(gp.RowCount)
		}
		if len(sh.Data) > 0 && sh.Data[0] != nil {
			gs.data = sh.Data[0]
		}
		wb.names = append(wb.names, gs.name)
		wb.sheets[gs.name] = gs
	}
	return wb
}

func (w *GridWorkbook) SheetNames() []string {
	return append([]string(nil), w.names...)
}

func (w *GridWorkbook) Sheet(name string) (Sheet, error) {
	gs, ok := w.sheets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTabNotFound, name)
	}
	return gs, nil
}

func (w *GridWorkbook) Close() error { return nil }

type gridSheet struct {
	name     string
	rowCount int
	data     *sheets.GridData
}

func (s *gridSheet) Name() string { return s.name }

func (s *gridSheet) Rows() int {
	if s.data != nil {
		if n := int(s.data.StartRow) + len(s.data.RowData); n > 0 && (s.rowCount == 0 || n < s.rowCount) {
			return n
		}
	}
	return s.rowCount
}

func (s *gridSheet) Cell(row, col int) (Cell, error) {
	if row < 1 || col < 1 {
		return Cell{}, fmt.Errorf("%w: invalid cell coordinates (%d, %d)", ErrMalformedValue, row, col)
	}
	if s.data == nil {
		return Cell{}, nil
	}

	r := row - 1 - int(s.data.StartRow)
	c := col - 1 - int(s.data.StartColumn)
	if r < 0 || r >= len(s.data.RowData) || s.data.RowData[r] == nil {
		return Cell{}, nil
	}
	values := s.data.RowData[r].Values
	if c < 0 || c >= len(values) || values[c] == nil {
		return Cell{}, nil
	}
	return gridCell(values[c]), nil
}

func gridCell(cd *sheets.CellData) Cell {
	cell := Cell{Text: cd.FormattedValue, Hyperlink: cd.Hyperlink}

	if uv := cd.UserEnteredValue; uv != nil && uv.FormulaValue != nil {
		cell.Formula = *uv.FormulaValue
	}

	ev := cd.EffectiveValue
	if ev == nil {
		return cell
	}

	switch {
	case ev.NumberValue != nil:
		if isGridDate(cd) {
			cell.Value = serialToTime(*ev.NumberValue)
		} else {
			cell.Value = *ev.NumberValue
		}
	case ev.StringValue != nil:
		cell.Value = *ev.StringValue
	case ev.BoolValue != nil:
		cell.Value = *ev.BoolValue
	}
	return cell
}

func isGridDate(cd *sheets.CellData) bool {
	if cd.EffectiveFormat == nil || cd.EffectiveFormat.NumberFormat == nil {
		return false
	}
	switch cd.EffectiveFormat.NumberFormat.Type {
	case "DATE", "DATE_TIME":
		return true
	}
	return false
}

var (
	_ Workbook = (*GridWorkbook)(nil)
	_ Workbook = (*ExcelWorkbook)(nil)
	_ Source   = (*SheetsSource)(nil)
)
