package sheets

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExcelWorkbook is a [Workbook] backed by an XLSX document.
type ExcelWorkbook struct {
	f        *excelize.File
	date1904 bool
}

// OpenExcel reads an XLSX document from r.
func OpenExcel(r io.Reader) (*ExcelWorkbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read XLSX: %v", ErrFetch, err)
	}
	return newExcelWorkbook(f), nil
}

// OpenExcelFile reads an XLSX document from disk.
func OpenExcelFile(path string) (*ExcelWorkbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", ErrFetch, path, err)
	}
	return newExcelWorkbook(f), nil
}

func newExcelWorkbook(f *excelize.File) *ExcelWorkbook {
	wb := &ExcelWorkbook{f: f}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		wb.date1904 = *props.Date1904
	}
	return wb
}

func (w *ExcelWorkbook) SheetNames() []string {
	return w.f.GetSheetList()
}

func (w *ExcelWorkbook) Sheet(name string) (Sheet, error) {
	idx, err := w.f.GetSheetIndex(name)
	if err != nil || idx == -1 {
		return nil, fmt.Errorf("%w: %q", ErrTabNotFound, name)
	}
	return &excelSheet{wb: w, name: name}, nil
}

func (w *ExcelWorkbook) Close() error {
	return w.f.Close()
}

type excelSheet struct {
	wb   *ExcelWorkbook
	name string
}

func (s *excelSheet) Name() string { return s.name }

// Rows is the larger of the declared sheet dimension and the counted rows.
// Writers such as excelize leave the dimension at "A1", so it alone cannot be trusted.
func (s *excelSheet) Rows() int {
	declared := 0
	if dim, err := s.wb.f.GetSheetDimension(s.name); err == nil && dim != "" {
		ref := dim
		if i := strings.LastIndex(dim, ":"); i >= 0 {
			ref = dim[i+1:]
		}
		if _, row, err := excelize.CellNameToCoordinates(ref); err == nil {
			declared = row
		}
	}

	rows, err := s.wb.f.GetRows(s.name)
	if err != nil {
		return declared
	}
	return max(declared, len(rows))
}

func (s *excelSheet) Cell(row, col int) (Cell, error) {
	f := s.wb.f

	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return Cell{}, fmt.Errorf("%w: %v", ErrMalformedValue, err)
	}

	text, err := f.GetCellValue(s.name, ref)
	if err != nil {
		return Cell{}, fmt.Errorf("%w: %s!%s: %v", ErrMalformedValue, s.name, ref, err)
	}

	cell := Cell{Text: text}

	if formula, err := f.GetCellFormula(s.name, ref); err == nil && formula != "" {
		if !strings.HasPrefix(formula, "=") {
			formula = "=" + formula
		}
		cell.Formula = formula
	}

	if ok, target, err := f.GetCellHyperLink(s.name, ref); err == nil && ok {
		cell.Hyperlink = target
	}

	value, err := s.nativeValue(ref, text)
	if err != nil {
		return Cell{}, err
	}
	cell.Value = value
	return cell, nil
}

// nativeValue recovers the typed value of a cell, turning date-formatted serials into [time.Time].
func (s *excelSheet) nativeValue(ref, text string) (any, error) {
	f := s.wb.f

	typ, err := f.GetCellType(s.name, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %s!%s: %v", ErrMalformedValue, s.name, ref, err)
	}

	raw, err := f.GetCellValue(s.name, ref, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %s!%s: %v", ErrMalformedValue, s.name, ref, err)
	}

	switch typ {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true"), nil
	case excelize.CellTypeDate:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC(), nil
		}
		return text, nil
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeError:
		if text == "" {
			return nil, nil
		}
		return text, nil
	}

	if raw == "" {
		return nil, nil
	}

	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return text, nil
	}

	if s.isDateStyled(ref) {
		t, err := excelize.ExcelDateToTime(n, s.wb.date1904)
		if err != nil {
			return nil, fmt.Errorf("%w: %s!%s: invalid date serial %v", ErrMalformedValue, s.name, ref, n)
		}
		return t.UTC(), nil
	}
	return n, nil
}

func (s *excelSheet) isDateStyled(ref string) bool {
	idx, err := s.wb.f.GetCellStyle(s.name, ref)
	if err != nil || idx == 0 {
		return false
	}
	style, err := s.wb.f.GetStyle(idx)
	if err != nil || style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		return isDateFormat(*style.CustomNumFmt)
	}
	return isBuiltinDateFormat(style.NumFmt)
}

// isBuiltinDateFormat reports whether a built-in number format id renders a calendar date.
func isBuiltinDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 36, id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormat reports whether a custom number format has day or year tokens outside of
// quoted literals and bracketed sections.
func isDateFormat(format string) bool {
	var (
		quoted  bool
		bracket bool
	)
	for _, c := range strings.ToLower(format) {
		switch {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '[':
			bracket = true
		case c == ']':
			bracket = false
		case bracket:
		case c == 'd', c == 'y':
			return true
		}
	}
	return false
}
