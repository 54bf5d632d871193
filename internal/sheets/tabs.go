package sheets

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
)

// TabDescriptor describes one usable tab of a fetched workbook.
type TabDescriptor struct {
	RawLabel      string // label as stored in the workbook
	Label         string // trimmed, validated label
	Year          int    // release year, valid when HasYear
	HasYear       bool
	Position      int // 0-based position in the workbook
	InScope       bool
	EstimatedRows int
}

func (t TabDescriptor) String() string {
	if t.HasYear {
		return fmt.Sprintf("%s (%d)", t.Label, t.Year)
	}
	return t.Label
}

// Enumerate describes every tab in source order. Tabs with unusable labels are dropped with a warning.
func Enumerate(wb Workbook, logger *log.Logger) []TabDescriptor {
	var tabs []TabDescriptor

	for pos, raw := range wb.SheetNames() {
		label, ok := NormalizeLabel(raw)
		if !ok {
			if logger != nil {
				logger.Warn("skipping tab with invalid label", "label", raw, "position", pos)
			}
			continue
		}

		tab := TabDescriptor{
			RawLabel: raw,
			Label:    label,
			Position: pos,
			InScope:  IsInScope(label),
		}
		tab.Year, tab.HasYear = ExtractYear(label)

		if sheet, err := wb.Sheet(raw); err == nil {
			tab.EstimatedRows = sheet.Rows()
		}

		tabs = append(tabs, tab)
	}

	if logger != nil {
		logger.Debug("enumerated tabs", "count", len(tabs))
	}
	return tabs
}

// Filter keeps in-scope tabs.
func Filter(tabs []TabDescriptor) []TabDescriptor {
	out := make([]TabDescriptor, 0, len(tabs))
	for _, t := range tabs {
		if t.InScope {
			out = append(out, t)
		}
	}
	return out
}

// SortChronologically orders dated tabs by ascending year, followed by undated tabs.
// Ties and undated tabs keep their input order.
func SortChronologically(tabs []TabDescriptor) []TabDescriptor {
	dated := make([]TabDescriptor, 0, len(tabs))
	var undated []TabDescriptor
	for _, t := range tabs {
		if t.HasYear {
			dated = append(dated, t)
		} else {
			undated = append(undated, t)
		}
	}

	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].Year < dated[j].Year
	})
	return append(dated, undated...)
}
