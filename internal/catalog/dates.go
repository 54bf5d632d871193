package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/progdb/internal/sheets"
)

// now is the clock used when a release date has no tab year to complete it.
var now = time.Now

// Free text release dates: "January 15" or "January".
const (
	monthDayLayout = "January 2, 2006"
)

// ParseReleaseDate turns a release date cell into a calendar date.
//
// Native dates keep their month and day but take the tab year when it differs, since the sheet
// omits years and the tab is the authority on them. Free text is parsed as "Month Day" or "Month"
// (day 1) against the tab year, or the current year when year is 0. Anything else yields nil.
func ParseReleaseDate(cell sheets.Cell, year int) *time.Time {
	if d, ok := cell.Date(); ok {
		if year != 0 && d.Year() != year {
			d = withYear(d, year)
		}
		return dateOf(d)
	}

	text := strings.TrimSpace(cell.Text)
	if text == "" {
		if s, ok := cell.Value.(string); ok {
			text = strings.TrimSpace(s)
		}
	}
	if text == "" {
		return nil
	}

	if year == 0 {
		year = now().Year()
	}

	if t, err := time.Parse(monthDayLayout, fmt.Sprintf("%s, %d", text, year)); err == nil {
		return dateOf(t)
	}
	if t, err := time.Parse(monthDayLayout, fmt.Sprintf("%s 1, %d", text, year)); err == nil {
		return dateOf(t)
	}
	return nil
}

// withYear moves d to year, clamping Feb 29 to Feb 28 outside leap years.
func withYear(d time.Time, year int) time.Time {
	moved := time.Date(year, d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	if moved.Month() != d.Month() {
		moved = time.Date(year, d.Month()+1, 0, 0, 0, 0, 0, time.UTC)
	}
	return moved
}

func dateOf(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
