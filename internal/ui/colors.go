package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/progdb/internal/models"
)

var styles = newPalette("#7D56F4", "#04B575", "#FF5F56", "#FFA500", "#626262")

// palette holds the dashboard styles.
type palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func newPalette(title, ok, fail, warn, muted string) *palette {
	return &palette{
		title: bold(title).MarginBottom(1),
		ok:    bold(ok),
		err:   bold(fail),
		warn:  fg(warn),
		help:  fg(muted).Italic(true),
	}
}

// status picks the style a run's status is shown in.
func (p *palette) status(s models.SyncStatus) lipgloss.Style {
	switch s {
	case models.StatusCompleted:
		return p.ok
	case models.StatusFailed:
		return p.err
	case models.StatusCancelled, models.StatusPending:
		return p.warn
	default:
		return p.title.UnsetMarginBottom()
	}
}

func fg(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

func bold(color string) lipgloss.Style {
	return fg(color).Bold(true)
}
