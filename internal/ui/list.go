package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/progdb/internal/models"
)

var (
	_ list.Item = recordItem{}
)

// recordItem wraps [models.SyncRecord] to implement [list.Item].
type recordItem struct {
	record *models.SyncRecord
}

func (i recordItem) FilterValue() string { return i.record.SyncOperationID }
func (i recordItem) Title() string {
	mark := "✓"
	if !i.record.Success {
		mark = "✗"
	}
	return fmt.Sprintf("%s %s  +%d created", mark, i.record.SyncedAt.Local().Format(time.DateTime), i.record.AlbumsCreated)
}
func (i recordItem) Description() string {
	if i.record.ErrorMessage != "" {
		return i.record.ErrorMessage
	}
	return fmt.Sprintf("%d updated • %d skipped • %d in catalog",
		i.record.AlbumsUpdated, i.record.AlbumsSkipped, i.record.TotalAlbumsInCatalog)
}
