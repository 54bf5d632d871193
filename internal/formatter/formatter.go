// package formatter renders sync runs, sync history and catalog albums as text, JSON, CSV or Markdown
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/shared"
)

// Format selects an output encoding.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a user-supplied format name. The empty string means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatCSV, FormatMarkdown:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (expected text, json, csv or markdown)", shared.ErrInvalidFlag, s)
	}
}

// OperationView is the wire shape of a [models.SyncOperation], shared by the HTTP API and the CLI.
type OperationView struct {
	ID                 string            `json:"id"`
	Status             models.SyncStatus `json:"status"`
	Stage              models.SyncStage  `json:"stage"`
	StageMessage       string            `json:"stage_message"`
	AlbumsProcessed    int               `json:"albums_processed"`
	TotalAlbums        *int              `json:"total_albums"`
	CurrentTab         string            `json:"current_tab"`
	ErrorMessage       string            `json:"error_message"`
	CreatedBy          string            `json:"created_by"`
	CreatedAt          time.Time         `json:"created_at"`
	StartedAt          *time.Time        `json:"started_at"`
	CompletedAt        *time.Time        `json:"completed_at"`
	ProgressPercentage *int              `json:"progress_percentage"`
	DurationSeconds    *float64          `json:"duration_seconds"`
	IsCancellable      bool              `json:"is_cancellable"`
	DisplayStatus      string            `json:"display_status"`
}

// NewOperationView snapshots op, measuring the duration of a running op up to now.
func NewOperationView(op *models.SyncOperation, now time.Time) OperationView {
	v := OperationView{
		ID:              op.ID(),
		Status:          op.Status,
		Stage:           op.Stage,
		StageMessage:    op.StageMessage,
		AlbumsProcessed: op.AlbumsProcessed,
		TotalAlbums:     op.TotalAlbums,
		CurrentTab:      op.CurrentTab,
		ErrorMessage:    op.ErrorMessage,
		CreatedBy:       op.CreatedBy,
		CreatedAt:       op.CreatedAt(),
		StartedAt:       op.StartedAt,
		CompletedAt:     op.CompletedAt,
		IsCancellable:   op.IsCancellable(),
		DisplayStatus:   op.DisplayStatus(),
	}
	if pct, ok := op.ProgressPercentage(); ok {
		v.ProgressPercentage = &pct
	}
	if d, ok := op.Duration(now); ok {
		secs := d.Round(time.Millisecond).Seconds()
		v.DurationSeconds = &secs
	}
	return v
}

// RecordView is the wire shape of a [models.SyncRecord].
type RecordView struct {
	ID                   string    `json:"id"`
	SyncOperationID      string    `json:"sync_operation_id"`
	SyncedAt             time.Time `json:"synced_at"`
	AlbumsCreated        int       `json:"albums_created"`
	AlbumsUpdated        int       `json:"albums_updated"`
	AlbumsSkipped        int       `json:"albums_skipped"`
	TotalAlbumsInCatalog int       `json:"total_albums_in_catalog"`
	Success              bool      `json:"success"`
	ErrorMessage         string    `json:"error_message"`
}

// NewRecordViews converts records preserving their order.
func NewRecordViews(records []*models.SyncRecord) []RecordView {
	views := make([]RecordView, 0, len(records))
	for _, r := range records {
		views = append(views, RecordView{
			ID:                   r.ID(),
			SyncOperationID:      r.SyncOperationID,
			SyncedAt:             r.SyncedAt,
			AlbumsCreated:        r.AlbumsCreated,
			AlbumsUpdated:        r.AlbumsUpdated,
			AlbumsSkipped:        r.AlbumsSkipped,
			TotalAlbumsInCatalog: r.TotalAlbumsInCatalog,
			Success:              r.Success,
			ErrorMessage:         r.ErrorMessage,
		})
	}
	return views
}

// AlbumView is a catalog album with its related names resolved.
type AlbumView struct {
	SpotifyAlbumID string   `json:"spotify_album_id"`
	Title          string   `json:"title"`
	Artist         string   `json:"artist"`
	Country        string   `json:"country,omitempty"`
	Genres         []string `json:"genres"`
	VocalStyle     string   `json:"vocal_style,omitempty"`
	ReleaseDate    string   `json:"release_date"`
	SpotifyURL     string   `json:"spotify_url"`
	CoverArtURL    string   `json:"cover_art_url,omitempty"`
	SourceTab      string   `json:"source_tab,omitempty"`
}

// NewAlbumView builds an [AlbumView] from an album and its already-resolved relations.
//
// artist and style may be nil when the relation could not be loaded.
func NewAlbumView(album *models.Album, artist *models.Artist, style *models.VocalStyle, genres []string) AlbumView {
	v := AlbumView{
		SpotifyAlbumID: album.SpotifyAlbumID,
		Title:          album.Title,
		Genres:         genres,
		ReleaseDate:    album.FormattedReleaseDate(),
		SpotifyURL:     album.SpotifyURL,
		CoverArtURL:    album.CoverArtURL,
		SourceTab:      album.SourceTab,
	}
	if v.Genres == nil {
		v.Genres = []string{}
	}
	if artist != nil {
		v.Artist = artist.Name
		v.Country = artist.Country
	}
	if style != nil {
		v.VocalStyle = style.Name
	}
	return v
}

// ToJSON encodes v as indented JSON with a trailing newline.
func ToJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// ExportOperationToText renders a sync run as aligned "Label: value" lines.
func ExportOperationToText(v OperationView) []byte {
	var buf bytes.Buffer

	status := string(v.Status)
	if v.Stage != models.StageNone {
		status = fmt.Sprintf("%s (%s)", v.Status, v.Stage)
	}
	line(&buf, "Run", v.ID)
	line(&buf, "Status", status)
	if v.StageMessage != "" {
		line(&buf, "Message", v.StageMessage)
	}

	progress := strconv.Itoa(v.AlbumsProcessed)
	if v.TotalAlbums != nil {
		progress = fmt.Sprintf("%d/%d", v.AlbumsProcessed, *v.TotalAlbums)
	}
	if v.ProgressPercentage != nil {
		progress = fmt.Sprintf("%s (%d%%)", progress, *v.ProgressPercentage)
	}
	line(&buf, "Progress", progress)

	if v.CurrentTab != "" {
		line(&buf, "Tab", v.CurrentTab)
	}
	if v.StartedAt != nil {
		line(&buf, "Started", v.StartedAt.Local().Format(time.DateTime))
	}
	if v.CompletedAt != nil {
		line(&buf, "Finished", v.CompletedAt.Local().Format(time.DateTime))
	}
	if v.DurationSeconds != nil {
		line(&buf, "Duration", FormatDuration(*v.DurationSeconds))
	}
	if v.CreatedBy != "" {
		line(&buf, "Origin", v.CreatedBy)
	}
	if v.ErrorMessage != "" {
		line(&buf, "Error", v.ErrorMessage)
	}
	return buf.Bytes()
}

// ExportHistoryToCSV writes one row per sync record.
func ExportHistoryToCSV(records []RecordView) ([]byte, error) {
	headers := []string{"Run", "Synced At", "Created", "Updated", "Skipped", "Catalog Total", "Success", "Error"}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.SyncOperationID,
			r.SyncedAt.UTC().Format(time.RFC3339),
			strconv.Itoa(r.AlbumsCreated),
			strconv.Itoa(r.AlbumsUpdated),
			strconv.Itoa(r.AlbumsSkipped),
			strconv.Itoa(r.TotalAlbumsInCatalog),
			strconv.FormatBool(r.Success),
			r.ErrorMessage,
		})
	}
	return writeCSV(headers, rows)
}

// ExportHistoryToText renders one line per sync record, newest first as given.
func ExportHistoryToText(records []RecordView) []byte {
	var buf bytes.Buffer
	if len(records) == 0 {
		buf.WriteString("No syncs recorded yet.\n")
		return buf.Bytes()
	}
	for _, r := range records {
		mark := "✓"
		if !r.Success {
			mark = "✗"
		}
		fmt.Fprintf(&buf, "%s %s  +%d created  ~%d updated  %d skipped  (%d in catalog)\n",
			mark, r.SyncedAt.Local().Format(time.DateTime), r.AlbumsCreated, r.AlbumsUpdated, r.AlbumsSkipped, r.TotalAlbumsInCatalog)
		if r.ErrorMessage != "" {
			fmt.Fprintf(&buf, "    %s\n", r.ErrorMessage)
		}
	}
	return buf.Bytes()
}

// ExportAlbumsToCSV converts albums to CSV with columns: Spotify ID, Title, Artist, Country, Genres,
// Vocal Style, Release Date, Spotify URL, Source Tab.
func ExportAlbumsToCSV(albums []AlbumView) ([]byte, error) {
	headers := []string{"Spotify ID", "Title", "Artist", "Country", "Genres", "Vocal Style", "Release Date", "Spotify URL", "Source Tab"}
	rows := make([][]string, 0, len(albums))
	for _, a := range albums {
		rows = append(rows, []string{
			a.SpotifyAlbumID,
			a.Title,
			a.Artist,
			a.Country,
			strings.Join(a.Genres, "; "),
			a.VocalStyle,
			a.ReleaseDate,
			a.SpotifyURL,
			a.SourceTab,
		})
	}
	return writeCSV(headers, rows)
}

// ExportAlbumsToMarkdown renders albums as a numbered list under a heading.
func ExportAlbumsToMarkdown(albums []AlbumView, title string) []byte {
	var buf bytes.Buffer

	if title == "" {
		title = "Albums"
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)
	fmt.Fprintf(&buf, "**Albums**: %d\n\n", len(albums))

	for i, a := range albums {
		fmt.Fprintf(&buf, "%d. %s - [%s](%s) (%s)", i+1, a.Artist, a.Title, a.SpotifyURL, a.ReleaseDate)
		if len(a.Genres) > 0 {
			fmt.Fprintf(&buf, " *%s*", strings.Join(a.Genres, ", "))
		}
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

// ExportAlbumsToText renders one line per album.
func ExportAlbumsToText(albums []AlbumView) []byte {
	var buf bytes.Buffer
	for i, a := range albums {
		fmt.Fprintf(&buf, "%d. %s - %s [%s]", i+1, a.Artist, a.Title, a.ReleaseDate)
		if a.VocalStyle != "" {
			fmt.Fprintf(&buf, " (%s)", a.VocalStyle)
		}
		buf.WriteString("\n")
	}
	fmt.Fprintf(&buf, "\n%d albums\n", len(albums))
	return buf.Bytes()
}

// WriteOperation writes a sync run to w in the given format.
func WriteOperation(w io.Writer, v OperationView, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, v)
	case FormatText, "":
		_, err := w.Write(ExportOperationToText(v))
		return err
	default:
		return unsupported(format, "sync status")
	}
}

// WriteHistory writes sync records to w in the given format.
func WriteHistory(w io.Writer, records []RecordView, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, records)
	case FormatCSV:
		return writeBytes(w)(ExportHistoryToCSV(records))
	case FormatText, "":
		_, err := w.Write(ExportHistoryToText(records))
		return err
	default:
		return unsupported(format, "sync history")
	}
}

// WriteAlbums writes albums to w in the given format.
func WriteAlbums(w io.Writer, albums []AlbumView, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, albums)
	case FormatCSV:
		return writeBytes(w)(ExportAlbumsToCSV(albums))
	case FormatMarkdown:
		_, err := w.Write(ExportAlbumsToMarkdown(albums, ""))
		return err
	default:
		_, err := w.Write(ExportAlbumsToText(albums))
		return err
	}
}

// FormatDuration renders seconds as "1h2m3s", "2m5s" or "4.2s".
func FormatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

func line(buf *bytes.Buffer, label, value string) {
	fmt.Fprintf(buf, "%-10s %s\n", label+":", value)
}

func writeCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := ToJSON(v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func writeBytes(w io.Writer) func([]byte, error) error {
	return func(data []byte, err error) error {
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
}

func unsupported(format Format, what string) error {
	return fmt.Errorf("%w: %s cannot be rendered as %s", shared.ErrInvalidFlag, what, format)
}
