package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/progdb/internal/models"
	"github.com/desertthunder/progdb/internal/shared"
	"github.com/desertthunder/progdb/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	DashboardView ViewState = iota
	ConfirmView
	SyncView
	ResultView
)

const (
	// DefaultPollInterval is how often the TUI re-reads the run status while a sync is active.
	DefaultPollInterval = 500 * time.Millisecond

	historyLimit = 50
	maxEvents    = 5
)

// Backend is the sync surface the TUI drives.
//
// A local [tasks.Runner] and the remote client of the API service both satisfy it.
type Backend interface {
	Trigger(origin string) (*models.SyncOperation, error)
	Cancel() (string, error)
	Status() (*models.SyncOperation, error)
	History(limit int) ([]*models.SyncRecord, error)
}

// Option customizes a [Model].
type Option func(*Model)

// WithUpdates attaches a live progress channel, typically the one given to the local runner.
func WithUpdates(ch <-chan tasks.ProgressUpdate) Option {
	return func(m *Model) { m.updates = ch }
}

// WithPollInterval overrides [DefaultPollInterval].
func WithPollInterval(d time.Duration) Option {
	return func(m *Model) { m.pollInterval = d }
}

// Model represents the TUI application state.
type Model struct {
	view         ViewState
	backend      Backend
	origin       string
	updates      <-chan tasks.ProgressUpdate
	pollInterval time.Duration
	polling      bool
	width        int
	height       int
	op           *models.SyncOperation
	watched      string
	dismissed    string
	history      list.Model
	events       []string
	notice       string
	err          error
	spinner      spinner.Model
	bar          progress.Model
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model. Runs it starts record origin as their creator.
func NewModel(backend Backend, origin string, opts ...Option) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.title.UnsetMarginBottom()

	history := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	history.Title = "Sync History"
	history.SetShowHelp(false)

	m := &Model{
		view:         DashboardView,
		backend:      backend,
		origin:       origin,
		pollInterval: DefaultPollInterval,
		history:      history,
		spinner:      s,
		bar:          progress.New(progress.WithDefaultGradient()),
		help:         help.New(),
		keys:         newKeyMap(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current [ViewState].
func (m *Model) State() ViewState { return m.view }

// Operation returns the most recently observed sync operation, if any.
func (m *Model) Operation() *models.SyncOperation { return m.op }

// Err returns the error that stopped the TUI, if any.
func (m *Model) Err() error { return m.err }

// Init loads the current status and history.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.fetchStatus(), m.fetchHistory(), m.spinner.Tick}
	if m.updates != nil {
		cmds = append(cmds, m.waitForProgress())
	}
	return tea.Batch(cmds...)
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.history.SetSize(msg.Width-4, max(msg.Height-12, 5))
		m.bar.Width = min(max(msg.Width-8, 10), 60)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case DashboardView:
			return m.handleDashboardKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case SyncView:
			return m.handleSyncKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	if m.view == DashboardView {
		m.history, cmd = m.history.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgStatusFetched:
		res := msg.data.(statusResult)
		if res.err != nil {
			if errors.Is(res.err, shared.ErrNotFound) {
				m.op = nil
				return m, nil
			}
			m.notice = fmt.Sprintf("Could not read sync status: %v", res.err)
			return m, m.schedulePoll()
		}
		return m, m.observe(res.op)

	case MsgHistoryFetched:
		res := msg.data.(historyResult)
		if res.err != nil {
			m.notice = fmt.Sprintf("Could not load history: %v", res.err)
			return m, nil
		}
		items := make([]list.Item, len(res.records))
		for i, rec := range res.records {
			items[i] = recordItem{record: rec}
		}
		return m, m.history.SetItems(items)

	case MsgTriggered:
		res := msg.data.(triggerResult)
		switch {
		case errors.Is(res.err, shared.ErrSyncActive):
			m.notice = "A sync is already in progress, watching it instead."
		case res.err != nil:
			m.notice = fmt.Sprintf("Could not start sync: %v", res.err)
			m.view = DashboardView
			return m, nil
		default:
			m.notice = ""
			m.op = res.op
			m.watched = res.op.ID()
		}
		m.events = nil
		m.view = SyncView
		return m, m.fetchStatus()

	case MsgCancelRequested:
		res := msg.data.(cancelResult)
		switch {
		case errors.Is(res.err, shared.ErrNoActiveSync):
			m.notice = "No sync in progress."
		case res.err != nil:
			m.notice = fmt.Sprintf("Could not cancel sync: %v", res.err)
		default:
			m.notice = "Cancellation requested. The current tab will finish first."
		}
		return m, m.fetchStatus()

	case MsgProgressUpdate:
		update := msg.data.(tasks.ProgressUpdate)
		if update.Phase == tasks.TabFailed || update.Phase.Done() {
			m.pushEvent(update.Message)
		}
		cmds := []tea.Cmd{m.waitForProgress()}
		if update.Phase.Done() || update.Phase == tasks.Processing {
			cmds = append(cmds, m.fetchStatus())
		}
		return m, tea.Batch(cmds...)

	case MsgProgressClosed:
		m.updates = nil
		return m, nil

	case MsgPoll:
		m.polling = false
		return m, m.fetchStatus()
	}
	return m, nil
}

// observe records a freshly read operation and moves between the sync and result views.
func (m *Model) observe(op *models.SyncOperation) tea.Cmd {
	m.op = op
	if op.IsActive() {
		if (m.view == DashboardView || m.view == ResultView) && op.ID() != m.dismissed {
			m.view = SyncView
		}
		m.watched = op.ID()
		return m.schedulePoll()
	}

	if m.view == SyncView && (m.watched == "" || m.watched == op.ID()) {
		m.view = ResultView
		m.watched = ""
		return m.fetchHistory()
	}
	return nil
}

func (m *Model) pushEvent(event string) {
	if event == "" {
		return
	}
	m.events = append(m.events, event)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

func (m *Model) handleDashboardKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.start):
		m.view = ConfirmView
		return m, nil
	case key.Matches(msg, m.keys.cancel):
		return m, m.requestCancel()
	case key.Matches(msg, m.keys.refresh):
		m.notice = ""
		return m, tea.Batch(m.fetchStatus(), m.fetchHistory())
	}

	var cmd tea.Cmd
	m.history, cmd = m.history.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		return m, m.trigger()
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = DashboardView
	}
	return m, nil
}

func (m *Model) handleSyncKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.cancel):
		return m, m.requestCancel()
	case key.Matches(msg, m.keys.back):
		m.view = DashboardView
		m.dismissed = m.watched
		m.watched = ""
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.refresh):
		m.view = DashboardView
		m.events = nil
		m.notice = ""
		return m, m.fetchHistory()
	case key.Matches(msg, m.keys.start):
		m.view = ConfirmView
	}
	return m, nil
}

func (m *Model) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		op, err := m.backend.Status()
		return statusFetchedMsg(op, err)
	}
}

func (m *Model) fetchHistory() tea.Cmd {
	return func() tea.Msg {
		records, err := m.backend.History(historyLimit)
		return historyFetchedMsg(records, err)
	}
}

func (m *Model) trigger() tea.Cmd {
	return func() tea.Msg {
		op, err := m.backend.Trigger(m.origin)
		return triggeredMsg(op, err)
	}
}

func (m *Model) requestCancel() tea.Cmd {
	return func() tea.Msg {
		id, err := m.backend.Cancel()
		return cancelRequestedMsg(id, err)
	}
}

// schedulePoll keeps at most one pending status poll.
func (m *Model) schedulePoll() tea.Cmd {
	if m.polling {
		return nil
	}
	m.polling = true
	return tea.Tick(m.pollInterval, func(time.Time) tea.Msg { return pollMsg() })
}

func (m *Model) waitForProgress() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		if updates == nil {
			return progressClosedMsg()
		}
		update, ok := <-updates
		if !ok {
			return progressClosedMsg()
		}
		return progressUpdateMsg(update)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case DashboardView:
		body = m.renderDashboard()
	case ConfirmView:
		body = m.renderConfirm()
	case SyncView:
		body = m.renderSync()
	case ResultView:
		body = m.renderResult()
	}
	if m.notice != "" {
		body = fmt.Sprintf("%s\n\n%s", styles.warn.Render(m.notice), body)
	}
	return body
}

func (m *Model) renderDashboard() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Catalog Sync"))
	b.WriteString("\n")

	if m.op == nil {
		b.WriteString(styles.help.Render("No sync has run yet."))
	} else {
		b.WriteString(fmt.Sprintf("Last run: %s (%s)", styles.status(m.op.Status).Render(string(m.op.Status)), m.op.DisplayStatus()))
		if m.op.CompletedAt != nil {
			b.WriteString(fmt.Sprintf(" at %s", m.op.CompletedAt.Local().Format(time.DateTime)))
		}
	}
	b.WriteString("\n\n")
	b.WriteString(m.history.View())
	b.WriteString("\n\n")

	helpKeys := []key.Binding{m.keys.start, m.keys.cancel, m.keys.refresh, m.keys.quit}
	b.WriteString(m.help.ShortHelpView(helpKeys))
	return b.String()
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render("Start a catalog sync?")
	info := "\nAlbums missing from the catalog will be imported from the release spreadsheet.\n"

	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	return fmt.Sprintf("%s\n%s\n%s", title, info, m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderSync() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Syncing Catalog"))
	b.WriteString("\n")

	if m.op == nil {
		b.WriteString(m.spinner.View() + " Waiting for the sync to start...")
	} else {
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), m.op.DisplayStatus()))
		if m.op.CurrentTab != "" {
			b.WriteString(fmt.Sprintf("Tab: %s\n", m.op.CurrentTab))
		}
		if pct, ok := m.op.ProgressPercentage(); ok {
			b.WriteString("\n" + m.bar.ViewAs(float64(pct)/100))
			b.WriteString(fmt.Sprintf("\n%d of %d albums", m.op.AlbumsProcessed, *m.op.TotalAlbums))
		} else if m.op.AlbumsProcessed > 0 {
			b.WriteString(fmt.Sprintf("\n%d albums processed", m.op.AlbumsProcessed))
		}
	}

	if len(m.events) > 0 {
		b.WriteString("\n")
		for _, event := range m.events {
			b.WriteString("\n" + styles.warn.Render("• "+event))
		}
	}

	helpKeys := []key.Binding{m.keys.cancel, m.keys.back, m.keys.quit}
	b.WriteString("\n\n" + m.help.ShortHelpView(helpKeys))
	return b.String()
}

func (m *Model) renderResult() string {
	if m.op == nil {
		return styles.err.Render("No result available\n\nPress esc to go back, q to quit")
	}

	var title string
	switch {
	case m.op.Status == models.StatusCompleted && m.op.ErrorMessage == "":
		title = styles.ok.Render("✓ Sync Complete!")
	case m.op.Status == models.StatusCompleted:
		title = styles.warn.Render("⚠ Sync Completed With Warnings")
	case m.op.Status == models.StatusCancelled:
		title = styles.warn.Render("Sync Cancelled")
	default:
		title = styles.err.Render("✗ Sync Failed")
	}

	var b strings.Builder
	b.WriteString(title + "\n\n")
	b.WriteString(m.op.DisplayStatus())
	if m.op.ErrorMessage != "" && m.op.ErrorMessage != m.op.StageMessage {
		b.WriteString("\n" + m.op.ErrorMessage)
	}
	if d, ok := m.op.Duration(time.Now()); ok {
		b.WriteString(fmt.Sprintf("\n\nDuration: %s", d.Round(time.Second)))
	}
	for _, event := range m.events {
		b.WriteString("\n" + styles.help.Render("• "+event))
	}

	helpKeys := []key.Binding{m.keys.start, m.keys.back, m.keys.quit}
	b.WriteString("\n\n" + m.help.ShortHelpView(helpKeys))
	return b.String()
}
