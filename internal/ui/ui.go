package ui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LoadingView ViewState = iota
	TrackListView
	ConfirmView
	RunView
	ResultView
)

const recentLimit = 8

// LoadFunc expands the requested input into the tracks of a run.
type LoadFunc func(ctx context.Context) (title string, tracks []models.Track, err error)

// RunFunc downloads tracks, reporting progress on the channel. It must not close the channel.
type RunFunc func(ctx context.Context, tracks []models.Track, progress chan<- tasks.ProgressUpdate) (*tasks.Summary, error)

// Model represents the TUI application state.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	view   ViewState
	load   LoadFunc
	run    RunFunc
	format string

	width  int
	height int

	title     string
	tracks    []models.Track
	trackList list.Model

	progressChan <-chan tasks.ProgressUpdate
	done         <-chan runComplete
	active       map[int]string
	recent       []tasks.ProgressUpdate
	step         int
	total        int
	cancelling   bool
	spinner      spinner.Model
	bar          progress.Model

	summary *tasks.Summary
	err     error
	help    help.Model
	keys    keyMap
}

// NewModel creates a new TUI model. format labels the target codec and quality on the confirm screen.
func NewModel(ctx context.Context, format string, load LoadFunc, run RunFunc) *Model {
	return &Model{
		ctx:     ctx,
		view:    LoadingView,
		load:    load,
		run:     run,
		format:  format,
		active:  make(map[int]string),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.title.UnsetMarginBottom())),
		bar:     progress.New(progress.WithDefaultGradient()),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Summary is the result of the last finished run, or nil.
func (m *Model) Summary() *tasks.Summary { return m.summary }

// Err is the error that ended loading or the last run.
func (m *Model) Err() error { return m.err }

// Init starts loading tracks.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadTracks())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.view != LoadingView {
			m.trackList.SetSize(msg.Width-4, msg.Height-8)
		}
		m.bar.Width = min(max(msg.Width-8, 10), 80)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case LoadingView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
		case TrackListView:
			return m.handleTrackListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case RunView:
			return m.handleRunKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	if m.view == TrackListView {
		var cmd tea.Cmd
		m.trackList, cmd = m.trackList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgTracksLoaded:
		data := msg.data.(tracksLoaded)
		if data.err != nil {
			m.err = data.err
			return m, tea.Quit
		}
		m.title = data.title
		m.tracks = data.tracks
		m.trackList = list.New(trackItems(data.tracks), list.NewDefaultDelegate(), 0, 0)
		m.trackList.Title = data.title
		m.trackList.SetSize(m.width-4, m.height-8)
		m.view = TrackListView
		return m, nil

	case MsgProgressUpdate:
		m.applyProgress(msg.data.(tasks.ProgressUpdate))
		return m, waitForProgress(m.progressChan, m.done)

	case MsgRunComplete:
		data := msg.data.(runComplete)
		m.summary = data.summary
		m.err = data.err
		m.progressChan, m.done = nil, nil
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.cancelling = false
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

func (m *Model) applyProgress(u tasks.ProgressUpdate) {
	if u.Total > 0 {
		m.total = u.Total
	}
	m.step = max(m.step, u.Step)

	switch u.Phase {
	case tasks.PhaseDone, tasks.PhaseFailed:
		delete(m.active, u.Index)
		m.recent = append(m.recent, u)
		if len(m.recent) > recentLimit {
			m.recent = m.recent[len(m.recent)-recentLimit:]
		}
	default:
		m.active[u.Index] = u.Message
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case LoadingView:
		if m.err != nil {
			return styles.err.Render(fmt.Sprintf("Error: %v", m.err))
		}
		return fmt.Sprintf("%s Loading tracks...", m.spinner.View())
	case TrackListView:
		return m.renderTrackList()
	case ConfirmView:
		return m.renderConfirm()
	case RunView:
		return m.renderRun()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleTrackListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.trackList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.trackList, cmd = m.trackList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if len(m.tracks) > 0 {
			m.view = ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = TrackListView
		return m, nil
	case key.Matches(msg, m.keys.yes):
		m.view = RunView
		return m, m.startRun()
	}
	return m, nil
}

func (m *Model) handleRunKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !key.Matches(msg, m.keys.quit) {
		return m, nil
	}
	if m.cancelling {
		return m, tea.Quit
	}
	m.cancelling = true
	if m.cancel != nil {
		m.cancel()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.view = TrackListView
		m.summary = nil
		m.err = nil
		return m, nil
	}
	return m, nil
}

func (m *Model) loadTracks() tea.Cmd {
	ctx, load := m.ctx, m.load
	return func() tea.Msg {
		title, tracks, err := load(ctx)
		return tracksLoadedMsg(title, tracks, err)
	}
}

func (m *Model) startRun() tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	progressChan := make(chan tasks.ProgressUpdate, 64)
	done := make(chan runComplete, 1)

	m.cancel = cancel
	m.progressChan = progressChan
	m.done = done
	m.active = make(map[int]string)
	m.recent = nil
	m.step, m.total = 0, len(m.tracks)

	tracks := append([]models.Track(nil), m.tracks...)
	run := m.run
	go func() {
		summary, err := run(ctx, tracks, progressChan)
		done <- runComplete{summary: summary, err: err}
		close(progressChan)
	}()

	return tea.Batch(m.spinner.Tick, waitForProgress(progressChan, done))
}

// waitForProgress reads the next update; once the channel is closed it delivers the run result.
func waitForProgress(progressChan <-chan tasks.ProgressUpdate, done <-chan runComplete) tea.Cmd {
	return func() tea.Msg {
		if progressChan == nil {
			return nil
		}
		update, ok := <-progressChan
		if !ok {
			result := <-done
			return runCompleteMsg(result.summary, result.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderTrackList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.trackList.View(), helpView)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Download '%s'?", m.title))
	info := fmt.Sprintf("\nTracks: %d\nFormat: %s\n", len(m.tracks), m.format)

	helpKeys := []key.Binding{m.keys.yes, m.keys.no, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderRun() string {
	heading := "Downloading"
	if m.cancelling {
		heading = "Cancelling"
	}
	title := styles.title.Render(fmt.Sprintf("%s '%s'", heading, m.title))

	percent := 0.0
	if m.total > 0 {
		percent = float64(m.step) / float64(m.total)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n%s %d/%d\n\n", title, m.bar.ViewAs(percent), m.step, m.total)

	indices := make([]int, 0, len(m.active))
	for idx := range m.active {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.active[idx])
	}
	if len(m.recent) > 0 {
		b.WriteString("\n")
	}
	for _, u := range m.recent {
		style := styles.ok
		if u.Phase == tasks.PhaseFailed {
			style = styles.err
		} else if upd, ok := u.Data.(models.Update); ok {
			style = styles.Severity(upd.Severity)
		}
		b.WriteString(style.Render(u.Message) + "\n")
	}

	cancelKey := key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "cancel"))
	fmt.Fprintf(&b, "\n%s", m.help.ShortHelpView([]key.Binding{cancelKey}))
	return b.String()
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.restart, m.keys.quit})

	if m.summary == nil {
		msg := "No result available"
		if m.err != nil {
			msg = fmt.Sprintf("Run failed: %v", m.err)
		}
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(msg), helpView)
	}

	s := m.summary
	ok, warned, failed := s.Counts()
	var title string
	switch {
	case s.Cancelled:
		title = styles.warn.Render(fmt.Sprintf("Run cancelled after %d of %d", s.Completed, s.Total))
	case failed > 0:
		title = styles.warn.Render("Run finished with failures")
	default:
		title = styles.ok.Render("✓ Run complete!")
	}

	info := fmt.Sprintf("\nSucceeded: %d\nWarnings: %d\nFailed: %d\nElapsed: %s",
		ok, warned, failed, s.Elapsed.Round(time.Second))

	var details strings.Builder
	for _, u := range append(append([]models.Update(nil), s.Warned...), s.Failed...) {
		style := styles.Severity(u.Severity)
		fmt.Fprintf(&details, "\n  • %s", style.Render(fmt.Sprintf("%s - %s: %s", u.Track.Artist(), u.Track.Title, u.Message)))
	}

	return fmt.Sprintf("%s\n%s\n%s\n\n%s", title, info, details.String(), helpView)
}
