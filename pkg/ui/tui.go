package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	appevents "github.com/rescp17/peerlink/internal/app_events"
	receiverEvent "github.com/rescp17/peerlink/internal/app_events/receiver"
	senderEvent "github.com/rescp17/peerlink/internal/app_events/sender"
	"github.com/rescp17/peerlink/internal/style"
	"github.com/rescp17/peerlink/internal/util"
	"github.com/rescp17/peerlink/pkg/transfer"
)

const (
	nameWidth        = 32
	maxProgressWidth = 60
	cancelWait       = time.Second
)

// Mode selects which side of a transfer the view shows.
type Mode int

const (
	ShareMode Mode = iota
	ReceiveMode
)

func (m Mode) String() string {
	if m == ShareMode {
		return "share"
	}
	return "receive"
}

// AppController is the part of the client app the view talks to.
type AppController interface {
	UIMessages() <-chan tea.Msg
	AppEvents() chan<- appevents.AppEvent
}

type viewState int

const (
	connecting viewState = iota
	waitingForPeer
	transferring
	transferComplete
	transferFailed
)

type KeyMap struct {
	Quit key.Binding
	Exit key.Binding
}

// DefaultKeyMap provides sensible default keybindings.
var DefaultKeyMap = KeyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "cancel")),
	Exit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "exit")),
}

type Model struct {
	mode  Mode
	app   AppController
	state viewState

	spinner  spinner.Model
	progress progress.Model

	status   string
	link     string
	meta     transfer.FileMetadata
	snapshot transfer.Snapshot
	started  time.Time
	elapsed  time.Duration
	artifact *transfer.Artifact
	lastErr  error

	now func() time.Time
}

func NewModel(mode Mode, app AppController) Model {
	return Model{
		mode:     mode,
		app:      app,
		state:    connecting,
		spinner:  style.NewSpinner(),
		progress: style.NewProgress(),
		status:   "Connecting to relay...",
		now:      time.Now,
	}
}

// Err is the failure shown by the view, if any.
func (m Model) Err() error {
	return m.lastErr
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForAppMessages())
}

// listenForAppMessages is a command that listens for messages from the app controller.
func (m Model) listenForAppMessages() tea.Cmd {
	return func() tea.Msg {
		return <-m.app.UIMessages()
	}
}

func (m Model) finished() bool {
	return m.state == transferComplete || m.state == transferFailed
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.progress.Width = min(max(msg.Width-8, 10), maxProgressWidth)
		return m, nil
	case spinner.TickMsg:
		if m.finished() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if !m.handleAppMessage(msg) {
		return m, nil
	}
	if m.finished() {
		return m, nil
	}
	return m, m.listenForAppMessages()
}

// handleAppMessage applies one message from the app and reports whether it
// was one.
func (m *Model) handleAppMessage(msg tea.Msg) bool {
	switch msg := msg.(type) {
	case senderEvent.ShareReadyMsg:
		m.link = msg.Link
		m.meta = msg.Metadata
		m.state = waitingForPeer
		m.status = "Waiting for the receiver to open the link..."
	case senderEvent.PeerRequestedMsg:
		m.status = "Receiver found, connecting..."
	case receiverEvent.OfferAckMsg:
		m.meta = msg.Metadata
		m.state = waitingForPeer
		m.status = "Sender found, connecting..."
	case appevents.StatusMsg:
		m.status = msg.Message
	case appevents.ProgressMsg:
		if m.state != transferring {
			m.state = transferring
			m.started = m.now()
		}
		m.snapshot = msg.Snapshot
		m.meta = msg.Snapshot.Metadata
		m.elapsed = m.now().Sub(m.started)
	case appevents.TransferCompleteMsg:
		m.state = transferComplete
		m.artifact = msg.Artifact
		m.snapshot.Percent = 100
		if !m.started.IsZero() {
			m.elapsed = m.now().Sub(m.started)
		}
	case appevents.ErrorMsg:
		m.state = transferFailed
		m.lastErr = msg.Err
	default:
		return false
	}
	return true
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.finished() {
		if key.Matches(msg, DefaultKeyMap.Exit) || key.Matches(msg, DefaultKeyMap.Quit) {
			return m, tea.Quit
		}
		return m, nil
	}
	if key.Matches(msg, DefaultKeyMap.Quit) {
		events := m.app.AppEvents()
		return m, func() tea.Msg {
			select {
			case events <- appevents.CancelTransferEvent{}:
			case <-time.After(cancelWait):
			}
			return tea.Quit()
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(style.TitleStyle.Render("peerlink " + m.mode.String()))
	b.WriteString("\n\n")

	if m.link != "" {
		b.WriteString(style.LabelStyle.Render("Share link"))
		b.WriteString("\n")
		b.WriteString(style.LinkBoxStyle.Render(m.link))
		b.WriteString("\n\n")
	}
	if m.meta.Name != "" {
		fmt.Fprintf(&b, "%s %s\n\n",
			style.HighlightFontStyle.Render(util.PadRight(m.meta.Name, nameWidth)),
			util.FormatSize(m.meta.Size))
	}

	switch m.state {
	case connecting, waitingForPeer:
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), m.status)
	case transferring:
		b.WriteString(m.progress.ViewAs(float64(m.snapshot.Percent) / 100))
		fmt.Fprintf(&b, "\n%s / %s  %s\n",
			util.FormatSize(m.snapshot.BytesTransferred),
			util.FormatSize(m.meta.Size),
			util.FormatRate(m.snapshot.BytesTransferred, m.elapsed))
	case transferComplete:
		b.WriteString(m.progress.ViewAs(1))
		b.WriteString("\n")
		b.WriteString(style.SuccessStyle.Render("Transfer complete!"))
		if m.artifact != nil && m.artifact.Path != "" {
			fmt.Fprintf(&b, "\nSaved to %s", m.artifact.Path)
		}
		b.WriteString("\n")
	case transferFailed:
		fmt.Fprintf(&b, "An error occurred: %s\n", style.ErrorStyle.Render(m.lastErr.Error()))
	}

	help := fmt.Sprintf("%s %s", DefaultKeyMap.Quit.Help().Key, DefaultKeyMap.Quit.Help().Desc)
	if m.finished() {
		help = fmt.Sprintf("%s %s", DefaultKeyMap.Exit.Help().Key, DefaultKeyMap.Exit.Help().Desc)
	}
	b.WriteString("\n")
	b.WriteString(style.HelpStyle.Render(help))
	return style.DocStyle.Render(b.String())
}
