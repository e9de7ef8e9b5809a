package appevents

import "github.com/rescp17/peerlink/pkg/transfer"

// AppEvent is a marker interface for events sent from the TUI to the App's logic controller.
// It uses an unexported method to ensure that only types embedding Event
// can satisfy the interface.
type AppEvent interface {
	isAppEvent()
}

// Event is embedded in event types to satisfy the AppEvent interface.
type Event struct{}

func (Event) isAppEvent() {}

// AppUIMessage is a marker interface for messages sent from the App's logic controller to the TUI.
type AppUIMessage interface {
	isUIMessage()
}

// UIMessage is embedded in message types to satisfy AppUIMessage.
type UIMessage struct{}

func (UIMessage) isUIMessage() {}

// --- App Events (from TUI to App) ---

// CancelTransferEvent asks the app to abort and exit.
type CancelTransferEvent struct {
	Event
}

// --- UI Messages (from App to TUI) ---

type StatusMsg struct {
	UIMessage
	Message string
}

// ProgressMsg carries a snapshot of the running transfer.
type ProgressMsg struct {
	UIMessage
	Snapshot transfer.Snapshot
}

type TransferCompleteMsg struct {
	UIMessage
	Artifact *transfer.Artifact
}

type ErrorMsg struct {
	UIMessage
	Err error
}

var (
	_ AppEvent     = CancelTransferEvent{}
	_ AppUIMessage = StatusMsg{}
	_ AppUIMessage = ProgressMsg{}
	_ AppUIMessage = TransferCompleteMsg{}
	_ AppUIMessage = ErrorMsg{}
)
