package sender

import (
	appevents "github.com/rescp17/peerlink/internal/app_events"
	"github.com/rescp17/peerlink/pkg/transfer"
)

// ShareReadyMsg is sent once the relay knows about the shared file.
type ShareReadyMsg struct {
	appevents.UIMessage
	Link     string
	Metadata transfer.FileMetadata
}

// PeerRequestedMsg is sent when a receiver asked for the file.
type PeerRequestedMsg struct {
	appevents.UIMessage
	PeerID string
}

var (
	_ appevents.AppUIMessage = ShareReadyMsg{}
	_ appevents.AppUIMessage = PeerRequestedMsg{}
)
