package receiver

import (
	appevents "github.com/rescp17/peerlink/internal/app_events"
	"github.com/rescp17/peerlink/pkg/transfer"
)

// OfferAckMsg tells the UI what file the sharer is about to send.
type OfferAckMsg struct {
	appevents.UIMessage
	Metadata transfer.FileMetadata
}

var _ appevents.AppUIMessage = OfferAckMsg{}
