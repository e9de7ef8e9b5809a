package negotiation

import (
	"github.com/pion/webrtc/v4"
	"github.com/rescp17/peerlink/pkg/signaling"
	"github.com/rescp17/peerlink/pkg/transfer"
)

// DataChannelLabel names the single channel the offerer opens.
const DataChannelLabel = "fileTransferChannel"

// PeerConnection is the slice of a WebRTC peer connection the machine drives.
type PeerConnection interface {
	// CreateDataChannel opens the outgoing channel. It is reported through
	// Observer.OnChannelOpen once usable.
	CreateDataChannel(label string) error
	// CreateOffer creates an offer and applies it as the local description.
	CreateOffer() (webrtc.SessionDescription, error)
	// CreateAnswer creates an answer and applies it as the local description.
	CreateAnswer() (webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	Close() error
}

// Observer receives platform callbacks. Implementations may be called from
// any goroutine.
type Observer struct {
	OnICECandidate          func(candidate webrtc.ICECandidateInit)
	OnConnectionStateChange func(state webrtc.PeerConnectionState)
	// OnChannelOpen fires for the local channel and for channels opened by
	// the remote peer.
	OnChannelOpen func(ch transfer.Channel)
}

// Factory creates peer connections wired to an Observer.
type Factory interface {
	NewPeerConnection(obs Observer) (PeerConnection, error)
}

// Signaler sends envelopes to the relay.
type Signaler interface {
	Send(msg signaling.Message) error
}
