package signaling

import (
	"github.com/pion/webrtc/v4"
)

// Type is the "type" tag of a signaling envelope.
type Type string

const (
	TypeWelcome          Type = "welcome"
	TypeFileOffer        Type = "file-offer"
	TypeFileRequest      Type = "file-request"
	TypeFileOfferAck     Type = "file-offer-ack"
	TypePeerNotFound     Type = "peer-not-found"
	TypeInitiateWebRTC   Type = "initiate-webrtc"
	TypeOffer            Type = "offer"
	TypeAnswer           Type = "answer"
	TypeICECandidate     Type = "ice-candidate"
	TypePeerDisconnected Type = "peer-disconnected"
	TypeError            Type = "error"
)

// Message is one signaling envelope. The set of implementations is closed;
// Decode never returns any other type.
type Message interface {
	Type() Type
}

// Routed is implemented by envelopes the relay forwards peer to peer.
type Routed interface {
	Message
	Target() string
	Sender() string
	// StampSender returns a copy carrying the relay-assigned sender id.
	StampSender(id string) Routed
}

// Welcome tells a client the peer id the relay assigned to it.
type Welcome struct {
	PeerID string `json:"peerId"`
}

// FileOffer registers a shared file with the relay.
type FileOffer struct {
	SessionID string `json:"sessionId"`
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize"`
	FileType  string `json:"fileType"`
}

// FileRequest asks the relay to connect us to the owner of a session.
type FileRequest struct {
	SessionID string `json:"sessionId"`
}

// FileOfferAck tells a requester what it is about to receive.
type FileOfferAck struct {
	SessionID string `json:"sessionId"`
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize"`
	FileType  string `json:"fileType"`
}

type PeerNotFound struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

// InitiateWebRTC tells the sharer that RequesterID wants the session.
type InitiateWebRTC struct {
	SessionID   string `json:"sessionId"`
	RequesterID string `json:"requesterId"`
}

type Offer struct {
	SessionID string                    `json:"sessionId"`
	SDP       webrtc.SessionDescription `json:"sdp"`
	TargetID  string                    `json:"targetId,omitempty"`
	SenderID  string                    `json:"senderId,omitempty"`
}

type Answer struct {
	SessionID string                    `json:"sessionId"`
	SDP       webrtc.SessionDescription `json:"sdp"`
	TargetID  string                    `json:"targetId,omitempty"`
	SenderID  string                    `json:"senderId,omitempty"`
}

type ICECandidate struct {
	SessionID string                  `json:"sessionId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	TargetID  string                  `json:"targetId,omitempty"`
	SenderID  string                  `json:"senderId,omitempty"`
}

// PeerDisconnected reports that the counterpart of a session went away.
type PeerDisconnected struct {
	SessionID string `json:"sessionId,omitempty"`
	SenderID  string `json:"senderId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Error is a relay-side rejection of a client request.
type Error struct {
	Message string `json:"message"`
}

func (Welcome) Type() Type          { return TypeWelcome }
func (FileOffer) Type() Type        { return TypeFileOffer }
func (FileRequest) Type() Type      { return TypeFileRequest }
func (FileOfferAck) Type() Type     { return TypeFileOfferAck }
func (PeerNotFound) Type() Type     { return TypePeerNotFound }
func (InitiateWebRTC) Type() Type   { return TypeInitiateWebRTC }
func (Offer) Type() Type            { return TypeOffer }
func (Answer) Type() Type           { return TypeAnswer }
func (ICECandidate) Type() Type     { return TypeICECandidate }
func (PeerDisconnected) Type() Type { return TypePeerDisconnected }
func (Error) Type() Type            { return TypeError }

func (m Offer) Target() string        { return m.TargetID }
func (m Offer) Sender() string        { return m.SenderID }
func (m Answer) Target() string       { return m.TargetID }
func (m Answer) Sender() string       { return m.SenderID }
func (m ICECandidate) Target() string { return m.TargetID }
func (m ICECandidate) Sender() string { return m.SenderID }

func (m Offer) StampSender(id string) Routed        { m.SenderID = id; return m }
func (m Answer) StampSender(id string) Routed       { m.SenderID = id; return m }
func (m ICECandidate) StampSender(id string) Routed { m.SenderID = id; return m }

var (
	_ Routed = Offer{}
	_ Routed = Answer{}
	_ Routed = ICECandidate{}
)
