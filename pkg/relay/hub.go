package relay

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rescp17/peerlink/pkg/signaling"
)

const (
	reasonUnknownSession   = "Session ID does not exist"
	reasonSenderGone       = "Sender disconnected"
	reasonRequesterGone    = "Requester disconnected"
	messageOwnFile         = "Cannot request your own file."
	messageInvalidEnvelope = "Invalid message."
	messageSessionInUse    = "Session ID already in use."
	messageSessionTaken    = "Another receiver is already connecting to this session."
)

// session is one shared file registered by its sender.
type session struct {
	offer       signaling.FileOffer
	senderID    string
	requesterID string
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Peers    int `json:"peers"`
	Sessions int `json:"sessions"`
}

// Hub routes signaling envelopes between connected peers. It never looks
// inside SDP or candidates.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	peers    map[string]*peer
	sessions map[string]*session
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		peers:    make(map[string]*peer),
		sessions: make(map[string]*session),
	}
}

// ServeWS upgrades the request and serves the peer until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	p := newPeer(uuid.NewString(), conn)
	h.register(p)
	defer h.unregister(p)

	go p.writePump(h)
	h.sendTo(p, signaling.Welcome{PeerID: p.id})
	p.readPump(h)
}

// Stats returns the current peer and session counts.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Peers: len(h.peers), Sessions: len(h.sessions)}
}

// Close disconnects every peer.
func (h *Hub) Close() {
	h.mu.Lock()
	peers := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		p.close()
	}
}

func (h *Hub) register(p *peer) {
	h.mu.Lock()
	h.peers[p.id] = p
	total := len(h.peers)
	h.mu.Unlock()
	h.logger.Info("Peer connected", "peer", p.id, "peers", total)
}

// unregister drops the peer, removes every session it took part in and tells
// the counterpart of each one.
func (h *Hub) unregister(p *peer) {
	type notice struct {
		to  *peer
		msg signaling.PeerDisconnected
	}
	var notices []notice

	h.mu.Lock()
	delete(h.peers, p.id)
	for id, s := range h.sessions {
		var other, reason string
		switch p.id {
		case s.senderID:
			other, reason = s.requesterID, reasonSenderGone
		case s.requesterID:
			other, reason = s.senderID, reasonRequesterGone
		default:
			continue
		}
		delete(h.sessions, id)
		if target, ok := h.peers[other]; ok {
			notices = append(notices, notice{to: target, msg: signaling.PeerDisconnected{
				SessionID: id, SenderID: p.id, Reason: reason,
			}})
		}
		h.logger.Info("Removed session", "session", id, "peer", p.id)
	}
	total := len(h.peers)
	h.mu.Unlock()

	for _, n := range notices {
		h.sendTo(n.to, n.msg)
	}
	p.close()
	h.logger.Info("Peer disconnected", "peer", p.id, "peers", total)
}

func (h *Hub) dispatch(from *peer, data []byte) {
	msg, err := signaling.Decode(data)
	if errors.Is(err, signaling.ErrUnknownType) {
		h.logger.Warn("Unhandled message type", "peer", from.id, "error", err)
		return
	}
	if err != nil {
		h.logger.Warn("Could not decode message", "peer", from.id, "error", err)
		h.sendTo(from, signaling.Error{Message: messageInvalidEnvelope})
		return
	}
	h.logger.Debug("Received message", "peer", from.id, "type", msg.Type())

	switch m := msg.(type) {
	case signaling.FileOffer:
		h.handleOffer(from, m)
	case signaling.FileRequest:
		h.handleRequest(from, m)
	case signaling.Routed:
		// Clients cannot choose their sender id.
		h.forward(from, m.StampSender(from.id))
	default:
		h.logger.Warn("Unexpected message from client", "peer", from.id, "type", msg.Type())
	}
}

func (h *Hub) handleOffer(from *peer, offer signaling.FileOffer) {
	if offer.SessionID == "" {
		h.sendTo(from, signaling.Error{Message: messageInvalidEnvelope})
		return
	}
	h.mu.Lock()
	if existing, ok := h.sessions[offer.SessionID]; ok && existing.senderID != from.id {
		h.mu.Unlock()
		h.logger.Warn("Session id already taken", "session", offer.SessionID, "peer", from.id)
		h.sendTo(from, signaling.Error{Message: messageSessionInUse})
		return
	}
	h.sessions[offer.SessionID] = &session{offer: offer, senderID: from.id}
	h.mu.Unlock()
	h.logger.Info("Session created", "session", offer.SessionID, "peer", from.id, "file", offer.FileName)
}

func (h *Hub) handleRequest(from *peer, req signaling.FileRequest) {
	h.mu.Lock()
	s, ok := h.sessions[req.SessionID]
	if !ok {
		h.mu.Unlock()
		h.sendTo(from, signaling.PeerNotFound{SessionID: req.SessionID, Reason: reasonUnknownSession})
		return
	}
	if s.senderID == from.id {
		h.mu.Unlock()
		h.logger.Warn("Peer requested its own file", "session", req.SessionID, "peer", from.id)
		h.sendTo(from, signaling.Error{Message: messageOwnFile})
		return
	}
	if s.requesterID != "" && s.requesterID != from.id {
		if _, alive := h.peers[s.requesterID]; alive {
			h.mu.Unlock()
			h.logger.Warn("Session already has a requester", "session", req.SessionID, "peer", from.id)
			h.sendTo(from, signaling.Error{Message: messageSessionTaken})
			return
		}
	}
	sender, ok := h.peers[s.senderID]
	if !ok {
		h.mu.Unlock()
		h.sendTo(from, signaling.PeerNotFound{SessionID: req.SessionID, Reason: reasonSenderGone})
		return
	}
	s.requesterID = from.id
	offer, senderID := s.offer, s.senderID
	h.mu.Unlock()

	h.sendTo(sender, signaling.InitiateWebRTC{SessionID: req.SessionID, RequesterID: from.id})
	h.sendTo(from, signaling.FileOfferAck{
		SessionID: offer.SessionID,
		FileName:  offer.FileName,
		FileSize:  offer.FileSize,
		FileType:  offer.FileType,
	})
	h.logger.Info("Sent initiate-webrtc", "session", req.SessionID, "sender", senderID, "requester", from.id)
}

// forward relays msg to the peer it targets. The sender id has already been
// stamped by the caller.
func (h *Hub) forward(from *peer, msg signaling.Routed) {
	target := msg.Target()
	if target == "" {
		h.logger.Warn("Message is missing targetId", "peer", from.id, "type", msg.Type())
		return
	}
	h.mu.Lock()
	to, ok := h.peers[target]
	h.mu.Unlock()
	if !ok {
		h.logger.Warn("Target peer not found", "peer", from.id, "target", target, "type", msg.Type())
		return
	}
	h.sendTo(to, msg)
	h.logger.Debug("Relayed message", "type", msg.Type(), "from", from.id, "to", target)
}
