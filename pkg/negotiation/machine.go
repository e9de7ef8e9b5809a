package negotiation

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v4"
	"github.com/rescp17/peerlink/pkg/session"
	"github.com/rescp17/peerlink/pkg/signaling"
	"github.com/rescp17/peerlink/pkg/transfer"
)

var (
	ErrNegotiationMismatch = errors.New("negotiation message does not match the active session")
	ErrPeerDisconnected    = errors.New("peer disconnected")
	ErrConnectionFailed    = errors.New("peer connection failed")
)

const eventBufferSize = 64

type eventKind int

const (
	localCandidate eventKind = iota
	connectionState
	channelOpen
)

// Event is a platform callback queued for the machine's owner goroutine.
// Pass it back to HandleEvent.
type Event struct {
	gen       uint64
	kind      eventKind
	candidate webrtc.ICECandidateInit
	state     webrtc.PeerConnectionState
	channel   transfer.Channel
}

// Hooks lets the owner react to session milestones. Both run on the goroutine
// that drives the machine.
type Hooks struct {
	OnChannelOpen func(n session.Negotiation, ch transfer.Channel)
	OnEnded       func(n session.Negotiation, err error)
}

// Machine drives offer/answer and ICE exchange for the single active
// session of one client. It is not safe for concurrent use: every Handle
// method must be called from the same goroutine, which also drains Events.
type Machine struct {
	sc       *session.Context
	factory  Factory
	signaler Signaler
	hooks    Hooks
	logger   *slog.Logger

	events chan Event
	done   chan struct{}

	// gen is bumped on every teardown so callbacks from an old peer
	// connection are recognised and ignored.
	gen       uint64
	pc        PeerConnection
	channel   transfer.Channel
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

func NewMachine(sc *session.Context, factory Factory, signaler Signaler, hooks Hooks, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		sc:       sc,
		factory:  factory,
		signaler: signaler,
		hooks:    hooks,
		logger:   logger,
		events:   make(chan Event, eventBufferSize),
		done:     make(chan struct{}),
	}
}

// Events carries platform callbacks that must be fed to HandleEvent.
func (m *Machine) Events() <-chan Event {
	return m.events
}

// State returns the state of the active session, or Idle if there is none.
func (m *Machine) State() session.State {
	n, ok := m.sc.Active()
	if !ok {
		return session.Idle
	}
	return n.State
}

// HandleInitiate starts the offerer path for a requester of our share.
func (m *Machine) HandleInitiate(msg signaling.InitiateWebRTC) error {
	share, ok := m.sc.Share()
	if !ok || share.ID != msg.SessionID {
		return m.drop("initiate-webrtc", msg.SessionID, msg.RequesterID)
	}
	if msg.RequesterID == "" {
		return m.drop("initiate-webrtc", msg.SessionID, msg.RequesterID)
	}

	n, err := m.sc.Begin(msg.SessionID, session.Offerer, msg.RequesterID, session.Idle)
	if err != nil {
		m.logger.Warn("Rejecting connection request", "session", msg.SessionID, "requester", msg.RequesterID, "error", err)
		return err
	}
	m.resetPeer()
	m.logger.Info("Starting negotiation", "role", n.Role, "session", n.SessionID, "remote", n.RemotePeerID)

	pc, err := m.newPeer()
	if err != nil {
		return m.fail(err)
	}
	if err := pc.CreateDataChannel(DataChannelLabel); err != nil {
		return m.fail(fmt.Errorf("failed to create data channel: %w", err))
	}
	offer, err := pc.CreateOffer()
	if err != nil {
		return m.fail(fmt.Errorf("failed to create offer: %w", err))
	}
	if err := m.signaler.Send(signaling.Offer{SessionID: n.SessionID, SDP: offer, TargetID: n.RemotePeerID}); err != nil {
		return m.fail(fmt.Errorf("failed to send offer: %w", err))
	}
	m.transition(session.OfferSent)
	return nil
}

// HandleOffer runs the answerer path for the session we requested.
func (m *Machine) HandleOffer(msg signaling.Offer) error {
	requested, ok := m.sc.PendingRequest()
	if !ok || requested != msg.SessionID || msg.SenderID == "" {
		return m.drop("offer", msg.SessionID, msg.SenderID)
	}

	prior, hasPrior := m.sc.Active()
	inFlight := hasPrior && !prior.State.IsTerminal()
	if inFlight && prior.SessionID == msg.SessionID && prior.RemotePeerID != msg.SenderID {
		return m.drop("offer", msg.SessionID, msg.SenderID)
	}
	n, err := m.sc.Begin(msg.SessionID, session.Answerer, msg.SenderID, session.OfferReceived)
	if err != nil {
		m.logger.Warn("Rejecting offer", "session", msg.SessionID, "sender", msg.SenderID, "error", err)
		return err
	}
	if inFlight {
		m.logger.Info("Discarded previous negotiation", "session", prior.SessionID, "state", prior.State)
	}
	m.resetPeer()
	m.logger.Info("Starting negotiation", "role", n.Role, "session", n.SessionID, "remote", n.RemotePeerID)

	pc, err := m.newPeer()
	if err != nil {
		return m.fail(err)
	}
	if err := m.applyRemote(msg.SDP); err != nil {
		return m.fail(err)
	}
	answer, err := pc.CreateAnswer()
	if err != nil {
		return m.fail(fmt.Errorf("failed to create answer: %w", err))
	}
	if err := m.signaler.Send(signaling.Answer{SessionID: n.SessionID, SDP: answer, TargetID: n.RemotePeerID}); err != nil {
		return m.fail(fmt.Errorf("failed to send answer: %w", err))
	}
	m.transition(session.AnswerExchanged)
	return nil
}

// HandleAnswer completes the offerer path.
func (m *Machine) HandleAnswer(msg signaling.Answer) error {
	n, ok := m.sc.Active()
	if !ok || n.Role != session.Offerer || n.State != session.OfferSent || !m.sc.Matches(msg.SessionID, msg.SenderID) {
		return m.drop("answer", msg.SessionID, msg.SenderID)
	}
	if err := m.applyRemote(msg.SDP); err != nil {
		return m.fail(err)
	}
	m.transition(session.Connected)
	return nil
}

// HandleCandidate applies a remote candidate, holding it back until the
// remote description is in place.
func (m *Machine) HandleCandidate(msg signaling.ICECandidate) error {
	if m.pc == nil || !m.sc.Matches(msg.SessionID, msg.SenderID) {
		return m.drop("ice-candidate", msg.SessionID, msg.SenderID)
	}
	if !m.remoteSet {
		m.pending = append(m.pending, msg.Candidate)
		m.logger.Debug("Queued remote candidate", "queued", len(m.pending))
		return nil
	}
	if err := m.pc.AddICECandidate(msg.Candidate); err != nil {
		m.logger.Warn("Failed to add remote candidate", "error", err)
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}
	return nil
}

// HandlePeerDisconnected tears down the session if the notice is about it.
func (m *Machine) HandlePeerDisconnected(msg signaling.PeerDisconnected) error {
	n, ok := m.sc.Active()
	if !ok || n.State.IsTerminal() {
		return m.drop("peer-disconnected", msg.SessionID, msg.SenderID)
	}
	sameSession := msg.SessionID != "" && msg.SessionID == n.SessionID
	samePeer := msg.SenderID != "" && msg.SenderID == n.RemotePeerID
	if !sameSession && !samePeer {
		return m.drop("peer-disconnected", msg.SessionID, msg.SenderID)
	}

	reason := msg.Reason
	if reason == "" {
		reason = "remote peer left"
	}
	m.end(session.Closed, fmt.Errorf("%w: %s", ErrPeerDisconnected, reason))
	return nil
}

// HandleEvent processes one queued platform callback.
func (m *Machine) HandleEvent(ev Event) {
	if ev.gen != m.gen || m.pc == nil {
		if ev.kind == channelOpen && ev.channel != nil {
			ev.channel.Close()
		}
		return
	}

	switch ev.kind {
	case localCandidate:
		n, ok := m.sc.Active()
		if !ok || n.RemotePeerID == "" {
			return
		}
		msg := signaling.ICECandidate{SessionID: n.SessionID, Candidate: ev.candidate, TargetID: n.RemotePeerID}
		if err := m.signaler.Send(msg); err != nil {
			m.logger.Warn("Failed to relay local candidate", "error", err)
		}
	case connectionState:
		m.logger.Info("Peer connection state changed", "state", ev.state.String())
		switch ev.state {
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
			m.end(session.Failed, fmt.Errorf("%w: %s", ErrConnectionFailed, ev.state))
		}
	case channelOpen:
		m.channel = ev.channel
		n, ok := m.sc.Active()
		if !ok {
			return
		}
		if n.State == session.AnswerExchanged {
			n = m.transition(session.Connected)
		}
		m.logger.Info("Data channel open", "label", ev.channel.Label(), "session", n.SessionID, "role", n.Role)
		if m.hooks.OnChannelOpen != nil {
			m.hooks.OnChannelOpen(n, ev.channel)
		}
	}
}

// Close ends the active session normally, e.g. once the transfer finished.
func (m *Machine) Close() {
	if n, ok := m.sc.Active(); ok && !n.State.IsTerminal() {
		m.end(session.Closed, nil)
		return
	}
	m.resetPeer()
}

// Shutdown closes the machine for good. Callbacks arriving afterwards are
// discarded.
func (m *Machine) Shutdown() {
	m.Close()
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

func (m *Machine) newPeer() (PeerConnection, error) {
	gen := m.gen
	pc, err := m.factory.NewPeerConnection(Observer{
		OnICECandidate: func(c webrtc.ICECandidateInit) {
			m.post(Event{gen: gen, kind: localCandidate, candidate: c})
		},
		OnConnectionStateChange: func(s webrtc.PeerConnectionState) {
			m.post(Event{gen: gen, kind: connectionState, state: s})
		},
		OnChannelOpen: func(ch transfer.Channel) {
			m.post(Event{gen: gen, kind: channelOpen, channel: ch})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	m.pc = pc
	return pc, nil
}

func (m *Machine) post(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

func (m *Machine) applyRemote(desc webrtc.SessionDescription) error {
	if err := m.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	m.remoteSet = true
	queued := m.pending
	m.pending = nil
	for _, c := range queued {
		if err := m.pc.AddICECandidate(c); err != nil {
			m.logger.Warn("Failed to add queued candidate", "error", err)
		}
	}
	if len(queued) > 0 {
		m.logger.Debug("Applied queued candidates", "count", len(queued))
	}
	return nil
}

func (m *Machine) transition(state session.State) session.Negotiation {
	n, err := m.sc.Transition(state)
	if err != nil {
		m.logger.Error("Transition without session", "state", state)
		return n
	}
	m.logger.Debug("Negotiation state", "session", n.SessionID, "state", n.State)
	return n
}

func (m *Machine) fail(err error) error {
	m.end(session.Failed, err)
	return err
}

// end moves the session to a terminal state, releases the peer connection
// and reports the outcome.
func (m *Machine) end(state session.State, cause error) {
	m.resetPeer()
	n, err := m.sc.End(state)
	if err != nil {
		return
	}
	if cause != nil {
		m.logger.Warn("Negotiation ended", "session", n.SessionID, "state", state, "error", cause)
	} else {
		m.logger.Info("Negotiation ended", "session", n.SessionID, "state", state)
	}
	if m.hooks.OnEnded != nil {
		m.hooks.OnEnded(n, cause)
	}
}

func (m *Machine) resetPeer() {
	m.gen++
	if m.channel != nil {
		if err := m.channel.Close(); err != nil {
			m.logger.Debug("Failed to close data channel", "error", err)
		}
		m.channel = nil
	}
	if m.pc != nil {
		if err := m.pc.Close(); err != nil {
			m.logger.Warn("Failed to close peer connection", "error", err)
		}
		m.pc = nil
	}
	m.remoteSet = false
	m.pending = nil
}

func (m *Machine) drop(kind, sessionID, senderID string) error {
	m.logger.Warn("Dropping mismatched signaling message", "type", kind, "session", sessionID, "sender", senderID)
	return fmt.Errorf("%w: %s for session %q from %q", ErrNegotiationMismatch, kind, sessionID, senderID)
}
