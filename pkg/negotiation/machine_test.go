package negotiation

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rescp17/peerlink/pkg/session"
	"github.com/rescp17/peerlink/pkg/signaling"
	"github.com/rescp17/peerlink/pkg/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeer struct {
	mu         sync.Mutex
	channels   []string
	remote     *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	closed     bool
	failRemote error
}

func (p *fakePeer) CreateDataChannel(label string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, label)
	return nil
}

func (p *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (p *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (p *fakePeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failRemote != nil {
		return p.failRemote
	}
	p.remote = &desc
	return nil
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return errors.New("remote description not set")
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type fakeFactory struct {
	peers     []*fakePeer
	observers []Observer
}

func (f *fakeFactory) NewPeerConnection(obs Observer) (PeerConnection, error) {
	p := &fakePeer{}
	f.peers = append(f.peers, p)
	f.observers = append(f.observers, obs)
	return p, nil
}

func (f *fakeFactory) last() (*fakePeer, Observer) {
	return f.peers[len(f.peers)-1], f.observers[len(f.observers)-1]
}

type fakeSignaler struct {
	sent []signaling.Message
}

func (s *fakeSignaler) Send(msg signaling.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

type harness struct {
	sc       *session.Context
	factory  *fakeFactory
	signaler *fakeSignaler
	machine  *Machine

	opened []transfer.Channel
	ended  []error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{sc: session.NewContext(), factory: &fakeFactory{}, signaler: &fakeSignaler{}}
	h.machine = NewMachine(h.sc, h.factory, h.signaler, Hooks{
		OnChannelOpen: func(_ session.Negotiation, ch transfer.Channel) { h.opened = append(h.opened, ch) },
		OnEnded:       func(_ session.Negotiation, err error) { h.ended = append(h.ended, err) },
	}, nil)
	t.Cleanup(h.machine.Shutdown)
	return h
}

// pump feeds one queued platform event back into the machine.
func (h *harness) pump(t *testing.T) {
	t.Helper()
	select {
	case ev := <-h.machine.Events():
		h.machine.HandleEvent(ev)
	case <-time.After(time.Second):
		t.Fatal("no platform event queued")
	}
}

func (h *harness) startOfferer(t *testing.T, requester string) session.Share {
	t.Helper()
	share := h.sc.StartShare(transfer.FileMetadata{Name: "a.txt", Size: 3})
	require.NoError(t, h.machine.HandleInitiate(signaling.InitiateWebRTC{SessionID: share.ID, RequesterID: requester}))
	return share
}

func candidate(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

func TestOfferer_HappyPath(t *testing.T) {
	h := newHarness(t)
	share := h.startOfferer(t, "peer-r")

	assert.Equal(t, session.OfferSent, h.machine.State())
	peer, _ := h.factory.last()
	assert.Equal(t, []string{DataChannelLabel}, peer.channels)

	require.Len(t, h.signaler.sent, 1)
	offer, ok := h.signaler.sent[0].(signaling.Offer)
	require.True(t, ok)
	assert.Equal(t, share.ID, offer.SessionID)
	assert.Equal(t, "peer-r", offer.TargetID)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.SDP.Type)

	err := h.machine.HandleAnswer(signaling.Answer{
		SessionID: share.ID, SenderID: "peer-r",
		SDP: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"},
	})
	require.NoError(t, err)
	assert.Equal(t, session.Connected, h.machine.State())
	require.NotNil(t, peer.remote)
	assert.Equal(t, "answer-sdp", peer.remote.SDP)
}

func TestOfferer_InitiateForUnknownShareIsDropped(t *testing.T) {
	h := newHarness(t)
	h.sc.StartShare(transfer.FileMetadata{Name: "a.txt"})

	err := h.machine.HandleInitiate(signaling.InitiateWebRTC{SessionID: "other", RequesterID: "peer-r"})
	assert.ErrorIs(t, err, ErrNegotiationMismatch)
	assert.Empty(t, h.factory.peers)
	assert.Equal(t, session.Idle, h.machine.State())
}

func TestOfferer_MismatchedAnswerIsDropped(t *testing.T) {
	h := newHarness(t)
	share := h.startOfferer(t, "peer-r")
	peer, _ := h.factory.last()

	for _, ans := range []signaling.Answer{
		{SessionID: share.ID, SenderID: "intruder"},
		{SessionID: "other-session", SenderID: "peer-r"},
		{SenderID: "peer-r"},
	} {
		err := h.machine.HandleAnswer(ans)
		assert.ErrorIs(t, err, ErrNegotiationMismatch)
	}
	assert.Nil(t, peer.remote)
	assert.Equal(t, session.OfferSent, h.machine.State())
	assert.Empty(t, h.ended)
}

func TestOfferer_CandidatesBeforeAnswerAreQueued(t *testing.T) {
	h := newHarness(t)
	share := h.startOfferer(t, "peer-r")
	peer, _ := h.factory.last()

	require.NoError(t, h.machine.HandleCandidate(signaling.ICECandidate{SessionID: share.ID, SenderID: "peer-r", Candidate: candidate("c1")}))
	require.NoError(t, h.machine.HandleCandidate(signaling.ICECandidate{SessionID: share.ID, SenderID: "peer-r", Candidate: candidate("c2")}))
	assert.Empty(t, peer.candidates)

	require.NoError(t, h.machine.HandleAnswer(signaling.Answer{SessionID: share.ID, SenderID: "peer-r"}))
	assert.Equal(t, []webrtc.ICECandidateInit{candidate("c1"), candidate("c2")}, peer.candidates)
	assert.Equal(t, session.Connected, h.machine.State())

	require.NoError(t, h.machine.HandleCandidate(signaling.ICECandidate{SessionID: share.ID, SenderID: "peer-r", Candidate: candidate("c3")}))
	assert.Len(t, peer.candidates, 3)
}

func TestCandidateFromWrongPeerIsDropped(t *testing.T) {
	h := newHarness(t)
	share := h.startOfferer(t, "peer-r")
	require.NoError(t, h.machine.HandleAnswer(signaling.Answer{SessionID: share.ID, SenderID: "peer-r"}))
	peer, _ := h.factory.last()

	err := h.machine.HandleCandidate(signaling.ICECandidate{SessionID: share.ID, SenderID: "intruder", Candidate: candidate("evil")})
	assert.ErrorIs(t, err, ErrNegotiationMismatch)
	err = h.machine.HandleCandidate(signaling.ICECandidate{SenderID: "peer-r", Candidate: candidate("no-session")})
	assert.ErrorIs(t, err, ErrNegotiationMismatch)
	assert.Empty(t, peer.candidates)
	assert.Equal(t, session.Connected, h.machine.State())
}

func TestCandidateWithoutPeerConnectionIsDropped(t *testing.T) {
	h := newHarness(t)
	err := h.machine.HandleCandidate(signaling.ICECandidate{SessionID: "s", SenderID: "p", Candidate: candidate("c")})
	assert.ErrorIs(t, err, ErrNegotiationMismatch)
}

func TestLocalCandidatesAreRelayedToRemotePeer(t *testing.T) {
	h := newHarness(t)
	share := h.startOfferer(t, "peer-r")
	_, obs := h.factory.last()

	obs.OnICECandidate(candidate("local-1"))
	h.pump(t)

	require.Len(t, h.signaler.sent, 2)
	msg, ok := h.signaler.sent[1].(signaling.ICECandidate)
	require.True(t, ok)
	assert.Equal(t, share.ID, msg.SessionID)
	assert.Equal(t, "peer-r", msg.TargetID)
	assert.Equal(t, "local-1", msg.Candidate.Candidate)
}

func TestOfferer_ChannelOpenNotifiesOwner(t *testing.T) {
	h := newHarness(t)
	share := h.startOfferer(t, "peer-r")
	require.NoError(t, h.machine.HandleAnswer(signaling.Answer{SessionID: share.ID, SenderID: "peer-r"}))
	_, obs := h.factory.last()

	local, _ := transfer.Pipe(DataChannelLabel)
	obs.OnChannelOpen(local)
	h.pump(t)

	require.Len(t, h.opened, 1)
	assert.Equal(t, session.Connected, h.machine.State())
}

func TestSecondInitiateWhileConnectedIsRejected(t *testing.T) {
	h := newHarness(t)
	share := h.startOfferer(t, "peer-r")
	require.NoError(t, h.machine.HandleAnswer(signaling.Answer{SessionID: share.ID, SenderID: "peer-r"}))
	peer, _ := h.factory.last()

	err := h.machine.HandleInitiate(signaling.InitiateWebRTC{SessionID: share.ID, RequesterID: "peer-late"})
	assert.ErrorIs(t, err, session.ErrSessionBusy)

	n, ok := h.sc.Active()
	require.True(t, ok)
	assert.Equal(t, "peer-r", n.RemotePeerID)
	assert.Equal(t, session.Connected, n.State)
	assert.Len(t, h.factory.peers, 1)
	assert.False(t, peer.closed)
}

func TestOfferer_SecondRequesterIsRejectedWhileNegotiating(t *testing.T) {
	h := newHarness(t)
	share := h.startOfferer(t, "peer-a")
	first, _ := h.factory.last()

	err := h.machine.HandleInitiate(signaling.InitiateWebRTC{SessionID: share.ID, RequesterID: "peer-b"})
	assert.ErrorIs(t, err, session.ErrSessionBusy)

	n, ok := h.sc.Active()
	require.True(t, ok)
	assert.Equal(t, "peer-a", n.RemotePeerID)
	assert.Equal(t, session.OfferSent, n.State)
	assert.False(t, first.closed)
	assert.Len(t, h.factory.peers, 1)
	assert.Len(t, h.signaler.sent, 1, "no offer goes to the second requester")
	assert.Empty(t, h.ended)

	// The first requester can still finish.
	require.NoError(t, h.machine.HandleAnswer(signaling.Answer{SessionID: share.ID, SenderID: "peer-a"}))
	assert.Equal(t, session.Connected, h.machine.State())
}

func TestOfferer_NewRequesterAfterFailureStartsOver(t *testing.T) {
	h := newHarness(t)
	share := h.startOfferer(t, "peer-a")
	_, obs := h.factory.last()
	obs.OnConnectionStateChange(webrtc.PeerConnectionStateFailed)
	h.pump(t)
	require.Equal(t, session.Failed, h.machine.State())

	require.NoError(t, h.machine.HandleInitiate(signaling.InitiateWebRTC{SessionID: share.ID, RequesterID: "peer-b"}))
	n, _ := h.sc.Active()
	assert.Equal(t, "peer-b", n.RemotePeerID)
	assert.Equal(t, session.OfferSent, n.State)
}

func TestAnswerer_HappyPath(t *testing.T) {
	h := newHarness(t)
	h.sc.RequestDownload("sess")

	err := h.machine.HandleOffer(signaling.Offer{
		SessionID: "sess", SenderID: "peer-s",
		SDP: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"},
	})
	require.NoError(t, err)
	assert.Equal(t, session.AnswerExchanged, h.machine.State())

	peer, obs := h.factory.last()
	require.NotNil(t, peer.remote)
	assert.Equal(t, "offer-sdp", peer.remote.SDP)
	assert.Empty(t, peer.channels, "answerer waits for the offerer's channel")

	require.Len(t, h.signaler.sent, 1)
	answer := h.signaler.sent[0].(signaling.Answer)
	assert.Equal(t, "peer-s", answer.TargetID)
	assert.Equal(t, "sess", answer.SessionID)

	_, remote := transfer.Pipe(DataChannelLabel)
	obs.OnChannelOpen(remote)
	h.pump(t)
	assert.Equal(t, session.Connected, h.machine.State())
	require.Len(t, h.opened, 1)
}

func TestAnswerer_OfferForUnrequestedSessionIsDropped(t *testing.T) {
	h := newHarness(t)
	h.sc.RequestDownload("mine")

	err := h.machine.HandleOffer(signaling.Offer{SessionID: "theirs", SenderID: "peer-s"})
	assert.ErrorIs(t, err, ErrNegotiationMismatch)
	_, ok := h.sc.Active()
	assert.False(t, ok)
	assert.Empty(t, h.factory.peers)
}

func TestAnswerer_OfferForNewRequestDiscardsPriorPeer(t *testing.T) {
	h := newHarness(t)
	h.sc.RequestDownload("sess-1")
	require.NoError(t, h.machine.HandleOffer(signaling.Offer{SessionID: "sess-1", SenderID: "peer-s"}))
	first, firstObs := h.factory.last()

	h.sc.RequestDownload("sess-2")
	require.NoError(t, h.machine.HandleOffer(signaling.Offer{SessionID: "sess-2", SenderID: "peer-t"}))
	assert.True(t, first.closed)
	assert.Len(t, h.factory.peers, 2)

	n, _ := h.sc.Active()
	assert.Equal(t, "sess-2", n.SessionID)
	assert.Equal(t, "peer-t", n.RemotePeerID)

	// Callbacks from the discarded connection are ignored.
	firstObs.OnConnectionStateChange(webrtc.PeerConnectionStateFailed)
	h.pump(t)
	assert.Equal(t, session.AnswerExchanged, h.machine.State())
	assert.Empty(t, h.ended)
}

func TestAnswerer_OfferFromOtherSenderForSameSessionIsDropped(t *testing.T) {
	h := newHarness(t)
	h.sc.RequestDownload("sess")
	require.NoError(t, h.machine.HandleOffer(signaling.Offer{SessionID: "sess", SenderID: "peer-a"}))
	first, _ := h.factory.last()

	err := h.machine.HandleOffer(signaling.Offer{SessionID: "sess", SenderID: "peer-b"})
	assert.ErrorIs(t, err, ErrNegotiationMismatch)

	n, ok := h.sc.Active()
	require.True(t, ok)
	assert.Equal(t, "peer-a", n.RemotePeerID)
	assert.Equal(t, session.AnswerExchanged, n.State)
	assert.Len(t, h.factory.peers, 1)
	assert.False(t, first.closed)
	assert.Len(t, h.signaler.sent, 1, "only the first offer is answered")
}

func TestAnswerer_RepeatedOfferWhileNegotiatingIsRejected(t *testing.T) {
	h := newHarness(t)
	h.sc.RequestDownload("sess")
	require.NoError(t, h.machine.HandleOffer(signaling.Offer{SessionID: "sess", SenderID: "peer-a"}))
	first, _ := h.factory.last()

	err := h.machine.HandleOffer(signaling.Offer{SessionID: "sess", SenderID: "peer-a"})
	assert.ErrorIs(t, err, session.ErrSessionBusy)
	assert.False(t, first.closed)
	assert.Len(t, h.factory.peers, 1)
}

func TestAnswerer_RemoteDescriptionFailureFailsSession(t *testing.T) {
	h := newHarness(t)
	h.sc.RequestDownload("sess")
	h.machine.factory = failingFactory{err: errors.New("bad sdp")}

	err := h.machine.HandleOffer(signaling.Offer{SessionID: "sess", SenderID: "peer-s"})
	assert.Error(t, err)
	assert.Equal(t, session.Failed, h.machine.State())
	require.Len(t, h.ended, 1)
}

type failingFactory struct{ err error }

func (f failingFactory) NewPeerConnection(Observer) (PeerConnection, error) {
	return &fakePeer{failRemote: f.err}, nil
}

func TestConnectionFailureMovesToFailed(t *testing.T) {
	for _, state := range []webrtc.PeerConnectionState{webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed} {
		t.Run(state.String(), func(t *testing.T) {
			h := newHarness(t)
			share := h.startOfferer(t, "peer-r")
			require.NoError(t, h.machine.HandleAnswer(signaling.Answer{SessionID: share.ID, SenderID: "peer-r"}))
			peer, obs := h.factory.last()

			obs.OnConnectionStateChange(state)
			h.pump(t)

			n, ok := h.sc.Active()
			require.True(t, ok)
			assert.Equal(t, session.Failed, n.State)
			assert.Empty(t, n.RemotePeerID)
			assert.True(t, peer.closed)
			require.Len(t, h.ended, 1)
			assert.ErrorIs(t, h.ended[0], ErrConnectionFailed)
		})
	}
}

func TestPeerDisconnectedClosesSession(t *testing.T) {
	h := newHarness(t)
	share := h.startOfferer(t, "peer-r")
	peer, _ := h.factory.last()

	err := h.machine.HandlePeerDisconnected(signaling.PeerDisconnected{SessionID: "unrelated", SenderID: "someone"})
	assert.ErrorIs(t, err, ErrNegotiationMismatch)
	assert.False(t, peer.closed)

	require.NoError(t, h.machine.HandlePeerDisconnected(signaling.PeerDisconnected{SessionID: share.ID, Reason: "left"}))
	assert.True(t, peer.closed)
	assert.Equal(t, session.Closed, h.machine.State())
	require.Len(t, h.ended, 1)
	assert.ErrorIs(t, h.ended[0], ErrPeerDisconnected)
}

func TestPeerDisconnectedMatchesByPeerID(t *testing.T) {
	h := newHarness(t)
	h.sc.RequestDownload("sess")
	require.NoError(t, h.machine.HandleOffer(signaling.Offer{SessionID: "sess", SenderID: "peer-s"}))

	require.NoError(t, h.machine.HandlePeerDisconnected(signaling.PeerDisconnected{SenderID: "peer-s"}))
	assert.Equal(t, session.Closed, h.machine.State())
}

func TestCloseEndsSessionNormally(t *testing.T) {
	h := newHarness(t)
	share := h.startOfferer(t, "peer-r")
	require.NoError(t, h.machine.HandleAnswer(signaling.Answer{SessionID: share.ID, SenderID: "peer-r"}))
	peer, _ := h.factory.last()

	h.machine.Close()
	assert.True(t, peer.closed)
	assert.Equal(t, session.Closed, h.machine.State())
	require.Len(t, h.ended, 1)
	assert.NoError(t, h.ended[0])

	// A fresh request can negotiate again after a normal close.
	require.NoError(t, h.machine.HandleInitiate(signaling.InitiateWebRTC{SessionID: share.ID, RequesterID: "peer-next"}))
	assert.Equal(t, session.OfferSent, h.machine.State())
}
