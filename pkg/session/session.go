package session

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rescp17/peerlink/pkg/transfer"
)

var (
	ErrSessionBusy = errors.New("another session is already active")
	ErrNoSession   = errors.New("no active session")
	ErrInvalidLink = errors.New("invalid share link")
)

// ID identifies one shared file on the relay.
type ID = string

// Role is the side a client plays in a negotiation.
type Role int

const (
	Offerer Role = iota
	Answerer
)

func (r Role) String() string {
	if r == Offerer {
		return "offerer"
	}
	return "answerer"
}

// State is the negotiation state of the active session.
type State int

const (
	Idle State = iota
	OfferSent
	OfferReceived
	AnswerExchanged
	Connected
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case OfferSent:
		return "offer-sent"
	case OfferReceived:
		return "offer-received"
	case AnswerExchanged:
		return "answer-exchanged"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true for Closed and Failed.
func (s State) IsTerminal() bool {
	return s == Closed || s == Failed
}

// Negotiation is the session this client is currently negotiating or
// transferring on.
type Negotiation struct {
	SessionID    ID
	Role         Role
	RemotePeerID string
	State        State
}

// Share is a file this client has offered on the relay.
type Share struct {
	ID       ID
	Metadata transfer.FileMetadata
}

// Context holds every piece of per-client session state. It replaces loose
// globals: the negotiation machine reads and writes it, nothing else does.
type Context struct {
	mu      sync.Mutex
	share   *Share
	request ID
	active  *Negotiation
}

func NewContext() *Context {
	return &Context{}
}

// StartShare records a local share under a fresh id.
func (c *Context) StartShare(meta transfer.FileMetadata) Share {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Share{ID: NewID(), Metadata: meta}
	c.share = &s
	return s
}

// Share returns the local share, if any.
func (c *Context) Share() (Share, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.share == nil {
		return Share{}, false
	}
	return *c.share, true
}

// RequestDownload records that this client asked the relay for id.
func (c *Context) RequestDownload(id ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.request = id
}

func (c *Context) PendingRequest() (ID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.request, c.request != ""
}

func (c *Context) ClearRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.request = ""
}

// Begin makes a new negotiation active. While another one is in flight it
// fails with ErrSessionBusy, except that an answerer may discard an
// unconnected negotiation for a different session.
func (c *Context) Begin(id ID, role Role, remotePeerID string, state State) (Negotiation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prior := c.active; prior != nil && !prior.State.IsTerminal() {
		replaceable := role == Answerer && prior.State != Connected && prior.SessionID != id
		if !replaceable {
			return Negotiation{}, fmt.Errorf("%w: session %s is %s with %s",
				ErrSessionBusy, prior.SessionID, prior.State, prior.RemotePeerID)
		}
	}
	n := &Negotiation{SessionID: id, Role: role, RemotePeerID: remotePeerID, State: state}
	c.active = n
	return *n, nil
}

// Active returns the current negotiation.
func (c *Context) Active() (Negotiation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Negotiation{}, false
	}
	return *c.active, true
}

// Transition moves the active negotiation to state.
func (c *Context) Transition(state State) (Negotiation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Negotiation{}, ErrNoSession
	}
	c.active.State = state
	return *c.active, nil
}

// Matches reports whether an envelope for sessionID from senderID belongs to
// the active negotiation. Both ids must be present and equal.
func (c *Context) Matches(sessionID ID, senderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.State.IsTerminal() {
		return false
	}
	if sessionID == "" || senderID == "" {
		return false
	}
	return sessionID == c.active.SessionID && senderID == c.active.RemotePeerID
}

// End moves the active negotiation to a terminal state and forgets the
// remote peer. The remote id is otherwise never changed.
func (c *Context) End(state State) (Negotiation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Negotiation{}, ErrNoSession
	}
	c.active.State = state
	c.active.RemotePeerID = ""
	return *c.active, nil
}

// NewID returns a random lowercase base-36 session id.
func NewID() ID {
	u := uuid.New()
	return new(big.Int).SetBytes(u[:]).Text(36)
}

// ShareLink formats id the way users pass it around.
func ShareLink(id ID) string {
	return "#" + id
}

// ParseShareLink accepts "#id", "id" or a full URL ending in "#id".
func ParseShareLink(link string) (ID, error) {
	link = strings.TrimSpace(link)
	if u, err := url.Parse(link); err == nil && u.Fragment != "" && (u.Scheme != "" || u.Host != "" || u.Path != "") {
		link = u.Fragment
	}
	id := strings.TrimPrefix(link, "#")
	if id == "" || strings.ContainsAny(id, " /#?") {
		return "", fmt.Errorf("%w: %q", ErrInvalidLink, link)
	}
	return id, nil
}
