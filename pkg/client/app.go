package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	appevents "github.com/rescp17/peerlink/internal/app_events"
	"github.com/rescp17/peerlink/internal/app_events/receiver"
	"github.com/rescp17/peerlink/internal/app_events/sender"
	"github.com/rescp17/peerlink/pkg/concurrency"
	"github.com/rescp17/peerlink/pkg/fileInfo"
	"github.com/rescp17/peerlink/pkg/negotiation"
	"github.com/rescp17/peerlink/pkg/session"
	"github.com/rescp17/peerlink/pkg/signaling"
	"github.com/rescp17/peerlink/pkg/transfer"
)

var (
	ErrPeerNotFound = errors.New("peer not found")
	ErrRelay        = errors.New("relay rejected the request")
	ErrCancelled    = errors.New("cancelled by user")
	ErrNothingToDo  = errors.New("neither a share nor a download was started")
)

// Relay is the signaling link the app talks through. *signaling.Client
// implements it.
type Relay interface {
	Send(msg signaling.Message) error
	Events() <-chan signaling.Event
	Close() error
}

type result struct {
	role     session.Role
	artifact *transfer.Artifact
	err      error
}

// App ties the relay link, the negotiation machine and the chunk transfer
// together for one share or one download.
type App struct {
	cfg    Config
	logger *slog.Logger

	relay   Relay
	sc      *session.Context
	machine *negotiation.Machine
	guard   *concurrency.TransferGuard

	uiMessages chan tea.Msg            // App -> TUI
	appEvents  chan appevents.AppEvent // TUI -> App
	results    chan result
	done       chan struct{}
	doneOnce   sync.Once
	transferWG sync.WaitGroup

	mu     sync.Mutex
	source *os.File

	// Owned by the event loop.
	runCtx         context.Context
	peerID         string
	cancelTransfer context.CancelFunc
	ended          error
	lastPercent    int
}

// NewApp creates an app on top of an established relay link. factory
// creates the peer connections; the webrtc package's API is the
// production one.
func NewApp(cfg Config, relay Relay, factory negotiation.Factory, logger *slog.Logger) (*App, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		cfg:         cfg,
		logger:      logger,
		relay:       relay,
		sc:          session.NewContext(),
		guard:       concurrency.NewTransferGuard(),
		uiMessages:  make(chan tea.Msg, 32),
		appEvents:   make(chan appevents.AppEvent),
		results:     make(chan result, 2),
		done:        make(chan struct{}),
		lastPercent: -1,
	}
	a.machine = negotiation.NewMachine(a.sc, factory, relay, negotiation.Hooks{
		OnChannelOpen: a.onChannelOpen,
		OnEnded:       a.onEnded,
	}, logger)
	return a, nil
}

// UIMessages returns the channel for the UI to listen on for updates.
func (a *App) UIMessages() <-chan tea.Msg {
	return a.uiMessages
}

// AppEvents returns a write-only channel for the TUI to send events to the app.
func (a *App) AppEvents() chan<- appevents.AppEvent {
	return a.appEvents
}

// Done is closed once Run has returned.
func (a *App) Done() <-chan struct{} {
	return a.done
}

// Share registers path with the relay and returns the share to hand to the
// receiver.
func (a *App) Share(path string) (session.Share, error) {
	meta, err := fileInfo.Describe(path, a.cfg.Checksum)
	if err != nil {
		return session.Share{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return session.Share{}, fmt.Errorf("failed to open %s: %w", path, err)
	}

	a.mu.Lock()
	if a.source != nil {
		a.mu.Unlock()
		f.Close()
		return session.Share{}, concurrency.ErrBusy
	}
	a.source = f
	a.mu.Unlock()

	share := a.sc.StartShare(meta)
	err = a.relay.Send(signaling.FileOffer{
		SessionID: share.ID,
		FileName:  meta.Name,
		FileSize:  meta.Size,
		FileType:  meta.MimeType,
	})
	if err != nil {
		return session.Share{}, fmt.Errorf("failed to announce share: %w", err)
	}
	a.logger.Info("Sharing file", "file", meta.Name, "size", meta.Size, "session", share.ID)
	a.notify(sender.ShareReadyMsg{Link: session.ShareLink(share.ID), Metadata: meta})
	return share, nil
}

// Download asks the relay to connect us to the sharer behind link.
func (a *App) Download(link string) (session.ID, error) {
	id, err := session.ParseShareLink(link)
	if err != nil {
		return "", err
	}
	a.sc.RequestDownload(id)
	if err := a.relay.Send(signaling.FileRequest{SessionID: id}); err != nil {
		a.sc.ClearRequest()
		return "", fmt.Errorf("failed to request session: %w", err)
	}
	a.logger.Info("Requested download", "session", id)
	a.notify(appevents.StatusMsg{Message: "Waiting for the sender..."})
	return id, nil
}

// Run processes relay messages, peer connection callbacks and UI events
// until the transfer finishes, fails or ctx ends.
func (a *App) Run(ctx context.Context) error {
	if _, shared := a.sc.Share(); !shared {
		if _, requested := a.sc.PendingRequest(); !requested {
			return ErrNothingToDo
		}
	}
	a.runCtx = ctx
	defer a.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-a.relay.Events():
			if !ok {
				return signaling.ErrSignalingLost
			}
			if ev.Err != nil {
				a.sendAndLogError("Lost connection to relay", ev.Err)
				return ev.Err
			}
			if err := a.handleSignal(ev.Message); err != nil {
				return err
			}
		case ev := <-a.machine.Events():
			a.machine.HandleEvent(ev)
		case res := <-a.results:
			if done, err := a.handleResult(res); done {
				return err
			}
		case event := <-a.appEvents:
			switch event.(type) {
			case appevents.CancelTransferEvent:
				a.logger.Info("Transfer cancelled by user")
				return ErrCancelled
			default:
				a.logger.Warn("Received unhandled app event", "event", event)
			}
		}

		if a.ended != nil {
			return a.ended
		}
	}
}

func (a *App) handleSignal(msg signaling.Message) error {
	a.logger.Debug("Signaling message", "type", msg.Type())

	var err error
	switch m := msg.(type) {
	case signaling.Welcome:
		a.peerID = m.PeerID
		a.logger.Info("Registered with relay", "peer", m.PeerID)
	case signaling.FileOfferAck:
		meta := transfer.FileMetadata{Name: m.FileName, Size: m.FileSize, MimeType: m.FileType}
		a.notify(receiver.OfferAckMsg{Metadata: meta})
		a.notify(appevents.StatusMsg{Message: "Sender found, connecting..."})
	case signaling.PeerNotFound:
		requested, ok := a.sc.PendingRequest()
		if !ok || requested != m.SessionID {
			a.logger.Warn("Ignoring peer-not-found for another session", "session", m.SessionID)
			return nil
		}
		a.sc.ClearRequest()
		err := fmt.Errorf("%w: session %s: %s", ErrPeerNotFound, m.SessionID, m.Reason)
		a.sendAndLogError("Could not reach the sender", err)
		return err
	case signaling.Error:
		err := fmt.Errorf("%w: %s", ErrRelay, m.Message)
		a.sendAndLogError("Relay error", err)
		return err
	case signaling.InitiateWebRTC:
		if err = a.machine.HandleInitiate(m); err == nil {
			a.notify(sender.PeerRequestedMsg{PeerID: m.RequesterID})
		}
	case signaling.Offer:
		err = a.machine.HandleOffer(m)
	case signaling.Answer:
		err = a.machine.HandleAnswer(m)
	case signaling.ICECandidate:
		err = a.machine.HandleCandidate(m)
	case signaling.PeerDisconnected:
		err = a.machine.HandlePeerDisconnected(m)
	default:
		a.logger.Warn("Unexpected signaling message", "type", msg.Type())
	}

	// Negotiation problems are recovered locally: the machine has already
	// logged them and, if fatal to the session, reported through onEnded.
	if err != nil {
		a.logger.Debug("Signaling message not applied", "type", msg.Type(), "error", err)
	}
	return nil
}

func (a *App) onChannelOpen(n session.Negotiation, ch transfer.Channel) {
	a.notify(appevents.StatusMsg{Message: "Connected, starting transfer..."})

	ctx, cancel := context.WithCancel(a.runCtx)
	if a.cancelTransfer == nil {
		a.cancelTransfer = cancel
	}
	a.transferWG.Add(1)
	go func() {
		defer a.transferWG.Done()
		defer cancel()

		res := result{role: n.Role}
		res.err = a.guard.ExecuteWithContext(ctx, func(ctx context.Context) error {
			if n.Role == session.Offerer {
				return a.send(ctx, ch)
			}
			artifact, err := a.receive(ctx, ch)
			res.artifact = artifact
			return err
		})
		select {
		case a.results <- res:
		case <-a.done:
		}
	}()
}

func (a *App) onEnded(n session.Negotiation, err error) {
	if err == nil {
		return
	}
	if a.cancelTransfer != nil {
		// The transfer sees the closed channel and reports through results.
		return
	}
	a.sendAndLogError("Connection ended", err)
	a.ended = err
}

// handleResult reports a finished transfer. It returns true when Run should
// exit with err.
func (a *App) handleResult(res result) (bool, error) {
	if errors.Is(res.err, concurrency.ErrBusy) {
		a.logger.Warn("Ignoring second data channel while a transfer is running")
		return false, nil
	}
	a.cancelTransfer = nil
	a.machine.Close()

	if res.err != nil {
		a.sendAndLogError("Transfer failed", res.err)
		return true, res.err
	}
	a.notify(appevents.TransferCompleteMsg{Artifact: res.artifact})
	return true, nil
}

func (a *App) send(ctx context.Context, ch transfer.Channel) error {
	share, ok := a.sc.Share()
	if !ok {
		return ErrNothingToDo
	}
	a.mu.Lock()
	src := a.source
	a.mu.Unlock()

	s, err := transfer.NewSender(a.cfg.Transfer, a.logger)
	if err != nil {
		return err
	}
	if err := s.Send(ctx, ch, src, share.Metadata, a.progress); err != nil {
		return err
	}
	// The receiver closes the channel once it has the completion record, so
	// a close while flushing means everything arrived.
	if err := s.Flush(ctx, ch); err != nil && !errors.Is(err, transfer.ErrChannelUnavailable) {
		return err
	}
	return nil
}

func (a *App) receive(ctx context.Context, ch transfer.Channel) (*transfer.Artifact, error) {
	r := transfer.NewReceiver(a.cfg.Sink, a.progress, a.logger)
	return r.Run(ctx, ch)
}

// progress forwards snapshots to the UI, once per whole percent.
func (a *App) progress(s transfer.Snapshot) {
	if s.Percent == a.lastPercent && !s.Status.IsTerminal() {
		return
	}
	a.lastPercent = s.Percent
	a.notify(appevents.ProgressMsg{Snapshot: s})
}

func (a *App) notify(msg tea.Msg) {
	select {
	case a.uiMessages <- msg:
	case <-a.done:
	}
}

// sendAndLogError is a helper function to both log an error and send it to the UI.
func (a *App) sendAndLogError(baseMessage string, err error) {
	a.logger.Error(baseMessage, "error", err)
	a.notify(appevents.ErrorMsg{Err: fmt.Errorf("%s: %w", baseMessage, err)})
}

func (a *App) shutdown() {
	if a.cancelTransfer != nil {
		a.cancelTransfer()
	}
	a.machine.Shutdown()
	a.doneOnce.Do(func() { close(a.done) })
	a.transferWG.Wait()

	if err := a.relay.Close(); err != nil {
		a.logger.Debug("Failed to close relay connection", "error", err)
	}
	a.mu.Lock()
	if a.source != nil {
		a.source.Close()
		a.source = nil
	}
	a.mu.Unlock()
}
