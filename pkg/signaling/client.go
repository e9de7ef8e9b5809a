package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrSignalingLost = errors.New("signaling connection lost")
	ErrNotConnected  = errors.New("signaling connection is not open")
)

const (
	writeWait       = 10 * time.Second
	eventBufferSize = 64
)

// Event is one item of the client's inbound stream. Exactly one of Message
// or Err is set; Err is only ever delivered once, as the last event.
type Event struct {
	Message Message
	Err     error
}

// Client is a single connection to the relay. It never reconnects: once the
// link drops a single ErrSignalingLost event is delivered and the stream
// ends.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
	lost      chan struct{}
}

// Dial connects to the relay at url, e.g. ws://host:8765/ws.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay %s: %w", url, err)
	}
	c := &Client{
		conn:   conn,
		logger: logger,
		events: make(chan Event, eventBufferSize),
		closed: make(chan struct{}),
		lost:   make(chan struct{}),
	}
	go c.readLoop()
	logger.Info("Connected to relay", "url", url)
	return c, nil
}

// Events is the ordered stream of inbound envelopes. It is closed after the
// connection ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

func (c *Client) Connected() bool {
	select {
	case <-c.closed:
		return false
	case <-c.lost:
		return false
	default:
		return true
	}
}

// Send encodes and writes msg. It fails with ErrNotConnected when the link
// is down instead of queuing.
func (c *Client) Send(msg Message) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	c.logger.Debug("Sent signaling message", "type", msg.Type())
	return nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			close(c.lost)
			c.logger.Warn("Relay connection lost", "error", err)
			select {
			case c.events <- Event{Err: fmt.Errorf("%w: %v", ErrSignalingLost, err)}:
			case <-c.closed:
			}
			return
		}

		msg, err := Decode(data)
		if errors.Is(err, ErrUnknownType) {
			c.logger.Warn("Received unknown signaling message", "error", err)
			continue
		}
		if err != nil {
			c.logger.Warn("Dropping malformed signaling message", "error", err)
			continue
		}

		select {
		case c.events <- Event{Message: msg}:
		case <-c.closed:
			return
		}
	}
}

// Close shuts the connection down. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
