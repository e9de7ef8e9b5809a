package transfer

// Message is one inbound data channel message.
type Message struct {
	IsString bool
	Data     []byte
}

// Channel is the transport the chunk protocol runs on. The WebRTC data
// channel is the production implementation; Pipe is an in-memory one.
type Channel interface {
	Label() string
	IsOpen() bool
	SendText(s string) error
	Send(data []byte) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(th uint64)
	// BufferedAmountLow receives a value each time the buffered amount
	// crosses below the low threshold.
	BufferedAmountLow() <-chan struct{}
	Messages() <-chan Message
	// Done is closed once the channel is closed by either side.
	Done() <-chan struct{}
	Close() error
}
