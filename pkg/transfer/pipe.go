package transfer

import (
	"sync"
)

const pipeQueueLen = 1024

// Pipe returns two connected in-memory channels. Bytes count as buffered on
// the sending end until the other end reads them from Messages.
func Pipe(label string) (Channel, Channel) {
	done := make(chan struct{})
	once := &sync.Once{}
	a := newPipeEnd(label, done, once)
	b := newPipeEnd(label, done, once)
	a.peer, b.peer = b, a
	go a.deliver()
	go b.deliver()
	return a, b
}

type pipeEnd struct {
	label string
	peer  *pipeEnd

	queue chan Message
	out   chan Message

	mu           sync.Mutex
	buffered     uint64
	lowThreshold uint64
	low          chan struct{}

	done      chan struct{}
	closeOnce *sync.Once
}

func newPipeEnd(label string, done chan struct{}, once *sync.Once) *pipeEnd {
	return &pipeEnd{
		label:     label,
		queue:     make(chan Message, pipeQueueLen),
		out:       make(chan Message),
		low:       make(chan struct{}, 1),
		done:      done,
		closeOnce: once,
	}
}

// deliver hands queued messages to the reader and releases the sender's
// buffered bytes once the reader has taken them.
func (p *pipeEnd) deliver() {
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.queue:
			select {
			case p.out <- msg:
				p.peer.release(uint64(len(msg.Data)))
			case <-p.done:
				return
			}
		}
	}
}

func (p *pipeEnd) release(n uint64) {
	p.mu.Lock()
	before := p.buffered
	p.buffered -= n
	crossed := before > p.lowThreshold && p.buffered <= p.lowThreshold
	p.mu.Unlock()
	if crossed {
		select {
		case p.low <- struct{}{}:
		default:
		}
	}
}

func (p *pipeEnd) enqueue(msg Message) error {
	if !p.IsOpen() {
		return ErrChannelUnavailable
	}
	p.mu.Lock()
	p.buffered += uint64(len(msg.Data))
	p.mu.Unlock()
	select {
	case p.peer.queue <- msg:
		return nil
	case <-p.done:
		return ErrChannelUnavailable
	}
}

func (p *pipeEnd) Label() string { return p.label }

func (p *pipeEnd) IsOpen() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *pipeEnd) SendText(s string) error {
	return p.enqueue(Message{IsString: true, Data: []byte(s)})
}

func (p *pipeEnd) Send(data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	return p.enqueue(Message{Data: buf})
}

func (p *pipeEnd) BufferedAmount() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffered
}

func (p *pipeEnd) SetBufferedAmountLowThreshold(th uint64) {
	p.mu.Lock()
	p.lowThreshold = th
	p.mu.Unlock()
}

func (p *pipeEnd) BufferedAmountLow() <-chan struct{} { return p.low }

func (p *pipeEnd) Messages() <-chan Message { return p.out }

func (p *pipeEnd) Done() <-chan struct{} { return p.done }

func (p *pipeEnd) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}
