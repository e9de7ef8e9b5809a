package webrtc

import (
	"log"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rescp17/peerlink/pkg/transfer"
)

const messageBufferSize = 256

// DataChannel adapts a pion data channel to transfer.Channel.
type DataChannel struct {
	dc *webrtc.DataChannel

	messages  chan transfer.Message
	low       chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ transfer.Channel = (*DataChannel)(nil)

// NewDataChannel registers message, close and buffered-amount callbacks on
// dc. Call it before the channel opens.
func NewDataChannel(dc *webrtc.DataChannel) *DataChannel {
	d := &DataChannel{
		dc:       dc,
		messages: make(chan transfer.Message, messageBufferSize),
		low:      make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case d.messages <- transfer.Message{IsString: msg.IsString, Data: msg.Data}:
		case <-d.done:
		}
	})
	dc.OnBufferedAmountLow(func() {
		select {
		case d.low <- struct{}{}:
		default:
		}
	})
	dc.OnClose(d.markDone)
	dc.OnError(func(err error) {
		log.Printf("[DataChannel %s] %v", dc.Label(), err)
	})
	return d
}

func (d *DataChannel) markDone() {
	d.closeOnce.Do(func() { close(d.done) })
}

func (d *DataChannel) Label() string { return d.dc.Label() }

func (d *DataChannel) IsOpen() bool {
	select {
	case <-d.done:
		return false
	default:
	}
	return d.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (d *DataChannel) SendText(s string) error {
	if !d.IsOpen() {
		return transfer.ErrChannelUnavailable
	}
	return d.dc.SendText(s)
}

func (d *DataChannel) Send(data []byte) error {
	if !d.IsOpen() {
		return transfer.ErrChannelUnavailable
	}
	return d.dc.Send(data)
}

func (d *DataChannel) BufferedAmount() uint64 { return d.dc.BufferedAmount() }

func (d *DataChannel) SetBufferedAmountLowThreshold(th uint64) {
	d.dc.SetBufferedAmountLowThreshold(th)
}

func (d *DataChannel) BufferedAmountLow() <-chan struct{} { return d.low }

func (d *DataChannel) Messages() <-chan transfer.Message { return d.messages }

func (d *DataChannel) Done() <-chan struct{} { return d.done }

func (d *DataChannel) Close() error {
	err := d.dc.Close()
	d.markDone()
	return err
}
