package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"time"
)

// ReceiverState is the position of a Receiver in the chunk protocol.
type ReceiverState int

const (
	AwaitingMetadata ReceiverState = iota
	Receiving
	Complete
	Failed
)

func (s ReceiverState) String() string {
	switch s {
	case AwaitingMetadata:
		return "awaiting-metadata"
	case Receiving:
		return "receiving"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// completionGrace bounds how long Run waits for the completion record after
// the last byte arrived.
const completionGrace = 2 * time.Second

// Receiver reassembles one file from the messages of a Channel. It is not
// safe for concurrent use; feed it from a single goroutine.
type Receiver struct {
	newSink  SinkFactory
	progress ProgressFunc
	logger   *slog.Logger

	state    ReceiverState
	transfer *Transfer
	sink     Sink
	hasher   hash.Hash
	artifact *Artifact
}

func NewReceiver(newSink SinkFactory, progress ProgressFunc, logger *slog.Logger) *Receiver {
	if newSink == nil {
		newSink = NewMemorySink
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{newSink: newSink, progress: progress, logger: logger}
}

func (r *Receiver) State() ReceiverState {
	return r.state
}

// Artifact returns the reassembled file once the receiver is Complete.
func (r *Receiver) Artifact() *Artifact {
	return r.artifact
}

// Handle advances the receiver by one message. Any error is terminal: the
// partial file is discarded and later messages are rejected.
func (r *Receiver) Handle(msg Message) error {
	if r.state == Failed {
		return fmt.Errorf("%w: receiver already failed", ErrProtocolViolation)
	}
	var err error
	if msg.IsString {
		err = r.handleControl(msg.Data)
	} else {
		err = r.handleChunk(msg.Data)
	}
	if err != nil {
		if r.state == Complete {
			r.revoke(err)
		} else {
			r.Abort(err)
		}
	}
	return err
}

func (r *Receiver) handleControl(data []byte) error {
	ctrl, err := DecodeControl(data)
	if err != nil {
		return err
	}

	switch ctrl.Type {
	case FileMetadataType:
		if r.state != AwaitingMetadata {
			return fmt.Errorf("%w: duplicate metadata", ErrProtocolViolation)
		}
		return r.begin(ctrl.FileMetadata)
	case TransferCompleteType:
		switch r.state {
		case AwaitingMetadata:
			return fmt.Errorf("%w: completion before metadata", ErrProtocolViolation)
		case Receiving:
			return r.transfer.Complete()
		}
		return nil
	default:
		r.logger.Warn("Ignoring unknown control message", "type", ctrl.Type)
		return nil
	}
}

func (r *Receiver) begin(meta FileMetadata) error {
	if meta.Size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrProtocolViolation, meta.Size)
	}
	sink, err := r.newSink(meta)
	if err != nil {
		return err
	}
	r.sink = sink
	r.transfer = NewTransfer(meta)
	r.transfer.Start()
	if meta.Checksum != "" {
		r.hasher = sha256.New()
	}
	r.state = Receiving
	r.logger.Info("Receiving file", "file", meta.Name, "size", meta.Size, "type", meta.MimeType)
	r.report()

	if meta.Size == 0 {
		return r.finish()
	}
	return nil
}

func (r *Receiver) handleChunk(data []byte) error {
	switch r.state {
	case AwaitingMetadata:
		return fmt.Errorf("%w: data before metadata", ErrProtocolViolation)
	case Complete:
		return fmt.Errorf("%w: data after completion", ErrProtocolViolation)
	}

	if err := r.transfer.Advance(len(data)); err != nil {
		return err
	}
	if _, err := r.sink.Write(data); err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	if r.hasher != nil {
		r.hasher.Write(data)
	}
	r.report()

	if r.transfer.Finished() {
		return r.finish()
	}
	return nil
}

func (r *Receiver) finish() error {
	meta := r.transfer.Snapshot().Metadata
	if r.hasher != nil {
		sum := hex.EncodeToString(r.hasher.Sum(nil))
		if sum != meta.Checksum {
			return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, meta.Checksum, sum)
		}
	}
	artifact, err := r.sink.Commit(meta)
	if err != nil {
		return err
	}
	if err := r.transfer.Complete(); err != nil {
		return err
	}
	r.artifact = artifact
	r.state = Complete
	r.report()
	r.logger.Info("File received", "file", meta.Name, "size", meta.Size)
	return nil
}

// Abort discards any partial data and moves the receiver to Failed.
func (r *Receiver) Abort(cause error) {
	if r.state == Complete || r.state == Failed {
		return
	}
	r.state = Failed
	if r.transfer != nil {
		r.transfer.Fail(cause)
		r.report()
	}
	if r.sink != nil {
		if err := r.sink.Discard(); err != nil {
			r.logger.Error("Failed to discard partial file", "error", err)
		}
	}
}

// revoke undoes a committed file when the peer breaks the protocol after
// the last byte, e.g. by sending more data during the completion grace.
func (r *Receiver) revoke(cause error) {
	r.state = Failed
	r.artifact = nil
	r.transfer.Revoke(cause)
	r.report()
	if err := r.sink.Discard(); err != nil {
		r.logger.Error("Failed to remove received file", "error", err)
	}
	r.logger.Warn("Discarded received file after protocol violation", "error", cause)
}

func (r *Receiver) report() {
	if r.progress != nil && r.transfer != nil {
		r.progress(r.transfer.Snapshot())
	}
}

// Run consumes messages from ch until the file is complete or the transfer
// fails. After the last byte it waits briefly for the completion record so
// the sender is not cut off mid-send.
func (r *Receiver) Run(ctx context.Context, ch Channel) (*Artifact, error) {
	var grace <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if r.state == Complete {
				return r.artifact, nil
			}
			r.Abort(ctx.Err())
			return nil, ctx.Err()
		case <-grace:
			return r.artifact, nil
		case <-ch.Done():
			if err := r.drain(ch); err != nil {
				return nil, err
			}
			if r.state == Complete {
				return r.artifact, nil
			}
			err := fmt.Errorf("%w: closed after %d bytes", ErrChannelUnavailable, r.received())
			r.Abort(err)
			return nil, err
		case msg := <-ch.Messages():
			if err := r.Handle(msg); err != nil {
				return nil, err
			}
			if r.state == Complete {
				if msg.IsString && isComplete(msg.Data) {
					return r.artifact, nil
				}
				if grace == nil {
					grace = time.After(completionGrace)
				}
			}
		}
	}
}

// drain handles messages that were already delivered when the channel
// closed.
func (r *Receiver) drain(ch Channel) error {
	for {
		select {
		case msg := <-ch.Messages():
			if err := r.Handle(msg); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (r *Receiver) received() int64 {
	if r.transfer == nil {
		return 0
	}
	return r.transfer.Snapshot().BytesTransferred
}

func isComplete(data []byte) bool {
	ctrl, err := DecodeControl(data)
	return err == nil && ctrl.Type == TransferCompleteType
}
