package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ProgressFunc is called after every chunk with the running total.
type ProgressFunc func(s Snapshot)

// Sender streams one file over a Channel: metadata, data chunks, completion.
type Sender struct {
	cfg    *Config
	logger *slog.Logger
}

func NewSender(cfg *Config, logger *slog.Logger) (*Sender, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transfer config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{cfg: cfg, logger: logger}, nil
}

// Send blocks until the file is fully queued on ch followed by the completion
// record, or until the transfer fails. A read failure or a closed channel
// stops the loop without sending completion.
func (s *Sender) Send(ctx context.Context, ch Channel, src io.ReaderAt, meta FileMetadata, progress ProgressFunc) (err error) {
	tr := NewTransfer(meta)
	defer func() {
		if err != nil {
			tr.Fail(err)
			s.logger.Warn("Transfer aborted", "file", meta.Name, "sent", tr.Snapshot().BytesTransferred, "error", err)
		}
	}()

	if !ch.IsOpen() {
		return ErrChannelUnavailable
	}
	ch.SetBufferedAmountLowThreshold(s.cfg.LowWaterMark)

	chunker, err := NewChunker(src, meta.Size, s.cfg.ChunkSize)
	if err != nil {
		return err
	}

	header, err := EncodeMetadata(meta)
	if err != nil {
		return err
	}
	if err := ch.SendText(header); err != nil {
		return fmt.Errorf("%w: sending metadata: %v", ErrChannelUnavailable, err)
	}
	tr.Start()
	s.logger.Info("Transfer started", "file", meta.Name, "size", meta.Size, "chunks", s.cfg.ChunkCount(meta.Size))

	for {
		if err := s.waitForDrain(ctx, ch); err != nil {
			return err
		}
		if !ch.IsOpen() {
			return ErrChannelUnavailable
		}

		chunk, err := chunker.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		// The read may have taken a while; the channel can close meanwhile.
		if !ch.IsOpen() {
			return ErrChannelUnavailable
		}
		if err := ch.Send(chunk.Data); err != nil {
			return fmt.Errorf("%w: sending chunk %d: %v", ErrChannelUnavailable, chunk.SequenceNo, err)
		}
		if err := tr.Advance(len(chunk.Data)); err != nil {
			return err
		}
		if progress != nil {
			progress(tr.Snapshot())
		}
	}

	if err := ch.SendText(EncodeComplete()); err != nil {
		return fmt.Errorf("%w: sending completion: %v", ErrChannelUnavailable, err)
	}
	if err := tr.Complete(); err != nil {
		return err
	}
	if progress != nil {
		progress(tr.Snapshot())
	}
	s.logger.Info("Transfer queued", "file", meta.Name, "size", meta.Size)
	return nil
}

// waitForDrain suspends while the channel holds more than the high-water
// mark, resuming once it has drained to the low-water mark.
func (s *Sender) waitForDrain(ctx context.Context, ch Channel) error {
	if ch.BufferedAmount() <= s.cfg.HighWaterMark {
		return ctx.Err()
	}
	return s.waitBelow(ctx, ch, s.cfg.LowWaterMark)
}

func (s *Sender) waitBelow(ctx context.Context, ch Channel, limit uint64) error {
	ticker := time.NewTicker(s.cfg.DrainPollInterval)
	defer ticker.Stop()
	for ch.BufferedAmount() > limit {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch.Done():
			return ErrChannelUnavailable
		case <-ch.BufferedAmountLow():
		case <-ticker.C:
		}
	}
	return nil
}

// Flush waits until everything queued on ch has left the local buffer, so
// the channel can be closed without dropping the tail of the file.
func (s *Sender) Flush(ctx context.Context, ch Channel) error {
	return s.waitBelow(ctx, ch, 0)
}
