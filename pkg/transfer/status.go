package transfer

import (
	"fmt"
	"sync"
)

// Status is the lifecycle of one transfer.
type Status int

const (
	StatusIdle Status = iota
	StatusInProgress
	StatusComplete
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusInProgress:
		return "in-progress"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if the transfer can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Transfer tracks byte progress for one file. BytesTransferred only grows and
// never exceeds the declared size.
type Transfer struct {
	mu       sync.Mutex
	metadata FileMetadata
	bytes    int64
	status   Status
	err      error
}

func NewTransfer(meta FileMetadata) *Transfer {
	return &Transfer{metadata: meta}
}

// Snapshot is a point-in-time copy of a Transfer.
type Snapshot struct {
	Metadata         FileMetadata
	BytesTransferred int64
	Percent          int
	Status           Status
	Err              error
}

func (t *Transfer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusIdle {
		t.status = StatusInProgress
	}
}

// Advance records n more bytes. It fails if that would pass the declared size.
func (t *Transfer) Advance(n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsTerminal() {
		return fmt.Errorf("%w: transfer already %s", ErrProtocolViolation, t.status)
	}
	if n < 0 || t.bytes+int64(n) > t.metadata.Size {
		return fmt.Errorf("%w: %d bytes would exceed declared size %d", ErrProtocolViolation, t.bytes+int64(n), t.metadata.Size)
	}
	t.status = StatusInProgress
	t.bytes += int64(n)
	return nil
}

// Finished reports whether every declared byte has been counted.
func (t *Transfer) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytes == t.metadata.Size
}

// Complete marks the transfer done. It refuses while bytes are missing.
func (t *Transfer) Complete() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bytes != t.metadata.Size {
		return fmt.Errorf("%w: got %d of %d bytes", ErrIncompleteTransfer, t.bytes, t.metadata.Size)
	}
	t.status = StatusComplete
	return nil
}

func (t *Transfer) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusComplete {
		return
	}
	t.status = StatusFailed
	t.err = err
}

// Revoke fails the transfer even after Complete, for data that turned out
// to be invalid once the last byte was in.
func (t *Transfer) Revoke(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusFailed
	t.err = err
}

func (t *Transfer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Metadata:         t.metadata,
		BytesTransferred: t.bytes,
		Percent:          Progress(t.bytes, t.metadata.Size),
		Status:           t.status,
		Err:              t.err,
	}
}
