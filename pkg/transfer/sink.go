package transfer

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Artifact is the reassembled file. Exactly one of Path or Data is set,
// depending on the sink that produced it.
type Artifact struct {
	Metadata FileMetadata
	Path     string
	Data     []byte
}

// Sink receives the data chunks of one file. Discard drops the data, and
// after Commit it also removes the committed file.
type Sink interface {
	Write(p []byte) (int, error)
	Commit(meta FileMetadata) (*Artifact, error)
	Discard() error
}

type SinkFactory func(meta FileMetadata) (Sink, error)

// MemorySink keeps the file in one contiguous buffer.
type MemorySink struct {
	buf bytes.Buffer
}

func NewMemorySink(meta FileMetadata) (Sink, error) {
	s := &MemorySink{}
	if meta.Size > 0 {
		s.buf.Grow(int(meta.Size))
	}
	return s, nil
}

func (s *MemorySink) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

func (s *MemorySink) Commit(meta FileMetadata) (*Artifact, error) {
	return &Artifact{Metadata: meta, Data: s.buf.Bytes()}, nil
}

func (s *MemorySink) Discard() error {
	s.buf.Reset()
	return nil
}

// FileSink writes into a temporary file in dir and renames it into place on
// commit.
type FileSink struct {
	dir  string
	name string
	file *os.File
	// path is where Commit moved the file.
	path string
}

// FileSinkFactory returns a factory that writes received files into dir.
func FileSinkFactory(dir string) SinkFactory {
	return func(meta FileMetadata) (Sink, error) {
		name, err := SanitizeFileName(meta.Name)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		f, err := os.CreateTemp(dir, ".peerlink-*.part")
		if err != nil {
			return nil, fmt.Errorf("failed to create temporary file: %w", err)
		}
		return &FileSink{dir: dir, name: name, file: f}, nil
	}
}

// SanitizeFileName strips any directory components a peer put in the name.
func SanitizeFileName(name string) (string, error) {
	clean := filepath.Base(filepath.Clean(strings.ReplaceAll(name, "\\", "/")))
	if clean == "." || clean == ".." || clean == string(filepath.Separator) || clean == "" {
		return "", fmt.Errorf("%w: invalid file name %q", ErrProtocolViolation, name)
	}
	return clean, nil
}

func (s *FileSink) Write(p []byte) (int, error) {
	return s.file.Write(p)
}

func (s *FileSink) Commit(meta FileMetadata) (*Artifact, error) {
	if err := s.file.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync file: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	target, err := availablePath(s.dir, s.name)
	if err != nil {
		return nil, err
	}
	if filepath.Dir(target) != filepath.Clean(s.dir) {
		return nil, fmt.Errorf("%w: path escapes output directory", ErrProtocolViolation)
	}
	if err := os.Rename(s.file.Name(), target); err != nil {
		return nil, fmt.Errorf("failed to move file into place: %w", err)
	}
	s.path = target
	slog.Info("File saved", "path", target, "size", meta.Size)
	return &Artifact{Metadata: meta, Path: target}, nil
}

func (s *FileSink) Discard() error {
	if s.path != "" {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove received file: %w", err)
		}
		s.path = ""
		return nil
	}
	closeErr := s.file.Close()
	if err := os.Remove(s.file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove partial file: %w", err)
	}
	if closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		return closeErr
	}
	return nil
}

// availablePath picks "name", "name (1)", "name (2)", ... whichever is free.
func availablePath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(dir, name)
	for i := 1; i < 1000; i++ {
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
	}
	return "", fmt.Errorf("no free file name for %q in %s", name, dir)
}
