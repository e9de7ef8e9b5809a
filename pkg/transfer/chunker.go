package transfer

import (
	"errors"
	"fmt"
	"io"
)

type Chunk struct {
	SequenceNo uint32
	Offset     int64
	Data       []byte
	IsLast     bool
}

// Chunker slices a source of known size into fixed-size chunks. The final
// chunk holds the remainder.
type Chunker struct {
	src        io.ReaderAt
	chunkSize  int
	currentSeq uint32
	totalSize  int64
	offset     int64
	buffer     []byte
}

// NewChunker takes the chunk size as given; bounds are enforced by
// Config.Validate.
func NewChunker(src io.ReaderAt, size int64, chunkSize int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if size < 0 {
		return nil, fmt.Errorf("negative size %d", size)
	}
	return &Chunker{
		src:       src,
		chunkSize: chunkSize,
		totalSize: size,
		buffer:    make([]byte, chunkSize),
	}, nil
}

// Next returns the next chunk or io.EOF once every byte has been produced.
// The returned Data is only valid until the following call.
func (c *Chunker) Next() (*Chunk, error) {
	if c.offset >= c.totalSize {
		return nil, io.EOF
	}

	want := int64(c.chunkSize)
	if remaining := c.totalSize - c.offset; remaining < want {
		want = remaining
	}

	n, err := c.src.ReadAt(c.buffer[:want], c.offset)
	if int64(n) < want {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w at offset %d: %v", ErrReadFailure, c.offset, err)
	}

	chunk := &Chunk{
		SequenceNo: c.currentSeq,
		Offset:     c.offset,
		Data:       c.buffer[:n],
	}
	c.offset += int64(n)
	c.currentSeq++
	chunk.IsLast = c.offset >= c.totalSize
	return chunk, nil
}

// Offset is the number of bytes produced so far.
func (c *Chunker) Offset() int64 {
	return c.offset
}
