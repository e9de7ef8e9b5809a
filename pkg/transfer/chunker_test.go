package transfer

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// patternBytes returns n bytes of a repeating, position-dependent pattern so
// misplaced chunks are detectable.
func patternBytes(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func collectChunks(t *testing.T, c *Chunker) [][]byte {
	t.Helper()
	var out [][]byte
	for {
		chunk, err := c.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, append([]byte(nil), chunk.Data...))
	}
}

func TestChunker_SplitsWithRemainder(t *testing.T) {
	content := patternBytes(150000)
	c, err := NewChunker(bytes.NewReader(content), int64(len(content)), DefaultChunkSize)
	require.NoError(t, err)

	chunks := collectChunks(t, c)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 65536)
	assert.Len(t, chunks[1], 65536)
	assert.Len(t, chunks[2], 18928)
	assert.Equal(t, content, bytes.Join(chunks, nil))
	assert.Equal(t, int64(150000), c.Offset())
}

func TestChunker_ChunkCountIsCeiling(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name string
		size int
		want int64
	}{
		{"empty", 0, 0},
		{"one byte", 1, 1},
		{"exact chunk", DefaultChunkSize, 1},
		{"chunk plus one", DefaultChunkSize + 1, 2},
		{"three exact", 3 * DefaultChunkSize, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewChunker(bytes.NewReader(patternBytes(tt.size)), int64(tt.size), DefaultChunkSize)
			require.NoError(t, err)
			assert.Len(t, collectChunks(t, c), int(tt.want))
			assert.Equal(t, tt.want, cfg.ChunkCount(int64(tt.size)))
		})
	}
}

func TestChunker_MarksLastChunk(t *testing.T) {
	content := patternBytes(2*MinChunkSize + 10)
	c, err := NewChunker(bytes.NewReader(content), int64(len(content)), MinChunkSize)
	require.NoError(t, err)

	var last []bool
	for {
		chunk, err := c.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		last = append(last, chunk.IsLast)
	}
	assert.Equal(t, []bool{false, false, true}, last)
}

func TestChunker_ShortSourceIsReadFailure(t *testing.T) {
	content := patternBytes(1000)
	c, err := NewChunker(bytes.NewReader(content), 5000, MinChunkSize)
	require.NoError(t, err)

	_, err = c.Next()
	assert.ErrorIs(t, err, ErrReadFailure)
}

func TestNewChunker_RejectsBadChunkSize(t *testing.T) {
	_, err := NewChunker(bytes.NewReader(nil), 0, 0)
	assert.Error(t, err)
	_, err = NewChunker(bytes.NewReader(nil), 0, -1)
	assert.Error(t, err)
}

func TestNewChunker_AcceptsSizeOutsideDefaults(t *testing.T) {
	content := patternBytes(MaxChunkSize*2 + 10)
	c, err := NewChunker(bytes.NewReader(content), int64(len(content)), MaxChunkSize*2)
	require.NoError(t, err)

	first, err := c.Next()
	require.NoError(t, err)
	assert.Len(t, first.Data, MaxChunkSize*2)
	last, err := c.Next()
	require.NoError(t, err)
	assert.Len(t, last.Data, 10)
	assert.True(t, last.IsLast)
}
