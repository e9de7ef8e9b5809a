package transfer

import (
	"errors"
	"time"
)

// Config holds the tunables for one chunked transfer.
type Config struct {
	ChunkSize    int `json:"chunk_size"`
	MaxChunkSize int `json:"max_chunk_size"`
	MinChunkSize int `json:"min_chunk_size"`

	// HighWaterMark pauses the sender while the channel has more than this
	// many bytes queued. Sending resumes once it drains to LowWaterMark.
	HighWaterMark uint64 `json:"high_water_mark"`
	LowWaterMark  uint64 `json:"low_water_mark"`

	// DrainPollInterval is how often the sender re-reads the buffered
	// amount while paused, in case the low-water callback is missed.
	DrainPollInterval time.Duration `json:"drain_poll_interval"`
}

const (
	DefaultChunkSize = 64 * 1024
	MaxChunkSize     = 256 * 1024
	MinChunkSize     = 4 * 1024

	DefaultHighWaterMark = 1024 * 1024
	DefaultLowWaterMark  = 256 * 1024
)

// DefaultConfig returns the configuration used by the CLI.
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:         DefaultChunkSize,
		MaxChunkSize:      MaxChunkSize,
		MinChunkSize:      MinChunkSize,
		HighWaterMark:     DefaultHighWaterMark,
		LowWaterMark:      DefaultLowWaterMark,
		DrainPollInterval: 20 * time.Millisecond,
	}
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return errors.New("chunk_size must be positive")
	}
	if c.MinChunkSize <= 0 {
		return errors.New("min_chunk_size must be positive")
	}
	if c.MaxChunkSize <= 0 {
		return errors.New("max_chunk_size must be positive")
	}
	if c.ChunkSize < c.MinChunkSize {
		return errors.New("chunk_size cannot be less than min_chunk_size")
	}
	if c.ChunkSize > c.MaxChunkSize {
		return errors.New("chunk_size cannot be greater than max_chunk_size")
	}
	if c.MinChunkSize > c.MaxChunkSize {
		return errors.New("min_chunk_size cannot be greater than max_chunk_size")
	}
	if c.HighWaterMark == 0 {
		return errors.New("high_water_mark must be positive")
	}
	if c.LowWaterMark >= c.HighWaterMark {
		return errors.New("low_water_mark must be below high_water_mark")
	}
	if c.DrainPollInterval <= 0 {
		return errors.New("drain_poll_interval must be positive")
	}
	return nil
}

// ChunkCount returns how many data messages a file of the given size needs.
func (c *Config) ChunkCount(size int64) int64 {
	if size <= 0 {
		return 0
	}
	chunk := int64(c.ChunkSize)
	return (size + chunk - 1) / chunk
}
