package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size     int64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1 KB"},
		{1025, "1.0 KB"},
		{1536, "1.5 KB"},
		{1280, "1.25 KB"},
		{1152, "1.125 KB"},
		{150000, "146.484 KB"},
		{1048576, "1 MB"},
		{2359296, "2.25 MB"},
		{1073741824, "1 GB"},
		{1649267441664, "1.5 TB"},
		{1125899906842624, "1 PB"},
		{9223372036854775807, "8191.999 PB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatSize(tt.size), "size %d", tt.size)
	}
}

func TestFormatRate(t *testing.T) {
	assert.Equal(t, "1 MB/s", FormatRate(2*1024*1024, 2*time.Second))
	assert.Equal(t, "512 B/s", FormatRate(256, 500*time.Millisecond))
	assert.Equal(t, "-", FormatRate(100, 0))
}
