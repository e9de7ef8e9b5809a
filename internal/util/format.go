package util

import (
	"fmt"
	"time"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// FormatSize renders a byte count with a binary unit and at most three
// decimals, trailing zeros dropped.
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	exp, div := 0, int64(1)
	for size/div >= unit && exp < len(sizeUnits)-1 {
		div *= unit
		exp++
	}
	whole := size / div
	rem := size % div
	if rem == 0 {
		return fmt.Sprintf("%d %s", whole, sizeUnits[exp])
	}

	// Integer math keeps large values exact.
	frac := rem * 1000 / div
	switch {
	case frac%10 != 0:
		return fmt.Sprintf("%d.%03d %s", whole, frac, sizeUnits[exp])
	case frac%100 != 0:
		return fmt.Sprintf("%d.%02d %s", whole, frac/10, sizeUnits[exp])
	default:
		return fmt.Sprintf("%d.%d %s", whole, frac/100, sizeUnits[exp])
	}
}

// FormatRate renders a transfer speed given bytes moved over elapsed.
func FormatRate(bytes int64, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "-"
	}
	perSecond := int64(float64(bytes) / elapsed.Seconds())
	return FormatSize(perSecond) + "/s"
}
