package system

import (
	"runtime"
	"time"
)

// RuntimeStats is a point-in-time view of the process.
type RuntimeStats struct {
	NumGoroutine  int     `json:"num_goroutine"`
	HeapAlloc     uint64  `json:"heap_alloc"` // bytes allocated and still in use
	Sys           uint64  `json:"sys"`        // bytes obtained from system
	NumGC         uint32  `json:"num_gc"`
	MemoryPercent float64 `json:"memory_percent"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

// SystemMonitor reports runtime statistics for the relay's health endpoint.
type SystemMonitor struct {
	startTime time.Time
	now       func() time.Time
}

func NewSystemMonitor() *SystemMonitor {
	return &SystemMonitor{startTime: time.Now(), now: time.Now}
}

func (sm *SystemMonitor) GetRuntimeStats() RuntimeStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return RuntimeStats{
		NumGoroutine:  runtime.NumGoroutine(),
		HeapAlloc:     m.HeapAlloc,
		Sys:           m.Sys,
		NumGC:         m.NumGC,
		MemoryPercent: memoryPercent(&m),
		UptimeSeconds: int64(sm.GetUptime() / time.Second),
	}
}

// GetUptime returns the uptime since monitor creation
func (sm *SystemMonitor) GetUptime() time.Duration {
	return sm.now().Sub(sm.startTime)
}

func memoryPercent(m *runtime.MemStats) float64 {
	if m.Sys == 0 {
		return 0
	}
	return float64(m.Alloc) / float64(m.Sys) * 100
}
