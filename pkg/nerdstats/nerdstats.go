package nerdstats

import (
	"runtime"
	"time"

	"github.com/thushan/llamatap/pkg/format"
)

// NerdStats is a point in time view of the Go runtime, printed on shutdown
type NerdStats struct {
	LastGC        time.Time
	GoVersion     string
	HeapAlloc     uint64
	HeapSys       uint64
	HeapInuse     uint64
	TotalAlloc    uint64
	Mallocs       uint64
	Frees         uint64
	TotalGCPause  time.Duration
	Uptime        time.Duration
	GCCPUFraction float64
	NumGoroutines int
	NumCPU        int
	NumGC         uint32
}

func Snapshot(startTime time.Time) *NerdStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := &NerdStats{
		HeapAlloc:     m.HeapAlloc,
		HeapSys:       m.HeapSys,
		HeapInuse:     m.HeapInuse,
		TotalAlloc:    m.TotalAlloc,
		Mallocs:       m.Mallocs,
		Frees:         m.Frees,
		NumGC:         m.NumGC,
		GCCPUFraction: m.GCCPUFraction,
		TotalGCPause:  time.Duration(m.PauseTotalNs),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		GoVersion:     runtime.Version(),
		Uptime:        time.Since(startTime),
	}
	if m.LastGC > 0 {
		stats.LastGC = time.Unix(0, int64(m.LastGC))
	}
	return stats
}

// MemoryPressure is LOW, MEDIUM or HIGH from heap occupancy and live allocations
func (ps *NerdStats) MemoryPressure() string {
	if ps.HeapSys == 0 {
		return "LOW"
	}
	heapRatio := float64(ps.HeapInuse) / float64(ps.HeapSys)
	allocsPerFree := float64(ps.Mallocs) / float64(ps.Frees+1)

	switch {
	case heapRatio > 0.9 && allocsPerFree > 1.5:
		return "HIGH"
	case heapRatio > 0.7 || allocsPerFree > 1.2:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// GoroutineHealth flags goroutine counts that suggest leaked streams or stuck counts
func (ps *NerdStats) GoroutineHealth() string {
	switch {
	case ps.NumGoroutines > 1000:
		return "CONCERNING"
	case ps.NumGoroutines > 500:
		return "ELEVATED"
	default:
		return "HEALTHY"
	}
}

func (ps *NerdStats) AverageGCPause() string {
	if ps.NumGC == 0 {
		return "N/A"
	}
	return format.Duration(ps.TotalGCPause / time.Duration(ps.NumGC))
}

// Fields flattens the snapshot into slog key/value pairs
func (ps *NerdStats) Fields() []any {
	return []any{
		"uptime", format.Uptime(ps.Uptime),
		"heap_alloc", format.Bytes(int64(ps.HeapAlloc)),
		"total_alloc", format.Bytes(int64(ps.TotalAlloc)),
		"memory_pressure", ps.MemoryPressure(),
		"goroutines", ps.NumGoroutines,
		"goroutine_health", ps.GoroutineHealth(),
		"gc_cycles", ps.NumGC,
		"gc_avg_pause", ps.AverageGCPause(),
		"gc_cpu", format.Percentage(ps.GCCPUFraction * 100),
		"go", ps.GoVersion,
	}
}
