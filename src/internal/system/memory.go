package system

import (
	"log/slog"
	"runtime"
)

// Memory is a snapshot of the Go heap in megabytes.
type Memory struct {
	AllocMB      uint64 `json:"alloc_mb"`
	TotalAllocMB uint64 `json:"total_alloc_mb"`
	SysMB        uint64 `json:"sys_mb"`
	NumGC        uint32 `json:"num_gc"`
	Goroutines   int    `json:"goroutines"`
}

func ReadMemory() Memory {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Memory{
		AllocMB:      bToMb(m.Alloc),
		TotalAllocMB: bToMb(m.TotalAlloc),
		SysMB:        bToMb(m.Sys),
		NumGC:        m.NumGC,
		Goroutines:   runtime.NumGoroutine(),
	}
}

// LogMemoryUsage logs the current memory usage of the process.
func LogMemoryUsage(tag string) {
	m := ReadMemory()
	slog.Info("Memory usage",
		"tag", tag,
		"alloc_mb", m.AllocMB,
		"total_alloc_mb", m.TotalAllocMB,
		"sys_mb", m.SysMB,
		"num_gc", m.NumGC,
		"goroutines", m.Goroutines,
	)
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
