package handlers

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

type RuntimeStats struct {
	PID int32 `json:"pid"`
	// How long the daemon has been running in milliseconds
	Uptime        int64   `json:"uptime"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryPercent float32 `json:"memoryPercent"`
	// Resident set size in bytes
	RSS          uint64 `json:"rss"`
	NumThreads   int32  `json:"numThreads"`
	NumGoroutine int    `json:"numGoroutine"`
}

func currentRuntime() (*RuntimeStats, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to get process: %w", err)
	}

	stats := &RuntimeStats{
		PID:          p.Pid,
		NumGoroutine: runtime.NumGoroutine(),
	}

	if createTime, err := p.CreateTime(); err == nil {
		stats.Uptime = time.Now().UnixMilli() - createTime
	}
	if cpu, err := p.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := p.MemoryPercent(); err == nil {
		stats.MemoryPercent = mem
	}
	if info, err := p.MemoryInfo(); err == nil {
		stats.RSS = info.RSS
	}
	if threads, err := p.NumThreads(); err == nil {
		stats.NumThreads = threads
	}

	return stats, nil
}
