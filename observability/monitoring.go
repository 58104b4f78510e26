package observability

import (
	goruntime "runtime"
	"sync"
	"time"
)

// ProcessStats is the process part of the /stats document.
type ProcessStats struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	PidStatus  string  `json:"pid_status"`
	AllocMemMb uint64  `json:"alloc_mem_mb"`
	NumGC      uint32  `json:"num_gc"`
	Goroutines int     `json:"goroutines"`
	SampledAt  int64   `json:"sampled_at"`
}

// CoreStats counts what the session engine holds in memory.
type CoreStats struct {
	Sessions      int   `json:"sessions"`
	Tombstones    int   `json:"tombstones"`
	Conversations int   `json:"conversations"`
	Messages      int   `json:"messages"`
	Censored      int64 `json:"censored"`
}

type Snapshot struct {
	Status    string       `json:"status"`
	Mode      string       `json:"mode"`
	UptimeSec int64        `json:"uptime_sec"`
	Timestamp int64        `json:"timestamp"`
	Core      CoreStats    `json:"core"`
	Process   ProcessStats `json:"process"`
}

// MonitoringManager keeps the latest process sample. The sampler worker
// writes it, the /stats handler reads it.
type MonitoringManager struct {
	mu      sync.RWMutex
	latest  ProcessStats
	started time.Time
	mode    string
	core    func() CoreStats
}

func NewMonitoringManager(mode string, core func() CoreStats) *MonitoringManager {
	return &MonitoringManager{started: time.Now(), mode: mode, core: core}
}

// UpdateProcess stores a gopsutil sample together with Go runtime figures.
func (mm *MonitoringManager) UpdateProcess(rss uint64, cpu float64, status string) {
	var m goruntime.MemStats
	goruntime.ReadMemStats(&m)

	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.latest = ProcessStats{
		RSSBytes:   rss,
		CPUPercent: cpu,
		PidStatus:  status,
		AllocMemMb: m.Alloc / 1024 / 1024,
		NumGC:      m.NumGC,
		Goroutines: goruntime.NumGoroutine(),
		SampledAt:  time.Now().UnixMilli(),
	}
}

func (mm *MonitoringManager) GetLatest() Snapshot {
	mm.mu.RLock()
	process := mm.latest
	mm.mu.RUnlock()

	var core CoreStats
	if mm.core != nil {
		core = mm.core()
	}
	now := time.Now()
	return Snapshot{
		Status:    "ok",
		Mode:      mm.mode,
		UptimeSec: int64(now.Sub(mm.started).Seconds()),
		Timestamp: now.UnixMilli(),
		Core:      core,
		Process:   process,
	}
}
