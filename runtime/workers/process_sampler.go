package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"pairchat/observability"

	"github.com/shirou/gopsutil/process"
)

// ProcessSampler refreshes the process figures served on /stats.
type ProcessSampler struct {
	log        *slog.Logger
	monitoring *observability.MonitoringManager
	interval   time.Duration
}

func NewProcessSampler(log *slog.Logger, monitoring *observability.MonitoringManager, interval time.Duration) *ProcessSampler {
	return &ProcessSampler{log: log, monitoring: monitoring, interval: interval}
}

func (w *ProcessSampler) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, status, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "error", err)
				continue
			}
			w.monitoring.UpdateProcess(rss, cpu, status)
		}
	}
}

func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}
	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
