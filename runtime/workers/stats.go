package workers

import (
	"chat-relay/contract"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

var _ contract.Worker = (*StatsWorker)(nil)

// StatsWorker periodically logs the relay's process usage next to the number
// of registered users and open connections.
type StatsWorker struct {
	log         *slog.Logger
	registry    contract.IRegistry
	connections func() int64
	interval    time.Duration
}

func NewStatsWorker(log *slog.Logger, registry contract.IRegistry,
	connections func() int64, interval time.Duration) *StatsWorker {
	return &StatsWorker{log: log, registry: registry, connections: connections, interval: interval}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rss, cpu, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "error", err)
				continue
			}
			var open int64
			if w.connections != nil {
				open = w.connections()
			}
			w.log.Info("Relay stats",
				"online", len(w.registry.Online()),
				"connections", open,
				"rss_bytes", rss,
				"cpu_percent", cpu)
		}
	}
}

// selfStats retrieves the resident memory and CPU usage of the given process.
func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
