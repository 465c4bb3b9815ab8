package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"chat-intel/observability"
)

// HealthWorker periodically reports process health (CPU, RAM, OS
// status) together with the engine counters. Reading the counters is
// atomic and non-blocking, so sampling never interferes with rooms.
type HealthWorker struct {
	log      *slog.Logger
	monitor  *observability.Monitor
	interval time.Duration
}

func NewHealthWorker(log *slog.Logger, monitor *observability.Monitor, interval time.Duration) *HealthWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HealthWorker{log: log, monitor: monitor, interval: interval}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	w.log.Info("Starting health monitoring worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, status, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}

			stats := w.monitor.GetLatest()
			w.log.Info("Engine health",
				"pid_status", status,
				"cpu_percent", cpu,
				"ram_bytes", rss,
				"rooms", stats.ActiveRooms,
				"connections", stats.ActiveConnections,
				"submitted", stats.MessagesSubmitted,
				"annotated", stats.MessagesAnnotated,
				"annotation_failures", stats.AnnotationFailures,
				"events_dropped", stats.EventsDropped,
				"store_errors", stats.StoreErrors,
				"alloc_mb", stats.AllocMemMb,
			)
		}
	}
}

// selfStats retrieves technical metrics (memory, CPU, and OS status) for the given process.
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
