package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"parley/observability"
)

// TelemetryWorker periodically logs process health (CPU, RAM, OS status)
// together with the delivery counters. It is the only place the process
// reads its own /proc entry.
type TelemetryWorker struct {
	log            *slog.Logger
	monitor        *observability.Monitor
	reportInterval time.Duration
}

func NewTelemetryWorker(log *slog.Logger,
	monitor *observability.Monitor,
	reportInterval time.Duration) *TelemetryWorker {
	return &TelemetryWorker{
		log:            log,
		monitor:        monitor,
		reportInterval: reportInterval,
	}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	w.log.Info("Starting telemetry worker", "interval", w.reportInterval)
	ticker := time.NewTicker(w.reportInterval)
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
			rss, cpu, status, err := getSelfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}

			stats := w.monitor.GetLatest()
			w.log.Info("Telemetry report",
				"pid", os.Getpid(),
				"pid_status", status,
				"cpu_percent", cpu,
				"ram_bytes", rss,
				"alloc_mem_mb", stats.AllocMemMb,
				"num_gc", stats.NumGC,
				"open_connections", stats.OpenConnections,
				"events_published", stats.EventsPublished,
				"events_delivered", stats.EventsDelivered,
				"delivery_failures", stats.DeliveryFailures,
				"messages_reaped", stats.MessagesReaped)
		}
	}
}

// getSelfStats retrieves technical metrics (Memory, CPU, and OS Status) for the given process.
func getSelfStats(p *process.Process) (uint64, float64, string, error) {
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
