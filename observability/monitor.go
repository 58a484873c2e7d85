// Package observability aggregates process-local delivery metrics for logs
// and the inspection tooling. It is intentionally not an external metrics
// surface.
package observability

import (
	"runtime"
	"sync/atomic"
)

// Stats is a point-in-time snapshot of the delivery pipeline.
type Stats struct {
	EventsPublished  uint64 `json:"events_published"`
	EventsDelivered  uint64 `json:"events_delivered"`
	DeliveryFailures uint64 `json:"delivery_failures"`
	MessagesReaped   uint64 `json:"messages_reaped"`
	OpenConnections  int    `json:"open_connections"`
	AllocMemMb       uint64 `json:"alloc_mem_mb"`
	NumGC            uint32 `json:"num_gc"`
}

// Monitor holds atomic counters fed by the fan-out engine and the reaper.
// A nil Monitor is valid and counts nothing, which keeps tests quiet.
type Monitor struct {
	eventsPublished  uint64
	eventsDelivered  uint64
	deliveryFailures uint64
	messagesReaped   uint64
	openConnections  int64
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) EventPublished() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.eventsPublished, 1)
}

func (m *Monitor) EventDelivered() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.eventsDelivered, 1)
}

func (m *Monitor) DeliveryFailed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.deliveryFailures, 1)
}

func (m *Monitor) MessagesReaped(n int) {
	if m == nil || n <= 0 {
		return
	}
	atomic.AddUint64(&m.messagesReaped, uint64(n))
}

func (m *Monitor) ConnectionOpened() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.openConnections, 1)
}

func (m *Monitor) ConnectionClosed() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.openConnections, -1)
}

// GetLatest snapshots the counters together with Go memory stats.
func (m *Monitor) GetLatest() Stats {
	stats := Stats{}
	if m != nil {
		stats.EventsPublished = atomic.LoadUint64(&m.eventsPublished)
		stats.EventsDelivered = atomic.LoadUint64(&m.eventsDelivered)
		stats.DeliveryFailures = atomic.LoadUint64(&m.deliveryFailures)
		stats.MessagesReaped = atomic.LoadUint64(&m.messagesReaped)
		stats.OpenConnections = int(atomic.LoadInt64(&m.openConnections))
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	stats.AllocMemMb = mem.Alloc / 1024 / 1024
	stats.NumGC = mem.NumGC
	return stats
}
