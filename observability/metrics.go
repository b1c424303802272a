// Package observability exposes the relay's Prometheus metrics and
// process self-stats for the debug server.
package observability

import (
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/process"
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	ActiveConnections   prometheus.Gauge
	OnlineUsers         prometheus.Gauge
	EventsDelivered     *prometheus.CounterVec
	EventsDropped       prometheus.Counter
	PresenceTransitions *prometheus.CounterVec
	SendFailures        *prometheus.CounterVec
}

// New registers all metrics on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all metrics on the given registerer.
// Tests pass a throwaway prometheus.NewRegistry to avoid duplicate
// registration across cases.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dm_relay_active_connections",
			Help: "Number of currently open socket connections",
		}),
		OnlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dm_relay_online_users",
			Help: "Number of users with at least one live connection",
		}),
		EventsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dm_relay_events_delivered_total",
			Help: "Outbound events delivered to a connection, by event name",
		}, []string{"event"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "dm_relay_events_dropped_total",
			Help: "Outbound events dropped because a connection queue was full",
		}),
		PresenceTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dm_relay_presence_transitions_total",
			Help: "Online/offline presence transitions, by resulting status",
		}, []string{"status"}),
		SendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dm_relay_send_failures_total",
			Help: "send-message requests rejected, by reason",
		}, []string{"reason"}),
	}
}

// SelfStats reports the relay process RSS (bytes) and CPU percentage.
type SelfStats struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
}

// CollectSelfStats samples the current process. Best-effort: a probe
// failure returns zeroed stats and the error.
func CollectSelfStats() (SelfStats, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return SelfStats{}, err
	}
	var stats SelfStats
	if mem, err := p.MemoryInfo(); err == nil {
		stats.RSSBytes = mem.RSS
	}
	if cpu, err := p.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	return stats, nil
}
