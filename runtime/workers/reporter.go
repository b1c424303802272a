package workers

import (
	"context"
	"log/slog"
	"time"

	"dm-relay/contract"
)

// ConnCounter reports how many socket connections are currently open.
type ConnCounter interface {
	Len() int
}

// ReporterWorker periodically logs a one-line engine snapshot. It exists
// for operators tailing logs; Prometheus carries the real numbers.
type ReporterWorker struct {
	log      *slog.Logger
	registry contract.IRegistry
	conns    ConnCounter
	interval time.Duration
}

func NewReporterWorker(log *slog.Logger, registry contract.IRegistry,
	conns ConnCounter, interval time.Duration) *ReporterWorker {
	return &ReporterWorker{log: log, registry: registry, conns: conns, interval: interval}
}

func (w *ReporterWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.log.Info("Engine snapshot",
				"connections", w.conns.Len(),
				"online_users", len(w.registry.OnlineUsers()))
		}
	}
}
