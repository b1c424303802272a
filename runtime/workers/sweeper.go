package workers

import (
	"context"
	"log/slog"
	"time"

	"dm-relay/domain"
)

// ConnSweeper is what the sweeper needs from the gateway: find sockets
// whose last pong is too old and force-close them.
type ConnSweeper interface {
	StaleConns(window time.Duration) []domain.ConnID
	CloseConn(id domain.ConnID)
}

// SweeperWorker reaps connections that died without a close frame.
// Closing the socket funnels the connection through the normal disconnect
// path, so presence stays consistent even when TCP death is silent.
type SweeperWorker struct {
	log      *slog.Logger
	gateway  ConnSweeper
	interval time.Duration
	window   time.Duration
}

func NewSweeperWorker(log *slog.Logger, gateway ConnSweeper, interval, window time.Duration) *SweeperWorker {
	return &SweeperWorker{log: log, gateway: gateway, interval: interval, window: window}
}

func (w *SweeperWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stale := w.gateway.StaleConns(w.window)
			for _, id := range stale {
				w.gateway.CloseConn(id)
			}
			if len(stale) > 0 {
				w.log.Info("Swept stale connections", "count", len(stale))
			}
		}
	}
}
