package runtime

import (
	"log/slog"

	"dm-relay/contract"
	"dm-relay/domain"
	"dm-relay/observability"
)

// Presence derives online/offline transitions from registry mutations.
// Per user the states are {absent, online}: the entry appears on the first
// connection and disappears with the last one. Additional connections of an
// already-online user, or removals that leave connections behind, are
// self-transitions and stay silent.
type Presence struct {
	log       *slog.Logger
	registry  contract.IRegistry
	users     contract.IUserRepository
	transport contract.Transport
	metrics   *observability.Metrics
}

func NewPresence(log *slog.Logger, registry contract.IRegistry,
	users contract.IUserRepository, transport contract.Transport,
	metrics *observability.Metrics) *Presence {
	return &Presence{
		log:       log,
		registry:  registry,
		users:     users,
		transport: transport,
		metrics:   metrics,
	}
}

// HandleConnect registers the connection under the announced identity.
// On the user's first connection it persists status=online and notifies
// every other connected user. The broadcast is a courtesy signal: a failed
// storage write is logged and does not hold it back.
//
// A connection re-announcing a different identity is moved, and the move
// can take the displaced user's last connection with it. That is their
// offline transition and gets the same side effects as a disconnect.
func (p *Presence) HandleConnect(user domain.UserID, conn domain.ConnID) {
	first, displaced, displacedLast := p.registry.Register(user, conn)
	p.metrics.OnlineUsers.Set(float64(len(p.registry.OnlineUsers())))
	if displacedLast {
		p.goOffline(displaced, conn)
	}
	if !first {
		p.log.Debug("Additional connection for online user", "user", user, "conn", conn)
		return
	}

	p.metrics.PresenceTransitions.WithLabelValues(string(domain.StatusOnline)).Inc()
	p.log.Info("User online", "user", user, "conn", conn)

	if err := p.users.SetStatus(user, domain.StatusOnline); err != nil {
		p.log.Warn("Failed to persist online status", "user", user, "error", err)
	}
	p.transport.BroadcastExcept(conn, domain.EventUserStatusChange,
		domain.StatusChange{UserID: user, Status: domain.StatusOnline})
}

// HandleDisconnect deregisters the connection. Unknown connections are a
// no-op: a socket may close before its join event ever arrived.
func (p *Presence) HandleDisconnect(conn domain.ConnID) {
	user, last, ok := p.registry.Deregister(conn)
	if !ok {
		p.log.Debug("Disconnect for unregistered connection", "conn", conn)
		return
	}
	p.metrics.OnlineUsers.Set(float64(len(p.registry.OnlineUsers())))
	if !last {
		p.log.Debug("User still reachable through other connections", "user", user, "conn", conn)
		return
	}

	p.goOffline(user, conn)
}

// goOffline runs the offline side effects for a user whose last connection
// just went away, whether by disconnect or displacement.
func (p *Presence) goOffline(user domain.UserID, conn domain.ConnID) {
	p.metrics.PresenceTransitions.WithLabelValues(string(domain.StatusOffline)).Inc()
	p.log.Info("User offline", "user", user, "conn", conn)

	// Persisted status and broadcast status are not guaranteed consistent:
	// a failed write here is logged, never retried or reconciled.
	if err := p.users.SetStatus(user, domain.StatusOffline); err != nil {
		p.log.Warn("Failed to persist offline status", "user", user, "error", err)
	}
	p.transport.BroadcastExcept(conn, domain.EventUserStatusChange,
		domain.StatusChange{UserID: user, Status: domain.StatusOffline})
}
