// internal/transport/heartbeat.go
package transport

import (
	"context"
	"log/slog"
	"time"
)

// Heartbeat polls the peer's health endpoint and publishes reachability changes.
type Heartbeat struct {
	peer     *LivePeer
	bus      *Bus
	logger   *slog.Logger
	interval time.Duration
}

func NewHeartbeat(peer *LivePeer, bus *Bus, logger *slog.Logger, interval time.Duration) *Heartbeat {
	return &Heartbeat{peer: peer, bus: bus, logger: logger, interval: interval}
}

// Start checks immediately and then on every tick until ctx is done.
func (p *Heartbeat) Start(ctx context.Context) {
	p.logger.Info("Starting peer heartbeat", "interval", p.interval.String())
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.check(ctx)

	for {
		select {
		case <-ticker.C:
			p.check(ctx)
		case <-ctx.Done():
			p.logger.Info("Peer heartbeat shutting down", "reason", ctx.Err())
			return
		}
	}
}

func (p *Heartbeat) check(ctx context.Context) {
	err := p.peer.Ping(ctx)
	reachable := err == nil
	if !p.peer.setReachable(reachable) {
		return
	}

	if reachable {
		p.logger.Info("Peer became reachable")
	} else {
		p.logger.Warn("Peer became unreachable", "error", err)
	}
	if err := p.bus.Publish(ctx, Event{Kind: PeerReachabilityChanged, Reachable: reachable}); err != nil {
		p.logger.Debug("Dropped reachability event", "error", err)
	}
}
