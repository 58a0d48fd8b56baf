// Package relay re-delivers broadcasts that originated on other instances to
// this instance's local sockets. It is a pure fan-out path: it never writes
// to the store.
package relay

import (
	"context"
	"time"

	"github.com/jiminh03/BBATTY-sub001/internal/domain"
	"github.com/jiminh03/BBATTY-sub001/internal/websocket"
	"github.com/jiminh03/BBATTY-sub001/pkg/logger"
)

// EnvelopeSource is a live wildcard subscription over all room channels.
type EnvelopeSource interface {
	C() <-chan domain.BroadcastEnvelope
	Close()
}

type Relay struct {
	registry *websocket.Registry
	source   EnvelopeSource
	log      logger.Logger
	now      func() time.Time
}

func New(registry *websocket.Registry, source EnvelopeSource, log logger.Logger) *Relay {
	return &Relay{
		registry: registry,
		source:   source,
		log:      log,
		now:      time.Now,
	}
}

// Run consumes envelopes until the context ends or the source closes.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.source.Close()
			return
		case env, ok := <-r.source.C():
			if !ok {
				return
			}
			r.Handle(env)
		}
	}
}

// Handle applies the relay filter chain to one envelope: drop self-echo,
// drop explicit exclusions, drop stale messages, then deliver locally.
func (r *Relay) Handle(env domain.BroadcastEnvelope) {
	if env.DroppedBy(r.registry.InstanceID()) {
		return
	}
	if env.Stale(r.now()) {
		r.log.Debugf("dropping stale envelope for room %s (age %s)", env.RoomID, r.now().Sub(env.Timestamp))
		return
	}

	switch env.Kind {
	case domain.EnvelopeRoomClose:
		r.registry.DeliverLocal(env.RoomID, env.Message, "")
		r.registry.CloseRoomLocal(env.RoomID, env.Message.Content)
	default:
		r.registry.DeliverLocal(env.RoomID, env.Message, "")
	}
}
