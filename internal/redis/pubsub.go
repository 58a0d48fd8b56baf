package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jiminh03/BBATTY-sub001/internal/domain"
)

const (
	roomChannelPrefix  = "chat.room."
	roomChannelPattern = roomChannelPrefix + "*"
)

// PublishEnvelope pushes a broadcast envelope onto the room's channel.
func (c *Client) PublishEnvelope(ctx context.Context, env domain.BroadcastEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to serialize envelope: %w", err)
	}
	return c.rdb.Publish(ctx, roomChannelPrefix+env.RoomID, data).Err()
}

// EnvelopeSubscription is a live wildcard subscription over all room
// channels. Invalid payloads are skipped.
type EnvelopeSubscription struct {
	ch     chan domain.BroadcastEnvelope
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *EnvelopeSubscription) C() <-chan domain.BroadcastEnvelope { return s.ch }

func (s *EnvelopeSubscription) Close() {
	s.cancel()
	<-s.done
}

// SubscribeRoomChannels opens a pattern subscription covering every room
// channel and decodes envelopes onto the returned subscription's channel.
func (c *Client) SubscribeRoomChannels(ctx context.Context) (*EnvelopeSubscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	pubsub := c.rdb.PSubscribe(subCtx, roomChannelPattern)

	// Force the subscription onto the wire before the caller relies on it.
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to room channels: %w", err)
	}

	sub := &EnvelopeSubscription{
		ch:     make(chan domain.BroadcastEnvelope, 256),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		defer close(sub.ch)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var env domain.BroadcastEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					continue
				}
				select {
				case sub.ch <- env:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return sub, nil
}
