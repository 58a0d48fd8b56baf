package service

import (
	"context"
	"errors"
	"time"

	"github.com/jiminh03/BBATTY-sub001/internal/domain"
	"github.com/jiminh03/BBATTY-sub001/internal/port"
	"github.com/jiminh03/BBATTY-sub001/internal/websocket"
	"github.com/jiminh03/BBATTY-sub001/pkg/logger"
)

// ChatService is the shared connection-handling core. Per-room-type behavior
// (join rules, message shape, fan-out substrate) comes from the RoomPolicy;
// everything else is identical for watch and match rooms.
type ChatService interface {
	Join(ctx context.Context, sess *websocket.Session) error
	Leave(ctx context.Context, sess *websocket.Session)
	HandleInbound(ctx context.Context, sess *websocket.Session, text string)

	// HandleBrokerMessage is the match-room consumer callback: the one
	// queue-group member that received the broker message finishes the
	// fan-out through the registry's broadcast path.
	HandleBrokerMessage(roomID string, msg domain.ChatMessage)
}

type chatService struct {
	registry *websocket.Registry
	rooms    RoomService
	sessions port.SessionStore
	broker   port.RoomMessagePublisher
	msgLimit int
	logger   logger.Logger
}

func NewChatService(registry *websocket.Registry, rooms RoomService, sessions port.SessionStore, broker port.RoomMessagePublisher, msgLimit int, logg logger.Logger) ChatService {
	return &chatService{
		registry: registry,
		rooms:    rooms,
		sessions: sessions,
		broker:   broker,
		msgLimit: msgLimit,
		logger:   logg,
	}
}

func (c *chatService) Join(ctx context.Context, sess *websocket.Session) error {
	room, ok, err := c.rooms.Get(ctx, sess.RoomID)
	if err != nil {
		return err
	}
	if !ok {
		if room, err = c.rooms.Create(ctx, sess.RoomID, nil); err != nil {
			return err
		}
	}

	policy := domain.PolicyFor(sess.RoomID)

	count, err := c.sessions.RoomMemberCount(ctx, sess.RoomID)
	if err != nil {
		return err
	}
	if err := policy.CanJoin(&room, count); err != nil {
		return err
	}

	if err := c.registry.Register(ctx, sess, policy); err != nil {
		return err
	}

	if room.Status == domain.RoomStatusInactive {
		if err := c.rooms.Activate(ctx, sess.RoomID); err != nil {
			c.logger.Warnf("failed to re-activate room %s: %v", sess.RoomID, err)
		}
	}

	joinMsg := policy.OnJoin(sess.RoomID, sess.UserID, sess.Nickname)
	joinMsg.SenderSessionID = sess.ID
	c.announce(ctx, policy, joinMsg)

	c.logger.Infof("user %s joined room %s (session %s)", sess.UserID, sess.RoomID, sess.ID)
	return nil
}

func (c *chatService) Leave(ctx context.Context, sess *websocket.Session) {
	policy := domain.PolicyFor(sess.RoomID)

	leaveMsg := policy.OnLeave(sess.RoomID, sess.UserID, sess.Nickname)
	leaveMsg.SenderSessionID = sess.ID
	c.announce(ctx, policy, leaveMsg)

	if err := c.registry.Unregister(ctx, sess.RoomID, sess.ID); err != nil {
		c.logger.Errorf("failed to unregister session %s: %v", sess.ID, err)
	}

	count, err := c.sessions.RoomMemberCount(ctx, sess.RoomID)
	if err != nil {
		c.logger.Errorf("failed to count members of room %s: %v", sess.RoomID, err)
		return
	}
	if count == 0 {
		if err := c.rooms.Deactivate(ctx, sess.RoomID); err != nil {
			c.logger.Warnf("failed to deactivate empty room %s: %v", sess.RoomID, err)
		}
	}

	c.logger.Infof("user %s left room %s (session %s)", sess.UserID, sess.RoomID, sess.ID)
}

// HandleInbound treats every inbound frame as chat content for the room
// bound at handshake. Invalid content is rejected silently: logged, never
// delivered. Any activity renews the session heartbeat.
func (c *chatService) HandleInbound(ctx context.Context, sess *websocket.Session, text string) {
	if err := c.registry.Touch(ctx, sess.ID); err != nil {
		c.logger.Warnf("heartbeat failed for session %s: %v", sess.ID, err)
	}

	policy := domain.PolicyFor(sess.RoomID)
	msg := domain.NewChatMessage(sess.RoomID, sess.UserID, sess.ID, sess.Nickname, text)

	if err := policy.ValidateMessage(msg, c.msgLimit); err != nil {
		if errors.Is(err, domain.ErrEmptyContent) || errors.Is(err, domain.ErrContentTooLong) {
			c.logger.Debugf("rejected message in room %s: %v", sess.RoomID, err)
			return
		}
		c.logger.Warnf("rejected message in room %s: %v", sess.RoomID, err)
		return
	}

	if err := c.rooms.Touch(ctx, sess.RoomID); err != nil {
		c.logger.Debugf("failed to touch room %s: %v", sess.RoomID, err)
	}

	if policy.UsesBroker() {
		if err := c.broker.PublishRoomMessage(ctx, msg); err != nil {
			c.logger.Errorf("broker publish failed for room %s: %v", sess.RoomID, err)
		}
		return
	}

	if err := c.registry.Broadcast(ctx, sess.RoomID, msg, sess.ID); err != nil {
		c.logger.Errorf("broadcast failed for room %s: %v", sess.RoomID, err)
	}
}

func (c *chatService) HandleBrokerMessage(roomID string, msg domain.ChatMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.registry.Broadcast(ctx, roomID, msg, msg.SenderSessionID); err != nil {
		c.logger.Errorf("failed to fan out broker message for room %s: %v", roomID, err)
	}
}

// announce routes a presence message through the room's fan-out substrate so
// every instance's view of "who is here" converges.
func (c *chatService) announce(ctx context.Context, policy domain.RoomPolicy, msg domain.ChatMessage) {
	if policy.UsesBroker() {
		if err := c.broker.PublishRoomMessage(ctx, msg); err != nil {
			c.logger.Warnf("failed to publish presence event for room %s: %v", msg.RoomID, err)
		}
		return
	}
	if err := c.registry.Broadcast(ctx, msg.RoomID, msg, msg.SenderSessionID); err != nil {
		c.logger.Warnf("failed to broadcast presence event for room %s: %v", msg.RoomID, err)
	}
}
