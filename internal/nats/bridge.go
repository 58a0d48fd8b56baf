package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jiminh03/BBATTY-sub001/internal/domain"
)

// Match rooms fan out through the broker: one stream per room, created
// implicitly on first publish, consumed by a queue group so that exactly one
// instance receives each message regardless of how many instances run.
const (
	matchSubjectPrefix   = "chat.match."
	matchSubjectWildcard = matchSubjectPrefix + ">"
	matchStreamPrefix    = "match-chat-"

	// MatchQueueGroup is the shared consumer group for match-room traffic.
	MatchQueueGroup = "chat-workers"
)

// TopicForRoom derives the deterministic stream name for a match room id:
// "match_1001" → "match-chat-1001".
func TopicForRoom(roomID string) string {
	return matchStreamPrefix + strings.TrimPrefix(roomID, "match_")
}

// SubjectForRoom derives the broker subject for a match room id.
func SubjectForRoom(roomID string) string {
	return matchSubjectPrefix + strings.TrimPrefix(roomID, "match_")
}

func roomIDFromSubject(subject string) string {
	return "match_" + strings.TrimPrefix(subject, matchSubjectPrefix)
}

// ensureRoomStream creates the room's stream if it does not exist yet.
// Concurrent creation attempts are harmless.
func (c *NATSClient) ensureRoomStream(roomID string) error {
	name := TopicForRoom(roomID)
	if _, err := c.js.StreamInfo(name); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", name, err)
	}

	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  []string{SubjectForRoom(roomID)},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create stream %s: %w", name, err)
	}
	return nil
}

// PublishRoomMessage writes a match-room message to its topic, creating the
// topic on first use. The stream keeps a short history for replay.
func (c *NATSClient) PublishRoomMessage(ctx context.Context, msg domain.ChatMessage) error {
	if err := c.ensureRoomStream(msg.RoomID); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	if _, err := c.js.Publish(SubjectForRoom(msg.RoomID), data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish to room %s: %w", msg.RoomID, err)
	}
	return nil
}

// ConsumeRoomMessages subscribes the queue group to every room topic by
// pattern. The handler receives the room id extracted from the subject.
func (c *NATSClient) ConsumeRoomMessages(group string, handler func(roomID string, msg domain.ChatMessage)) error {
	sub, err := c.Conn.QueueSubscribe(matchSubjectWildcard, group, func(m *nats.Msg) {
		var msg domain.ChatMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			return // skip invalid payloads
		}
		handler(roomIDFromSubject(m.Subject), msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to match rooms: %w", err)
	}

	c.track(sub)
	return nil
}

// DeleteRoomTopic removes the room's stream. Deleting an already-deleted
// topic succeeds: teardown must be re-runnable.
func (c *NATSClient) DeleteRoomTopic(ctx context.Context, roomID string) error {
	err := c.js.DeleteStream(TopicForRoom(roomID))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to delete topic %s: %w", TopicForRoom(roomID), err)
	}
	return nil
}
