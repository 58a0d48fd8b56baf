package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jiminh03/BBATTY-sub001/internal/domain"
)

// CreateRoom writes the room hash and indexes it under its creation date.
// All room-scoped keys expire at the given instant (next local midnight).
func (c *Client) CreateRoom(ctx context.Context, room domain.Room, expireAt time.Time) error {
	fields := map[string]interface{}{
		"type":           string(room.Type),
		"status":         string(room.Status),
		"createdAt":      room.CreatedAt.Format(time.RFC3339Nano),
		"lastActivityAt": room.LastActivityAt.Format(time.RFC3339Nano),
		"messageCount":   room.MessageCount,
	}
	if len(room.Metadata) > 0 {
		meta, err := json.Marshal(room.Metadata)
		if err != nil {
			return fmt.Errorf("failed to serialize room metadata: %w", err)
		}
		fields["metadata"] = string(meta)
	}

	key := roomKey(room.ID)
	if err := c.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("failed to write room %s: %w", room.ID, err)
	}
	return c.rdb.ExpireAt(ctx, key, expireAt).Err()
}

func (c *Client) GetRoom(ctx context.Context, roomID string) (domain.Room, bool, error) {
	fields, err := c.rdb.HGetAll(ctx, roomKey(roomID)).Result()
	if err != nil {
		return domain.Room{}, false, fmt.Errorf("failed to read room %s: %w", roomID, err)
	}
	if len(fields) == 0 {
		return domain.Room{}, false, nil
	}

	room := domain.Room{
		ID:     roomID,
		Type:   domain.RoomType(fields["type"]),
		Status: domain.RoomStatus(fields["status"]),
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["createdAt"]); err == nil {
		room.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["lastActivityAt"]); err == nil {
		room.LastActivityAt = t
	}
	if n, err := strconv.ParseInt(fields["messageCount"], 10, 64); err == nil {
		room.MessageCount = n
	}
	if raw := fields["metadata"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &room.Metadata)
	}
	return room, true, nil
}

func (c *Client) SetRoomStatus(ctx context.Context, roomID string, status domain.RoomStatus) error {
	return c.rdb.HSet(ctx, roomKey(roomID), "status", string(status)).Err()
}

// TouchRoom bumps the activity timestamp and message counter.
func (c *Client) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, roomKey(roomID), "lastActivityAt", at.Format(time.RFC3339Nano))
	pipe.HIncrBy(ctx, roomKey(roomID), "messageCount", 1)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Client) DeleteRoomKeys(ctx context.Context, roomID string) error {
	return c.rdb.Del(ctx, roomKey(roomID), roomMembersKey(roomID), roomSessionsKey(roomID)).Err()
}

// ClearRoomMembers empties the participant set without deleting the room.
func (c *Client) ClearRoomMembers(ctx context.Context, roomID string) error {
	return c.rdb.Del(ctx, roomMembersKey(roomID)).Err()
}

// ListRoomIDs scans for room hashes. Used by the synchronizer sweep.
func (c *Client) ListRoomIDs(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		cursor uint64
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, roomKey("*"), 200).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan rooms: %w", err)
		}
		for _, key := range keys {
			id := strings.TrimPrefix(key, keyPrefix+"room:")
			if strings.HasSuffix(id, ":members") || strings.HasSuffix(id, ":sessions") {
				continue
			}
			ids = append(ids, id)
		}
		cursor = next
		if cursor == 0 {
			return ids, nil
		}
	}
}

func (c *Client) AddRoomToDate(ctx context.Context, date, roomID string, expireAt time.Time) error {
	key := dateIndexKey(date)
	if err := c.rdb.SAdd(ctx, key, roomID).Err(); err != nil {
		return fmt.Errorf("failed to index room %s for %s: %w", roomID, date, err)
	}
	return c.rdb.ExpireAt(ctx, key, expireAt).Err()
}

func (c *Client) RoomsForDate(ctx context.Context, date string) ([]string, error) {
	return c.rdb.SMembers(ctx, dateIndexKey(date)).Result()
}

func (c *Client) DeleteDateIndex(ctx context.Context, date string) error {
	return c.rdb.Del(ctx, dateIndexKey(date)).Err()
}

// SaveSession writes the session record under its heartbeat TTL. The record
// is the only cross-instance evidence that this socket exists.
func (c *Client) SaveSession(ctx context.Context, rec domain.SessionRecord, ttl time.Duration) error {
	fields := map[string]interface{}{
		"userId":         rec.UserID,
		"roomId":         rec.RoomID,
		"nickname":       rec.Nickname,
		"instanceId":     rec.InstanceID,
		"connectedAt":    rec.ConnectedAt.Format(time.RFC3339Nano),
		"lastActivityAt": rec.LastActivityAt.Format(time.RFC3339Nano),
	}
	key := sessionKey(rec.SessionID)
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write session %s: %w", rec.SessionID, err)
	}
	return nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (domain.SessionRecord, bool, error) {
	fields, err := c.rdb.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return domain.SessionRecord{}, false, fmt.Errorf("failed to read session %s: %w", sessionID, err)
	}
	if len(fields) == 0 {
		return domain.SessionRecord{}, false, nil
	}

	rec := domain.SessionRecord{
		SessionID:  sessionID,
		UserID:     fields["userId"],
		RoomID:     fields["roomId"],
		Nickname:   fields["nickname"],
		InstanceID: fields["instanceId"],
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["connectedAt"]); err == nil {
		rec.ConnectedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, fields["lastActivityAt"]); err == nil {
		rec.LastActivityAt = t
	}
	return rec, true, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, sessionKey(sessionID)).Err()
}

// TouchSession renews the heartbeat TTL and stamps the activity time.
func (c *Client) TouchSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	key := sessionKey(sessionID)
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "lastActivityAt", time.Now().Format(time.RFC3339Nano))
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Client) AddRoomSession(ctx context.Context, roomID, sessionID, userID string, expireAt time.Time) error {
	pipe := c.rdb.Pipeline()
	pipe.SAdd(ctx, roomSessionsKey(roomID), sessionID)
	pipe.ExpireAt(ctx, roomSessionsKey(roomID), expireAt)
	pipe.SAdd(ctx, roomMembersKey(roomID), userID)
	pipe.ExpireAt(ctx, roomMembersKey(roomID), expireAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add session %s to room %s: %w", sessionID, roomID, err)
	}
	return nil
}

func (c *Client) RemoveRoomSession(ctx context.Context, roomID, sessionID, userID string) error {
	pipe := c.rdb.Pipeline()
	pipe.SRem(ctx, roomSessionsKey(roomID), sessionID)
	pipe.SRem(ctx, roomMembersKey(roomID), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove session %s from room %s: %w", sessionID, roomID, err)
	}
	return nil
}

func (c *Client) RoomSessionIDs(ctx context.Context, roomID string) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, roomSessionsKey(roomID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to list sessions of room %s: %w", roomID, err)
	}
	return ids, nil
}

func (c *Client) RoomMembers(ctx context.Context, roomID string) ([]string, error) {
	return c.rdb.SMembers(ctx, roomMembersKey(roomID)).Result()
}

func (c *Client) RemoveMember(ctx context.Context, roomID, userID string) error {
	return c.rdb.SRem(ctx, roomMembersKey(roomID), userID).Err()
}

func (c *Client) RoomMemberCount(ctx context.Context, roomID string) (int, error) {
	n, err := c.rdb.SCard(ctx, roomMembersKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count members of room %s: %w", roomID, err)
	}
	return int(n), nil
}
