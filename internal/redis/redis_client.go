package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout, all prefixed "chat:". Room-scoped keys expire at local
// midnight; session records carry their own short heartbeat TTL.
const (
	keyPrefix    = "chat:"
	blacklistKey = keyPrefix + "blacklist"
)

func roomKey(roomID string) string         { return keyPrefix + "room:" + roomID }
func roomMembersKey(roomID string) string  { return roomKey(roomID) + ":members" }
func roomSessionsKey(roomID string) string { return roomKey(roomID) + ":sessions" }
func sessionKey(sessionID string) string   { return keyPrefix + "session:" + sessionID }
func dateIndexKey(date string) string      { return keyPrefix + "rooms:" + date }

type Client struct {
	rdb *redis.Client
}

func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// IsBlacklisted checks blacklist membership. Callers fail open on error.
func (c *Client) IsBlacklisted(ctx context.Context, userID string) (bool, error) {
	return c.rdb.SIsMember(ctx, blacklistKey, userID).Result()
}

func (c *Client) AddToBlacklist(ctx context.Context, userID string) error {
	return c.rdb.SAdd(ctx, blacklistKey, userID).Err()
}

func (c *Client) RemoveFromBlacklist(ctx context.Context, userID string) error {
	return c.rdb.SRem(ctx, blacklistKey, userID).Err()
}

// FlushAll wipes the database. Test helper only.
func (c *Client) FlushAll(ctx context.Context) error {
	return c.rdb.FlushAll(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
