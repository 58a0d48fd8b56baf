// Package port holds the narrow interfaces the chat core consumes, both the
// seams to excluded collaborators (auth, blacklist) and the store/transport
// seams that let the registry and services run against fakes in tests.
package port

import (
	"context"
	"time"

	"github.com/jiminh03/BBATTY-sub001/internal/domain"
)

// Identity is what a validated session token resolves to: the user and the
// single room the token permits.
type Identity struct {
	UserID   string
	Nickname string
	RoomID   string
}

// TokenVerifier validates the short-lived handshake token. Format, expiry and
// signature checks live in the auth service; the chat core only consumes the
// result, under a bounded wait.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Blacklist answers membership checks at handshake time. Callers treat an
// error as "not blacklisted": the check is explicitly availability-biased
// (fail-open) because its risk is low.
type Blacklist interface {
	IsBlacklisted(ctx context.Context, userID string) (bool, error)
}

// SessionStore persists TTL-bounded session records and the per-room session
// and member sets.
type SessionStore interface {
	SaveSession(ctx context.Context, rec domain.SessionRecord, ttl time.Duration) error
	GetSession(ctx context.Context, sessionID string) (domain.SessionRecord, bool, error)
	DeleteSession(ctx context.Context, sessionID string) error
	TouchSession(ctx context.Context, sessionID string, ttl time.Duration) error

	AddRoomSession(ctx context.Context, roomID, sessionID, userID string, expireAt time.Time) error
	RemoveRoomSession(ctx context.Context, roomID, sessionID, userID string) error
	RoomSessionIDs(ctx context.Context, roomID string) ([]string, error)
	RoomMembers(ctx context.Context, roomID string) ([]string, error)
	RoomMemberCount(ctx context.Context, roomID string) (int, error)
	RemoveMember(ctx context.Context, roomID, userID string) error
}

// RoomStore persists room metadata, the per-date room index, and the room key
// teardown operations.
type RoomStore interface {
	CreateRoom(ctx context.Context, room domain.Room, expireAt time.Time) error
	GetRoom(ctx context.Context, roomID string) (domain.Room, bool, error)
	SetRoomStatus(ctx context.Context, roomID string, status domain.RoomStatus) error
	TouchRoom(ctx context.Context, roomID string, at time.Time) error
	ClearRoomMembers(ctx context.Context, roomID string) error
	DeleteRoomKeys(ctx context.Context, roomID string) error
	ListRoomIDs(ctx context.Context) ([]string, error)

	AddRoomToDate(ctx context.Context, date, roomID string, expireAt time.Time) error
	RoomsForDate(ctx context.Context, date string) ([]string, error)
	DeleteDateIndex(ctx context.Context, date string) error
}

// EnvelopePublisher pushes a broadcast envelope onto the per-room pub/sub
// channel so other instances can re-deliver to their local sockets.
type EnvelopePublisher interface {
	PublishEnvelope(ctx context.Context, env domain.BroadcastEnvelope) error
}

// TopicAdmin manages the broker's per-room topics. Deleting a topic that no
// longer exists is not an error.
type TopicAdmin interface {
	DeleteRoomTopic(ctx context.Context, roomID string) error
}

// RoomMessagePublisher publishes match-room traffic to the broker's
// topic-per-room path, creating the topic on first use.
type RoomMessagePublisher interface {
	PublishRoomMessage(ctx context.Context, msg domain.ChatMessage) error
}
