package domain

import (
	"fmt"
	"strings"
	"time"
)

type RoomType string

const (
	RoomTypeWatch RoomType = "WATCH"
	RoomTypeMatch RoomType = "MATCH"
)

type RoomStatus string

// Room status machine:
//
//	ACTIVE <-> INACTIVE -> CLOSED
//
// CLOSED is terminal. INACTIVE happens automatically when the participant
// set becomes empty; ACTIVE is only reachable from a non-CLOSED status.
const (
	RoomStatusActive   RoomStatus = "ACTIVE"
	RoomStatusInactive RoomStatus = "INACTIVE"
	RoomStatusClosed   RoomStatus = "CLOSED"
)

var (
	ErrRoomClosed      = fmt.Errorf("room is closed")
	ErrUnknownRoomType = fmt.Errorf("unknown room type")
)

// Room is the store-resident metadata for a chat room. The participant set
// and session set live in their own store keys; Room carries the counters.
type Room struct {
	ID             string
	Type           RoomType
	Status         RoomStatus
	CreatedAt      time.Time
	LastActivityAt time.Time
	MessageCount   int64
	Metadata       map[string]string
}

// RoomTypeOf derives the room type from the id prefix
// ("watch_<game>_<team>" or "match_<id>").
func RoomTypeOf(roomID string) (RoomType, error) {
	switch {
	case strings.HasPrefix(roomID, "watch_"):
		return RoomTypeWatch, nil
	case strings.HasPrefix(roomID, "match_"):
		return RoomTypeMatch, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRoomType, roomID)
	}
}

// CanTransition reports whether a status change is legal.
func (r *Room) CanTransition(next RoomStatus) bool {
	if r.Status == RoomStatusClosed {
		return false
	}
	return next == RoomStatusActive || next == RoomStatusInactive || next == RoomStatusClosed
}

// NextMidnight returns the first midnight after now in the given zone.
// Room keys expire there so that every room dies at local day's end.
func NextMidnight(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}

// DateKey formats the per-date room index component.
func DateKey(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("2006-01-02")
}
