package domain

import "time"

// SessionRecord is the store-resident proof that a user holds a live socket
// on some instance. It lives under a short TTL renewed on activity; expiry
// without renewal is the crash-detection signal.
type SessionRecord struct {
	SessionID      string
	UserID         string
	RoomID         string
	Nickname       string
	InstanceID     string
	ConnectedAt    time.Time
	LastActivityAt time.Time
}
