package domain

import "time"

// Envelope kinds carried on the per-room pub/sub channel.
const (
	EnvelopeMessage   = "message"
	EnvelopeRoomClose = "room_close"
)

// StaleEnvelopeBound caps how old a relayed envelope may be before it is
// dropped, keeping cross-instance inconsistency windows finite.
const StaleEnvelopeBound = 60 * time.Second

// BroadcastEnvelope relays a room's traffic from its origin instance to all
// others. It exists only in transit on the pub/sub channel.
type BroadcastEnvelope struct {
	Kind              string      `json:"kind"`
	RoomID            string      `json:"roomId"`
	Message           ChatMessage `json:"message"`
	SourceInstanceID  string      `json:"sourceInstanceId"`
	ExcludeInstanceID string      `json:"excludeInstanceId,omitempty"`
	Timestamp         time.Time   `json:"timestamp"`
}

// Stale reports whether the envelope is older than the relay bound.
func (e BroadcastEnvelope) Stale(now time.Time) bool {
	return now.Sub(e.Timestamp) > StaleEnvelopeBound
}

// DroppedBy reports whether instanceID must not re-deliver this envelope,
// either because it originated there or was explicitly excluded.
func (e BroadcastEnvelope) DroppedBy(instanceID string) bool {
	return e.SourceInstanceID == instanceID || (e.ExcludeInstanceID != "" && e.ExcludeInstanceID == instanceID)
}
