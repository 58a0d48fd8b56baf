package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jiminh03/BBATTY-sub001/internal/domain"
	"github.com/jiminh03/BBATTY-sub001/internal/port"
	"github.com/jiminh03/BBATTY-sub001/pkg/logger"
)

// Registry is this instance's authoritative record of live sockets. It
// mirrors membership into the store write-through: the store is mutated
// before the local maps so a store failure aborts the join instead of
// leaving the two views divergent. The local maps are a rebuildable cache
// and are never trusted alone for cross-instance decisions.
type Registry struct {
	instanceID string
	store      port.SessionStore
	pub        port.EnvelopePublisher
	sessionTTL time.Duration
	roomExpiry func() time.Time
	log        logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session            // sessionID → session
	rooms    map[string]map[string]*Session // roomID → sessionID → session
}

func NewRegistry(instanceID string, store port.SessionStore, pub port.EnvelopePublisher, sessionTTL time.Duration, roomExpiry func() time.Time, log logger.Logger) *Registry {
	return &Registry{
		instanceID: instanceID,
		store:      store,
		pub:        pub,
		sessionTTL: sessionTTL,
		roomExpiry: roomExpiry,
		log:        log,
		sessions:   make(map[string]*Session),
		rooms:      make(map[string]map[string]*Session),
	}
}

func (r *Registry) InstanceID() string { return r.instanceID }

// Register records a new live session. For single-session room types an
// existing socket of the same (room, user) is force-closed with normal
// status before the new record is written, so at most one deliverable path
// per user exists in such rooms.
func (r *Registry) Register(ctx context.Context, sess *Session, policy domain.RoomPolicy) error {
	if policy.SingleSessionPerUser() {
		if old := r.findByUser(sess.RoomID, sess.UserID); old != nil {
			old.CloseNormal("duplicate connection")
			if err := r.Unregister(ctx, old.RoomID, old.ID); err != nil {
				r.log.Warnf("failed to unregister replaced session %s: %v", old.ID, err)
			}
		}
	}

	now := time.Now()
	rec := domain.SessionRecord{
		SessionID:      sess.ID,
		UserID:         sess.UserID,
		RoomID:         sess.RoomID,
		Nickname:       sess.Nickname,
		InstanceID:     r.instanceID,
		ConnectedAt:    now,
		LastActivityAt: now,
	}

	// Store first. A failed write must not leave a socket the rest of the
	// cluster cannot see.
	if err := r.store.SaveSession(ctx, rec, r.sessionTTL); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	if err := r.store.AddRoomSession(ctx, sess.RoomID, sess.ID, sess.UserID, r.roomExpiry()); err != nil {
		_ = r.store.DeleteSession(ctx, sess.ID)
		return fmt.Errorf("failed to persist room membership: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = sess
	if r.rooms[sess.RoomID] == nil {
		r.rooms[sess.RoomID] = make(map[string]*Session)
	}
	r.rooms[sess.RoomID][sess.ID] = sess
	return nil
}

// Unregister removes the session locally and from the store.
func (r *Registry) Unregister(ctx context.Context, roomID, sessionID string) error {
	sess := r.removeLocal(roomID, sessionID)

	userID := ""
	if sess != nil {
		userID = sess.UserID
	} else if rec, ok, err := r.store.GetSession(ctx, sessionID); err == nil && ok {
		userID = rec.UserID
	}

	if err := r.store.RemoveRoomSession(ctx, roomID, sessionID, userID); err != nil {
		return err
	}
	return r.store.DeleteSession(ctx, sessionID)
}

// Broadcast delivers to all local sockets in the room, then publishes an
// envelope so other instances deliver to theirs. Local delivery is ordered
// and exactly-once; across instances there is no total order, because remote
// delivery arrives only after pub/sub latency.
func (r *Registry) Broadcast(ctx context.Context, roomID string, msg domain.ChatMessage, excludeSessionID string) error {
	r.DeliverLocal(roomID, msg, excludeSessionID)

	env := domain.BroadcastEnvelope{
		Kind:             domain.EnvelopeMessage,
		RoomID:           roomID,
		Message:          msg,
		SourceInstanceID: r.instanceID,
		Timestamp:        time.Now(),
	}
	if err := r.pub.PublishEnvelope(ctx, env); err != nil {
		return fmt.Errorf("failed to relay broadcast for room %s: %w", roomID, err)
	}
	return nil
}

// DeliverLocal fans a message out to this instance's sockets only. The
// sender's own socket and excludeSessionID are skipped; a socket whose send
// buffer is full is dropped from the room.
func (r *Registry) DeliverLocal(roomID string, msg domain.ChatMessage, excludeSessionID string) {
	frame := domain.FrameFor(msg)

	r.mu.RLock()
	room := r.rooms[roomID]
	targets := make([]*Session, 0, len(room))
	for id, sess := range room {
		if id == excludeSessionID || (msg.SenderSessionID != "" && id == msg.SenderSessionID) {
			continue
		}
		targets = append(targets, sess)
	}
	r.mu.RUnlock()

	for _, sess := range targets {
		if !sess.Deliver(frame) {
			r.log.Warnf("dropping slow session %s in room %s", sess.ID, roomID)
			sess.CloseNormal("send buffer overflow")
			r.removeLocal(roomID, sess.ID)
		}
	}
}

// CloseRoom force-closes every live socket of the room across all
// instances: local sockets directly, remote ones through a room_close
// envelope on the relay channel.
func (r *Registry) CloseRoom(ctx context.Context, roomID, reason string) error {
	env := domain.BroadcastEnvelope{
		Kind:             domain.EnvelopeRoomClose,
		RoomID:           roomID,
		Message:          domain.NewSystemMessage(roomID, reason),
		SourceInstanceID: r.instanceID,
		Timestamp:        time.Now(),
	}
	err := r.pub.PublishEnvelope(ctx, env)

	r.CloseRoomLocal(roomID, reason)
	if err != nil {
		return fmt.Errorf("failed to relay room close for %s: %w", roomID, err)
	}
	return nil
}

// CloseRoomLocal closes this instance's sockets for the room.
func (r *Registry) CloseRoomLocal(roomID, reason string) {
	r.mu.Lock()
	room := r.rooms[roomID]
	delete(r.rooms, roomID)
	for id := range room {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, sess := range room {
		sess.CloseNormal(reason)
	}
}

// Touch renews the session record's TTL. Any inbound activity counts as a
// heartbeat; there is no separate ping loop.
func (r *Registry) Touch(ctx context.Context, sessionID string) error {
	return r.store.TouchSession(ctx, sessionID, r.sessionTTL)
}

// ReSaveSession re-registers a zombie: a live local socket whose store
// record is missing.
func (r *Registry) ReSaveSession(ctx context.Context, sess *Session) error {
	now := time.Now()
	rec := domain.SessionRecord{
		SessionID:      sess.ID,
		UserID:         sess.UserID,
		RoomID:         sess.RoomID,
		Nickname:       sess.Nickname,
		InstanceID:     r.instanceID,
		ConnectedAt:    now,
		LastActivityAt: now,
	}
	if err := r.store.SaveSession(ctx, rec, r.sessionTTL); err != nil {
		return err
	}
	return r.store.AddRoomSession(ctx, sess.RoomID, sess.ID, sess.UserID, r.roomExpiry())
}

// LocalRoomIDs lists rooms with at least one live socket on this instance.
func (r *Registry) LocalRoomIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	return ids
}

// LocalSessions returns this instance's live sessions for the room.
func (r *Registry) LocalSessions(roomID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.rooms[roomID]))
	for _, sess := range r.rooms[roomID] {
		out = append(out, sess)
	}
	return out
}

func (r *Registry) LocalCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// CloseAll shuts every local socket down. Used on graceful shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.sessions = make(map[string]*Session)
	r.rooms = make(map[string]map[string]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.CloseNormal(reason)
	}
}

func (r *Registry) findByUser(roomID, userID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sess := range r.rooms[roomID] {
		if sess.UserID == userID {
			return sess
		}
	}
	return nil
}

func (r *Registry) removeLocal(roomID, sessionID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	if room := r.rooms[roomID]; room != nil {
		delete(room, sessionID)
		if len(room) == 0 {
			delete(r.rooms, roomID)
		}
	}
	return sess
}
