package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jiminh03/BBATTY-sub001/internal/domain"
	"github.com/jiminh03/BBATTY-sub001/internal/websocket"
	"github.com/jiminh03/BBATTY-sub001/pkg/logger"
)

// fakeBackend is an in-memory stand-in for the Redis store, implementing
// both the room and session store ports.
type fakeBackend struct {
	mu           sync.Mutex
	rooms        map[string]domain.Room
	records      map[string]domain.SessionRecord
	roomSessions map[string]map[string]bool
	members      map[string]map[string]bool
	dates        map[string]map[string]bool

	roomsForDateCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		rooms:        make(map[string]domain.Room),
		records:      make(map[string]domain.SessionRecord),
		roomSessions: make(map[string]map[string]bool),
		members:      make(map[string]map[string]bool),
		dates:        make(map[string]map[string]bool),
	}
}

func (f *fakeBackend) CreateRoom(_ context.Context, room domain.Room, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[room.ID] = room
	return nil
}

func (f *fakeBackend) GetRoom(_ context.Context, roomID string) (domain.Room, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	return room, ok, nil
}

func (f *fakeBackend) SetRoomStatus(_ context.Context, roomID string, status domain.RoomStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return fmt.Errorf("room %s not found", roomID)
	}
	room.Status = status
	f.rooms[roomID] = room
	return nil
}

func (f *fakeBackend) TouchRoom(_ context.Context, roomID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room := f.rooms[roomID]
	room.LastActivityAt = at
	room.MessageCount++
	f.rooms[roomID] = room
	return nil
}

func (f *fakeBackend) ClearRoomMembers(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members, roomID)
	return nil
}

func (f *fakeBackend) DeleteRoomKeys(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, roomID)
	delete(f.members, roomID)
	delete(f.roomSessions, roomID)
	return nil
}

func (f *fakeBackend) ListRoomIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.rooms {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeBackend) AddRoomToDate(_ context.Context, date, roomID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dates[date] == nil {
		f.dates[date] = make(map[string]bool)
	}
	f.dates[date][roomID] = true
	return nil
}

func (f *fakeBackend) RoomsForDate(_ context.Context, date string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roomsForDateCalls++
	var ids []string
	for id := range f.dates[date] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeBackend) DeleteDateIndex(_ context.Context, date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.dates, date)
	return nil
}

func (f *fakeBackend) SaveSession(_ context.Context, rec domain.SessionRecord, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.SessionID] = rec
	return nil
}

func (f *fakeBackend) GetSession(_ context.Context, id string) (domain.SessionRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	return rec, ok, nil
}

func (f *fakeBackend) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

func (f *fakeBackend) TouchSession(_ context.Context, id string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[id]; ok {
		rec.LastActivityAt = time.Now()
		f.records[id] = rec
	}
	return nil
}

func (f *fakeBackend) AddRoomSession(_ context.Context, roomID, sessionID, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roomSessions[roomID] == nil {
		f.roomSessions[roomID] = make(map[string]bool)
	}
	f.roomSessions[roomID][sessionID] = true
	if userID != "" {
		if f.members[roomID] == nil {
			f.members[roomID] = make(map[string]bool)
		}
		f.members[roomID][userID] = true
	}
	return nil
}

func (f *fakeBackend) RemoveRoomSession(_ context.Context, roomID, sessionID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.roomSessions[roomID], sessionID)
	delete(f.members[roomID], userID)
	return nil
}

func (f *fakeBackend) RoomSessionIDs(_ context.Context, roomID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.roomSessions[roomID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeBackend) RoomMembers(_ context.Context, roomID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var users []string
	for u := range f.members[roomID] {
		users = append(users, u)
	}
	return users, nil
}

func (f *fakeBackend) RoomMemberCount(_ context.Context, roomID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.members[roomID]), nil
}

func (f *fakeBackend) RemoveMember(_ context.Context, roomID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members[roomID], userID)
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	envelopes []domain.BroadcastEnvelope
}

func (f *fakePublisher) PublishEnvelope(_ context.Context, env domain.BroadcastEnvelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.envelopes = append(f.envelopes, env)
	return nil
}

func (f *fakePublisher) published() []domain.BroadcastEnvelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.BroadcastEnvelope(nil), f.envelopes...)
}

type fakeTopics struct {
	mu      sync.Mutex
	deleted []string
	fail    bool
}

func (f *fakeTopics) DeleteRoomTopic(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("broker unavailable")
	}
	f.deleted = append(f.deleted, roomID)
	return nil
}

type fakeBroker struct {
	mu        sync.Mutex
	published []domain.ChatMessage
}

func (f *fakeBroker) PublishRoomMessage(_ context.Context, msg domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeBroker) messages() []domain.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ChatMessage(nil), f.published...)
}

type nopSocket struct {
	mu     sync.Mutex
	closed bool
}

func (s *nopSocket) ReadMessage() (int, []byte, error)       { select {} }
func (s *nopSocket) WriteJSON(interface{}) error             { return nil }
func (s *nopSocket) WriteControl(int, []byte, time.Time) error { return nil }
func (s *nopSocket) SetWriteDeadline(time.Time) error        { return nil }

func (s *nopSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *nopSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func testRegistry(backend *fakeBackend, pub *fakePublisher) *websocket.Registry {
	expiry := func() time.Time { return time.Now().Add(time.Hour) }
	return websocket.NewRegistry("instance-a", backend, pub, 30*time.Second, expiry, testLogger())
}

func testLogger() logger.Logger {
	return logger.NewLogger("error", "")
}

func seoul() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.UTC
	}
	return loc
}
