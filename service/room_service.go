package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jiminh03/BBATTY-sub001/internal/domain"
	"github.com/jiminh03/BBATTY-sub001/internal/port"
	"github.com/jiminh03/BBATTY-sub001/pkg/logger"
)

// RoomService owns the room lifecycle. Every room-scoped key is written with
// an expiry of "time until next local midnight", never a fixed duration: a
// room created at 23:59 dies within the minute, one created at 00:01 lives
// almost a day.
type RoomService interface {
	Create(ctx context.Context, roomID string, metadata map[string]string) (domain.Room, error)
	Get(ctx context.Context, roomID string) (domain.Room, bool, error)
	Activate(ctx context.Context, roomID string) error
	Deactivate(ctx context.Context, roomID string) error
	Close(ctx context.Context, roomID string) error
	ForceDelete(ctx context.Context, roomID string) error
	Touch(ctx context.Context, roomID string) error

	RoomExpiry() time.Time
	Today() string
}

type roomService struct {
	rooms    port.RoomStore
	sessions port.SessionStore
	loc      *time.Location
	now      func() time.Time
	logger   logger.Logger
}

func NewRoomService(rooms port.RoomStore, sessions port.SessionStore, loc *time.Location, logg logger.Logger) RoomService {
	return &roomService{
		rooms:    rooms,
		sessions: sessions,
		loc:      loc,
		now:      time.Now,
		logger:   logg,
	}
}

func (s *roomService) RoomExpiry() time.Time {
	return domain.NextMidnight(s.now(), s.loc)
}

func (s *roomService) Today() string {
	return domain.DateKey(s.now(), s.loc)
}

func (s *roomService) Create(ctx context.Context, roomID string, metadata map[string]string) (domain.Room, error) {
	roomType, err := domain.RoomTypeOf(roomID)
	if err != nil {
		return domain.Room{}, err
	}

	now := s.now()
	room := domain.Room{
		ID:             roomID,
		Type:           roomType,
		Status:         domain.RoomStatusActive,
		CreatedAt:      now,
		LastActivityAt: now,
		Metadata:       metadata,
	}

	expireAt := s.RoomExpiry()
	if err := s.rooms.CreateRoom(ctx, room, expireAt); err != nil {
		return domain.Room{}, err
	}
	if err := s.rooms.AddRoomToDate(ctx, s.Today(), roomID, expireAt); err != nil {
		return domain.Room{}, err
	}

	s.logger.Infof("created room %s (%s), expires %s", roomID, roomType, expireAt.Format(time.RFC3339))
	return room, nil
}

func (s *roomService) Get(ctx context.Context, roomID string) (domain.Room, bool, error) {
	return s.rooms.GetRoom(ctx, roomID)
}

// Activate moves a room back to ACTIVE. CLOSED is terminal: re-activation
// after close fails validation.
func (s *roomService) Activate(ctx context.Context, roomID string) error {
	room, ok, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("room %s not found", roomID)
	}
	if !room.CanTransition(domain.RoomStatusActive) {
		return fmt.Errorf("cannot activate room %s: %w", roomID, domain.ErrRoomClosed)
	}
	return s.rooms.SetRoomStatus(ctx, roomID, domain.RoomStatusActive)
}

// Deactivate marks an emptied room INACTIVE.
func (s *roomService) Deactivate(ctx context.Context, roomID string) error {
	room, ok, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !ok || !room.CanTransition(domain.RoomStatusInactive) {
		return nil
	}
	return s.rooms.SetRoomStatus(ctx, roomID, domain.RoomStatusInactive)
}

// Touch records message activity on the room.
func (s *roomService) Touch(ctx context.Context, roomID string) error {
	return s.rooms.TouchRoom(ctx, roomID, s.now())
}

// Close clears the participant set and marks the room CLOSED, terminally.
// Closing an already closed or missing room is a no-op.
func (s *roomService) Close(ctx context.Context, roomID string) error {
	room, ok, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !ok || !room.CanTransition(domain.RoomStatusClosed) {
		return nil
	}
	if err := s.rooms.ClearRoomMembers(ctx, roomID); err != nil {
		return err
	}
	return s.rooms.SetRoomStatus(ctx, roomID, domain.RoomStatusClosed)
}

// ForceDelete removes the room's keys and every session-to-room mapping of
// sessions that were in it, so no dangling session can reference the room.
func (s *roomService) ForceDelete(ctx context.Context, roomID string) error {
	sessionIDs, err := s.sessions.RoomSessionIDs(ctx, roomID)
	if err != nil {
		return err
	}
	for _, id := range sessionIDs {
		if err := s.sessions.DeleteSession(ctx, id); err != nil {
			s.logger.Warnf("failed to delete session %s of room %s: %v", id, roomID, err)
		}
	}
	return s.rooms.DeleteRoomKeys(ctx, roomID)
}
