package service

import (
	"context"
	"fmt"

	"github.com/jiminh03/BBATTY-sub001/internal/domain"
	"github.com/jiminh03/BBATTY-sub001/internal/port"
	"github.com/jiminh03/BBATTY-sub001/internal/websocket"
	"github.com/jiminh03/BBATTY-sub001/pkg/logger"
)

const (
	warning1Notice = "5 minutes until this room closes"
	warning2Notice = "this room closes in 2 minutes"
	shutdownNotice = "this room is closing now"
)

// CleanupReport aggregates one teardown phase. Failures are per room and
// never halt the other rooms.
type CleanupReport struct {
	Action    string
	Date      string
	Processed int
	Succeeded int
	Failed    int
}

// CleanupService consumes the staged shutdown commands and performs the
// ordered, per-room-isolated teardown. Every step is idempotent: warnings
// can be re-sent, and cleaning an already-deleted date is a no-op.
type CleanupService struct {
	registry *websocket.Registry
	rooms    RoomService
	store    port.RoomStore
	topics   port.TopicAdmin
	logger   logger.Logger
}

func NewCleanupService(registry *websocket.Registry, rooms RoomService, store port.RoomStore, topics port.TopicAdmin, logg logger.Logger) *CleanupService {
	return &CleanupService{
		registry: registry,
		rooms:    rooms,
		store:    store,
		topics:   topics,
		logger:   logg,
	}
}

// HandleCommand dispatches one control-channel command. Invalid commands are
// rejected without side effects.
func (s *CleanupService) HandleCommand(ctx context.Context, cmd domain.CleanupCommand) (CleanupReport, error) {
	if err := cmd.Validate(); err != nil {
		return CleanupReport{}, err
	}

	switch cmd.Action {
	case domain.CleanupWarning1:
		return s.warnAll(ctx, cmd, warning1Notice)
	case domain.CleanupWarning2:
		return s.warnAll(ctx, cmd, warning2Notice)
	default:
		return s.cleanupDate(ctx, cmd)
	}
}

// warnAll best-effort broadcasts a countdown notice to every room of the
// date. A failing room is logged and skipped.
func (s *CleanupService) warnAll(ctx context.Context, cmd domain.CleanupCommand, notice string) (CleanupReport, error) {
	roomIDs, err := s.store.RoomsForDate(ctx, cmd.Date)
	if err != nil {
		return CleanupReport{}, fmt.Errorf("failed to list rooms for %s: %w", cmd.Date, err)
	}

	report := CleanupReport{Action: cmd.Action, Date: cmd.Date, Processed: len(roomIDs)}
	for _, roomID := range roomIDs {
		msg := domain.NewSystemMessage(roomID, notice)
		if err := s.registry.Broadcast(ctx, roomID, msg, ""); err != nil {
			report.Failed++
			s.logger.Errorf("failed to warn room %s: %v", roomID, err)
			continue
		}
		report.Succeeded++
	}

	s.logger.Infof("%s for %s: warned %d/%d rooms", cmd.Action, cmd.Date, report.Succeeded, report.Processed)
	return report, nil
}

// cleanupDate tears down every room of the date in order: shutdown notice,
// cross-instance socket close, broker topic delete, store key delete. Each
// room is isolated; one room's failure never blocks another's teardown, and
// a broker error never blocks that room's store cleanup. The date index goes
// last, after all rooms are processed.
func (s *CleanupService) cleanupDate(ctx context.Context, cmd domain.CleanupCommand) (CleanupReport, error) {
	roomIDs, err := s.store.RoomsForDate(ctx, cmd.Date)
	if err != nil {
		return CleanupReport{}, fmt.Errorf("failed to list rooms for %s: %w", cmd.Date, err)
	}

	report := CleanupReport{Action: cmd.Action, Date: cmd.Date, Processed: len(roomIDs)}
	for _, roomID := range roomIDs {
		if err := s.cleanupRoom(ctx, roomID); err != nil {
			report.Failed++
			s.logger.Errorf("cleanup failed for room %s: %v", roomID, err)
			continue
		}
		report.Succeeded++
	}

	if err := s.store.DeleteDateIndex(ctx, cmd.Date); err != nil {
		return report, fmt.Errorf("failed to delete room index for %s: %w", cmd.Date, err)
	}

	s.logger.Infof("cleanup for %s: %d/%d rooms deleted", cmd.Date, report.Succeeded, report.Processed)
	return report, nil
}

func (s *CleanupService) cleanupRoom(ctx context.Context, roomID string) error {
	msg := domain.NewSystemMessage(roomID, shutdownNotice)
	if err := s.registry.Broadcast(ctx, roomID, msg, ""); err != nil {
		s.logger.Warnf("failed to send shutdown notice to room %s: %v", roomID, err)
	}

	// Sockets for this room may live on any instance; the close must travel
	// the broadcast path, never just the local map.
	if err := s.registry.CloseRoom(ctx, roomID, shutdownNotice); err != nil {
		s.logger.Warnf("failed to relay close for room %s: %v", roomID, err)
	}

	if roomType, err := domain.RoomTypeOf(roomID); err == nil && roomType == domain.RoomTypeMatch {
		if err := s.topics.DeleteRoomTopic(ctx, roomID); err != nil {
			// Best effort: the store cleanup below still runs.
			s.logger.Errorf("failed to delete topic of room %s: %v", roomID, err)
		}
	}

	return s.rooms.ForceDelete(ctx, roomID)
}
