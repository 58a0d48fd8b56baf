package service

import (
	"context"
	"time"

	"github.com/jiminh03/BBATTY-sub001/internal/port"
	"github.com/jiminh03/BBATTY-sub001/internal/websocket"
	"github.com/jiminh03/BBATTY-sub001/pkg/logger"
)

// Drift thresholds that promote a periodic check into a forced sync.
const (
	forceSyncDiscrepancy = 10
	forceSyncDrift       = 5

	// healthySyncRatio is a monitoring bound, not an error condition.
	healthySyncRatio = 0.8

	// staleActivityDivisor derives the remote-orphan bound from the session
	// TTL: a remote-owned record silent for TTL/3 counts as orphaned. The
	// owning instance re-registers it on its next sweep if the socket is
	// actually alive.
	staleActivityDivisor = 3
)

// RoomSyncStatus is one room's reconciliation measurement. Zombies are live
// local sockets with no store record. Orphans are records without a live
// socket: owned by this instance with no matching socket, or owned by another
// instance with no heartbeat for the stale bound. A session-set entry whose
// record already self-expired is counted separately as a stale entry; the
// TTL verdict has been served for it, so it is leftover noise to scrub, not
// an orphan to report.
type RoomSyncStatus struct {
	RoomID            string
	StoreUserCount    int
	LocalSessionCount int
	ZombieCount       int
	OrphanCount       int
	StaleEntryCount   int
}

func (s RoomSyncStatus) Synced() bool {
	return s.ZombieCount == 0 && s.OrphanCount == 0
}

// Discrepancy measures how far the store's membership view sits from the
// live evidence.
func (s RoomSyncStatus) Discrepancy() int {
	d := s.StoreUserCount - s.LocalSessionCount
	if d < 0 {
		d = -d
	}
	return d
}

// NeedsForceSync reports whether drift is bad enough to repair immediately
// instead of waiting for the next sweep.
func (s RoomSyncStatus) NeedsForceSync() bool {
	return s.Discrepancy() >= forceSyncDiscrepancy || s.ZombieCount+s.OrphanCount >= forceSyncDrift
}

// SyncReport aggregates one sweep.
type SyncReport struct {
	TotalRooms  int
	SyncedRooms int
	ForcedSyncs int
}

func (r SyncReport) Ratio() float64 {
	if r.TotalRooms == 0 {
		return 1
	}
	return float64(r.SyncedRooms) / float64(r.TotalRooms)
}

// SyncService periodically diffs store-declared membership against actually
// live sockets and repairs drift. The store is ground truth for membership;
// the local socket map is ground truth only for sockets this instance owns.
type SyncService struct {
	registry   *websocket.Registry
	rooms      port.RoomStore
	sessions   port.SessionStore
	staleAfter time.Duration
	logger     logger.Logger
}

func NewSyncService(registry *websocket.Registry, rooms port.RoomStore, sessions port.SessionStore, sessionTTL time.Duration, logg logger.Logger) *SyncService {
	return &SyncService{
		registry:   registry,
		rooms:      rooms,
		sessions:   sessions,
		staleAfter: sessionTTL / staleActivityDivisor,
		logger:     logg,
	}
}

// CheckRoom measures one room without repairing anything.
func (s *SyncService) CheckRoom(ctx context.Context, roomID string) (RoomSyncStatus, error) {
	status := RoomSyncStatus{RoomID: roomID}

	memberCount, err := s.sessions.RoomMemberCount(ctx, roomID)
	if err != nil {
		return status, err
	}
	status.StoreUserCount = memberCount

	local := s.registry.LocalSessions(roomID)
	status.LocalSessionCount = len(local)

	storeIDs, err := s.sessions.RoomSessionIDs(ctx, roomID)
	if err != nil {
		return status, err
	}
	inStore := make(map[string]bool, len(storeIDs))

	now := time.Now()
	for _, id := range storeIDs {
		rec, ok, err := s.sessions.GetSession(ctx, id)
		if err != nil {
			return status, err
		}
		if !ok {
			status.StaleEntryCount++
			continue
		}
		inStore[id] = true
		if s.orphaned(rec.InstanceID, id, rec.LastActivityAt, local, now) {
			status.OrphanCount++
		}
	}

	for _, sess := range local {
		if !inStore[sess.ID] {
			status.ZombieCount++
		}
	}

	return status, nil
}

func (s *SyncService) orphaned(instanceID, sessionID string, lastActivity time.Time, local []*websocket.Session, now time.Time) bool {
	if instanceID == s.registry.InstanceID() {
		return !hasSession(local, sessionID)
	}
	return now.Sub(lastActivity) >= s.staleAfter
}

// ForceSync repairs a drifted room: stale set entries are scrubbed, orphaned
// records deleted, zombie sessions re-registered, then the room is
// re-measured to confirm convergence.
func (s *SyncService) ForceSync(ctx context.Context, roomID string) (RoomSyncStatus, error) {
	local := s.registry.LocalSessions(roomID)

	storeIDs, err := s.sessions.RoomSessionIDs(ctx, roomID)
	if err != nil {
		return RoomSyncStatus{}, err
	}

	now := time.Now()
	liveUsers := make(map[string]bool)
	for _, id := range storeIDs {
		rec, ok, err := s.sessions.GetSession(ctx, id)
		if err != nil {
			return RoomSyncStatus{}, err
		}
		if !ok {
			if err := s.sessions.RemoveRoomSession(ctx, roomID, id, ""); err != nil {
				s.logger.Warnf("failed to scrub stale entry %s: %v", id, err)
			}
			continue
		}
		if s.orphaned(rec.InstanceID, id, rec.LastActivityAt, local, now) {
			if err := s.sessions.RemoveRoomSession(ctx, roomID, id, rec.UserID); err != nil {
				s.logger.Warnf("failed to remove orphaned session %s: %v", id, err)
			}
			_ = s.sessions.DeleteSession(ctx, id)
			continue
		}
		liveUsers[rec.UserID] = true
	}

	// Re-register zombies so the rest of the cluster sees them again.
	for _, sess := range local {
		if _, ok, err := s.sessions.GetSession(ctx, sess.ID); err == nil && !ok {
			if err := s.registry.ReSaveSession(ctx, sess); err != nil {
				s.logger.Warnf("failed to re-register zombie session %s: %v", sess.ID, err)
			} else {
				liveUsers[sess.UserID] = true
			}
		}
	}

	// Membership entries with no surviving session are stale.
	members, err := s.sessions.RoomMembers(ctx, roomID)
	if err != nil {
		return RoomSyncStatus{}, err
	}
	for _, userID := range members {
		if !liveUsers[userID] {
			if err := s.sessions.RemoveMember(ctx, roomID, userID); err != nil {
				s.logger.Warnf("failed to remove stale member %s from room %s: %v", userID, roomID, err)
			}
		}
	}

	status, err := s.CheckRoom(ctx, roomID)
	if err != nil {
		return status, err
	}
	if status.Synced() {
		s.logger.Infof("room %s converged after forced sync", roomID)
	} else {
		s.logger.Warnf("room %s still drifted after forced sync: %d zombies, %d orphans",
			roomID, status.ZombieCount, status.OrphanCount)
	}
	return status, nil
}

// scrubStaleEntries removes session-set entries whose records self-expired.
// This is the light per-sweep cleanup; it never touches valid records.
func (s *SyncService) scrubStaleEntries(ctx context.Context, roomID string) (int, error) {
	ids, err := s.sessions.RoomSessionIDs(ctx, roomID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		_, ok, err := s.sessions.GetSession(ctx, id)
		if err != nil {
			return removed, err
		}
		if !ok {
			if err := s.sessions.RemoveRoomSession(ctx, roomID, id, ""); err != nil {
				s.logger.Warnf("failed to scrub stale entry %s from room %s: %v", id, roomID, err)
				continue
			}
			removed++
		}
	}
	return removed, nil
}

// SweepAll measures every room, scrubbing expired set entries on each pass
// and force-syncing the badly drifted rooms. Rooms whose store keys already
// expired but still hold local sockets are included through the registry.
func (s *SyncService) SweepAll(ctx context.Context) (SyncReport, error) {
	roomIDs, err := s.rooms.ListRoomIDs(ctx)
	if err != nil {
		return SyncReport{}, err
	}
	seen := make(map[string]bool, len(roomIDs))
	for _, id := range roomIDs {
		seen[id] = true
	}
	for _, id := range s.registry.LocalRoomIDs() {
		if !seen[id] {
			roomIDs = append(roomIDs, id)
		}
	}

	report := SyncReport{TotalRooms: len(roomIDs)}
	for _, roomID := range roomIDs {
		if n, err := s.scrubStaleEntries(ctx, roomID); err != nil {
			s.logger.Errorf("stale-entry scrub failed for room %s: %v", roomID, err)
		} else if n > 0 {
			s.logger.Debugf("scrubbed %d stale entries from room %s", n, roomID)
		}

		status, err := s.CheckRoom(ctx, roomID)
		if err != nil {
			s.logger.Errorf("sync check failed for room %s: %v", roomID, err)
			continue
		}

		if status.NeedsForceSync() {
			report.ForcedSyncs++
			if status, err = s.ForceSync(ctx, roomID); err != nil {
				s.logger.Errorf("forced sync failed for room %s: %v", roomID, err)
				continue
			}
		}

		if status.Synced() {
			report.SyncedRooms++
		}
		s.logger.Debugf("room %s: store=%d local=%d zombies=%d orphans=%d",
			roomID, status.StoreUserCount, status.LocalSessionCount, status.ZombieCount, status.OrphanCount)
	}

	if ratio := report.Ratio(); ratio < healthySyncRatio {
		s.logger.Warnf("sync ratio %.2f below %.2f (%d/%d rooms synced)",
			ratio, healthySyncRatio, report.SyncedRooms, report.TotalRooms)
	}
	return report, nil
}

// Run sweeps on a fixed delay until the context ends. A failed tick is
// logged and never blocks the next one.
func (s *SyncService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepAll(ctx); err != nil {
				s.logger.Errorf("sync sweep failed: %v", err)
			}
		}
	}
}

func hasSession(sessions []*websocket.Session, id string) bool {
	for _, s := range sessions {
		if s.ID == id {
			return true
		}
	}
	return false
}
