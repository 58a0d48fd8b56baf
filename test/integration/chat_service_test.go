package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiminh03/BBATTY-sub001/config"
	"github.com/jiminh03/BBATTY-sub001/internal/domain"
	"github.com/jiminh03/BBATTY-sub001/internal/nats"
	"github.com/jiminh03/BBATTY-sub001/internal/redis"
	"github.com/jiminh03/BBATTY-sub001/internal/relay"
	"github.com/jiminh03/BBATTY-sub001/internal/websocket"
	"github.com/jiminh03/BBATTY-sub001/pkg/logger"
	"github.com/jiminh03/BBATTY-sub001/service"
)

type backendFixture struct {
	cfg   config.Config
	redis *redis.Client
	nats  *nats.NATSClient
	log   logger.Logger
}

func setupBackend(t *testing.T) *backendFixture {
	cfg := config.MustReadConfig("../../config_test.json")
	log := logger.NewLogger(cfg.LogLevel, cfg.LogFile)
	ctx := context.Background()

	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	require.NoError(t, err, "Failed to connect to Redis")

	natsClient, err := nats.NewNATSClient(cfg.NATSURL)
	require.NoError(t, err, "Failed to connect to NATS")

	require.NoError(t, redisClient.FlushAll(ctx), "Failed to flush Redis before test")

	t.Cleanup(func() {
		redisClient.FlushAll(context.Background())
		redisClient.Close()
		natsClient.Close()
	})

	return &backendFixture{cfg: cfg, redis: redisClient, nats: natsClient, log: log}
}

// instance assembles the full per-process stack on top of the shared backend,
// the way the app wires it at boot.
type instance struct {
	registry *websocket.Registry
	rooms    service.RoomService
	chat     service.ChatService
}

func (f *backendFixture) newInstance(t *testing.T, ctx context.Context, instanceID string) *instance {
	rooms := service.NewRoomService(f.redis, f.redis, f.cfg.Location(), f.log)
	registry := websocket.NewRegistry(instanceID, f.redis, f.redis, f.cfg.SessionTTL(), rooms.RoomExpiry, f.log)
	chat := service.NewChatService(registry, rooms, f.redis, f.nats, f.cfg.MessageLimit(), f.log)

	sub, err := f.redis.SubscribeRoomChannels(ctx)
	require.NoError(t, err)
	go relay.New(registry, sub, f.log).Run(ctx)
	t.Cleanup(sub.Close)

	return &instance{registry: registry, rooms: rooms, chat: chat}
}

type memorySocket struct {
	frames chan domain.Frame
}

func newMemorySocket() *memorySocket {
	return &memorySocket{frames: make(chan domain.Frame, 32)}
}

func (s *memorySocket) ReadMessage() (int, []byte, error) { select {} }

func (s *memorySocket) WriteJSON(v interface{}) error {
	if frame, ok := v.(domain.Frame); ok {
		s.frames <- frame
	}
	return nil
}

func (s *memorySocket) WriteControl(int, []byte, time.Time) error { return nil }
func (s *memorySocket) SetWriteDeadline(time.Time) error          { return nil }
func (s *memorySocket) Close() error                              { return nil }

func (s *memorySocket) waitFor(t *testing.T, frameType string) domain.Frame {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case frame := <-s.frames:
			if frame.Type == frameType {
				return frame
			}
		case <-deadline:
			t.Fatalf("did not receive %s frame in time", frameType)
		}
	}
}

func join(t *testing.T, ctx context.Context, inst *instance, roomID, userID string) (*websocket.Session, *memorySocket) {
	t.Helper()
	roomType, err := domain.RoomTypeOf(roomID)
	require.NoError(t, err)
	sock := newMemorySocket()
	sess := websocket.NewSession(uuid.NewString(), userID, "nick-"+userID, roomID, roomType, sock)
	require.NoError(t, inst.chat.Join(ctx, sess))
	go sess.WritePump(logger.NewLogger("error", ""))
	return sess, sock
}

func TestJoinPersistsMembership(t *testing.T) {
	f := setupBackend(t)
	ctx := context.Background()
	inst := f.newInstance(t, ctx, "instance-a")

	sess, _ := join(t, ctx, inst, "watch_101_7", "user1")

	members, err := f.redis.RoomMembers(ctx, "watch_101_7")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user1"}, members)

	rec, ok, err := f.redis.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "instance-a", rec.InstanceID)

	inst.chat.Leave(ctx, sess)

	members, err = f.redis.RoomMembers(ctx, "watch_101_7")
	require.NoError(t, err)
	assert.Empty(t, members)

	room, ok, err := inst.rooms.Get(ctx, "watch_101_7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.RoomStatusInactive, room.Status)
}

func TestWatchChatCrossesInstances(t *testing.T) {
	f := setupBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	instA := f.newInstance(t, ctx, "instance-a")
	instB := f.newInstance(t, ctx, "instance-b")

	sender, _ := join(t, ctx, instA, "watch_101_7", "user1")
	_, remoteSock := join(t, ctx, instB, "watch_101_7", "user2")

	instA.chat.HandleInbound(ctx, sender, "hello from the other side")

	frame := remoteSock.waitFor(t, domain.FrameMessage)
	assert.Equal(t, "hello from the other side", frame.Content)
	// Watch rooms deliver anonymously.
	assert.Empty(t, frame.UserID)
	assert.Empty(t, frame.Nickname)
}

func TestMatchChatFansOutThroughBroker(t *testing.T) {
	f := setupBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inst := f.newInstance(t, ctx, "instance-a")
	require.NoError(t, f.nats.ConsumeRoomMessages(nats.MatchQueueGroup, inst.chat.HandleBrokerMessage))

	sender, senderSock := join(t, ctx, inst, "match_2001", "user1")
	_, peerSock := join(t, ctx, inst, "match_2001", "user2")
	// The peer's join announcement reaching the sender proves the consumer
	// loop is live before we publish chat.
	joinFrame := senderSock.waitFor(t, string(domain.KindUserJoin))
	assert.Equal(t, "user2", joinFrame.UserID)

	inst.chat.HandleInbound(ctx, sender, "anyone trading tickets?")

	frame := peerSock.waitFor(t, domain.FrameChatMessage)
	assert.Equal(t, "anyone trading tickets?", frame.Content)
	assert.Equal(t, "user1", frame.UserID)
	assert.Equal(t, "nick-user1", frame.Nickname)
}

func TestSessionRecordExpiresWithoutHeartbeat(t *testing.T) {
	f := setupBackend(t)
	ctx := context.Background()

	rec := domain.SessionRecord{
		SessionID:      uuid.NewString(),
		UserID:         "user1",
		RoomID:         "watch_101_7",
		InstanceID:     "instance-a",
		ConnectedAt:    time.Now(),
		LastActivityAt: time.Now(),
	}
	require.NoError(t, f.redis.SaveSession(ctx, rec, time.Second))

	_, ok, err := f.redis.GetSession(ctx, rec.SessionID)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.redis.TouchSession(ctx, rec.SessionID, time.Second))
	time.Sleep(1500 * time.Millisecond)

	_, ok, err = f.redis.GetSession(ctx, rec.SessionID)
	require.NoError(t, err)
	assert.False(t, ok, "record should expire once heartbeats stop")
}

func TestCleanupRemovesRoomTopicAndKeys(t *testing.T) {
	f := setupBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inst := f.newInstance(t, ctx, "instance-a")
	cleanup := service.NewCleanupService(inst.registry, inst.rooms, f.redis, f.nats, f.log)

	sess, _ := join(t, ctx, inst, "match_2001", "user1")
	// First publish creates the room's stream.
	inst.chat.HandleInbound(ctx, sess, "last one tonight")
	date := inst.rooms.Today()

	report, err := cleanup.HandleCommand(ctx, domain.CleanupCommand{
		Action: domain.CleanupRun,
		Date:   date,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	_, ok, err := inst.rooms.Get(ctx, "match_2001")
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := f.redis.RoomsForDate(ctx, date)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, ok, err = f.redis.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting an already-deleted topic stays a no-op.
	assert.NoError(t, f.nats.DeleteRoomTopic(ctx, "match_2001"))
}
