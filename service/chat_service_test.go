package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiminh03/BBATTY-sub001/internal/domain"
	"github.com/jiminh03/BBATTY-sub001/internal/websocket"
)

type chatFixture struct {
	backend  *fakeBackend
	pub      *fakePublisher
	broker   *fakeBroker
	registry *websocket.Registry
	rooms    RoomService
	chat     ChatService
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	backend := newFakeBackend()
	pub := &fakePublisher{}
	broker := &fakeBroker{}
	registry := testRegistry(backend, pub)
	rooms := NewRoomService(backend, backend, seoul(), testLogger())
	return &chatFixture{
		backend:  backend,
		pub:      pub,
		broker:   broker,
		registry: registry,
		rooms:    rooms,
		chat:     NewChatService(registry, rooms, backend, broker, 500, testLogger()),
	}
}

func newWatchSession(sessionID, userID string) *websocket.Session {
	return websocket.NewSession(sessionID, userID, "nick-"+userID, "watch_101_7", domain.RoomTypeWatch, &nopSocket{})
}

func newMatchSession(sessionID, userID string) *websocket.Session {
	return websocket.NewSession(sessionID, userID, "nick-"+userID, "match_2001", domain.RoomTypeMatch, &nopSocket{})
}

func TestJoinCreatesRoomOnFirstConnection(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	require.NoError(t, f.chat.Join(ctx, newWatchSession("s1", "u1")))

	room, ok, err := f.rooms.Get(ctx, "watch_101_7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.RoomTypeWatch, room.Type)
	assert.Equal(t, domain.RoomStatusActive, room.Status)
	assert.Equal(t, 1, f.registry.LocalCount("watch_101_7"))

	// The join ends up on the date index for the nightly teardown.
	ids, err := f.backend.RoomsForDate(ctx, f.rooms.Today())
	require.NoError(t, err)
	assert.Contains(t, ids, "watch_101_7")
}

func TestJoinRejectedForClosedRoom(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	_, err := f.rooms.Create(ctx, "watch_101_7", nil)
	require.NoError(t, err)
	require.NoError(t, f.rooms.Close(ctx, "watch_101_7"))

	err = f.chat.Join(ctx, newWatchSession("s1", "u1"))
	require.Error(t, err)
	assert.Zero(t, f.registry.LocalCount("watch_101_7"))
}

func TestJoinAnnouncesPresence(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	require.NoError(t, f.chat.Join(ctx, newWatchSession("s1", "u1")))

	envs := f.pub.published()
	require.Len(t, envs, 1)
	assert.Equal(t, domain.KindUserJoin, envs[0].Message.Kind)
	assert.Equal(t, "s1", envs[0].Message.SenderSessionID)
}

func TestJoinMatchRoomAnnouncesThroughBroker(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	require.NoError(t, f.chat.Join(ctx, newMatchSession("s1", "u1")))

	msgs := f.broker.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.KindUserJoin, msgs[0].Kind)
	assert.Empty(t, f.pub.published())
}

func TestLeaveDeactivatesEmptyRoom(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	sess := newWatchSession("s1", "u1")
	require.NoError(t, f.chat.Join(ctx, sess))
	f.chat.Leave(ctx, sess)

	room, ok, err := f.rooms.Get(ctx, "watch_101_7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.RoomStatusInactive, room.Status)
	assert.Zero(t, f.registry.LocalCount("watch_101_7"))
}

func TestRejoinReactivatesInactiveRoom(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	sess := newWatchSession("s1", "u1")
	require.NoError(t, f.chat.Join(ctx, sess))
	f.chat.Leave(ctx, sess)

	require.NoError(t, f.chat.Join(ctx, newWatchSession("s2", "u1")))

	room, _, err := f.rooms.Get(ctx, "watch_101_7")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomStatusActive, room.Status)
}

func TestInboundWatchMessageBroadcastsDirectly(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	sess := newWatchSession("s1", "u1")
	require.NoError(t, f.chat.Join(ctx, sess))
	f.chat.HandleInbound(ctx, sess, "go team")

	var chats []domain.BroadcastEnvelope
	for _, env := range f.pub.published() {
		if env.Message.Kind == domain.KindChat {
			chats = append(chats, env)
		}
	}
	require.Len(t, chats, 1)
	assert.Equal(t, "go team", chats[0].Message.Content)
	assert.Empty(t, f.broker.messages())
}

func TestInboundMatchMessageGoesThroughBroker(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	sess := newMatchSession("s1", "u1")
	require.NoError(t, f.chat.Join(ctx, sess))
	f.chat.HandleInbound(ctx, sess, "anyone going saturday?")

	var chats []domain.ChatMessage
	for _, msg := range f.broker.messages() {
		if msg.Kind == domain.KindChat {
			chats = append(chats, msg)
		}
	}
	require.Len(t, chats, 1)
	assert.Equal(t, "s1", chats[0].SenderSessionID)

	// Watch-path broadcast must not double-deliver broker traffic.
	for _, env := range f.pub.published() {
		assert.NotEqual(t, domain.KindChat, env.Message.Kind)
	}
}

func TestInboundRejectsInvalidContentSilently(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	sess := newWatchSession("s1", "u1")
	require.NoError(t, f.chat.Join(ctx, sess))
	before := len(f.pub.published())

	f.chat.HandleInbound(ctx, sess, "   ")
	f.chat.HandleInbound(ctx, sess, strings.Repeat("가", 501))

	assert.Len(t, f.pub.published(), before)
}

func TestInboundCountsMessagesOnTheRoom(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	sess := newWatchSession("s1", "u1")
	require.NoError(t, f.chat.Join(ctx, sess))
	f.chat.HandleInbound(ctx, sess, "one")
	f.chat.HandleInbound(ctx, sess, "two")

	room, _, err := f.rooms.Get(ctx, "watch_101_7")
	require.NoError(t, err)
	assert.Equal(t, int64(2), room.MessageCount)
}

func TestHandleBrokerMessageFansOutLocally(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	require.NoError(t, f.chat.Join(ctx, newMatchSession("s1", "u1")))
	msg := domain.NewChatMessage("match_2001", "u2", "remote-s", "nick-u2", "hello")
	f.chat.HandleBrokerMessage("match_2001", msg)

	var sawChat bool
	for _, env := range f.pub.published() {
		if env.Kind == domain.EnvelopeMessage && env.Message.Kind == domain.KindChat {
			sawChat = true
		}
	}
	assert.True(t, sawChat)
}
