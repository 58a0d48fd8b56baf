package domain

import "fmt"

var ErrRoomFull = fmt.Errorf("room is full")

// RoomPolicy captures the per-room-type behavior variation (join rules,
// message shape, fan-out substrate) so a single connection-handling core can
// serve both types.
type RoomPolicy interface {
	Type() RoomType

	// CanJoin validates a join against room status and capacity.
	CanJoin(room *Room, memberCount int) error

	// SingleSessionPerUser reports whether the registry must force-close an
	// existing socket before accepting a new one for the same (room, user).
	SingleSessionPerUser() bool

	// UsesBroker reports whether room traffic flows through the message
	// broker's topic-per-room path instead of the pub/sub relay alone.
	UsesBroker() bool

	ValidateMessage(msg ChatMessage, maxLen int) error

	// OnJoin and OnLeave produce the presence messages announced to the room.
	OnJoin(roomID, userID, nickname string) ChatMessage
	OnLeave(roomID, userID, nickname string) ChatMessage

	// OnMessage shapes the client-facing frame for a delivered message.
	OnMessage(msg ChatMessage) Frame
}

// PolicyFor selects the policy from the room id prefix. Unknown prefixes get
// the watch policy, the stricter of the two.
func PolicyFor(roomID string) RoomPolicy {
	if t, err := RoomTypeOf(roomID); err == nil && t == RoomTypeMatch {
		return matchPolicy{}
	}
	return watchPolicy{}
}

const maxRoomCapacity = 1000

type watchPolicy struct{}

func (watchPolicy) Type() RoomType             { return RoomTypeWatch }
func (watchPolicy) SingleSessionPerUser() bool { return true }
func (watchPolicy) UsesBroker() bool           { return false }

func (watchPolicy) CanJoin(room *Room, memberCount int) error {
	if room.Status == RoomStatusClosed {
		return ErrRoomClosed
	}
	if memberCount >= maxRoomCapacity {
		return ErrRoomFull
	}
	return nil
}

func (watchPolicy) ValidateMessage(msg ChatMessage, maxLen int) error {
	return msg.Validate(maxLen)
}

func (watchPolicy) OnJoin(roomID, userID, nickname string) ChatMessage {
	return NewPresenceMessage(KindUserJoin, roomID, userID, nickname)
}

func (watchPolicy) OnLeave(roomID, userID, nickname string) ChatMessage {
	return NewPresenceMessage(KindUserLeave, roomID, userID, nickname)
}

// Watch room frames omit userId and nickname: team watch rooms are anonymous.
func (watchPolicy) OnMessage(msg ChatMessage) Frame {
	return Frame{
		Type:      FrameMessage,
		RoomID:    msg.RoomID,
		Content:   msg.Content,
		MessageID: msg.MessageID,
		Timestamp: msg.Timestamp,
	}
}

type matchPolicy struct{}

func (matchPolicy) Type() RoomType             { return RoomTypeMatch }
func (matchPolicy) SingleSessionPerUser() bool { return false }
func (matchPolicy) UsesBroker() bool           { return true }

func (matchPolicy) CanJoin(room *Room, memberCount int) error {
	if room.Status == RoomStatusClosed {
		return ErrRoomClosed
	}
	if memberCount >= maxRoomCapacity {
		return ErrRoomFull
	}
	return nil
}

func (matchPolicy) ValidateMessage(msg ChatMessage, maxLen int) error {
	return msg.Validate(maxLen)
}

func (matchPolicy) OnJoin(roomID, userID, nickname string) ChatMessage {
	return NewPresenceMessage(KindUserJoin, roomID, userID, nickname)
}

func (matchPolicy) OnLeave(roomID, userID, nickname string) ChatMessage {
	return NewPresenceMessage(KindUserLeave, roomID, userID, nickname)
}

func (matchPolicy) OnMessage(msg ChatMessage) Frame {
	return Frame{
		Type:      FrameChatMessage,
		RoomID:    msg.RoomID,
		UserID:    msg.SenderID,
		Nickname:  msg.Nickname,
		Content:   msg.Content,
		MessageID: msg.MessageID,
		Timestamp: msg.Timestamp,
	}
}

// FrameFor shapes the client-facing frame for any delivered message. CHAT
// goes through the room policy; system and presence kinds keep their kind as
// the frame type, with sender fields only in match rooms.
func FrameFor(msg ChatMessage) Frame {
	policy := PolicyFor(msg.RoomID)
	if msg.Kind == KindChat {
		return policy.OnMessage(msg)
	}

	f := Frame{
		Type:      string(msg.Kind),
		RoomID:    msg.RoomID,
		Content:   msg.Content,
		MessageID: msg.MessageID,
		Timestamp: msg.Timestamp,
	}
	if policy.Type() == RoomTypeMatch {
		f.UserID = msg.SenderID
		f.Nickname = msg.Nickname
	}
	return f
}
