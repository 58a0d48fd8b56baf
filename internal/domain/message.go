package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	KindChat      MessageKind = "CHAT"
	KindSystem    MessageKind = "SYSTEM"
	KindUserJoin  MessageKind = "USER_JOIN"
	KindUserLeave MessageKind = "USER_LEAVE"
)

var (
	ErrEmptyContent   = fmt.Errorf("message content is empty")
	ErrContentTooLong = fmt.Errorf("message content exceeds limit")
	ErrMissingSender  = fmt.Errorf("chat message requires a sender")
)

// ChatMessage is the room-scoped message as it travels between instances.
// SenderSessionID never reaches clients; it lets whichever instance performs
// delivery skip the originating socket.
type ChatMessage struct {
	Kind            MessageKind `json:"kind"`
	MessageID       string      `json:"messageId,omitempty"`
	RoomID          string      `json:"roomId"`
	SenderID        string      `json:"senderId,omitempty"`
	SenderSessionID string      `json:"senderSessionId,omitempty"`
	Nickname        string      `json:"nickname,omitempty"`
	Content         string      `json:"content"`
	Timestamp       time.Time   `json:"timestamp"`
}

// Validate enforces the per-kind requirements. SYSTEM, USER_JOIN and
// USER_LEAVE carry no sender; CHAT needs a sender and non-blank content
// within maxLen runes.
func (m ChatMessage) Validate(maxLen int) error {
	if m.Kind != KindChat {
		return nil
	}
	if m.SenderID == "" {
		return ErrMissingSender
	}
	if strings.TrimSpace(m.Content) == "" {
		return ErrEmptyContent
	}
	if len([]rune(m.Content)) > maxLen {
		return ErrContentTooLong
	}
	return nil
}

func NewChatMessage(roomID, senderID, sessionID, nickname, content string) ChatMessage {
	return ChatMessage{
		Kind:            KindChat,
		MessageID:       uuid.NewString(),
		RoomID:          roomID,
		SenderID:        senderID,
		SenderSessionID: sessionID,
		Nickname:        nickname,
		Content:         content,
		Timestamp:       time.Now(),
	}
}

func NewSystemMessage(roomID, content string) ChatMessage {
	return ChatMessage{
		Kind:      KindSystem,
		MessageID: uuid.NewString(),
		RoomID:    roomID,
		Content:   content,
		Timestamp: time.Now(),
	}
}

func NewPresenceMessage(kind MessageKind, roomID, userID, nickname string) ChatMessage {
	return ChatMessage{
		Kind:      kind,
		MessageID: uuid.NewString(),
		RoomID:    roomID,
		SenderID:  userID,
		Nickname:  nickname,
		Timestamp: time.Now(),
	}
}
