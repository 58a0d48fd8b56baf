package domain

import "time"

// Frame type values on the client-facing WebSocket.
const (
	FrameConnectionSuccess = "CONNECTION_SUCCESS"
	FrameError             = "ERROR"
	FrameChatMessage       = "CHAT_MESSAGE" // match rooms
	FrameMessage           = "message"      // watch rooms (anonymous)
)

// Frame is a single outbound JSON frame.
type Frame struct {
	Type      string    `json:"type"`
	RoomID    string    `json:"roomId,omitempty"`
	RoomType  RoomType  `json:"roomType,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Nickname  string    `json:"nickname,omitempty"`
	Content   string    `json:"content,omitempty"`
	Message   string    `json:"message,omitempty"`
	ErrorCode string    `json:"errorCode,omitempty"`
	MessageID string    `json:"messageId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func ErrorFrame(code, message string) Frame {
	return Frame{
		Type:      FrameError,
		ErrorCode: code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func ConnectionSuccessFrame(roomID string, roomType RoomType, userID, nickname string) Frame {
	return Frame{
		Type:      FrameConnectionSuccess,
		RoomID:    roomID,
		RoomType:  roomType,
		UserID:    userID,
		Nickname:  nickname,
		Message:   "connected",
		Timestamp: time.Now(),
	}
}
