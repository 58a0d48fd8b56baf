package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jiminh03/BBATTY-sub001/internal/domain"
	"github.com/jiminh03/BBATTY-sub001/pkg/logger"
)

const (
	// writeWait bounds a single socket write; a socket that cannot keep up
	// is dropped from the room rather than stalling a broadcast.
	writeWait = 10 * time.Second

	sendBuffer = 256
)

// Socket is the subset of *websocket.Conn the session layer needs. Tests
// substitute fakes.
type Socket interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session is a live socket plus the session metadata bound at handshake
// time. It exists only while the transport connection is open and is never
// shared across instances.
type Session struct {
	ID       string
	UserID   string
	Nickname string
	RoomID   string
	RoomType domain.RoomType

	ws        Socket
	send      chan domain.Frame
	done      chan struct{}
	closeOnce sync.Once
}

func NewSession(id, userID, nickname, roomID string, roomType domain.RoomType, ws Socket) *Session {
	return &Session{
		ID:       id,
		UserID:   userID,
		Nickname: nickname,
		RoomID:   roomID,
		RoomType: roomType,
		ws:       ws,
		send:     make(chan domain.Frame, sendBuffer),
		done:     make(chan struct{}),
	}
}

// Deliver queues a frame without blocking. A false return means the session
// is gone or its send buffer is full and it should be dropped.
func (s *Session) Deliver(frame domain.Frame) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// CloseNormal sends a normal-closure frame and closes the socket. Safe to
// call more than once.
func (s *Session) CloseNormal(reason string) {
	s.close(websocket.CloseNormalClosure, reason)
}

// ClosePolicyViolation rejects the connection after a handshake failure.
func (s *Session) ClosePolicyViolation(reason string) {
	s.close(websocket.ClosePolicyViolation, reason)
}

func (s *Session) close(code int, reason string) {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = s.ws.Close()
		close(s.done)
	})
}

// ReadPump consumes inbound frames until the socket dies. Every frame is raw
// chat text for the room bound at handshake; onText owns validation.
func (s *Session) ReadPump(onText func(string), onClose func()) {
	defer onClose()

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return
		}
		onText(string(data))
	}
}

// WritePump drains the send channel onto the socket under the write bound.
func (s *Session) WritePump(log logger.Logger) {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.send:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteJSON(frame); err != nil {
				log.Debugf("write failed for session %s: %v", s.ID, err)
				_ = s.ws.Close()
				return
			}
		}
	}
}
