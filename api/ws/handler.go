package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"

	"github.com/jiminh03/BBATTY-sub001/internal/domain"
	"github.com/jiminh03/BBATTY-sub001/internal/port"
	"github.com/jiminh03/BBATTY-sub001/internal/websocket"
	"github.com/jiminh03/BBATTY-sub001/pkg/logger"
	"github.com/jiminh03/BBATTY-sub001/service"
)

var upgrader = gws.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for testing; restrict in production.
	},
}

// HandleWebSocket upgrades the connection, validates the single-use session
// token, and binds the socket to its room. Every handshake failure produces
// one ERROR frame before the socket closes with a policy-violation status.
func HandleWebSocket(
	rootCtx context.Context,
	chatService service.ChatService,
	verifier port.TokenVerifier,
	blacklist port.Blacklist,
	authTimeout time.Duration,
	logg logger.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logg.Errorf("upgrade failed: %v", err)
			return
		}

		token := r.URL.Query().Get("token")
		if token == "" {
			reject(conn, "MISSING_TOKEN", "session token is required", logg)
			return
		}

		// Bounded wait for the auth collaborator.
		authCtx, cancel := context.WithTimeout(rootCtx, authTimeout)
		identity, err := verifier.Verify(authCtx, token)
		cancel()
		if err != nil {
			logg.Warnf("token rejected from %s: %v", conn.RemoteAddr(), err)
			reject(conn, "INVALID_TOKEN", "session token rejected", logg)
			return
		}

		// Fail open: an unreachable blacklist admits the user. The check is
		// availability-biased because its risk is low.
		if banned, err := blacklist.IsBlacklisted(rootCtx, identity.UserID); err != nil {
			logg.Warnf("blacklist check failed for %s, admitting: %v", identity.UserID, err)
		} else if banned {
			reject(conn, "BLACKLISTED", "user is not allowed to join", logg)
			return
		}

		roomType, err := domain.RoomTypeOf(identity.RoomID)
		if err != nil {
			reject(conn, "INVALID_ROOM", "unknown room", logg)
			return
		}

		sess := websocket.NewSession(uuid.NewString(), identity.UserID, identity.Nickname, identity.RoomID, roomType, conn)

		if err := chatService.Join(rootCtx, sess); err != nil {
			logg.Warnf("join failed for user %s in room %s: %v", identity.UserID, identity.RoomID, err)
			if err := conn.WriteJSON(domain.ErrorFrame("JOIN_FAILED", "could not join room")); err != nil {
				logg.Debugf("failed to write error frame: %v", err)
			}
			sess.ClosePolicyViolation("JOIN_FAILED")
			return
		}

		if err := conn.WriteJSON(domain.ConnectionSuccessFrame(identity.RoomID, roomType, identity.UserID, identity.Nickname)); err != nil {
			chatService.Leave(rootCtx, sess)
			sess.CloseNormal("handshake write failed")
			return
		}

		logg.Infof("new connection from %s (user=%s room=%s)", conn.RemoteAddr(), identity.UserID, identity.RoomID)

		go sess.WritePump(logg)
		go sess.ReadPump(
			func(text string) { chatService.HandleInbound(rootCtx, sess, text) },
			func() {
				chatService.Leave(rootCtx, sess)
				sess.CloseNormal("connection closed")
			},
		)
	}
}

func reject(conn *gws.Conn, code, message string, logg logger.Logger) {
	if err := conn.WriteJSON(domain.ErrorFrame(code, message)); err != nil {
		logg.Debugf("failed to write error frame: %v", err)
	}
	msg := gws.FormatCloseMessage(gws.ClosePolicyViolation, code)
	_ = conn.WriteControl(gws.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}
