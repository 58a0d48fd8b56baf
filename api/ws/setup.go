package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/jiminh03/BBATTY-sub001/internal/port"
	"github.com/jiminh03/BBATTY-sub001/pkg/logger"
	"github.com/jiminh03/BBATTY-sub001/service"
)

type WSConfig struct {
	ChatService service.ChatService
	Verifier    port.TokenVerifier
	Blacklist   port.Blacklist
	AuthTimeout time.Duration
	RootCtx     context.Context
}

func SetupWebSocketRoutes(cfg WSConfig) http.Handler {
	mux := http.NewServeMux()
	log := logger.FromContext(cfg.RootCtx).WithModule("websocket")
	mux.HandleFunc("/ws", HandleWebSocket(cfg.RootCtx, cfg.ChatService, cfg.Verifier, cfg.Blacklist, cfg.AuthTimeout, log))
	return mux
}
