package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jiminh03/BBATTY-sub001/api/ws"
	"github.com/jiminh03/BBATTY-sub001/config"
	"github.com/jiminh03/BBATTY-sub001/internal/domain"
	appnats "github.com/jiminh03/BBATTY-sub001/internal/nats"
	"github.com/jiminh03/BBATTY-sub001/internal/port"
	appredis "github.com/jiminh03/BBATTY-sub001/internal/redis"
	"github.com/jiminh03/BBATTY-sub001/internal/relay"
	"github.com/jiminh03/BBATTY-sub001/internal/websocket"
	"github.com/jiminh03/BBATTY-sub001/pkg/logger"
	"github.com/jiminh03/BBATTY-sub001/service"
)

// Collaborators are the out-of-scope services the chat core consumes through
// narrow interfaces. Leaving the verifier nil wires the insecure development
// verifier.
type Collaborators struct {
	TokenVerifier port.TokenVerifier
}

// App represents the main application structure holding all dependencies.
type App struct {
	cfg         config.Config
	logger      logger.Logger
	natsClient  *appnats.NATSClient
	redisClient *appredis.Client
	registry    *websocket.Registry
	relay       *relay.Relay
	chatService service.ChatService
	syncService *service.SyncService
	httpServer  *http.Server
	rootCtx     context.Context
	cancel      context.CancelFunc
}

// NewApp initializes and connects all application dependencies.
func NewApp(cfg config.Config, collab Collaborators) (*App, error) {
	baseLogger := logger.NewLogger(cfg.LogLevel, cfg.LogFile)
	rootCtx := logger.NewContext(context.Background(), baseLogger)
	rootCtx, rootCancel := context.WithCancel(rootCtx)

	log := logger.FromContext(rootCtx).WithModule("app")

	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	log.Infof("initializing instance %s", instanceID)

	natsClient, err := appnats.NewNATSClient(cfg.NATSURL)
	if err != nil {
		rootCancel()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	redisClient, err := appredis.NewClient(rootCtx, cfg.RedisURL)
	if err != nil {
		rootCancel()
		natsClient.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	loc := cfg.Location()
	roomExpiry := func() time.Time { return domain.NextMidnight(time.Now(), loc) }

	registry := websocket.NewRegistry(instanceID, redisClient, redisClient, cfg.SessionTTL(), roomExpiry, log.WithModule("registry"))
	roomService := service.NewRoomService(redisClient, redisClient, loc, log.WithModule("rooms"))
	chatService := service.NewChatService(registry, roomService, redisClient, natsClient, cfg.MessageLimit(), log.WithModule("chat"))
	syncService := service.NewSyncService(registry, redisClient, redisClient, cfg.SessionTTL(), log.WithModule("sync"))
	cleanupService := service.NewCleanupService(registry, roomService, redisClient, natsClient, log.WithModule("cleanup"))

	sub, err := redisClient.SubscribeRoomChannels(rootCtx)
	if err != nil {
		rootCancel()
		natsClient.Close()
		redisClient.Close()
		return nil, fmt.Errorf("failed to open relay subscription: %w", err)
	}
	broadcastRelay := relay.New(registry, sub, log.WithModule("relay"))

	if err := natsClient.ConsumeRoomMessages(appnats.MatchQueueGroup, chatService.HandleBrokerMessage); err != nil {
		rootCancel()
		natsClient.Close()
		redisClient.Close()
		return nil, err
	}
	if err := natsClient.ConsumeCleanupCommands(appnats.ControlQueueGroup, func(cmd domain.CleanupCommand) {
		if _, err := cleanupService.HandleCommand(rootCtx, cmd); err != nil {
			log.Errorf("cleanup command rejected: %v", err)
		}
	}); err != nil {
		rootCancel()
		natsClient.Close()
		redisClient.Close()
		return nil, err
	}

	verifier := collab.TokenVerifier
	if verifier == nil {
		log.Warnf("no token verifier wired, using insecure development verifier")
		verifier = insecureVerifier{}
	}

	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: ws.SetupWebSocketRoutes(ws.WSConfig{
			ChatService: chatService,
			Verifier:    verifier,
			Blacklist:   redisClient,
			AuthTimeout: cfg.AuthTimeout(),
			RootCtx:     rootCtx,
		}),
	}

	app := &App{
		cfg:         cfg,
		logger:      log,
		natsClient:  natsClient,
		redisClient: redisClient,
		registry:    registry,
		relay:       broadcastRelay,
		chatService: chatService,
		syncService: syncService,
		httpServer:  httpServer,
		rootCtx:     rootCtx,
		cancel:      rootCancel,
	}

	log.Infof("application initialized successfully")
	return app, nil
}

// Start runs the application and handles graceful shutdown on signal.
func (a *App) Start() error {
	log := a.logger.WithFields(map[string]interface{}{
		"port": a.cfg.Port,
	})
	log.Infof("starting application server")

	go a.relay.Run(a.rootCtx)
	go a.syncService.Run(a.rootCtx, a.cfg.SyncInterval())

	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Warnf("received shutdown signal %s", sig.String())

	return a.Stop()
}

// Stop gracefully shuts down the server and closes all connections.
func (a *App) Stop() error {
	a.logger.Infof("initiating graceful shutdown")

	a.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Errorf("HTTP server shutdown error: %v", err)
	}

	a.registry.CloseAll("server shutting down")

	a.logger.Infof("closing NATS connection")
	a.natsClient.Close()

	a.logger.Infof("closing Redis connection")
	if err := a.redisClient.Close(); err != nil {
		a.logger.Errorf("Redis close error: %v", err)
	}

	a.logger.Infof("shutdown completed successfully")
	return nil
}
