package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stdhuman/stdhuman/internal/api"
	"github.com/stdhuman/stdhuman/internal/auth"
	"github.com/stdhuman/stdhuman/internal/common/config"
	"github.com/stdhuman/stdhuman/internal/common/logger"
	"github.com/stdhuman/stdhuman/internal/decision"
	"github.com/stdhuman/stdhuman/internal/events/bus"
	"github.com/stdhuman/stdhuman/internal/gateway/websocket"
	"github.com/stdhuman/stdhuman/internal/mcpserver"
	"github.com/stdhuman/stdhuman/internal/mission"
	"github.com/stdhuman/stdhuman/internal/telegram"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting StdHuman bridge...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Initialize event bus (in-memory by default, NATS if configured)
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		log.Info("Connecting to NATS...", zap.String("url", cfg.NATS.URL))
		natsEventBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		eventBus = natsEventBus
		defer natsEventBus.Close()
		log.Info("Connected to NATS event bus")
	} else {
		log.Info("Using in-memory event bus")
		eventBus = bus.NewMemoryEventBus(log)
	}

	// 5. Initialize mission store and manager
	var missionStore mission.Store
	if cfg.Mission.DBPath != "" {
		sqliteStore, err := mission.NewSQLiteStore(cfg.Mission.DBPath)
		if err != nil {
			log.Fatal("Failed to open mission database", zap.Error(err))
		}
		missionStore = sqliteStore
		log.Info("Mission history persisted", zap.String("db_path", cfg.Mission.DBPath))
	} else {
		missionStore = mission.NewMemoryStore()
	}
	defer missionStore.Close()
	missions := mission.NewManager(missionStore, eventBus, log)

	// 6. Initialize pairing identity
	pairing, err := auth.NewPairing(cfg.Telegram.DataDir)
	if err != nil {
		log.Fatal("Failed to initialize pairing identity", zap.Error(err))
	}
	users, err := auth.NewUserStore(cfg.Telegram.DataDir)
	if err != nil {
		log.Fatal("Failed to initialize user store", zap.Error(err))
	}
	startCode, err := pairing.StartCode()
	if err != nil {
		log.Fatal("Failed to derive start code", zap.Error(err))
	}
	log.Info("Pair the operator chat with /start <code>", zap.String("start_code", startCode))

	// 7. Initialize Telegram adapter and decision service
	tgClient := telegram.NewClient(cfg.Telegram, log)
	notifier := telegram.NewNotifier(tgClient, users, missions, log)
	decisions := decision.NewService(decision.NewSlot(), notifier, eventBus, cfg.Decision.TimeoutDuration(), log)
	inbound := telegram.NewInbound(tgClient, users, pairing, decisions, cfg.Telegram.OperatorUsername, log)

	if cfg.Telegram.BotToken != "" {
		poller := telegram.NewPoller(tgClient, inbound, cfg.Telegram.PollIntervalDuration(), log)
		go poller.Run(ctx)
	} else {
		log.Warn("No Telegram bot token configured; only the webhook can deliver replies")
	}

	// 8. Initialize WebSocket event gateway
	hub := websocket.NewHub(log)
	go hub.Run(ctx)
	gateway := websocket.NewGateway(hub, eventBus, log)
	if err := gateway.Start(); err != nil {
		log.Fatal("Failed to start event gateway", zap.Error(err))
	}

	// 9. Setup HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(api.Recovery(log))
	router.Use(api.RequestLogger(log))

	api.SetupRoutes(router, missions, decisions, notifier, inbound, log)
	router.GET("/ws", gateway.HandleWS)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// 10. Start HTTP server in goroutine
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 11. Start embedded MCP server
	var mcpSrv *mcpserver.Server
	if cfg.MCP.Enabled {
		mcpSrv = mcpserver.New(mcpserver.Config{Port: cfg.MCP.Port}, mcpserver.Dependencies{
			Missions:  missions,
			Decisions: decisions,
			Announcer: notifier,
		}, log)
		if err := mcpSrv.Start(ctx); err != nil {
			log.Fatal("Failed to start MCP server", zap.Error(err))
		}
	}

	// 12. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down StdHuman bridge...")

	// 13. Graceful shutdown
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	if mcpSrv != nil {
		if err := mcpSrv.Stop(shutdownCtx); err != nil {
			log.Error("MCP server shutdown error", zap.Error(err))
		}
	}
	gateway.Stop()

	log.Info("StdHuman bridge stopped")
}
