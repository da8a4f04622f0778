package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/wfunc/trailparty/broadcast"
	"github.com/wfunc/trailparty/config"
	"github.com/wfunc/trailparty/dice"
	"github.com/wfunc/trailparty/logger"
	"github.com/wfunc/trailparty/monitor"
	"github.com/wfunc/trailparty/narrative"
	"github.com/wfunc/trailparty/persistence"
	"github.com/wfunc/trailparty/room"
	"github.com/wfunc/trailparty/rpc"
	"github.com/wfunc/trailparty/server"
	"github.com/wfunc/trailparty/session"
	"github.com/wfunc/trailparty/timer"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	if cfg.Server.Mode == gin.DebugMode {
		logger.InitDevelopment()
	} else {
		logger.Init()
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Database
	var archive persistence.Archive = persistence.NopArchive{}
	if cfg.Database.Enabled {
		db, err := persistence.NewGormPostgreSQL(cfg.Database.Postgres)
		if err != nil {
			logger.Log.Fatalf("Failed to connect to database: %v", err)
		}
		logger.Log.Info("Database connection successful.")
		archive = db
	}
	defer archive.Close()

	if cfg.Generator.APIKey == "" {
		logger.Log.Warn("No generator API key configured, narrative generation will fail.")
	}
	roller := dice.NewDefault()
	bridge := narrative.NewBridge(
		narrative.NewOpenAIGenerator(cfg.Generator.APIKey, cfg.Generator.BaseURL, cfg.Generator.Model, cfg.Generator.Temperature),
		roller,
	)

	sessions := session.NewManager()
	timers := timer.NewTimerManager()
	defer timers.Stop()
	mon := monitor.NewMonitor(cfg.Metrics.Namespace)
	rooms := room.NewRoomManager()
	svc := room.NewService(rooms, broadcast.NewRoomBroadcaster(sessions), timers, bridge, roller,
		room.Options{
			MaxPlayers:        cfg.Room.MaxPlayers,
			DecisionDuration:  cfg.Room.DecisionDuration,
			GenerationTimeout: cfg.Room.GenerationTimeout,
		},
		room.WithArchive(archive),
		room.WithMetrics(mon),
	)

	// 初始化RPC服务器
	var rpcServer *rpc.Server
	if cfg.Server.RPCAddress != "" {
		rpcServer, err = rpc.NewServer(cfg.Server.RPCAddress)
		if err != nil {
			logger.Log.Fatalf("Failed to create RPC server: %v", err)
		}
		if err := rpcServer.Register("Admin", rpc.NewAdminService(rooms, sessions)); err != nil {
			logger.Log.Fatalf("Failed to register RPC service: %v", err)
		}
	}

	gameServer := server.NewGameServer(cfg.Server, cfg.RateLimit, server.Deps{
		Rooms:    svc,
		Sessions: sessions,
		Monitor:  mon,
		RPC:      rpcServer,
	})

	// Start Server
	logger.Log.Infof("Starting game server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Run(ctx); err != nil {
		logger.Log.Fatalf("Server stopped with error: %v", err)
	}
}
