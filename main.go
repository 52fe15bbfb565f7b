package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"triprelay/internal/config"
	"triprelay/internal/database/db_client"
	"triprelay/internal/http/http_server"
	"triprelay/internal/redis/redis_client"
	"triprelay/internal/redis/snapshotmirror"
	"triprelay/internal/relay"
	"triprelay/internal/roomlog"
	"triprelay/internal/roomsweeper"
	"triprelay/internal/ws"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

func envFileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env-file",
		Value: ".env",
		Usage: "dotenv file loaded before reading the environment",
	}
}

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	// Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	cmd := &cli.Command{
		Name:   "triprelay",
		Usage:  "relay live driver and rider positions between room members",
		Flags:  []cli.Flag{envFileFlag()},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the websocket relay (default)",
				Flags:  []cli.Flag{envFileFlag()},
				Action: serve,
			},
		},
	}
	if err := cmd.Run(ctx, os.Args); err != nil {
		Log.Fatal("triprelay", zap.Error(err))
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	// 1. Load configuration
	cfg, err := config.LoadConfig(cmd.String("env-file"))
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	var observers relay.Observers

	// 2. Optional Redis snapshot mirror
	if cfg.RedisMirrorEnabled {
		redisClient, err := redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort), cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			Log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()

		mirror := snapshotmirror.New(redisClient, cfg.RedisMirrorTTL, 1024)
		go mirror.Run(ctx)
		observers = append(observers, mirror)
		Log.Debug("Redis snapshot mirror enabled")
	}

	// 3. Optional Postgres room log
	if cfg.RoomLogEnabled {
		pgDb, err := db_client.Open(ctx, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
		if err != nil {
			Log.Fatal("pg-open", zap.Error(err))
		}
		defer pgDb.Close()

		if err := roomlog.EnsureSchema(ctx, pgDb); err != nil {
			Log.Fatal("roomlog-schema", zap.Error(err))
		}
		recorder := roomlog.New(pgDb, 1024)
		go recorder.Run(ctx)
		observers = append(observers, recorder)
		Log.Debug("Room log enabled")
	}

	// 4. Relay core
	registry := relay.NewRegistry()
	directory := relay.NewDirectory()
	engine := relay.NewEngine(registry, directory, relay.EngineOptions{
		ValidateLocations: cfg.ValidateLocations,
		Observer:          observers,
	})
	lifecycle := relay.NewLifecycle(registry, directory, engine, observers)

	// 5. Background: empty room sweeper
	roomsweeper.Run(ctx, lifecycle, cfg.RoomSweepInterval)

	// 6. WS server
	wsSrv := ws.NewWsServer(lifecycle, ws.Options{
		QueueDepth:    cfg.SendQueueDepth,
		AllowedOrigin: cfg.WsAllowedOrigin,
	})

	// 7. HTTP + WS server
	httpServer := http_server.NewHttpServer(cfg.HttpServerPort, wsSrv, directory)
	go func() {
		<-ctx.Done()
		_ = httpServer.Dispose()
	}()
	if err := httpServer.Start(); err != nil {
		Log.Fatal("Failed to start HTTP server", zap.Error(err))
	}
	return nil
}
