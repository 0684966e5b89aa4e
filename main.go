package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"lobby/internal/cache"
	"lobby/internal/config"
	"lobby/internal/db"
	lobbyhttp "lobby/internal/http"
	"lobby/internal/hub"
	"lobby/internal/kafka"
	"lobby/internal/netinfo"
	"lobby/internal/service"
)

func main() {
	envFile := flag.String("env-file", ".env", "path to an optional .env file")
	flag.Parse()

	logger := log.New(os.Stdout, "LOBBY: ", log.Ldate|log.Ltime|log.Lshortfile)

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = cache.DefaultDir()
	}
	store, err := cache.NewStore(cacheDir, logger)
	if err != nil {
		logger.Fatalf("Failed to open cache: %v", err)
	}

	records, err := openRecordStore(ctx, cfg, store.Dir(), logger)
	if err != nil {
		logger.Fatalf("Failed to open record store: %v", err)
	}
	defer records.Close()

	events := hub.New(hub.Options{
		Buffer:      cfg.SubscriberBuffer,
		SendTimeout: cfg.PublishTimeout,
		Logger:      logger,
	})
	defer events.Close()

	svc := service.NewOrderService(records, store, events, service.NewValidator(), logger)

	network := netinfo.Collect(cfg.HTTPPort)
	server := lobbyhttp.NewServer(svc, events, lobbyhttp.Options{
		Port:          cfg.HTTPPort,
		StaticDir:     cfg.StaticDir,
		AllowedOrigin: cfg.CORSAllowedOrigin,
		Heartbeat:     cfg.SSEHeartbeat,
		IdleTimeout:   cfg.SSEIdleTimeout,
		WriteTimeout:  cfg.SSEWriteTimeout,
		Network:       network,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.KafkaEnabled() {
		mirror := kafka.NewMirror(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		g.Go(func() error {
			return mirror.Run(gctx, events)
		})
		defer func() {
			if err := mirror.Close(); err != nil {
				logger.Printf("Failed to close event mirror: %v", err)
			}
		}()
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Shutdown waits for open streams; they end when the hub drops them.
		events.Close()
		return server.Shutdown(shutdownCtx)
	})

	netinfo.NewOnce(netinfo.LogPresenter{Logger: logger}).Show(network)
	logger.Println("Service started")

	if err := g.Wait(); err != nil {
		logger.Printf("Service stopped with error: %v", err)
		return
	}
	logger.Println("Service stopped")
}

func openRecordStore(ctx context.Context, cfg config.Config, cacheDir string, logger *log.Logger) (db.OrderStore, error) {
	switch cfg.RecordStore {
	case config.RecordStorePostgres:
		logger.Printf("Connecting to Postgres at %v:%v", cfg.Postgres.Host, cfg.Postgres.Port)
		pg, err := db.NewPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return db.NewOrderRepository(pg), nil
	default:
		path := cfg.SQLiteFile(cacheDir)
		logger.Printf("Using SQLite record store at %v", path)
		store, err := db.OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}
