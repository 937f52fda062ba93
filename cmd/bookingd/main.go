package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studio-sync-backend/config"
	"studio-sync-backend/internal/api"
	"studio-sync-backend/internal/db"
	"studio-sync-backend/internal/mailbox"
	"studio-sync-backend/internal/notification"
	"studio-sync-backend/internal/remote"
	"studio-sync-backend/internal/session"
	"studio-sync-backend/internal/store"
	syncer "studio-sync-backend/internal/sync"

	"github.com/SherClockHolmes/webpush-go"
)

func main() {
	logger := log.New(os.Stdout, "bookingd ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatalf("VAPID keys must be configured. Please generate them and add them to your config file.")
	}
	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	client, err := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.HTTPTimeout)
	if err != nil {
		logger.Fatalf("failed to create portal client: %v", err)
	}

	inbox := mailbox.NewRelayInbox(cfg.Mailbox.URL, cfg.Mailbox.Token, cfg.Remote.HTTPTimeout)
	bridge := mailbox.NewCodeBridge(inbox, cfg.Mailbox.PollInterval, cfg.Mailbox.WaitTimeout)

	sessions := session.NewManager(&cfg.Remote, client, appStore, bridge, cfg.Sync.LoginSettle)

	workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions)
	workerPool.Start(ctx)

	reconciler := syncer.NewReconciler(cfg, appStore, sessions, workerPool)
	gate, err := syncer.NewGate(&cfg.Sync, appStore)
	if err != nil {
		logger.Fatalf("failed to build sync gate: %v", err)
	}
	scheduler := syncer.NewScheduler(cfg, gate, reconciler, sessions)

	go scheduler.Run(ctx)
	go sessions.RunKeepAlive(ctx, cfg.Sync.KeepAliveInterval)

	router := api.NewRouter(cfg, appStore, sessions, scheduler, &webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
