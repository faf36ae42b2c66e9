package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-collab/internal/chat"
	"go-collab/internal/collab"
	"go-collab/internal/config"
	"go-collab/internal/db"
	"go-collab/internal/document"
	myMiddleware "go-collab/internal/middleware"
	"go-collab/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Config & Logger
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer func() {
		log.Info("Closing PostgreSQL...")
		_ = database.Close()
	}()
	log.Info("Connected to PostgreSQL")

	if err := database.AutoMigrate(ctx); err != nil {
		return err
	}
	log.Info("Database schema initialized")

	// 3. Features
	userService := user.NewService(user.NewRepository(database.Conn), cfg.JWTSecret, cfg.TokenTTL)
	userHandler := user.NewHandler(userService, log)

	documentService := document.NewService(document.NewRepository(database.Conn))
	documentHandler := document.NewHandler(documentService, log)

	chatRepo := chat.NewRepository(database.Conn)
	chatHandler := chat.NewHandler(chatRepo, cfg.ChatHistoryLimit, log)

	// 4. Realtime hub, fanned out through Redis when several instances run
	opts := collab.Options{
		Messages:     chatRepo,
		Authorizer:   documentService,
		StoreTimeout: cfg.StoreTimeout,
	}
	var bus *collab.RedisBus
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisClient.Close()
		log.Info("Connected to Redis", "addr", cfg.RedisAddr)

		bus = collab.NewRedisBus(redisClient, log)
		opts.Bus = bus
		presence := collab.NewRedisPresenceStore(redisClient, cfg.PresenceTTL, log)
		if err := presence.Heartbeat(ctx); err != nil {
			return fmt.Errorf("failed to register instance: %w", err)
		}
		go presence.KeepAlive(ctx)
		opts.Presence = presence
	}

	hub := collab.NewHub(log, opts)
	go hub.Run(ctx)
	if bus != nil {
		go func() {
			if err := bus.Subscribe(ctx, hub.Remote()); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Redis subscription ended", "error", err)
				stop()
			}
		}()
	}

	wsHandler := collab.NewHandler(hub, cfg.Origins(), collab.ClientConfig{
		MaxMessageSize: cfg.MaxMessageSize,
		SendBufferSize: cfg.SendBufferSize,
	}, log)
	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 5. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(myMiddleware.CORS(cfg.Origins()))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	// Public Routes
	r.Post("/api/auth/register", userHandler.Register)
	r.Post("/api/auth/login", userHandler.Login)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/api/users", userHandler.SearchUsers)
		r.Route("/api/documents", documentHandler.Routes)
		r.Get("/api/chat/room/{roomId}", chatHandler.GetRoomMessages)
		r.Post("/api/chat/room", chatHandler.CreateRoom)

		// WebSocket (Real-time)
		r.Get("/ws", wsHandler.ServeWs)
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			stop()
			<-hub.Done()
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", "error", err)
	}

	// The hub drops every connection, cleaning presence in the shared store.
	stop()
	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
		log.Warn("Hub did not stop in time")
	}
	log.Info("Server stopped")
	return nil
}
