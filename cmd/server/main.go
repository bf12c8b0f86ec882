package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"go-messenger/internal/chat"
	"go-messenger/internal/config"
	"go-messenger/internal/db"
	"go-messenger/internal/hub"
	"go-messenger/internal/middleware"
	"go-messenger/internal/transport"
	"go-messenger/internal/user"
)

// hubStore satisfies the hub's persistence contract by combining the
// message repository with the user directory.
type hubStore struct {
	*chat.Repository
	directory *user.Directory
}

func (s *hubStore) ListUsers(ctx context.Context) ([]hub.UserIdentity, error) {
	users, err := s.directory.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]hub.UserIdentity, len(users))
	for i, u := range users {
		out[i] = hub.UserIdentity{ID: u.ID, Username: u.Username}
	}
	return out, nil
}

func main() {
	cfg := config.Load()

	addr := flag.String("addr", cfg.Addr, "http service address")
	flag.Parse()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	if cfg.DBDSN == "" {
		logger.Fatal().Msg("DB_DSN is not set")
	}
	if cfg.JWTSecret == "" {
		logger.Fatal().Msg("JWT_SECRET is not set")
	}

	database, err := db.NewDatabase(cfg.DBDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	logger.Info().Msg("connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	logger.Info().Msg("database schema initialized")

	// Redis backs the directory cache only; without it every roster
	// broadcast hits Postgres.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		logger.Info().Msg("connected to Redis")
	} else {
		logger.Info().Msg("REDIS_ADDR not set, directory cache disabled")
	}

	// User feature: identity provider + directory.
	userRepo := user.NewRepository(database.Conn)
	directory := user.NewDirectory(userRepo, redisClient, cfg.DirectoryCacheTTL, logger)
	userService := user.NewService(userRepo, directory, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	// Realtime hub: registry + delivery pipeline + presence + call relay.
	chatRepo := chat.NewRepository(database.Conn)
	pool := transport.NewPool(logger)
	registry := hub.NewRegistry()
	realtime := hub.New(registry, &hubStore{Repository: chatRepo, directory: directory}, pool, logger)
	chatHandler := chat.NewHandler(realtime, pool, chatRepo, logger)

	authMiddleware := middleware.NewAuthMiddleware(userService)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// Protected routes (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		// WebSocket (real-time)
		r.Get("/ws", chatHandler.ServeWs)

		r.Get("/api/users", userHandler.ListUsers)
		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Get("/api/messages", chatHandler.GetHistory)
	})

	logger.Info().Str("addr", *addr).Msg("server starting")
	if err := http.ListenAndServe(*addr, r); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
