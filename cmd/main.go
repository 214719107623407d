package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"liveflow/backend/internal/api/handler"
	"liveflow/backend/internal/catalog"
	"liveflow/backend/internal/chathub"
	"liveflow/backend/internal/complaint"
	"liveflow/backend/internal/config"
	"liveflow/backend/internal/localization"
	"liveflow/backend/internal/models"
	"liveflow/backend/internal/moderation"
	"liveflow/backend/internal/ratelimit"
	"liveflow/backend/internal/session"
	"liveflow/backend/internal/storage"
	"liveflow/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(ctx context.Context, cfg *config.Config) (*gorm.DB, *redis.Client) {
	// 1. PostgreSQL
	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}

	// 2. Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	// 3. Міграції (Створення таблиць)
	if err := db.AutoMigrate(&models.ChatRoom{}, &models.Complaint{}, &models.StreamInfo{}); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Database and Redis connections established, migrations complete.")
	return db, rdb
}

func newModerator(ctx context.Context, cfg *config.Config) *moderation.Moderator {
	m := &moderation.Moderator{Local: moderation.NewBlocklist(cfg.Blocklist)}
	if cfg.GeminiAPIKey == "" {
		log.Println("WARNING: GEMINI_API_KEY not set, only the local filter is active")
		return m
	}
	gen, err := moderation.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.ModerationModel)
	if err != nil {
		log.Fatalf("Failed to create moderation client: %v", err)
	}
	m.Remote = moderation.NewRemoteGate(gen, cfg.ModerationTimeout, moderation.ErrorPolicy(cfg.ModerationFailOpen))
	return m
}

func main() {
	log.Println("Starting LiveFlow Backend...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Ініціалізація залежностей
	db, rdb := setupDependencies(ctx, cfg)
	s := storage.NewStorageService(db, rdb)

	var sessions session.Store
	if cfg.SessionBackend == "memory" {
		sessions = session.NewMemoryStore(cfg.SessionTTL)
	} else {
		sessions = session.NewRedisStore(rdb, cfg.SessionTTL)
	}

	cat := catalog.NewService(s)
	if _, err := cat.SeedDefaults(ctx); err != nil {
		log.Printf("WARNING: catalog seed failed: %v", err)
	}

	// 2. Ініціалізація Chat Hub та провайдера пар
	var provider chathub.MatchProvider
	switch cfg.MatchProvider {
	case config.ProviderQueue:
		matcher := chathub.NewMatcherService(s, s)
		go matcher.Run(ctx)
		provider = matcher
	default:
		provider = chathub.NewSimulatedProvider(chathub.RealScheduler)
	}

	hub := chathub.NewManagerService(sessions, chathub.SessionDeps{
		Provider:   provider,
		Scheduler:  chathub.RealScheduler,
		Moderator:  newModerator(ctx, cfg),
		Limiter:    ratelimit.New(config.MessageRatePerSec, config.MessageRateBurst),
		Relay:      s,
		Bans:       s,
		Complaints: complaint.NewService(s),
	})
	hub.Rooms = s
	hub.Relays = s
	hub.CloseStaleRooms(ctx)

	// 3. Запуск основних Goroutines
	go hub.Run(ctx)

	if cfg.TelegramBotToken != "" {
		l, err := localization.Default()
		if err != nil {
			log.Fatalf("Failed to load translations: %v", err)
		}
		botService, err := telegram.NewBotService(cfg.TelegramBotToken, hub, sessions, l)
		if err != nil {
			log.Fatalf("Не вдалося запустити Telegram-бота: %v", err)
		}
		go botService.Run(ctx)
	} else {
		log.Println("INFO: TELEGRAM_BOT_TOKEN not set, Telegram bot disabled")
	}

	// 4. Налаштування Gin та роутингу
	r := gin.Default()
	h := handler.NewHandler(hub, sessions, cat, cfg.JWTSecret, cfg.SessionTTL)
	h.AllowedOrigins = cfg.CORSOrigins
	h.RegisterRoutes(r)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        c.Handler(r),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("ERROR: http shutdown: %v", err)
		}
	}()

	log.Printf("Listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
