package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/synesthesie/artmarket/internal/config"
	"github.com/synesthesie/artmarket/internal/handlers"
	"github.com/synesthesie/artmarket/internal/middleware"
	"github.com/synesthesie/artmarket/internal/models"
	"github.com/synesthesie/artmarket/internal/repository"
	"github.com/synesthesie/artmarket/internal/services"
	"gorm.io/gorm"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, using environment variables")
	}

	cfg := config.New()
	setupLogger(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	db, err := models.InitDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer func() {
		if err := models.CloseDB(db); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}()

	if err := models.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisClient := models.InitRedis(cfg)
	defer redisClient.Close()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg))
	router.Use(middleware.RateLimiter(redisClient, cfg))

	images := newImageStore(cfg, router)
	artworkService := services.NewArtworkService(repository.NewArtworkRepository(db), images, cfg)
	artworkHandler := handlers.NewArtworkHandler(artworkService, cfg)
	healthHandler := handlers.NewHealthHandler(healthChecks(db, redisClient))

	// Health check outside API group (no /api/v1 prefix)
	router.GET("/health", healthHandler.Health)

	api := router.Group("/api/v1")
	{
		api.GET("/health", healthHandler.Health)

		// Preflight requests are answered by the CORS middleware; this only
		// keeps them from falling through to a 404.
		api.OPTIONS("/*path", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		handlers.RegisterArtworkRoutes(api, artworkHandler, handlers.RouteMiddleware{
			Auth:         middleware.Auth(cfg),
			OptionalAuth: middleware.OptionalAuth(cfg),
			UploadLimit:  middleware.UploadRateLimit(redisClient, cfg),
		})
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  120 * time.Second, // multipart uploads of several images
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("api_url", cfg.APIUrl).Str("image_store", cfg.ImageStore).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}
	log.Info().Msg("server exited")
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// newImageStore picks the configured backend. The local store also serves its
// files under /uploads.
func newImageStore(cfg *config.Config, router *gin.Engine) services.ImageStore {
	switch cfg.ImageStore {
	case config.ImageStoreS3:
		store, err := services.NewS3ImageStore(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init s3 image store")
		}
		return store
	default:
		store, err := services.NewLocalImageStore(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init local image store")
		}
		router.Static("/uploads", store.Root())
		return store
	}
}

func healthChecks(db *gorm.DB, rdb *redis.Client) map[string]handlers.HealthCheck {
	return map[string]handlers.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	}
}
