package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/redmonkez12/auth-service/internal/auth"
	"github.com/redmonkez12/auth-service/internal/config"
	"github.com/redmonkez12/auth-service/internal/database"
	httpServer "github.com/redmonkez12/auth-service/internal/http"
	"github.com/redmonkez12/auth-service/internal/logging"
	"github.com/redmonkez12/auth-service/internal/user"
)

// @title           Auth Service
// @version         1.0
// @description     Session credential service: password authentication, rotatable refresh tokens, and RS256 access tokens verifiable via JWKS.

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"refresh_store", cfg.Auth.RefreshStore,
	)

	// Initialize database connection
	db, err := initDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// Initialize repositories. Refresh token records live in Postgres by
	// default; Redis is available where TTL-based expiry is preferred.
	userRepo := user.NewRepository(db)

	var refreshRepo auth.RefreshTokenRepository
	if cfg.Auth.RefreshStore == "redis" {
		redisClient, err := initRedis(cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer redisClient.Close()
		refreshRepo = auth.NewRedisRepository(redisClient)
	} else {
		refreshRepo = auth.NewBunRepository(db)
	}

	// Initialize services
	tokenService := auth.NewTokenService(
		cfg.Auth.PrivateKeyPath,
		cfg.Auth.RefreshSecret,
		cfg.Auth.AccessTokenDuration,
		cfg.Auth.RefreshTokenDuration,
		refreshRepo,
	)
	hasher := auth.NewPasswordHasher(bcrypt.DefaultCost)
	authService := auth.NewService(userRepo, tokenService, hasher, logger)

	// Initialize HTTP handlers
	cookieWriter := auth.NewCookieWriter(
		cfg.Auth.CookieDomain,
		!cfg.Server.IsDevelopment(), // secure cookies outside dev
		cfg.Auth.AccessTokenDuration,
		cfg.Auth.RefreshTokenDuration,
	)
	authHandler := auth.NewHandler(authService, cookieWriter, logger)
	authMiddleware := auth.NewMiddleware(tokenService, refreshRepo)
	jwksHandler := auth.JWKSHandler(tokenService)

	// Initialize router
	router := httpServer.NewRouter(cfg, authHandler, authMiddleware, jwksHandler, logger)

	// Initialize HTTP server
	serverAddr := ":" + cfg.Server.Port
	server := httpServer.NewServer(
		serverAddr,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
	)

	// Sweep expired refresh token rows in the background. Revocation is
	// row existence, so expired-but-undeleted rows otherwise pile up.
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	go runCleanup(cleanupCtx, refreshRepo, cfg.Auth.CleanupInterval, logger)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Printf("Received signal: %v", sig)

		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// runCleanup periodically deletes expired refresh token records in bounded
// batches until ctx is cancelled.
func runCleanup(ctx context.Context, repo auth.RefreshTokenRepository, interval time.Duration, logger *logging.Logger) {
	const batchSize = 1000

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := repo.DeleteExpired(ctx, batchSize)
			if err != nil {
				logger.Warn("failed to cleanup expired refresh tokens", "error", err.Error())
				continue
			}
			if removed > 0 {
				logger.Info("removed expired refresh tokens", "count", removed)
			}
		}
	}
}

// initDB initializes the database connection and returns a Bun DB instance
func initDB(cfg config.DatabaseConfig) (*bun.DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	return database.NewBunDB(sqlDB), nil
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
