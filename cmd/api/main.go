package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/davisshaver/siwe-login/docs"
	"github.com/davisshaver/siwe-login/internal/auth"
	"github.com/davisshaver/siwe-login/internal/common/events"
	"github.com/davisshaver/siwe-login/internal/common/handler"
	"github.com/davisshaver/siwe-login/internal/common/middleware"
	"github.com/davisshaver/siwe-login/internal/config"
	"github.com/davisshaver/siwe-login/internal/session"
	"github.com/davisshaver/siwe-login/internal/user"
	"github.com/davisshaver/siwe-login/pkg/chain"
	"github.com/davisshaver/siwe-login/pkg/nonce"
	"github.com/davisshaver/siwe-login/pkg/siwe"
)

// @title SIWE Login API
// @version 1.0
// @description Sign-In with Ethereum authentication service

// @license.name GPL-2.0-or-later

// @host localhost:8080
// @BasePath /

func main() {
	// 1) Logger
	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 2) Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	logger.Info("starting server",
		zap.String("environment", cfg.Server.Environment),
		zap.String("addr", cfg.Server.Addr()),
	)

	// 3) MySQL
	db, err := initDB(cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// 4) Redis
	rdb := initRedis(cfg.Redis)
	defer rdb.Close()

	// 5) Fail fast if a dependency is down
	if err := testConnections(db, rdb); err != nil {
		logger.Fatal("failed to test connections", zap.Error(err))
	}

	// 6) Router
	router, err := setupRouter(cfg, logger, db, rdb)
	if err != nil {
		logger.Fatal("failed to set up router", zap.Error(err))
	}

	// 7) HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	logger.Info("server started",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("swagger", fmt.Sprintf("http://localhost:%d/swagger/index.html", cfg.Server.Port)),
	)

	// 8) Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

func initLogger() (*zap.Logger, error) {
	env := os.Getenv("ENVIRONMENT")
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func initDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func testConnections(db *sql.DB, rdb *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	return nil
}

// initPublisher wires the Redis-stream event publisher. Events are a
// side channel, so a broken publisher degrades to a no-op instead of
// keeping the service from starting.
func initPublisher(rdb *redis.Client, logger *zap.Logger) events.Publisher {
	pub, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: rdb},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		logger.Warn("event publisher unavailable, events disabled", zap.Error(err))
		return events.NopPublisher{}
	}
	return events.NewWatermillPublisher(pub, logger)
}

func setupRouter(cfg *config.Config, logger *zap.Logger, db *sql.DB, rdb *redis.Client) (*gin.Engine, error) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))

	// Swagger
	docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", cfg.Server.Port)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoints
	healthHandler := handler.NewHealthHandler(db, rdb)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// Chain RPC client, only when token gating or role mapping can use it
	var chainClient chain.Client
	if cfg.Chain.RPCURL != "" {
		client, err := chain.Dial(cfg.Chain.RPCURL, cfg.Chain.CallTimeout, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to dial chain RPC: %w", err)
		}
		chainClient = client
	} else if cfg.Auth.RequiredTokenContract != "" || cfg.Auth.ERC1155Contract != "" {
		return nil, fmt.Errorf("token gating configured but CHAIN_RPC_URL is empty")
	}

	// Login pipeline dependencies
	issuer := nonce.NewIssuer([]byte(cfg.Auth.NonceSecret), cfg.Auth.NonceLifespan)
	nonceStore := nonce.NewRedisStore(rdb, cfg.Auth.NonceLifespan, logger)
	verifier := siwe.NewVerifier()
	userStore := user.NewMySQLStore(db, logger)
	sessions := session.NewJWTIssuer([]byte(cfg.Session.Secret), cfg.Session.TTL)
	publisher := initPublisher(rdb, logger)

	authService := auth.NewService(
		cfg.Auth,
		issuer,
		nonceStore,
		verifier,
		chainClient,
		userStore,
		sessions,
		publisher,
		logger,
	)
	authHandler := auth.NewHandler(authService)

	v1 := router.Group("/api/v1")
	{
		authHandler.RegisterRoutes(v1)
	}

	return router, nil
}
