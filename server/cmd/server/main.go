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

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"reconmc/server/internal/agentregistry"
	"reconmc/server/internal/api"
	"reconmc/server/internal/db"
	"reconmc/server/internal/queue"
	"reconmc/server/internal/recovery"
	"reconmc/server/internal/repositories"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr    string
	dbDriver    string
	dbDSN       string
	databaseURL string
	redisURL    string
	secretKey   string
	logLevel    string
	apiKey      string
	disableAuth bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "reconmc-coordinator",
		Short: "reconmc coordinator — distributed Minecraft server scan coordination",
		Long: `The reconmc coordinator assigns scan targets to a fleet of agents,
allocates proxies and Microsoft accounts to each claimed scan, and keeps the
de-duplicated server directory and scan history up to date as results come
back.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("RECONMC_HTTP_ADDR", ":8080"), "HTTP API listen address")
	root.PersistentFlags().StringVar(&cfg.dbDriver, "db-driver", envOrDefault("RECONMC_DB_DRIVER", "sqlite"), "Database driver (sqlite or postgres)")
	root.PersistentFlags().StringVar(&cfg.dbDSN, "db-dsn", envOrDefault("RECONMC_DB_DSN", "./reconmc.db"), "Database DSN or file path for SQLite, used when DATABASE_URL is unset")
	root.PersistentFlags().StringVar(&cfg.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string; overrides --db-driver/--db-dsn when set")
	root.PersistentFlags().StringVar(&cfg.redisURL, "redis-url", os.Getenv("REDIS_URL"), "Redis connection string for the queue fast path; empty disables Redis and runs Postgres-only")
	root.PersistentFlags().StringVar(&cfg.secretKey, "secret-key", envOrDefault("RECONMC_SECRET_KEY", ""), "Master secret key for encrypting credentials at rest (required)")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("RECONMC_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.apiKey, "api-key", envOrDefault("RECONMC_API_KEY", ""), "Static API key required on the operator-facing endpoints")
	root.PersistentFlags().BoolVar(&cfg.disableAuth, "disable-auth", envOrDefault("RECONMC_DISABLE_AUTH", "false") == "true", "Skip the X-API-Key check entirely (local development only)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("reconmc-coordinator %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.secretKey == "" {
		return fmt.Errorf("secret key is required — set --secret-key or RECONMC_SECRET_KEY")
	}
	if cfg.apiKey == "" && !cfg.disableAuth {
		return fmt.Errorf("api key is required — set --api-key or RECONMC_API_KEY, or pass --disable-auth for local development")
	}

	dbDriver, dbDSN := cfg.dbDriver, cfg.dbDSN
	if cfg.databaseURL != "" {
		dbDriver, dbDSN = "postgres", cfg.databaseURL
	}

	logger.Info("starting reconmc coordinator",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("db_driver", dbDriver),
		zap.Bool("redis_enabled", cfg.redisURL != ""),
		zap.String("log_level", cfg.logLevel),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Encryption ---
	// InitEncryption must run before opening the database so EncryptedString
	// fields (proxy/account credentials) encrypt and decrypt transparently.
	keyBytes := make([]byte, 32)
	copy(keyBytes, []byte(cfg.secretKey))
	if err := db.InitEncryption(keyBytes); err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}

	// --- 2. Database ---
	gormDB, err := db.New(db.Config{
		Driver:   dbDriver,
		DSN:      dbDSN,
		Logger:   logger,
		LogLevel: gormLogLevel(cfg.logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	// --- 3. Redis (optional fast path) ---
	var redisClient *redis.Client
	if cfg.redisURL != "" {
		opts, err := redis.ParseURL(cfg.redisURL)
		if err != nil {
			return fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			pingCancel()
			logger.Warn("redis ping failed at startup, continuing in postgres-only mode", zap.Error(err))
			redisClient = nil
		} else {
			pingCancel()
		}
	}

	// --- 4. Repositories ---
	proxyRepo := repositories.NewProxyRepository(gormDB)
	accountRepo := repositories.NewAccountRepository(gormDB)
	agentRepo := repositories.NewAgentRepository(gormDB)
	scanQueueRepo := repositories.NewScanQueueRepository(gormDB)
	serverRepo := repositories.NewServerRepository(gormDB)
	taskLogRepo := repositories.NewTaskLogRepository(gormDB)

	// --- 5. Queue service and agent registry ---
	queueSvc := queue.New(gormDB, redisClient, scanQueueRepo, serverRepo, taskLogRepo, accountRepo, logger)
	registry := agentregistry.New(agentRepo, redisClient, logger)

	// --- 6. Recovery sweep ---
	sweeper, err := recovery.New(queueSvc, scanQueueRepo, registry, logger)
	if err != nil {
		return fmt.Errorf("failed to create recovery sweeper: %w", err)
	}
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("failed to start recovery sweeper: %w", err)
	}
	defer func() {
		if err := sweeper.Stop(); err != nil {
			logger.Warn("recovery sweeper shutdown error", zap.Error(err))
		}
	}()

	// --- 7. HTTP server ---
	router := api.NewRouter(api.RouterConfig{
		Logger:      logger,
		Registry:    registry,
		Queue:       queueSvc,
		Proxies:     proxyRepo,
		Accounts:    accountRepo,
		Servers:     serverRepo,
		ScanQueue:   scanQueueRepo,
		TaskLogs:    taskLogRepo,
		APIKey:      cfg.apiKey,
		DisableAuth: cfg.disableAuth,
	})

	httpSrv := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down reconmc coordinator")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("reconmc coordinator stopped")
	return nil
}

// gormLogLevel maps the application log level string to a GORM logger level.
func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
