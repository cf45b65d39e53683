// Package main implements a one-shot seed command for registering a proxy or
// a Microsoft account directly in the reconmc database, without going
// through the coordinator's HTTP API. Useful for bootstrapping a fresh
// deployment before any operator tooling is wired up.
//
// Usage (from monorepo root):
//
//	go run ./server/cmd/seed --kind proxy --host 10.0.0.5 --port 1080 --protocol socks5
//	go run ./server/cmd/seed --kind account --username bot@example.com --refresh-token <token>
//
// Environment variables:
//
//	RECONMC_DB_DRIVER   Database driver: sqlite or postgres (default: sqlite)
//	RECONMC_DB_DSN      SQLite file path or Postgres DSN (default: ./reconmc.db)
//	RECONMC_SECRET_KEY  Master encryption key — must match the value used by the coordinator
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"reconmc/server/internal/db"
	"reconmc/server/internal/repositories"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	kind := flag.String("kind", "", "Resource kind: proxy or account (required)")
	host := flag.String("host", "", "Proxy host")
	port := flag.Int("port", 0, "Proxy port")
	username := flag.String("username", "", "Proxy or account username")
	password := flag.String("password", "", "Proxy password")
	protocol := flag.String("protocol", "socks5", "Proxy protocol: socks4 or socks5")
	accountType := flag.String("account-type", "microsoft", "Account type")
	accessToken := flag.String("access-token", "", "Account access token")
	refreshToken := flag.String("refresh-token", "", "Account refresh token")
	maxConcurrent := flag.Int("max-concurrent", 1, "Maximum concurrent scans this resource may back")
	flag.Parse()

	if *kind != "proxy" && *kind != "account" {
		return fmt.Errorf("--kind must be 'proxy' or 'account'")
	}

	secretKey := os.Getenv("RECONMC_SECRET_KEY")
	if secretKey == "" {
		return fmt.Errorf(
			"RECONMC_SECRET_KEY is not set\n" +
				"  Set it to the same value used by the coordinator, otherwise the\n" +
				"  encrypted credentials will be unreadable at claim time.",
		)
	}
	// InitEncryption must run before any DB operation so EncryptedString
	// fields are encoded correctly on write.
	keyBytes := make([]byte, 32)
	copy(keyBytes, []byte(secretKey))
	if err := db.InitEncryption(keyBytes); err != nil {
		return fmt.Errorf("init encryption: %w", err)
	}

	dsn := envOrDefault("RECONMC_DB_DSN", "./reconmc.db")
	logger, _ := zap.NewDevelopment()

	database, err := db.New(db.Config{
		Driver:   envOrDefault("RECONMC_DB_DRIVER", "sqlite"),
		DSN:      dsn,
		Logger:   logger,
		LogLevel: gormlogger.Silent,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	ctx := context.Background()

	switch *kind {
	case "proxy":
		if *host == "" || *port == 0 {
			return fmt.Errorf("--host and --port are required for --kind proxy")
		}
		proxy := &db.Proxy{
			Host:          *host,
			Port:          *port,
			Username:      *username,
			Password:      db.EncryptedString(*password),
			Protocol:      *protocol,
			MaxConcurrent: *maxConcurrent,
			IsActive:      true,
		}
		repo := repositories.NewProxyRepository(database)
		if err := repo.Create(ctx, proxy); err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				return fmt.Errorf("a proxy for %s:%d already exists", *host, *port)
			}
			return fmt.Errorf("create proxy: %w", err)
		}
		fmt.Printf("✓ Proxy created\n  ID:   %s\n  Host: %s:%d\n", proxy.ID, proxy.Host, proxy.Port)

	case "account":
		if *username == "" || *refreshToken == "" {
			return fmt.Errorf("--username and --refresh-token are required for --kind account")
		}
		account := &db.Account{
			Type:          *accountType,
			Username:      *username,
			AccessToken:   db.EncryptedString(*accessToken),
			RefreshToken:  db.EncryptedString(*refreshToken),
			MaxConcurrent: *maxConcurrent,
			IsActive:      true,
			IsValid:       true,
		}
		repo := repositories.NewAccountRepository(database)
		if err := repo.Create(ctx, account); err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		fmt.Printf("✓ Account created\n  ID:       %s\n  Username: %s\n", account.ID, account.Username)
	}

	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
