package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"receiptvault/logger"
	"receiptvault/pkg/extract"
	"receiptvault/store"
)

var (
	cfg       Config
	jwtSecret []byte // loaded from env JWT_SECRET (fallback to dev default)
	dataStore store.Store
	extractor *extract.Client
)

func main() {
	// Auto-load ./.env if present before reading vars
	_ = godotenv.Load()
	cfg = loadConfig()

	if err := logger.Init(os.Getenv("APP_ENV") != "production", logger.LogLevel(os.Getenv("LOG_LEVEL"))); err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	jwtSecret = []byte(cfg.JWTSecret)
	stripe.Key = cfg.StripeSecretKey
	extractor = extract.NewClient(cfg.OpenAIKey)

	// Support a lightweight migrate command: `./receiptvault migrate`
	// It connects, runs AutoMigrate and exits. Useful for CI or manual setup.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if _, err := newStore(cfg); err != nil {
			logger.Get().Fatal("migrate", zap.Error(err))
		}
		fmt.Println("migration completed")
		return
	}

	var err error
	dataStore, err = newStore(cfg)
	if err != nil {
		logger.Get().Fatal("store init", zap.Error(err))
	}

	r := gin.Default()

	setupRoutes(r)

	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Get().Fatal("server", zap.Error(err))
	}
}
