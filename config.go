package main

import (
	"os"
	"strings"
)

// Config gathers every environment knob once at startup. Backend choice is
// a pure function of SupabaseDBURL+SupabaseServiceKey presence and never
// changes per-call.
type Config struct {
	Port      string
	JWTSecret string

	SupabaseDBURL      string
	SupabaseServiceKey string
	AutoMigrate        bool

	// DataDir is where the local fallback store keeps its collections when
	// no remote database is configured.
	DataDir string

	OpenAIKey string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceID       string

	// AppURL is the public frontend origin, used for checkout redirects.
	AppURL string
}

func loadConfig() Config {
	cfg := Config{
		Port:                envOr("PORT", "8081"),
		JWTSecret:           envOr("JWT_SECRET", "dev-insecure-secret-change"),
		SupabaseDBURL:       os.Getenv("SUPABASE_DB_URL"),
		SupabaseServiceKey:  os.Getenv("SUPABASE_SERVICE_KEY"),
		DataDir:             envOr("DATA_DIR", "data"),
		OpenAIKey:           os.Getenv("OPENAI_API_KEY"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripePriceID:       os.Getenv("STRIPE_PRICE_ID"),
		AppURL:              envOr("APP_URL", "http://localhost:3000"),
		AutoMigrate:         true,
	}
	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		lv := strings.ToLower(v)
		if lv == "false" || lv == "0" || lv == "no" {
			cfg.AutoMigrate = false
		}
	}
	return cfg
}

// remoteConfigured reports whether the managed database should be used.
// Both the URL and the service key must be present.
func (c Config) remoteConfigured() bool {
	return c.SupabaseDBURL != "" && c.SupabaseServiceKey != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
