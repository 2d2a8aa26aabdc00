package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds the deployment-immutable raffle settings.
type AppConfig struct {
	Port        string
	DatabaseURL string
	EntranceFee float64       // minimum stake per entry
	Interval    time.Duration // minimum time between round closes
	VRFDelay    time.Duration // simulated oracle delivery delay
}

// Load reads .env and environment variables. DATABASE_URL is required,
// everything else has a default.
func Load() AppConfig {
	if err := godotenv.Load(); err != nil {
		log.Println("[INFO] No .env file found, reading environment variables")
	}

	cfg := AppConfig{
		Port:        envOr("PORT", "4000"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		EntranceFee: envFloatOr("ENTRANCE_FEE", 10),
		Interval:    time.Duration(envIntOr("RAFFLE_INTERVAL_SEC", 30)) * time.Second,
		VRFDelay:    time.Duration(envIntOr("VRF_DELAY_MS", 2000)) * time.Millisecond,
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("[FATAL] DATABASE_URL is required in .env or environment")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("[FATAL] %s must be an integer, got %q", key, v)
	}
	return n
}

func envFloatOr(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("[FATAL] %s must be a number, got %q", key, v)
	}
	return f
}
