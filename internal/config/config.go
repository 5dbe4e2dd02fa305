// Package config reads server settings from the environment. A .env file in
// the working directory is loaded first if present; real environment
// variables win over it.
package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Ledger backends.
const (
	LedgerChain = "chain"
	LedgerKafka = "kafka"
)

// Config holds the server settings. Command-line flags override these.
type Config struct {
	Addr         string
	DBPath       string
	AdminUser    string
	LogLevel     string
	Ledger       string
	KafkaBrokers []string
	KafkaTopic   string
	RedisAddr    string
	ServiceName  string
}

// Load returns the configuration from the environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:         getenv("SLEDILNIK_ADDR", ":8080"),
		DBPath:       getenv("SLEDILNIK_DB", "sledilnik.db"),
		AdminUser:    getenv("SLEDILNIK_ADMIN", "admin"),
		LogLevel:     getenv("SLEDILNIK_LOG", "info"),
		Ledger:       strings.ToLower(getenv("SLEDILNIK_LEDGER", LedgerChain)),
		KafkaBrokers: splitCSV(getenv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   getenv("KAFKA_TOPIC", "item-status"),
		RedisAddr:    getenv("REDIS_ADDR", ""),
		ServiceName:  getenv("SERVICE_NAME", "sledilnik"),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
