package config

import (
	"os"
	"strconv"

	"github.com/MikeSquared-Agency/dpoconv/internal/record"
)

type Config struct {
	LogLevel        string
	DefaultRejected string
	MappingFile     string
	DatabaseURL     string
	NatsURL         string
	NatsToken       string
	Port            int
	ServeDir        string
	IndexFile       string
	APIToken        string
	S3Endpoint      string
	S3Region        string
}

func Load() Config {
	return Config{
		LogLevel:        envStr("LOG_LEVEL", "info"),
		DefaultRejected: envStr("DPOCONV_DEFAULT_REJECTED", record.DefaultRejected),
		MappingFile:     envStr("DPOCONV_MAPPING_FILE", ""),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		NatsURL:         envStr("NATS_URL", ""),
		NatsToken:       envStr("NATS_TOKEN", ""),
		Port:            envInt("DPOCONV_PORT", 8000),
		ServeDir:        envStr("DPOCONV_SERVE_DIR", "."),
		IndexFile:       envStr("DPOCONV_INDEX", "index.html"),
		APIToken:        envStr("DPOCONV_API_TOKEN", ""),
		S3Endpoint:      envStr("S3_ENDPOINT", ""),
		S3Region:        envStr("S3_REGION", "us-east-1"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
