package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultPort         = "3001"
	defaultBackupBucket = "weavekit-backups"
	defaultMaxBackups   = 23
)

// loads configuration from environment variables
func LoadEnvironmentVariables() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		_ = err // not an error - production environments may not have .env file
	}

	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	bucket := os.Getenv("S3_BUCKET_NAME")
	if bucket == "" {
		bucket = defaultBackupBucket
	}

	maxBackups := defaultMaxBackups
	if raw := os.Getenv("S3_MAX_BACKUPS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			maxBackups = n
		}
	}

	var allowedOrigins []string
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		allowedOrigins = strings.Split(raw, ",")
		for i := range allowedOrigins {
			allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
		}
	}

	return &Config{
		Environment:    environment,
		Port:           port,
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		AllowedOrigins: allowedOrigins,
		Backup: BackupConfig{
			Region:          os.Getenv("AWS_REGION"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			Bucket:          bucket,
			MaxBackups:      maxBackups,
		},
	}, nil
}
