package config

import (
	"os"
	"strconv"

	"github.com/iancoleman/strcase"
)

func loadDevelopmentConfig(cfg *Config) {
	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err == nil {
		cfg.ServerPort = port
	}

	cfg.Environment = "development"
	cfg.DatabaseDebug = true
	cfg.DatabaseFilePath = "./tmp/data.sqlite"
	cfg.JWTSecret = "development-secret"
	cfg.ServerHost = "127.0.0.1"
	cfg.StorageDir = "./tmp/images"
	cfg.StoragePublicURL = "http://127.0.0.1:" + strconv.Itoa(cfg.ServerPort) + "/images"
}

func loadTestConfig(cfg *Config) {
	cfg.Environment = "test"
	cfg.DatabaseConnectRetryCount = 1
	cfg.DatabaseConnectRetryDelay = 0
	cfg.DatabaseFilePath = ":memory:"
	cfg.JWTSecret = "test-secret"
	cfg.ServerHost = "127.0.0.1"
	cfg.StorageDir = os.TempDir()
	cfg.StoragePublicURL = "http://127.0.0.1/images"
}

func toSnakeCase(s string) string {
	return strcase.ToSnake(s)
}
