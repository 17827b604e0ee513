package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	DBDSN           string
	ServerPort      string
	SessionSecret   string
	LogLevel        string
	LogFormat       string
	TemplateCatalog string // путь к YAML каталогу шаблонов мер
	AuthzMode       string // enforce | shadow
	AdminUsername   string
	AdminPassword   string
}

// Load читает .env и окружение, при ошибке завершает процесс.
func Load() *Config {
	cfg, err := FromEnv()
	if err != nil {
		logrus.Fatal(err)
	}
	return cfg
}

func FromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBDSN:           os.Getenv("DB_DSN"),
		ServerPort:      os.Getenv("SERVER_PORT"),
		SessionSecret:   os.Getenv("SESSION_SECRET"),
		LogLevel:        strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))),
		LogFormat:       strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))),
		TemplateCatalog: os.Getenv("TEMPLATE_CATALOG"),
		AuthzMode:       strings.ToLower(strings.TrimSpace(os.Getenv("AUTHZ_MODE"))),
		AdminUsername:   os.Getenv("ADMIN_USERNAME"),
		AdminPassword:   os.Getenv("ADMIN_PASSWORD"),
	}

	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN is not set")
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("SESSION_SECRET is not set")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}

	switch cfg.AuthzMode {
	case "":
		cfg.AuthzMode = "enforce"
	case "enforce", "shadow":
	default:
		return nil, errors.New("AUTHZ_MODE must be enforce or shadow")
	}

	if cfg.AdminUsername == "" {
		cfg.AdminUsername = "admin@ib.local"
	}
	if cfg.AdminPassword == "" {
		cfg.AdminPassword = "Admin123!"
	}

	return cfg, nil
}
