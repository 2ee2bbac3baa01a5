package config

import (
	"os"
	"strings"
)

// MigrateConfig holds the subset of settings cmd/migrate needs.
type MigrateConfig struct {
	DatabaseURL   string
	MigrationsDir string
	LogLevel      string
}

// LoadMigrateConfig reads the database settings through the same .env, YAML
// and environment layers as LoadAPIConfig without requiring API secrets.
func LoadMigrateConfig() (MigrateConfig, error) {
	cfg := Defaults()
	if err := loadDotEnv(GetString("SECURELOGIN_DOTENV", ".env")); err != nil {
		return MigrateConfig{}, err
	}
	if path := strings.TrimSpace(os.Getenv("SECURELOGIN_CONFIG")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return MigrateConfig{}, err
		}
	}
	applyEnv(&cfg)
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return MigrateConfig{}, &Error{Key: "DATABASE_URL"}
	}
	return MigrateConfig{
		DatabaseURL:   cfg.DatabaseURL,
		MigrationsDir: cfg.MigrationsDir,
		LogLevel:      cfg.LogLevel,
	}, nil
}
