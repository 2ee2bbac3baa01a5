package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends understood by cmd/api.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment           string
	Addr                  string
	LogLevel              string
	StoreBackend          string
	DatabaseURL           string
	MigrationsDir         string
	AutoMigrate           bool
	MongoURI              string
	MongoDatabase         string
	JWTSecret             string
	TokenTTL              time.Duration
	TokenIssuer           string
	FieldEncryptionKey    string
	PasswordHashAlgorithm string
	BcryptCost            int
	Argon2Time            int
	Argon2MemoryKiB       int
	Argon2Threads         int
	PasswordMinLength     int
	PhonePattern          string
	SensitiveIDPattern    string
	RateLimitRedisAddr    string
	RateLimitRedisPass    string
	RateLimitRedisDB      int
	CORSAllowedOrigins    []string
	GlobalRateLimitRPS    float64
	GlobalRateLimitBurst  int
	RequestTimeout        time.Duration
}

// Defaults returns the non-secret baseline. Secrets and connection strings
// have no defaults and must come from the environment or a config file.
func Defaults() APIConfig {
	return APIConfig{
		Environment:           "development",
		Addr:                  ":4000",
		LogLevel:              "info",
		StoreBackend:          StorePostgres,
		MigrationsDir:         "db/migrations",
		AutoMigrate:           true,
		MongoDatabase:         "securelogin",
		TokenTTL:              24 * time.Hour,
		TokenIssuer:           "securelogin",
		PasswordHashAlgorithm: "bcrypt",
		BcryptCost:            12,
		Argon2Time:            3,
		Argon2MemoryKiB:       64 * 1024,
		Argon2Threads:         2,
		PasswordMinLength:     8,
		PhonePattern:          `^\+?[0-9]{10,15}$`,
		SensitiveIDPattern:    `^[0-9]{12}$`,
		CORSAllowedOrigins:    []string{"http://localhost:3000"},
		GlobalRateLimitRPS:    5,
		GlobalRateLimitBurst:  20,
		RequestTimeout:        15 * time.Second,
	}
}

// LoadAPIConfig applies, in order: defaults, a .env file in the working
// directory, the YAML file named by SECURELOGIN_CONFIG, then the process
// environment. The result is validated before it is returned.
func LoadAPIConfig() (APIConfig, error) {
	cfg := Defaults()

	if err := loadDotEnv(GetString("SECURELOGIN_DOTENV", ".env")); err != nil {
		return APIConfig{}, err
	}
	if path := strings.TrimSpace(os.Getenv("SECURELOGIN_CONFIG")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return APIConfig{}, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return APIConfig{}, err
	}
	return cfg, nil
}

// Validate reports the first missing or inconsistent setting.
func (c APIConfig) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return &Error{Key: "JWT_SECRET"}
	}
	if len(c.JWTSecret) < minJWTSecretLength {
		return &Error{Key: "JWT_SECRET", Reason: fmt.Sprintf("must be at least %d bytes", minJWTSecretLength)}
	}
	if strings.TrimSpace(c.FieldEncryptionKey) == "" {
		return &Error{Key: "FIELD_ENCRYPTION_KEY"}
	}
	if c.TokenTTL <= 0 {
		return &Error{Key: "TOKEN_TTL", Reason: "must be positive"}
	}
	switch c.StoreBackend {
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return &Error{Key: "DATABASE_URL"}
		}
	case StoreMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			return &Error{Key: "MONGO_URI"}
		}
	case StoreMemory:
	default:
		return &Error{Key: "STORE_BACKEND", Reason: fmt.Sprintf("has unsupported value %q", c.StoreBackend)}
	}
	switch c.PasswordHashAlgorithm {
	case "bcrypt", "argon2id":
	default:
		return &Error{Key: "PASSWORD_HASH_ALGORITHM", Reason: fmt.Sprintf("has unsupported value %q", c.PasswordHashAlgorithm)}
	}
	if c.PasswordMinLength < 1 {
		return &Error{Key: "PASSWORD_MIN_LENGTH", Reason: "must be at least 1"}
	}
	return c.validateHashParams()
}

// Bounds for password hashing settings. The argon2 values are converted to
// uint32/uint8 when the hasher is built, so they are checked here first.
const (
	minJWTSecretLength = 32
	minBcryptCost      = 4
	maxBcryptCost      = 31
	maxArgon2Time      = 64
	maxArgon2MemoryKiB = 1 << 20
	maxArgon2Threads   = 255
)

func (c APIConfig) validateHashParams() error {
	if c.BcryptCost < minBcryptCost || c.BcryptCost > maxBcryptCost {
		return &Error{Key: "BCRYPT_COST", Reason: fmt.Sprintf("must be between %d and %d", minBcryptCost, maxBcryptCost)}
	}
	if c.Argon2Time < 1 || c.Argon2Time > maxArgon2Time {
		return &Error{Key: "ARGON2_TIME", Reason: fmt.Sprintf("must be between 1 and %d", maxArgon2Time)}
	}
	if c.Argon2Threads < 1 || c.Argon2Threads > maxArgon2Threads {
		return &Error{Key: "ARGON2_THREADS", Reason: fmt.Sprintf("must be between 1 and %d", maxArgon2Threads)}
	}
	if c.Argon2MemoryKiB < 8*c.Argon2Threads || c.Argon2MemoryKiB > maxArgon2MemoryKiB {
		return &Error{Key: "ARGON2_MEMORY_KIB", Reason: fmt.Sprintf("must be between 8*ARGON2_THREADS and %d", maxArgon2MemoryKiB)}
	}
	return nil
}

// IsProduction reports whether APP_ENV is "production".
func (c APIConfig) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func loadDotEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	// godotenv.Load never overrides variables already set in the environment.
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *APIConfig) {
	cfg.Environment = GetString("APP_ENV", cfg.Environment)
	cfg.Addr = GetString("API_ADDR", cfg.Addr)
	cfg.LogLevel = GetString("LOG_LEVEL", cfg.LogLevel)
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(GetString("STORE_BACKEND", cfg.StoreBackend)))
	cfg.DatabaseURL = GetString("DATABASE_URL", cfg.DatabaseURL)
	cfg.MigrationsDir = GetString("DB_MIGRATIONS_DIR", cfg.MigrationsDir)
	cfg.AutoMigrate = GetBool("DB_AUTO_MIGRATE", cfg.AutoMigrate)
	cfg.MongoURI = GetString("MONGO_URI", cfg.MongoURI)
	cfg.MongoDatabase = GetString("MONGO_DATABASE", cfg.MongoDatabase)
	cfg.JWTSecret = GetString("JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTL = GetDuration("TOKEN_TTL", cfg.TokenTTL)
	cfg.TokenIssuer = GetString("TOKEN_ISSUER", cfg.TokenIssuer)
	cfg.FieldEncryptionKey = GetString("FIELD_ENCRYPTION_KEY", cfg.FieldEncryptionKey)
	cfg.PasswordHashAlgorithm = strings.ToLower(strings.TrimSpace(GetString("PASSWORD_HASH_ALGORITHM", cfg.PasswordHashAlgorithm)))
	cfg.BcryptCost = GetInt("BCRYPT_COST", cfg.BcryptCost)
	cfg.Argon2Time = GetInt("ARGON2_TIME", cfg.Argon2Time)
	cfg.Argon2MemoryKiB = GetInt("ARGON2_MEMORY_KIB", cfg.Argon2MemoryKiB)
	cfg.Argon2Threads = GetInt("ARGON2_THREADS", cfg.Argon2Threads)
	cfg.PasswordMinLength = GetInt("PASSWORD_MIN_LENGTH", cfg.PasswordMinLength)
	cfg.PhonePattern = GetString("PHONE_PATTERN", cfg.PhonePattern)
	cfg.SensitiveIDPattern = GetString("SENSITIVE_ID_PATTERN", cfg.SensitiveIDPattern)
	cfg.RateLimitRedisAddr = GetString("RATE_LIMIT_REDIS_ADDR", cfg.RateLimitRedisAddr)
	cfg.RateLimitRedisPass = GetString("RATE_LIMIT_REDIS_PASSWORD", cfg.RateLimitRedisPass)
	cfg.RateLimitRedisDB = GetInt("RATE_LIMIT_REDIS_DB", cfg.RateLimitRedisDB)
	cfg.CORSAllowedOrigins = GetList("CORS_ALLOWED_ORIGINS", cfg.CORSAllowedOrigins)
	cfg.GlobalRateLimitRPS = GetFloat("GLOBAL_RATE_LIMIT_RPS", cfg.GlobalRateLimitRPS)
	cfg.GlobalRateLimitBurst = GetInt("GLOBAL_RATE_LIMIT_BURST", cfg.GlobalRateLimitBurst)
	cfg.RequestTimeout = GetDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
}
