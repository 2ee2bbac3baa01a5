package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors APIConfig for YAML overlays. Zero values leave the
// current setting untouched; pointers distinguish "false" from "unset".
type fileConfig struct {
	Environment string `yaml:"environment"`
	Addr        string `yaml:"addr"`
	LogLevel    string `yaml:"logLevel"`
	Store       struct {
		Backend       string `yaml:"backend"`
		DatabaseURL   string `yaml:"databaseURL"`
		MigrationsDir string `yaml:"migrationsDir"`
		AutoMigrate   *bool  `yaml:"autoMigrate"`
		MongoURI      string `yaml:"mongoURI"`
		MongoDatabase string `yaml:"mongoDatabase"`
	} `yaml:"store"`
	Token struct {
		Secret string        `yaml:"secret"`
		TTL    time.Duration `yaml:"ttl"`
		Issuer string        `yaml:"issuer"`
	} `yaml:"token"`
	Encryption struct {
		Key string `yaml:"key"`
	} `yaml:"encryption"`
	Password struct {
		Algorithm       string `yaml:"algorithm"`
		BcryptCost      int    `yaml:"bcryptCost"`
		Argon2Time      int    `yaml:"argon2Time"`
		Argon2MemoryKiB int    `yaml:"argon2MemoryKiB"`
		Argon2Threads   int    `yaml:"argon2Threads"`
		MinLength       int    `yaml:"minLength"`
	} `yaml:"password"`
	Validation struct {
		PhonePattern       string `yaml:"phonePattern"`
		SensitiveIDPattern string `yaml:"sensitiveIdPattern"`
	} `yaml:"validation"`
	RateLimit struct {
		RedisAddr   string  `yaml:"redisAddr"`
		RedisPass   string  `yaml:"redisPassword"`
		RedisDB     int     `yaml:"redisDB"`
		GlobalRPS   float64 `yaml:"globalRPS"`
		GlobalBurst int     `yaml:"globalBurst"`
	} `yaml:"rateLimit"`
	CORSAllowedOrigins []string      `yaml:"corsAllowedOrigins"`
	RequestTimeout     time.Duration `yaml:"requestTimeout"`
}

func applyFile(cfg *APIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var parsed fileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	merge(cfg, parsed)
	return nil
}

func merge(dst *APIConfig, src fileConfig) {
	setString(&dst.Environment, src.Environment)
	setString(&dst.Addr, src.Addr)
	setString(&dst.LogLevel, src.LogLevel)
	setString(&dst.StoreBackend, src.Store.Backend)
	setString(&dst.DatabaseURL, src.Store.DatabaseURL)
	setString(&dst.MigrationsDir, src.Store.MigrationsDir)
	if src.Store.AutoMigrate != nil {
		dst.AutoMigrate = *src.Store.AutoMigrate
	}
	setString(&dst.MongoURI, src.Store.MongoURI)
	setString(&dst.MongoDatabase, src.Store.MongoDatabase)
	setString(&dst.JWTSecret, src.Token.Secret)
	if src.Token.TTL > 0 {
		dst.TokenTTL = src.Token.TTL
	}
	setString(&dst.TokenIssuer, src.Token.Issuer)
	setString(&dst.FieldEncryptionKey, src.Encryption.Key)
	setString(&dst.PasswordHashAlgorithm, src.Password.Algorithm)
	setInt(&dst.BcryptCost, src.Password.BcryptCost)
	setInt(&dst.Argon2Time, src.Password.Argon2Time)
	setInt(&dst.Argon2MemoryKiB, src.Password.Argon2MemoryKiB)
	setInt(&dst.Argon2Threads, src.Password.Argon2Threads)
	setInt(&dst.PasswordMinLength, src.Password.MinLength)
	setString(&dst.PhonePattern, src.Validation.PhonePattern)
	setString(&dst.SensitiveIDPattern, src.Validation.SensitiveIDPattern)
	setString(&dst.RateLimitRedisAddr, src.RateLimit.RedisAddr)
	setString(&dst.RateLimitRedisPass, src.RateLimit.RedisPass)
	setInt(&dst.RateLimitRedisDB, src.RateLimit.RedisDB)
	if src.RateLimit.GlobalRPS > 0 {
		dst.GlobalRateLimitRPS = src.RateLimit.GlobalRPS
	}
	setInt(&dst.GlobalRateLimitBurst, src.RateLimit.GlobalBurst)
	if len(src.CORSAllowedOrigins) > 0 {
		dst.CORSAllowedOrigins = src.CORSAllowedOrigins
	}
	if src.RequestTimeout > 0 {
		dst.RequestTimeout = src.RequestTimeout
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
