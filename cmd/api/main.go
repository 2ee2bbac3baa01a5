package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/app/migrate"
	httpx "github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/http"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/repository"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/repository/memory"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/repository/mongo"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/repository/postgres"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/service/identity"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/service/profile"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/internal/validate"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/pkg/config"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/pkg/crypto"
	jwtpkg "github.com/RiddheshFirake/Lenden-SecureLoginSystem/pkg/jwt"
	"github.com/RiddheshFirake/Lenden-SecureLoginSystem/pkg/logger"
)

func main() {
	cfg, err := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Warn("store close failed", "error", err)
		}
	}()

	cipher, err := crypto.NewFieldCipher(cfg.FieldEncryptionKey)
	if err != nil {
		log.Error("field encryption unavailable", "error", logger.Sanitize(err))
		os.Exit(1)
	}
	hasher, err := crypto.NewHasher(crypto.HasherConfig{
		Algorithm:       cfg.PasswordHashAlgorithm,
		BcryptCost:      cfg.BcryptCost,
		Argon2Time:      uint32(cfg.Argon2Time),
		Argon2MemoryKiB: uint32(cfg.Argon2MemoryKiB),
		Argon2Threads:   uint8(cfg.Argon2Threads),
	})
	if err != nil {
		log.Error("password hasher unavailable", "error", err)
		os.Exit(1)
	}
	tokens, err := jwtpkg.NewManager(cfg.JWTSecret, cfg.TokenTTL, cfg.TokenIssuer)
	if err != nil {
		log.Error("token manager unavailable", "error", logger.Sanitize(err))
		os.Exit(1)
	}
	policy, err := validate.NewPolicy(validate.Config{
		PasswordMinLength:  cfg.PasswordMinLength,
		PhonePattern:       cfg.PhonePattern,
		SensitiveIDPattern: cfg.SensitiveIDPattern,
	})
	if err != nil {
		log.Error("validation policy invalid", "error", err)
		os.Exit(1)
	}

	identitySvc := identity.New(store, hasher, cipher, tokens, policy, log)
	profileSvc := profile.New(store, hasher, cipher, policy, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(httpx.Options{
		Logger:         log,
		Identity:       identitySvc,
		Profile:        profileSvc,
		Limiter:        limiter,
		Health:         store.Ping,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		GlobalRPS:      cfg.GlobalRateLimitRPS,
		GlobalBurst:    cfg.GlobalRateLimitBurst,
		RequestTimeout: cfg.RequestTimeout,
		Production:     cfg.IsProduction(),
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "store", cfg.StoreBackend, "hash_algorithm", hasher.Algorithm())
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (repository.Store, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		if cfg.AutoMigrate {
			runner, err := migrate.New(cfg.DatabaseURL, cfg.MigrationsDir, log)
			if err != nil {
				return nil, fmt.Errorf("configure migrations: %w", err)
			}
			if err := runner.Ensure(ctx); err != nil {
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		return postgres.Open(ctx, cfg.DatabaseURL)
	case config.StoreMongo:
		return mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case config.StoreMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}
