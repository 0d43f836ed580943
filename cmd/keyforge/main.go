package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/forgeops/keyforge/internal/adapters/api"
	"github.com/forgeops/keyforge/internal/adapters/repository"
	"github.com/forgeops/keyforge/internal/config"
	"github.com/forgeops/keyforge/internal/core/services"
	"github.com/forgeops/keyforge/internal/infrastructure/metrics"
	"github.com/forgeops/keyforge/internal/infrastructure/ratelimit"
	"github.com/forgeops/keyforge/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("unable to open database: %v", err)
	}
	defer db.Close()

	repo := repository.NewPostgresRepository(db)
	if err := repo.RunMigrations(context.Background()); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	go func() {
		for range time.Tick(15 * time.Second) {
			metrics.DBConnectionsActive.Set(float64(db.Stats().OpenConnections))
		}
	}()

	codec := security.NewSecretCodec(cfg.Environment)
	hasher := security.NewPasswordHasher()
	tokens := security.NewTokenIssuer([]byte(cfg.SecretKey), cfg.TokenTTL)

	authSvc := services.NewAuthService(repo, hasher, tokens)
	keySvc := services.NewAPIKeyService(repo, codec)

	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		limiter = ratelimit.New(cfg.RedisAddr, "", 0, cfg.LoginRateLimit, cfg.LoginRateWindow)
		if err := limiter.Ping(context.Background()); err != nil {
			logger.Warn("redis unreachable, login throttling degraded", slog.String("error", err.Error()))
		}
	}

	mux := http.NewServeMux()
	api.NewAPIHandler(authSvc, keySvc, repo, limiter).RegisterRoutes(mux)

	handler := api.Telemetry(logger)(mux)

	logger.Info("keyforge listening",
		slog.String("addr", cfg.Addr),
		slog.String("environment", cfg.Environment),
		slog.Bool("rate_limiting", limiter != nil),
	)
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}
}
