package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/beaconops/vigil/pkg/api"
	"github.com/beaconops/vigil/pkg/audit"
	"github.com/beaconops/vigil/pkg/auth"
	"github.com/beaconops/vigil/pkg/config"
	"github.com/beaconops/vigil/pkg/consent"
	"github.com/beaconops/vigil/pkg/delegation"
	"github.com/beaconops/vigil/pkg/observability"
	"github.com/beaconops/vigil/pkg/token"
	"github.com/beaconops/vigil/pkg/workflow"
)

func main() {
	cfg := config.Load()
	setupLogger(cfg.LogLevel)
	ctx := context.Background()

	// Signing keys. With no SIGNING_SECRET every credential dies with the
	// process, which is fine for a single-node dev run.
	var keys *token.HMACKeySet
	var err error
	if cfg.SigningSecret != "" {
		keys, err = token.NewHMACKeySet([]byte(cfg.SigningSecret))
		if err != nil {
			log.Fatalf("Failed to init key set: %v", err)
		}
	} else {
		slog.Warn("SIGNING_SECRET not set, using ephemeral signing key")
		keys, err = token.NewEphemeralKeySet()
		if err != nil {
			log.Fatalf("Failed to init key set: %v", err)
		}
	}
	tokens := token.NewService(keys)

	// Consent storage: SQLite when a path is configured, in-memory otherwise.
	var store consent.Store
	if cfg.SQLitePath != "" {
		sqlStore, err := consent.OpenSQLiteStore(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open consent store: %v", err)
		}
		defer sqlStore.Close()
		store = sqlStore
		slog.Info("consent store: sqlite", "path", cfg.SQLitePath)
	} else {
		store = consent.NewMemoryStore()
		slog.Info("consent store: in-memory")
	}

	policy, err := config.LoadScopePolicy(cfg.ScopePolicy)
	if err != nil {
		log.Fatalf("Failed to load scope policy: %v", err)
	}
	consents := consent.NewManager(store, tokens, policy)

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "vigil",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.OTLPEndpoint != "",
		Insecure:       true,
	})
	if err != nil {
		log.Fatalf("Failed to init observability: %v", err)
	}

	orch := workflow.NewOrchestrator(
		tokens,
		consents,
		delegation.NewValidator(tokens),
		audit.NewLogger(),
		demoRegistry(),
		nil,
	).WithStepTimeout(cfg.StepTimeout)

	// Rate limiting: shared Redis buckets when configured, per-process
	// otherwise.
	var limiter auth.LimiterStore
	if cfg.RedisAddr != "" {
		redisLimiter := auth.NewRedisLimiterStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RateLimitRPS, cfg.RateLimitBurst)
		defer redisLimiter.Close()
		limiter = redisLimiter
		slog.Info("rate limiter: redis", "addr", cfg.RedisAddr)
	} else {
		local := auth.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		defer local.Close()
		limiter = local
	}

	server := api.NewServer(orch, consents).WithRequesterFunc(func(r *http.Request) string {
		if p, err := auth.GetPrincipal(r.Context()); err == nil {
			return p.ID
		}
		return "anonymous"
	})

	handler := auth.NewMiddleware(tokens)(
		auth.RateLimitMiddleware(limiter)(server.Routes()),
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		slog.Error("observability shutdown failed", "error", err)
	}
}

func setupLogger(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
