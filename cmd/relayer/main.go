// Command relayer serves the wallet relay JSON-RPC API.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lapolinarweb/contracts/internal/account"
	"github.com/lapolinarweb/contracts/internal/config"
	"github.com/lapolinarweb/contracts/internal/database"
	"github.com/lapolinarweb/contracts/internal/handler"
	"github.com/lapolinarweb/contracts/internal/jsonrpc"
	"github.com/lapolinarweb/contracts/internal/middleware"
	"github.com/lapolinarweb/contracts/internal/pkg/response"
	"github.com/lapolinarweb/contracts/internal/repository"
	"github.com/lapolinarweb/contracts/internal/service"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	acctCfg, err := cfg.AccountConfig()
	if err != nil {
		log.Fatalf("Invalid relay config: %v", err)
	}
	relayer, err := cfg.Relay.Relayer()
	if err != nil {
		log.Fatalf("Invalid relay config: %v", err)
	}
	txGasPrice, err := cfg.Relay.GasPrice()
	if err != nil {
		log.Fatalf("Invalid relay config: %v", err)
	}

	logger.Info("Starting wallet relayer",
		slog.String("environment", cfg.Server.Environment),
		slog.Int("port", cfg.Server.Port),
		slog.Int64("chain_id", cfg.Relay.ChainID),
		slog.String("relayer", relayer.Hex()),
	)

	// Database
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	if err := db.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations completed")

	// Redis backs the account lock and rate limits shared between replicas.
	var (
		redis   *database.Redis
		locker  service.Locker
		limiter middleware.Limiter
	)
	if cfg.Redis.Enabled {
		redis, err = database.NewRedis(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redis.Close()
		locker = redis
		limiter = middleware.NewRedisLimiter(redis, cfg.RateLimit)
		logger.Info("Connected to Redis")
	} else {
		locker = service.NewLocalLocker()
		limiter = middleware.NewLocalLimiter(cfg.RateLimit)
		logger.Warn("Redis disabled, using in-process locks and rate limits")
	}

	devnet, err := newDevnet(cfg.Devnet)
	if err != nil {
		log.Fatalf("Failed to seed devnet: %v", err)
	}

	// Repositories and services
	accountRepo := repository.NewAccountRepository(db.Pool())
	receiptRepo := repository.NewReceiptRepository(db.Pool())

	relaySvc := service.NewRelayService(accountRepo, receiptRepo, devnet, locker, service.Options{
		Config:     acctCfg,
		Relayer:    relayer,
		TxGasPrice: txGasPrice,
		LockTTL:    cfg.Relay.LockTTL,
		Verifier:   account.NewSignatureVerifier(cfg.Relay.SignerCacheSize),
		Logger:     logger,
	})

	watcher := service.NewTimelockWatcher(accountRepo, acctCfg.TimelockExpireWindow, nil, logger,
		middleware.SetExecutableTimelockChanges)
	if err := watcher.Start(cfg.Timelock.WatchSchedule); err != nil {
		log.Fatalf("Failed to start timelock watcher: %v", err)
	}
	defer watcher.Stop()

	if len(cfg.Relay.FactoryAPIKeys) == 0 {
		logger.Warn("No factory API keys configured, wallet_createAccount is disabled")
	}

	rpcServer := jsonrpc.NewServer(jsonrpc.ServerConfig{Service: relaySvc, Logger: logger})
	accountHandler := handler.NewAccountHandler(relaySvc)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.Metrics())

	r.Get("/health", healthHandler())
	r.Get("/ready", readyHandler(db, redis))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter, cfg.RateLimit))
		r.Use(middleware.APIKeyAuth(middleware.StaticAPIKeys(cfg.Relay.FactoryAPIKeys, middleware.ScopeFactory)))
		r.Use(chimiddleware.Timeout(30 * time.Second))

		r.Method(http.MethodPost, "/rpc", gzhttp.GzipHandler(rpcServer))
		r.Mount("/v1", accountHandler.Routes())
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Minute,
	}

	go func() {
		logger.Info("Server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("Shutting down server", slog.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", slog.String("error", err.Error()))
		return
	}

	logger.Info("Server stopped gracefully")
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}
}

func readyHandler(db *database.Postgres, redis *database.Redis) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			response.ServiceUnavailable(w, "database unavailable")
			return
		}
		if redis != nil {
			if err := redis.Ping(ctx); err != nil {
				response.ServiceUnavailable(w, "redis unavailable")
				return
			}
		}
		response.OK(w, map[string]string{"status": "ok"})
	}
}
