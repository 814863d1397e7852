package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/yield-hedge/internal/api"
	"github.com/atmx/yield-hedge/internal/clock"
	"github.com/atmx/yield-hedge/internal/config"
	"github.com/atmx/yield-hedge/internal/hedge"
	"github.com/atmx/yield-hedge/internal/metrics"
	"github.com/atmx/yield-hedge/internal/model"
	"github.com/atmx/yield-hedge/internal/oracle"
	"github.com/atmx/yield-hedge/internal/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("HEDGE_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx := context.Background()
	owner := model.Identity(cfg.Engine.Owner)

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		stored, err := pg.Bootstrap(ctx, owner)
		if err != nil {
			slog.Error("ledger bootstrap failed", "err", err)
			os.Exit(1)
		}
		if stored != owner {
			slog.Warn("configured owner differs from stored owner, keeping stored",
				"configured", owner, "stored", stored)
		}
		st = pg
		slog.Info("connected to PostgreSQL", "owner", stored)

		// Wrap with Redis read-through cache if configured.
		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Redis.TTL)
			slog.Info("Redis cache enabled", "ttl", cfg.Redis.TTL.String())
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore(owner)
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Yield oracle ---
	var yields oracle.Client
	if cfg.Oracle.URL != "" {
		yields = oracle.NewHTTPClient(cfg.Oracle.URL, cfg.Oracle.Timeout)
		slog.Info("yield oracle configured", "url", cfg.Oracle.URL, "timeout", cfg.Oracle.Timeout.String())
	} else {
		slog.Warn("ORACLE_URL not set, settlements will fail until an oracle is configured")
		yields = oracle.NewStatic()
	}

	// --- Logical clock ---
	genesis, _ := cfg.GenesisTime()
	clk := clock.NewBlocks(genesis, cfg.Clock.Interval)

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run()

	// --- Hedge engine ---
	engine := hedge.NewEngine(st, yields, cfg.EngineParams(), wsHub)
	if err := engine.SyncMetrics(ctx); err != nil {
		slog.Warn("initial metrics sync failed", "err", err)
	}
	svc := api.NewService(engine, clk)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+api.CallerHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"yield-hedge","clock":` + strconv.FormatInt(clk.Now(), 10) + `}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for lifecycle events. Kept outside the
		// timeout middleware so long-lived connections survive.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			svc.Routes(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 40 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("yield-hedge listening", "port", cfg.Server.Port, "owner", owner)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down yield-hedge...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	wsHub.Stop()
	fmt.Println("yield-hedge stopped")
}
