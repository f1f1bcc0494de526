package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stockquest/stockquest/internal/api"
	"github.com/stockquest/stockquest/internal/config"
	"github.com/stockquest/stockquest/internal/insight"
	"github.com/stockquest/stockquest/internal/leaderboard"
	"github.com/stockquest/stockquest/internal/learning"
	"github.com/stockquest/stockquest/internal/market"
	"github.com/stockquest/stockquest/internal/portfolio"
	"github.com/stockquest/stockquest/internal/session"
	"github.com/stockquest/stockquest/internal/store"
)

func main() {
	config.LoadDotenv()
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Market data feed ---
	hub := market.NewHub()
	go hub.Run()

	mkt := market.NewProvider(hub, int64(os.Getpid()), nil)

	tickCtx, stopTicker := context.WithCancel(context.Background())
	defer stopTicker()
	go mkt.Run(tickCtx, cfg.TickInterval)

	// --- Engines ---
	fees := portfolio.Fees{Rate: cfg.FeeRate, Min: cfg.MinFee}
	pf := portfolio.NewEngine(st, fees, cfg.InitialCash, nil)

	catalog, err := learning.LoadCatalog(cfg.ContentFile)
	if err != nil {
		slog.Error("failed to load learning content", "err", err)
		os.Exit(1)
	}
	lrn := learning.NewEngine(st, catalog, nil)

	lb := leaderboard.NewProvider(cfg.InitialCash, nil)
	ins := insight.NewGenerator(cfg.GeminiAPIKey, cfg.GeminiEndpoint, cfg.InsightTimeout)
	if !ins.KeyAvailable() {
		slog.Warn("GEMINI_API_KEY not set, insights run in fallback-only mode")
	}
	sess := session.NewManager(cfg.SecretKey)

	svc := api.NewService(mkt, pf, lrn, lb, ins, sess, hub)
	router := api.NewRouter(svc)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		slog.Info("stockquest listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down stockquest...")
	stopTicker()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("stockquest stopped")
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
