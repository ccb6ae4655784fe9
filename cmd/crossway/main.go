package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"crossway/internal/cache"
	"crossway/internal/config"
	"crossway/internal/engine"
	"crossway/internal/handler"
	"crossway/internal/hub"
	"crossway/internal/input"
	"crossway/internal/middleware"
	"crossway/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting crossway server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"signal_policy", cfg.SignalPolicy.String(),
		"tick_interval", cfg.TickInterval,
		"redis_enabled", cfg.RedisEnabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frameStore := store.New(cfg.CellSize)
	wsHub := hub.NewHub(logger)

	var (
		engineOpts []engine.Option
		mirror     handler.FrameMirror
		redisCache *cache.RedisCache
	)
	if cfg.RedisEnabled {
		redisCache, err = cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.FrameTTL, logger)
		if err != nil {
			logger.Warn("redis unavailable, running without frame mirror", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			engineOpts = append(engineOpts, engine.WithMirror(redisCache))
			mirror = redisCache
		}
	}

	eng := engine.New(cfg, frameStore, wsHub, logger, engineOpts...)

	if redisCache != nil {
		meta := map[string]string{
			"started_at":    time.Now().UTC().Format(time.RFC3339),
			"signal_policy": cfg.SignalPolicy.String(),
			"seed":          strconv.FormatUint(cfg.RandomSeed, 10),
		}
		if err := redisCache.RecordRun(ctx, eng.RunID(), meta); err != nil {
			logger.Warn("failed to record run", "run_id", eng.RunID(), "error", err)
		}
	}

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)
	rateLimiter.OnBlocked(handler.ServerStats.IncRateLimitBlocked)

	httpHandler := handler.NewHTTPHandler(frameStore, mirror)
	spawnHandler := handler.NewSpawnHandler(eng, logger)
	wsHandler := handler.NewWSHandler(wsHub, frameStore, eng, input.NewKeyMap(cfg.KeyMap), rateLimiter, logger)
	healthHandler := handler.NewHealthHandler(eng, frameStore, 20*cfg.PublishInterval)
	statsHandler := handler.NewStatsHandler(eng, frameStore, wsHub)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/vehicles", httpHandler.ListVehicles)
	mux.HandleFunc("GET /v1/vehicles/{id}", httpHandler.GetVehicle)
	mux.HandleFunc("GET /v1/signals", httpHandler.GetSignals)
	mux.HandleFunc("GET /v1/frame", httpHandler.GetFrame)
	mux.HandleFunc("GET /v1/layout", httpHandler.GetLayout)
	mux.HandleFunc("GET /v1/stats", statsHandler.GetStats)
	mux.Handle("POST /v1/spawn/{direction}", rateLimiter.Middleware(http.HandlerFunc(spawnHandler.Spawn)))

	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)

	// The websocket upgrade hijacks the connection, so it stays outside gzip.
	root := http.NewServeMux()
	root.HandleFunc("/v1/ws", wsHandler.ServeWS)
	root.Handle("/", handler.Chain(mux, handler.CountRequests, handler.CORSMiddleware, handler.GzipMiddleware))

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      root,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go wsHub.Run(ctx)
	go rateLimiter.Run(ctx)
	go eng.Run(ctx)

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if redisCache != nil {
		stats := eng.Stats()
		meta := map[string]string{
			"stopped_at": time.Now().UTC().Format(time.RFC3339),
			"ticks":      strconv.FormatUint(stats.Ticks, 10),
			"exited":     strconv.FormatUint(stats.Exited, 10),
		}
		if err := redisCache.RecordRun(shutdownCtx, eng.RunID(), meta); err != nil {
			logger.Warn("failed to record run end", "run_id", eng.RunID(), "error", err)
		}
	}

	logger.Info("shutdown complete", "stats", eng.Stats())
}
