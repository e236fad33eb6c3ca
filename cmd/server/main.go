package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dgnsrekt/options-positioning/internal/analysis"
	polygon "github.com/dgnsrekt/options-positioning/internal/api"
	"github.com/dgnsrekt/options-positioning/internal/config"
	"github.com/dgnsrekt/options-positioning/internal/data"
	"github.com/dgnsrekt/options-positioning/internal/marketdata"
	"github.com/dgnsrekt/options-positioning/internal/server"
	"github.com/dgnsrekt/options-positioning/internal/ws"
)

func main() {
	os.Exit(run())
}

func newLogger(format string) (*zap.Logger, error) {
	if format == "json" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run() int {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
		return 1
	}

	// Load config
	cfg, err := config.LoadServerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	// Setup logger
	logger, err := newLogger(cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("port", cfg.Port),
		zap.String("provider", cfg.Provider),
		zap.String("dataDir", cfg.DataDir),
		zap.String("dataDate", cfg.DataDate),
		zap.Duration("cacheTTL", cfg.CacheTTL),
		zap.Int("workers", cfg.Workers),
		zap.Bool("wsEnabled", cfg.WSEnabled),
		zap.Duration("wsStreamInterval", cfg.WSStreamInterval),
	)

	var (
		svc      *analysis.Service
		reloader *server.ReloadManager
		cache    *marketdata.CachingProvider
	)

	switch cfg.Provider {
	case config.ProviderFixture:
		logger.Info("loading data...", zap.String("date", cfg.DataDate))
		start := time.Now()

		mem, err := data.NewMemoryLoader(cfg.DataDir, cfg.DataDate, logger)
		if err != nil {
			logger.Error("failed to load data", zap.Error(err))
			return 1
		}
		loader := data.NewReloadableLoader(mem)
		defer loader.Close()
		logger.Info("data loaded", zap.Duration("duration", time.Since(start)))

		reloader = server.NewReloadManager(loader, cfg.DataDir, logger)
		resolver := marketdata.NewResolver(loader, cfg.Workers, logger)
		svc = analysis.NewService(loader, resolver, analysis.DefaultSettings(), logger)
		svc.SetClock(loader.AsOf)

	case config.ProviderPolygon:
		client := polygon.NewClient(cfg.PolygonBaseURL, cfg.PolygonAPIKey, cfg.PolygonRate,
			30*time.Second, 2*time.Second, 3, logger)
		cache = marketdata.NewCachingProvider(client, cfg.CacheTTL)
		resolver := marketdata.NewResolver(cache, cfg.Workers, logger)
		svc = analysis.NewService(cache, resolver, analysis.DefaultSettings(), logger)
	}

	// Create server
	srv := server.NewServer(svc, reloader, cache, logger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// WebSocket components (optional)
	var hub *ws.Hub
	if cfg.WSEnabled {
		hub = ws.NewHub("analytics", logger)
		go hub.Run(ctx)

		var pauser ws.Pauser
		if reloader != nil {
			pauser = reloader
		}
		streamer, err := ws.NewStreamer(hub, srv, pauser, cfg.WSStreamInterval, logger)
		if err != nil {
			logger.Error("failed to create analytics streamer", zap.Error(err))
			return 1
		}
		go streamer.Run(ctx)

		logger.Info("WebSocket enabled",
			zap.Strings("topics", []string{string(ws.TopicGEX), string(ws.TopicFlow), string(ws.TopicMaxPain)}),
			zap.Duration("streamInterval", cfg.WSStreamInterval),
		)
	}

	// Create router
	router, err := server.NewRouter(srv, hub, logger)
	if err != nil {
		logger.Error("failed to create router", zap.Error(err))
		return 1
	}

	// Setup HTTP server
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Cancel context to stop WebSocket components
	cancel()

	// Graceful HTTP server shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return 1
	}

	logger.Info("server stopped")
	return 0
}
