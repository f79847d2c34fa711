package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/archestra-ai/guardproxy/internal/api"
	"github.com/archestra-ai/guardproxy/internal/audit"
	"github.com/archestra-ai/guardproxy/internal/dualllm"
	"github.com/archestra-ai/guardproxy/internal/llmclient"
	"github.com/archestra-ai/guardproxy/internal/proxy"
	"github.com/archestra-ai/guardproxy/internal/store"
)

func main() {
	logger := mustBuildLogger(envOrDefault("GUARDPROXY_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	httpPort := envOrDefault("GUARDPROXY_HTTP_PORT", "8080")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")

	dbURL := os.Getenv("ARCHESTRA_DATABASE_URL")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		logger.Fatal("Database URL is not set. Please set ARCHESTRA_DATABASE_URL or DATABASE_URL")
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(ctx); err != nil {
		cancel()
		logger.Fatal("failed to ping postgres", zap.Error(err))
	}
	cancel()

	pgStore := store.New(db)
	applyCtx, applyCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := pgStore.ApplySchema(applyCtx); err != nil {
		applyCancel()
		logger.Fatal("failed to apply schema", zap.Error(err))
	}
	applyCancel()
	logger.Info("postgres connected and schema applied")

	var auditWriter audit.Writer
	if clickhouseDSN != "" {
		chWriter, err := audit.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
			auditWriter = audit.NewLogWriter(logger)
		} else {
			auditWriter = chWriter
			logger.Info("clickhouse audit writer connected")
		}
	} else {
		auditWriter = audit.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer auditWriter.Close()

	// One client, authenticated with OPENAI_API_KEY, serves both the
	// forwarded upstream calls and the dual-LLM sub-agent's legs. When the
	// key is empty, the pipeline returns a 500 configuration_error instead
	// of forwarding the request.
	apiKey := os.Getenv("OPENAI_API_KEY")
	baseURL := os.Getenv("OPENAI_BASE_URL")
	upstream := llmclient.New(apiKey, baseURL)

	sub := dualllm.New(upstream, pgStore, logger)
	pipeline := proxy.New(pgStore, pgStore, sub, upstream, auditWriter, logger)

	deps := &api.Dependencies{
		Store:    pgStore,
		Pipeline: pipeline,
		Upstream: upstream,
		Logger:   logger,
	}
	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streaming responses may run indefinitely
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	logger.Info("guardproxy stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
