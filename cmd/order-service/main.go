package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jcmexdev/fabrik-saga/internal/order-service/app"
	orderhttp "github.com/jcmexdev/fabrik-saga/internal/order-service/httpx"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/chaos"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/journal"
	journalsqlite "github.com/jcmexdev/fabrik-saga/internal/pkg/journal/sqlite"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/messaging"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/ready"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/store/postgres"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/telemetry"
)

func main() {
	telemetry.InitLogger("order-service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, getEnv("OTEL_SERVICE_NAME", "order-service"))
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	dsn, err := postgres.DSNFromJDBC(
		getEnv("DB_URL", "jdbc:postgresql://postgres:5432/fabrik"),
		getEnv("DB_USER", "fabrik"),
		getEnv("DB_PASSWORD", "fabrik"),
	)
	if err != nil {
		slog.Error("invalid database url", "error", err)
		os.Exit(1)
	}
	st, err := postgres.Open(dsn)
	if err != nil {
		slog.Error("failed to open database handle", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// The handle is lazy, so exhausted retries only mean we start
	// degraded: requests fail with storage errors until postgres is back.
	if err := ready.Wait(ctx, "postgres", ready.DefaultAttempts, ready.DefaultDelay, st.Ping); err != nil {
		slog.Error("starting degraded, database unreachable", "error", err)
	} else if err := st.InitSchema(ctx); err != nil {
		slog.Error("schema init failed", "error", err)
		os.Exit(1)
	}

	bus := messaging.NewRedisBus(getEnv("REDIS_ADDR", "redis:6379"), "order-service")
	defer bus.Close()
	if err := ready.Wait(ctx, "redis", ready.DefaultAttempts, ready.DefaultDelay, bus.Ping); err != nil {
		slog.Error("starting degraded, message bus unreachable", "error", err)
	}

	var recorder journal.Recorder
	if path := os.Getenv("JOURNAL_PATH"); path != "" {
		repo, err := journalsqlite.Open(path)
		if err != nil {
			slog.Error("journal unavailable", "path", path, "error", err)
		} else {
			defer repo.Close()
			recorder = repo
		}
	}

	svc := app.NewService(st.Orders, bus, chaos.FromEnv(), recorder, st.DB())
	router := orderhttp.NewRouter(orderhttp.NewHandler(svc))

	addr := ":" + getEnv("PORT", "8080")
	srv := &http.Server{
		Addr:    addr,
		Handler: otelhttp.NewHandler(router, "order-service"),
	}

	go func() {
		slog.Info("order service listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
