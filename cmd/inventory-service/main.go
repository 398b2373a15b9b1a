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

	"github.com/jcmexdev/fabrik-saga/internal/inventory-service/app"
	invhttp "github.com/jcmexdev/fabrik-saga/internal/inventory-service/httpx"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/chaos"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/journal"
	journalsqlite "github.com/jcmexdev/fabrik-saga/internal/pkg/journal/sqlite"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/messaging"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/ready"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/store/postgres"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/telemetry"
)

func main() {
	telemetry.InitLogger("inventory-service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, getEnv("OTEL_SERVICE_NAME", "inventory-service"))
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

	if err := ready.Wait(ctx, "postgres", ready.DefaultAttempts, ready.DefaultDelay, st.Ping); err != nil {
		slog.Error("starting degraded, database unreachable", "error", err)
	} else {
		if err := st.InitSchema(ctx); err != nil {
			slog.Error("schema init failed", "error", err)
			os.Exit(1)
		}
		if err := st.Seed(ctx); err != nil {
			slog.Error("inventory seed failed", "error", err)
			os.Exit(1)
		}
	}

	bus := messaging.NewRedisBus(getEnv("REDIS_ADDR", "redis:6379"), "inventory-service")
	defer bus.Close()
	busReady := ready.Wait(ctx, "redis", ready.DefaultAttempts, ready.DefaultDelay, bus.Ping) == nil
	if !busReady {
		slog.Error("message bus unreachable, consumer disabled for this process")
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

	unsafeReserve := os.Getenv("INVENTORY_UNSAFE_RESERVE") == "true"
	if unsafeReserve {
		slog.Warn("running with unguarded reservation, stock can oversell")
	}

	svc := app.NewService(st.Orders, st.Inventory, bus, chaos.FromEnv(), recorder, st.DB(), unsafeReserve)

	var consumer *messaging.Consumer
	if busReady {
		consumer = messaging.NewConsumer("inventory-service", bus, app.Group, app.Topics, svc.Handle)
		consumer.Start(ctx)
	}

	addr := ":" + getEnv("PORT", "8081")
	srv := &http.Server{
		Addr:    addr,
		Handler: otelhttp.NewHandler(invhttp.NewRouter(svc), "inventory-service"),
	}

	go func() {
		slog.Info("inventory service listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	if consumer != nil {
		consumer.Stop()
		<-consumer.Done()
	}

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
