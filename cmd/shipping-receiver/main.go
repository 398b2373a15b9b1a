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

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jcmexdev/fabrik-saga/internal/pkg/chaos"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/httpx"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/messaging"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/ready"
	"github.com/jcmexdev/fabrik-saga/internal/pkg/telemetry"
	"github.com/jcmexdev/fabrik-saga/internal/shipping-receiver/app"
)

func main() {
	telemetry.InitLogger("shipping-receiver")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, getEnv("OTEL_SERVICE_NAME", "shipping-receiver"))
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

	bus := messaging.NewRedisBus(getEnv("REDIS_ADDR", "redis:6379"), "shipping-receiver")
	defer bus.Close()
	busReady := ready.Wait(ctx, "redis", ready.DefaultAttempts, ready.DefaultDelay, bus.Ping) == nil
	if !busReady {
		slog.Error("message bus unreachable, consumer disabled for this process")
	}

	processor := app.NewProcessorClient(getEnv("SHIPPING_PROCESSOR_URL", "http://shipping-processor:8084"))
	svc := app.NewService(processor, chaos.FromEnv())

	var consumer *messaging.Consumer
	if busReady {
		consumer = messaging.NewConsumer("shipping-receiver", bus, app.Group, app.Topics, svc.Handle)
		consumer.Start(ctx)
	}

	router := chi.NewRouter()
	router.Get("/health", httpx.Health)

	addr := ":" + getEnv("PORT", "8083")
	srv := &http.Server{
		Addr:    addr,
		Handler: otelhttp.NewHandler(router, "shipping-receiver"),
	}

	go func() {
		slog.Info("shipping receiver listening", "addr", addr)
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
