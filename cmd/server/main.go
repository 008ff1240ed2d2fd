package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"bizdash/internal/config"
	"bizdash/internal/modules/dashboard/application/handler"
	"bizdash/internal/modules/dashboard/application/usecase"
	"bizdash/internal/modules/dashboard/infrastructure"
	transport "bizdash/internal/modules/dashboard/interface"
	"bizdash/internal/modules/query"
	resinfra "bizdash/internal/modules/resources/infrastructure"
	"bizdash/internal/platform/broker"
	"bizdash/internal/platform/gateway"
	"bizdash/internal/platform/metrics"
	"bizdash/internal/shared/auth"
	"bizdash/internal/shared/logging"
)

func main() {
	// Attempt to load variables from .env so local runs honour configuration tweaks.
	if err := godotenv.Overload(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, ".env load warning: %v\n", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logFile, logger, err := setupLogging(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging setup error: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	slog.SetDefault(logger)
	slog.Info("logging initialized", slog.String("directory", cfg.Logging.Directory), slog.String("level", cfg.Logging.Level), slog.String("format", cfg.Logging.Format))

	if err := run(cfg, logger); err != nil {
		slog.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	validator, err := auth.NewJWTValidator(cfg.Security.JWTSecret, cfg.Security.JWTPublicKey)
	if err != nil {
		return fmt.Errorf("jwt validator: %w", err)
	}

	registry := metrics.New()

	gw := gateway.New(gateway.Config{
		BaseURL:   cfg.REST.BaseURL,
		Timeout:   cfg.REST.Timeout,
		RateLimit: cfg.REST.RateLimit,
		Burst:     cfg.REST.Burst,
		UserAgent: cfg.REST.UserAgent,
	}, nil, logger).WithObserver(registry)
	services := resinfra.NewServices(gw, logger)

	client := query.NewClient(query.Config{
		StaleTime:      cfg.Query.StaleTime,
		CacheTime:      cfg.Query.CacheTime,
		MaxIdleEntries: cfg.Query.MaxIdleEntries,
		Retry: query.RetryPolicy{
			MaxRetries:      cfg.Query.MaxRetries,
			InitialInterval: cfg.Query.RetryInitial,
			MaxInterval:     cfg.Query.RetryMax,
		},
	}, query.WithLogger(logger), query.WithRecorder(registry))
	defer client.Shutdown()

	hub := infrastructure.NewHub(infrastructure.WithHubLogger(logger), infrastructure.WithHubMetrics(registry))
	sessions := usecase.NewSessionRegistry(usecase.SessionDeps{
		Client:      client,
		Services:    services,
		Broadcaster: hub,
		Metrics:     registry,
		Logger:      logger,
	}, usecase.WithIdleTimeout(cfg.Session.IdleTimeout))

	handlers := infrastructure.NewHandlerRegistry()
	for _, topic := range cfg.Kafka.Topics {
		handlers.Register(handler.NewChangeStreamHandler(topic, nil, sessions))
	}
	slog.Info("kafka config resolved", slog.Any("brokers", cfg.Kafka.Brokers), slog.String("group", cfg.Kafka.GroupID), slog.Any("topics", handlers.Topics()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sessions.RunSweeper(ctx, cfg.Session.SweepInterval)

	consumersDone := make(chan error, 1)
	go func() {
		consumersDone <- broker.RunKafkaConsumers(ctx, handlers, broker.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.GroupID,
			Topics:  handlers.Topics(),
		}, logger)
	}()

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetOutput(log.Writer())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(registry.Middleware())
	e.GET("/metrics", echo.WrapHandler(registry.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"status": "ok", "sessions": sessions.Len(), "clients": hub.Len()})
	})
	transport.RegisterRoutes(e, transport.Dependencies{
		Sessions:  sessions,
		Hub:       hub,
		Validator: validator,
		Websocket: transport.WebsocketConfig{SendBuffer: cfg.Websocket.SendBuffer},
		Logger:    logger,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", slog.Any("error", err))
	}
	stop()
	hub.CloseAll()
	sessions.CloseAll()
	client.Clear()

	select {
	case err := <-consumersDone:
		if err != nil {
			slog.Warn("kafka consumers stopped", slog.Any("error", err))
		}
	case <-shutdownCtx.Done():
		slog.Warn("kafka consumers did not stop in time")
	}
	return nil
}

func setupLogging(cfg config.LoggingConfig) (*os.File, *slog.Logger, error) {
	file, err := logging.OpenDaily(cfg.Directory, time.Now())
	if err != nil {
		return nil, nil, err
	}

	writer := io.MultiWriter(os.Stdout, file)
	logger := logging.New(writer, logging.Config{
		Level:     cfg.Level,
		Format:    cfg.Format,
		AddSource: true,
	})
	log.SetOutput(writer)
	log.SetFlags(0)
	log.SetPrefix("")

	return file, logger, nil
}
