// Command paygated serves the payment-gated query service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	paygate "github.com/nexfield-ai/paygate"
	"github.com/nexfield-ai/paygate/config"
	"github.com/nexfield-ai/paygate/evm"
	"github.com/nexfield-ai/paygate/service"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	registry, err := paygate.NewRequirementRegistry(paygate.ResourceConfig{
		Description:       cfg.Payment.Description,
		MimeType:          cfg.Payment.MimeType,
		PayTo:             cfg.Payment.PayTo,
		Price:             cfg.Payment.Price,
		Network:           paygate.Network(cfg.Payment.Network),
		Asset:             cfg.Payment.Asset,
		MaxTimeoutSeconds: cfg.Payment.MaxTimeoutSeconds,
	})
	if err != nil {
		logger.Error("invalid payment configuration", "error", err)
		os.Exit(1)
	}

	discovery, err := service.NewDiscovery(service.AgentCard{
		Name:           cfg.Agent.Name,
		Description:    cfg.Agent.Description,
		Version:        cfg.Agent.Version,
		URL:            cfg.Agent.URL,
		AuthSchemes:    []string{"x402"},
		Capabilities:   service.AgentCapabilities{Streaming: true},
		ExampleQueries: cfg.Agent.ExampleQueries,
	})
	if err != nil {
		logger.Error("invalid discovery configuration", "error", err)
		os.Exit(1)
	}

	svc := service.New(service.WithLogger(logger))
	verifier := evm.NewLocalVerifier(paygate.NewReplayGuard(cfg.Payment.ReplayTTL))
	router := service.NewRouter(svc, discovery, service.RouterConfig{
		Registry:        registry,
		Verifier:        verifier,
		ResourceRootURL: cfg.Payment.ResourceRootURL,
		Logger:          logger,
	})

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", "addr", cfg.Listen, "network", cfg.Payment.Network)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
