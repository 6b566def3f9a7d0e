package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adguardmon/internal/adguard"
	"adguardmon/internal/api"
	"adguardmon/internal/config"
	"adguardmon/internal/coordinator"
	"adguardmon/internal/instances"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const setupTimeout = 30 * time.Second

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath, logger)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Starting AdGuard Home monitor",
		zap.Int("instances", len(cfg.Instances)),
		zap.Int("listen_port", cfg.ListenPort))

	registry := instances.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, inst := range cfg.Instances {
		coord := buildCoordinator(inst, logger)

		setupCtx, setupCancel := context.WithTimeout(ctx, setupTimeout)
		if err := coord.Setup(setupCtx); err != nil {
			// The instance may just be down right now; the poll loop
			// will pick it up once it comes back.
			logger.Warn("Initial setup failed, will keep polling",
				zap.String("instance", inst.ID),
				zap.Error(err))
		}
		setupCancel()

		if err := registry.Add(coord); err != nil {
			logger.Fatal("Failed to register instance",
				zap.String("instance", inst.ID),
				zap.Error(err))
		}

		go coord.Run(ctx)
		logger.Info("Instance registered",
			zap.String("instance", inst.ID),
			zap.String("host", inst.Host),
			zap.Duration("poll_interval", inst.PollInterval()))
	}

	server := api.NewServer(registry, logger, cfg.ListenPort, cfg.IconFillColor)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("API server stopped", zap.Error(err))
		}
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Application running. Press Ctrl+C to exit.")
	<-sigChan

	logger.Info("Shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("API server shutdown failed", zap.Error(err))
	}
}

func buildCoordinator(inst config.Instance, logger *zap.Logger) *coordinator.Coordinator {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if inst.SkipTLSVerify() {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	session := &http.Client{
		Timeout:   15 * time.Second,
		Transport: transport,
	}

	client := adguard.NewClient(
		inst.Host, inst.Port,
		inst.Username, inst.Password,
		inst.TLS, session,
		logger.Named(inst.ID),
	)

	return coordinator.New(coordinator.Config{
		InstanceID:    inst.ID,
		Host:          inst.Host,
		Interval:      inst.PollInterval(),
		QueryLogLimit: inst.QueryLogLimit,
	}, client, logger.Named(inst.ID))
}
