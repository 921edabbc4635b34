package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/nbapi/internal/infrastructure/config"
	"github.com/GriffinCanCode/nbapi/internal/infrastructure/logging"
	"github.com/GriffinCanCode/nbapi/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Server host")
	flag.StringVar(&cfg.Registry.Dir, "registry", cfg.Registry.Dir, "Service registry directory")
	flag.StringVar(&cfg.Kernel.GatewayURL, "gateway", cfg.Kernel.GatewayURL, "Jupyter gateway URL")
	flag.StringVar(&cfg.History.Path, "history", cfg.History.Path, "Run history database (empty disables)")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flag.Parse()

	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger, err = logging.New(logging.Config{Level: cfg.Logging.Level})
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}
	defer srv.Close()

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server error", zap.Error(err))
		return
	}
	logger.Info("Shut down gracefully")
}
