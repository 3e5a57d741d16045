package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"reqmon/internal/config"
	"reqmon/internal/logger"
	"reqmon/internal/service"
)

func main() {
	configPath := flag.String("config", os.Getenv("REQMON_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Init(cfg.Log)
	log := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := service.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize service")
	}

	if err := svc.Run(ctx); err != nil {
		log.Error().Err(err).Msg("service exited")
		stop()
		os.Exit(1)
	}
	log.Info().Msg("exited")
}
