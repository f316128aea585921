package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobmcallan/gatehouse/internal/app"
	"github.com/bobmcallan/gatehouse/internal/common"
	"github.com/bobmcallan/gatehouse/internal/gateway"
)

func main() {
	common.LoadVersionFromFile()

	configPath := os.Getenv("GATEHOUSE_CONFIG")
	config, err := common.LoadConfig("config/gatehouse.toml", configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := common.NewLogger(config.Logging.Level)
	common.PrintBanner("gateway", config, logger)

	a, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	gw := gateway.NewGateway(a)

	go func() {
		if err := gw.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Gateway server failed")
		}
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://localhost:%d", config.Gateway.Port)).
		Msg("Gateway ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := gw.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Gateway server shutdown failed")
	}

	common.PrintShutdownBanner("gateway", logger)
}
