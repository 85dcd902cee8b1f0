// cmd/api/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"freight-resale-api-server/config"
	"freight-resale-api-server/internal/observability"

	"github.com/joho/godotenv"
)

func main() {
	logger := observability.NewLogger("api")

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Msg("could not read .env")
	}

	cfg, err := config.LoadConfig("./config")
	if err != nil {
		logger.Fatal().Err(err).Msg("could not load config")
	}
	logger = observability.NewLoggerWithLevel(os.Stdout, "api", observability.ParseLevel(cfg.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not start")
	}
	if err := a.run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
	logger.Info().Msg("server stopped")
}
