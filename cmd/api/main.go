package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cardvault-backend/bootstrap"
	"cardvault-backend/internal/config"
	"cardvault-backend/internal/interfaces/router"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx := context.Background()
	c, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap")
	}
	defer c.Close()

	if c.DB != nil {
		log.Info().Msg("postgres connected")
	}
	if c.Rdb != nil {
		log.Info().Msg("redis connected")
	}

	app := router.CreateApp(cfg, c.Router())

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Info().Msg("shutting down")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	log.Info().Str("port", cfg.Port).Msgf("server running at http://localhost:%s", cfg.Port)
	log.Info().Msgf("health check: http://localhost:%s/health/json", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("listen")
	}
}
