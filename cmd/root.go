package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hanifauzan/greenmart/internal/auth"
	"github.com/hanifauzan/greenmart/internal/cart"
	"github.com/hanifauzan/greenmart/internal/config"
	"github.com/hanifauzan/greenmart/internal/infra"
	"github.com/hanifauzan/greenmart/internal/log"
	"github.com/hanifauzan/greenmart/internal/otel"
	"github.com/hanifauzan/greenmart/internal/service"
	"github.com/hanifauzan/greenmart/internal/store"
)

func Execute() {
	c, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Get(c, "greenmart")

	logger := log.Get(cfg.Application.LogFile, cfg.Application.Env).
		With().
		Str(log.KeyAppName, cfg.Application.Name).
		Str(log.KeyTag, "main Execute").
		Logger()
	c = logger.WithContext(c)

	shutdown, err := otel.InitTracerProvider(c, cfg.Otel.Endpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg(err.Error())
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed shutting down tracer provider")
		}
	}()

	tariff := cart.Tariff{
		BaseCharge:       cfg.Delivery.BaseCharge,
		DefaultSurcharge: cfg.Delivery.DefaultSurcharge,
		Surcharges:       cfg.Delivery.Surcharges,
	}

	session := auth.NewTokenSession(cfg.Session)

	var guest store.Store
	switch cfg.Guest.Backend {
	case "redis":
		guest = store.NewRedisStore(infra.NewCacheClient(c, cfg.Cache), tariff)
	default:
		guest = store.NewFileStore(cfg.Guest.Path, tariff)
	}
	remote := store.NewRemoteStore(
		cfg.Api.BaseUrl,
		time.Duration(cfg.Api.TimeoutSeconds)*time.Second,
		session,
	)

	svc := service.NewCartService(session, guest, remote, cfg.Guest.SessionId, tariff)

	rootCmd := &cobra.Command{
		Use:           "greenmart",
		Short:         "greenmart storefront client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(loginCommand(session, svc))
	rootCmd.AddCommand(logoutCommand(session, svc))
	rootCmd.AddCommand(cartCommand(svc))

	if err := rootCmd.ExecuteContext(c); err != nil {
		logger.Error().Err(err).Msg(err.Error())
		os.Exit(1)
	}
}
