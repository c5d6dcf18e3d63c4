package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shubham-shewale/abx-client/pkg/config"
	"github.com/shubham-shewale/abx-client/pkg/exchange"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "abxserver",
		Short:         "Simulated ABX exchange for local development",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	flags := rootCmd.Flags()
	flags.String("config", "", "path to a config file (yaml, json or toml)")
	flags.String("listen", ":3000", "address to accept clients on")
	flags.Int("packets", 14, "number of packets in the session book")
	flags.String("log-level", "info", "debug, info, warn or error")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics := exchange.NewMetrics(reg)

	if cfg.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}

		go func() {
			logger.Info("Metrics endpoint started", zap.String("addr", cfg.Metrics.ListenAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics HTTP error", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	gen := exchange.NewGenerator(exchange.NewRealRand(cfg.Server.Seed), exchange.DefaultSymbols)
	book := gen.Generate(cfg.Server.Packets)

	srv := exchange.NewServer(logger, book, exchange.Options{
		Withhold:    cfg.Server.Withhold,
		Unavailable: cfg.Server.Unavailable,
	}, metrics)
	if err := srv.Listen(cfg.Server.ListenAddr); err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.ListenAddr, err)
	}

	err = srv.Serve(ctx)
	logger.Info("Shutdown Complete")
	return err
}
