package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shubham-shewale/abx-client/cmd/abxclient/internal/recovery"
	"github.com/shubham-shewale/abx-client/cmd/abxclient/internal/session"
	"github.com/shubham-shewale/abx-client/cmd/abxclient/internal/sink"
	"github.com/shubham-shewale/abx-client/cmd/abxclient/internal/stream"
	"github.com/shubham-shewale/abx-client/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "abxclient",
		Short:         "Replay an ABX exchange session and fill sequence gaps",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	flags := rootCmd.Flags()
	flags.String("config", "", "path to a config file (yaml, json or toml)")
	flags.String("host", "", "exchange host (default: this machine's hostname)")
	flags.Int("port", 3000, "exchange port")
	flags.Int("workers", 1, "concurrent resend requests")
	flags.String("output", "abx_output.json", "output file; relative paths resolve next to the binary")
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

	out, err := buildSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.Error("Error closing outputs", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	metrics := session.NewMetrics(reg)

	addr := cfg.Feed.Addr()
	dialer := &net.Dialer{Timeout: cfg.Feed.DialTimeout}
	reader := stream.NewReader(logger, cfg.Feed.ReadTimeout)
	recoverer := recovery.NewClient(logger, dialer, addr, cfg.Feed.ReadTimeout)

	s := session.NewSession(session.Options{
		Addr:       addr,
		Workers:    cfg.Feed.RecoveryWorkers,
		MaxGapSpan: cfg.Feed.MaxGapSpan,
	}, logger, dialer, reader, recoverer, out, metrics)

	logger.Info("Connecting to ABX exchange", zap.String("addr", addr))
	report, runErr := s.Run(ctx)

	if cfg.Metrics.Textfile != "" {
		if err := prometheus.WriteToTextfile(cfg.Metrics.Textfile, reg); err != nil {
			logger.Error("Failed to write metrics textfile", zap.String("path", cfg.Metrics.Textfile), zap.Error(err))
		}
	}

	for _, p := range report.Packets {
		logger.Debug("Packet",
			zap.Int32("sequence", p.Sequence),
			zap.String("symbol", p.Symbol),
			zap.Stringer("side", p.Side),
			zap.Int32("quantity", p.Quantity),
			zap.Int32("price", p.Price))
	}
	if len(report.Unrecoverable) > 0 {
		logger.Warn("Output is missing packets", zap.Error(report.UnrecoverableErr()))
	}
	logger.Info("Session summary",
		zap.Stringer("state", report.State),
		zap.Int("streamed", report.Streamed),
		zap.Int("recovered", len(report.Recovered)),
		zap.Int("unrecoverable", len(report.Unrecoverable)),
		zap.Duration("duration", report.Duration))

	return runErr
}

func buildSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) (sink.Multi, error) {
	path, err := sink.ResolvePath(cfg.Output.Path, "")
	if err != nil {
		return nil, err
	}
	sinks := sink.Multi{sink.NewJSONFile(logger, path)}

	if cfg.Output.Kafka {
		creator := sink.NewTopicCreator(logger, &sink.RealKafkaDialer{Dialer: &kafka.Dialer{Timeout: 10 * time.Second}}, sink.RealClock{})
		creator.Create(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)

		writer := &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        cfg.Kafka.Topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireAll,
		}
		sinks = append(sinks, sink.NewKafka(logger, writer))
	}

	if cfg.Output.Redis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			sinks.Close()
			return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err)
		}
		sinks = append(sinks, sink.NewRedis(logger, rdb, cfg.Redis.TTL))
	}

	return sinks, nil
}
