// Command grpcprobe checks the health of gRPC services through the outgoing
// HTTP host, the same way a sandboxed component would.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	wasigrpc "github.com/Aditya1404Sal/wasmcloud-grpc-client"
	"github.com/Aditya1404Sal/wasmcloud-grpc-client/channel"
	"github.com/Aditya1404Sal/wasmcloud-grpc-client/host/nethttp"
	"github.com/Aditya1404Sal/wasmcloud-grpc-client/internal/config"
	"github.com/Aditya1404Sal/wasmcloud-grpc-client/metrics"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("grpcprobe: unhealthy")
		stop()
		os.Exit(1)
	}
}

func loadConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("grpcprobe", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML configuration file")
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFromPath(*configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyFlags(fs); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Logger.Level(level)

	hostOpts := []nethttp.Option{nethttp.WithLogger(logger)}
	if len(cfg.Host.AllowedAuthorities) > 0 {
		hostOpts = append(hostOpts, nethttp.WithAllowedAuthorities(cfg.Host.AllowedAuthorities...))
	}
	host := nethttp.New(hostOpts...)
	defer host.Close()

	endpointOpts := []wasigrpc.EndpointOption{
		wasigrpc.WithLogger(logger),
		wasigrpc.WithRequestOptions(cfg.RequestOptions()),
	}
	if cfg.Host.ChunkSize > 0 {
		endpointOpts = append(endpointOpts, wasigrpc.WithChunkSize(cfg.Host.ChunkSize))
	}
	endpoint, err := wasigrpc.NewEndpoint(cfg.Endpoint, host, endpointOpts...)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	checker, err := newChecker(cfg.Mode, endpoint,
		channel.WithLogger(logger),
		channel.WithStatsHandler(metrics.NewStatsHandler(reg)),
	)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("grpcprobe: metrics server failed")
			}
		}()
		defer srv.Close()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("grpcprobe: serving /metrics")
	}

	p := newProber(checker, cfg, clock.New(), logger, reg)
	return p.run(ctx, cfg.Interval)
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}
