package main

import (
	"context"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	wasigrpc "github.com/Aditya1404Sal/wasmcloud-grpc-client"
	"github.com/Aditya1404Sal/wasmcloud-grpc-client/host/nethttp"
	"github.com/Aditya1404Sal/wasmcloud-grpc-client/internal/config"
)

func newHealthServer(t *testing.T) string {
	hs := health.NewServer()
	hs.SetServingStatus("echo.Echo", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("down.Down", healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	srv := httptest.NewServer(h2c.NewHandler(gs, &http2.Server{}))
	t.Cleanup(func() {
		srv.Close()
		gs.Stop()
	})
	return srv.URL
}

func newTestChecker(t *testing.T, mode, baseURL string) checker {
	host := nethttp.New()
	t.Cleanup(func() { host.Close() })

	e, err := wasigrpc.NewEndpoint(baseURL, host)
	require.NoError(t, err)

	c, err := newChecker(mode, e)
	require.NoError(t, err)
	return c
}

func TestChecker(t *testing.T) {
	baseURL := newHealthServer(t)

	for _, mode := range []string{config.ModeGRPC, config.ModeConnect} {
		t.Run(mode, func(t *testing.T) {
			is := require.New(t)
			c := newTestChecker(t, mode, baseURL)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			status, err := c.Check(ctx, "")
			is.NoError(err)
			is.Equal(healthpb.HealthCheckResponse_SERVING, status)

			status, err = c.Check(ctx, "echo.Echo")
			is.NoError(err)
			is.Equal(healthpb.HealthCheckResponse_SERVING, status)

			status, err = c.Check(ctx, "down.Down")
			is.NoError(err)
			is.Equal(healthpb.HealthCheckResponse_NOT_SERVING, status)

			_, err = c.Check(ctx, "missing.Missing")
			is.Error(err)
		})
	}

	t.Run("UnknownMode", func(t *testing.T) {
		host := nethttp.New()
		defer host.Close()
		e, err := wasigrpc.NewEndpoint(baseURL, host)
		require.NoError(t, err)
		_, err = newChecker("rest", e)
		require.Error(t, err)
	})
}

func TestProber(t *testing.T) {
	baseURL := newHealthServer(t)

	newTestProber := func(t *testing.T, cl clock.Clock, services ...string) (*prober, *prometheus.Registry) {
		cfg := config.Default()
		cfg.Services = services
		reg := prometheus.NewRegistry()
		return newProber(newTestChecker(t, config.ModeGRPC, baseURL), cfg, cl, zerolog.Nop(), reg), reg
	}

	t.Run("AllServing", func(t *testing.T) {
		is := require.New(t)

		p, _ := newTestProber(t, clock.New(), "", "echo.Echo")
		is.NoError(p.probeOnce(context.Background()))
		is.Equal(1.0, promtest.ToFloat64(p.serving.WithLabelValues("")))
		is.Equal(1.0, promtest.ToFloat64(p.serving.WithLabelValues("echo.Echo")))
	})

	t.Run("OneDown", func(t *testing.T) {
		is := require.New(t)

		p, reg := newTestProber(t, clock.New(), "echo.Echo", "down.Down", "missing.Missing")
		err := p.probeOnce(context.Background())
		is.Error(err)

		// every service was checked even though some failed
		is.Equal(1.0, promtest.ToFloat64(p.serving.WithLabelValues("echo.Echo")))
		is.Equal(0.0, promtest.ToFloat64(p.serving.WithLabelValues("down.Down")))
		is.Equal(0.0, promtest.ToFloat64(p.serving.WithLabelValues("missing.Missing")))

		n, err := promtest.GatherAndCount(reg, "grpcprobe_serving")
		is.NoError(err)
		is.Equal(3, n)
	})

	t.Run("Interval", func(t *testing.T) {
		is := require.New(t)

		mock := clock.NewMock()
		counting := &countingChecker{checker: newTestChecker(t, config.ModeGRPC, baseURL)}
		cfg := config.Default()
		p := newProber(counting, cfg, mock, zerolog.Nop(), nil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- p.run(ctx, time.Minute) }()

		is.Eventually(func() bool { return counting.calls() == 1 }, 5*time.Second, 10*time.Millisecond)

		// the ticker may not exist yet when the first round finishes
		is.Eventually(func() bool {
			mock.Add(time.Minute)
			return counting.calls() >= 2
		}, 5*time.Second, 10*time.Millisecond)

		cancel()
		<-done
	})
}

type countingChecker struct {
	checker
	n atomic.Int32
}

func (c *countingChecker) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	c.n.Add(1)
	return c.checker.Check(ctx, service)
}

func (c *countingChecker) calls() int {
	return int(c.n.Load())
}

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		is := require.New(t)

		cfg, err := loadConfig(nil)
		is.NoError(err)
		is.Equal(config.Default(), cfg)
	})

	t.Run("Flags", func(t *testing.T) {
		is := require.New(t)

		cfg, err := loadConfig([]string{"-mode", "connect", "-interval", "10s"})
		is.NoError(err)
		is.Equal(config.ModeConnect, cfg.Mode)
		is.Equal(10*time.Second, cfg.Interval)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := loadConfig([]string{"-endpoint", "ftp://x"})
		require.Error(t, err)
	})
}
