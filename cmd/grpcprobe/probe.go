package main

import (
	"context"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	wasigrpc "github.com/Aditya1404Sal/wasmcloud-grpc-client"
	"github.com/Aditya1404Sal/wasmcloud-grpc-client/channel"
	"github.com/Aditya1404Sal/wasmcloud-grpc-client/internal/config"
)

const healthCheckProcedure = "/grpc.health.v1.Health/Check"

// checker asks a server for the serving status of one service.
type checker interface {
	Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error)
}

type grpcChecker struct {
	client healthpb.HealthClient
}

func (c *grpcChecker) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := c.client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

type connectChecker struct {
	client *connect.Client[healthpb.HealthCheckRequest, healthpb.HealthCheckResponse]
}

func (c *connectChecker) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := c.client.CallUnary(ctx, connect.NewRequest(&healthpb.HealthCheckRequest{Service: service}))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.Msg.GetStatus(), nil
}

// newChecker builds the client stack named by mode on top of e.
func newChecker(mode string, e *wasigrpc.Endpoint, opts ...channel.DialOption) (checker, error) {
	switch strings.ToLower(mode) {
	case config.ModeGRPC:
		cc := channel.NewClientConn(e, opts...)
		return &grpcChecker{client: healthpb.NewHealthClient(cc)}, nil
	case config.ModeConnect:
		base := strings.TrimSuffix(e.URL().String(), "/")
		client := connect.NewClient[healthpb.HealthCheckRequest, healthpb.HealthCheckResponse](
			e,
			base+healthCheckProcedure,
			connect.WithGRPC(),
		)
		return &connectChecker{client: client}, nil
	default:
		return nil, errors.Errorf("unknown mode %q", mode)
	}
}

// prober checks a set of services and records the outcome.
type prober struct {
	checker  checker
	services []string
	timeout  time.Duration
	clock    clock.Clock
	log      zerolog.Logger

	serving *prometheus.GaugeVec
}

func newProber(c checker, cfg *config.Config, cl clock.Clock, logger zerolog.Logger, reg prometheus.Registerer) *prober {
	p := &prober{
		checker:  c,
		services: cfg.Services,
		timeout:  cfg.Timeout,
		clock:    cl,
		log:      logger,
		serving: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "grpcprobe",
			Name:      "serving",
			Help:      "1 when the last check reported SERVING, 0 otherwise.",
		}, []string{"service"}),
	}
	if reg != nil {
		reg.MustRegister(p.serving)
	}
	return p
}

// probeOnce checks every service concurrently. It fails when any service is
// not serving or could not be checked. A failing check does not cut the
// others short.
func (p *prober) probeOnce(ctx context.Context) error {
	var g errgroup.Group
	for _, service := range p.services {
		g.Go(func() error {
			return p.check(ctx, service)
		})
	}
	return g.Wait()
}

func (p *prober) check(ctx context.Context, service string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	name := service
	if name == "" {
		name = "<server>"
	}

	start := p.clock.Now()
	status, err := p.checker.Check(ctx, service)
	took := p.clock.Since(start)

	if err != nil {
		p.serving.WithLabelValues(service).Set(0)
		p.log.Error().Err(err).Str("service", name).Dur("took", took).Msg("probe: check failed")
		return errors.Wrapf(err, "check %s", name)
	}
	if status != healthpb.HealthCheckResponse_SERVING {
		p.serving.WithLabelValues(service).Set(0)
		p.log.Warn().Str("service", name).Str("status", status.String()).Dur("took", took).Msg("probe: not serving")
		return errors.Errorf("%s is %s", name, status)
	}

	p.serving.WithLabelValues(service).Set(1)
	p.log.Info().Str("service", name).Dur("took", took).Msg("probe: serving")
	return nil
}

// run probes once, or on every tick of interval until ctx is done. The
// returned error is that of the last round.
func (p *prober) run(ctx context.Context, interval time.Duration) error {
	err := p.probeOnce(ctx)
	if interval <= 0 {
		return err
	}

	ticker := p.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return err
		case <-ticker.C:
			err = p.probeOnce(ctx)
		}
	}
}
