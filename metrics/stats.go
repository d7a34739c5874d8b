// Package metrics exports gRPC client call metrics to Prometheus.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/stats"
	"google.golang.org/grpc/status"
)

// StatsHandler is a grpc stats.Handler for channel.WithStatsHandler.
type StatsHandler struct {
	started  *prometheus.CounterVec
	handled  *prometheus.CounterVec
	sent     *prometheus.CounterVec
	received *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var _ stats.Handler = (*StatsHandler)(nil)

// NewStatsHandler creates the collectors and registers them with reg.
func NewStatsHandler(reg prometheus.Registerer) *StatsHandler {
	h := &StatsHandler{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wasigrpc",
			Name:      "client_started_total",
			Help:      "Total number of RPCs started by the client.",
		}, []string{"grpc_method"}),
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wasigrpc",
			Name:      "client_handled_total",
			Help:      "Total number of RPCs completed by the client, regardless of success or failure.",
		}, []string{"grpc_method", "grpc_code"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wasigrpc",
			Name:      "client_msg_sent_total",
			Help:      "Total number of messages sent by the client.",
		}, []string{"grpc_method"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wasigrpc",
			Name:      "client_msg_received_total",
			Help:      "Total number of messages received by the client.",
		}, []string{"grpc_method"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wasigrpc",
			Name:      "client_handling_seconds",
			Help:      "Histogram of response latency of RPCs handled by the client.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"grpc_method"}),
	}
	reg.MustRegister(h.started, h.handled, h.sent, h.received, h.latency)
	return h
}

type methodKey struct{}

func (h *StatsHandler) TagRPC(ctx context.Context, info *stats.RPCTagInfo) context.Context {
	return context.WithValue(ctx, methodKey{}, info.FullMethodName)
}

func (h *StatsHandler) HandleRPC(ctx context.Context, s stats.RPCStats) {
	method, _ := ctx.Value(methodKey{}).(string)

	switch s := s.(type) {
	case *stats.Begin:
		h.started.WithLabelValues(method).Inc()
	case *stats.OutPayload:
		h.sent.WithLabelValues(method).Inc()
	case *stats.InPayload:
		h.received.WithLabelValues(method).Inc()
	case *stats.End:
		h.handled.WithLabelValues(method, status.Code(s.Error).String()).Inc()
		h.latency.WithLabelValues(method).Observe(s.EndTime.Sub(s.BeginTime).Seconds())
	}
}

func (h *StatsHandler) TagConn(ctx context.Context, _ *stats.ConnTagInfo) context.Context {
	return ctx
}

func (h *StatsHandler) HandleConn(context.Context, stats.ConnStats) {}
