// Package metrics exposes controller and station measurements to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fisaks/flowctl/internal/device"
	"github.com/fisaks/flowctl/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements device.Observer and station.Recorder.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	flow       *prometheus.GaugeVec
	connected  *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowctl_operations_total",
			Help: "Guarded controller operations by outcome.",
		}, []string{"device", "op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowctl_operation_duration_seconds",
			Help:    "Time spent in guarded controller operations.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"device", "op"}),
		flow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flowctl_flow",
			Help: "Last flow read from the regulator, in setpoint units.",
		}, []string{"device"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flowctl_connected",
			Help: "1 while the controller has an open link.",
		}, []string{"device"}),
	}
	m.registry.MustRegister(m.operations, m.duration, m.flow, m.connected)
	return m
}

func (m *Metrics) ObserveOperation(dev, op string, outcome device.Outcome, elapsed time.Duration) {
	m.operations.WithLabelValues(dev, op, string(outcome)).Inc()
	m.duration.WithLabelValues(dev, op).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordFlow(dev string, flow float64) {
	m.flow.WithLabelValues(dev).Set(flow)
}

func (m *Metrics) RecordConnected(dev string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	m.connected.WithLabelValues(dev).Set(v)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logging.Info("Metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
