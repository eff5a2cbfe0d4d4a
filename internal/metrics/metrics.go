// Package metrics exposes Prometheus collectors for listings and transfers.
// All methods are safe on a nil *Metrics so components can run without it.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rainforce/smbclient/internal/errkind"
	"github.com/rainforce/smbclient/internal/logging"
)

const namespace = "smbclient"

// Metrics represents the collection of all Prometheus metrics
type Metrics struct {
	ListingsTotal     *prometheus.CounterVec
	ListingDuration   prometheus.Histogram
	TransfersTotal    *prometheus.CounterVec
	TransferBytes     *prometheus.CounterVec
	TransferDuration  *prometheus.HistogramVec
	TransfersInFlight *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them with a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewMetricsWith(reg, reg)
}

// NewMetricsWith registers the collectors with reg and serves them from gatherer.
func NewMetricsWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{gatherer: gatherer}

	m.ListingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_total",
			Help:      "Remote listings by outcome (ok or error kind)",
		},
		[]string{"outcome"},
	)

	m.ListingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "listing_duration_seconds",
			Help:      "Duration of remote listings in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	m.TransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Transfers by direction and outcome (ok or error kind)",
		},
		[]string{"direction", "outcome"},
	)

	m.TransferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_bytes_total",
			Help:      "Bytes moved by direction, failed transfers included",
		},
		[]string{"direction"},
	)

	m.TransferDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Duration of transfers in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"direction"},
	)

	m.TransfersInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transfers_in_flight",
			Help:      "Transfers currently holding a slot",
		},
		[]string{"direction"},
	)

	reg.MustRegister(
		m.ListingsTotal,
		m.ListingDuration,
		m.TransfersTotal,
		m.TransferBytes,
		m.TransferDuration,
		m.TransfersInFlight,
	)

	return m
}

func outcome(kind errkind.Kind) string {
	if kind == errkind.None {
		return "ok"
	}
	return kind.String()
}

// ObserveListing records one completed listing attempt.
func (m *Metrics) ObserveListing(kind errkind.Kind, d time.Duration) {
	if m == nil {
		return
	}
	m.ListingsTotal.WithLabelValues(outcome(kind)).Inc()
	m.ListingDuration.Observe(d.Seconds())
}

// TransferStarted marks a transfer as holding a slot.
func (m *Metrics) TransferStarted(direction string) {
	if m == nil {
		return
	}
	m.TransfersInFlight.WithLabelValues(direction).Inc()
}

// TransferFinished records a terminal outcome. started reports whether
// TransferStarted was called for it.
func (m *Metrics) TransferFinished(direction string, kind errkind.Kind, bytes int64, d time.Duration, started bool) {
	if m == nil {
		return
	}
	if started {
		m.TransfersInFlight.WithLabelValues(direction).Dec()
	}
	m.TransfersTotal.WithLabelValues(direction, outcome(kind)).Inc()
	if bytes > 0 {
		m.TransferBytes.WithLabelValues(direction).Add(float64(bytes))
	}
	m.TransferDuration.WithLabelValues(direction).Observe(d.Seconds())
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
