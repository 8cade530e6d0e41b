// Package metrics exposes simulator counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Recorder wraps the simulator's collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	orders         *prometheus.CounterVec
	fills          *prometheus.CounterVec
	filtered       *prometheus.CounterVec
	ticks          *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	portfolioValue prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		orders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "execsim_orders_total",
				Help: "Orders submitted to the simulated broker",
			},
			[]string{"symbol", "side"},
		),
		fills: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "execsim_fills_total",
				Help: "Orders reaching a terminal status",
			},
			[]string{"symbol", "status"},
		),
		filtered: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "execsim_signals_filtered_total",
				Help: "Signals not executed, by reason",
			},
			[]string{"reason"},
		),
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "execsim_ticks_total",
				Help: "Market ticks processed",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "execsim_fill_wait_seconds",
				Help:    "Simulated time between order submission and terminal status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		portfolioValue: f.NewGauge(prometheus.GaugeOpts{
			Name: "execsim_portfolio_value",
			Help: "Last valued portfolio value",
		}),
	}
}

func (r *Recorder) Order(symbol, side string) {
	if r == nil {
		return
	}
	r.orders.WithLabelValues(symbol, side).Inc()
}

// Fill records a terminal order status and how long it took.
func (r *Recorder) Fill(symbol, status string, wait time.Duration) {
	if r == nil {
		return
	}
	r.fills.WithLabelValues(symbol, status).Inc()
	r.latency.WithLabelValues(status).Observe(wait.Seconds())
}

func (r *Recorder) Filtered(reason string) {
	if r == nil {
		return
	}
	r.filtered.WithLabelValues(reason).Inc()
}

func (r *Recorder) Tick(symbol string) {
	if r == nil {
		return
	}
	r.ticks.WithLabelValues(symbol).Inc()
}

func (r *Recorder) PortfolioValue(v float64) {
	if r == nil {
		return
	}
	r.portfolioValue.Set(v)
}

// Serve exposes /metrics for g on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}
