package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects transaction and contract-call metrics in its own
// registry. It satisfies submit.Recorder.
type Recorder struct {
	registry     *prometheus.Registry
	transactions *prometheus.CounterVec
	calls        *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// NewRecorder creates a recorder with Go runtime collectors attached.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inkaswap_transactions_total",
			Help: "Submitted transactions by network and final outcome.",
		}, []string{"network", "outcome"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inkaswap_contract_calls_total",
			Help: "Contract invocations by method and kind (call or send).",
		}, []string{"method", "kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inkaswap_submit_duration_seconds",
			Help:    "Time from broadcast to final outcome.",
			Buckets: []float64{0.5, 1, 3, 5, 10, 30, 60, 120, 300},
		}, []string{"network"}),
	}
	r.registry.MustRegister(
		r.transactions,
		r.calls,
		r.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveSubmission records one finished submission.
func (r *Recorder) ObserveSubmission(network, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.transactions.WithLabelValues(network, outcome).Inc()
	if elapsed > 0 {
		r.latency.WithLabelValues(network).Observe(elapsed.Seconds())
	}
}

// ObserveCall records a read (kind "call") or write (kind "send") invocation.
func (r *Recorder) ObserveCall(method, kind string) {
	if r == nil {
		return
	}
	r.calls.WithLabelValues(method, kind).Inc()
}

// Handler exposes the metrics in Prometheus text exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string, recorder *Recorder) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	if recorder == nil {
		return errors.New("metrics recorder is nil")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
