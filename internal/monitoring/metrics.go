package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RepetitionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "habitat_repetitions_total",
		Help: "Simulate and overlay rounds completed by the sampling pipeline",
	})
	LabelsAssigned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "habitat_labels_total",
		Help: "Habitat labels produced by the overlay, by method and category",
	}, []string{"method", "category"})
	RejectedLabels = promauto.NewCounter(prometheus.CounterOpts{
		Name: "habitat_rejected_labels_total",
		Help: "Overlay labels outside the declared category ordering",
	})
	DegenerateVotes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "habitat_degenerate_votes_total",
		Help: "Fixes that finished a run with zero valid votes",
	})
	ModelFitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "habitat_model_fit_seconds",
		Help:    "Wall time spent fitting the movement model",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)

// ObserveModelFit records the duration of one model fit.
func ObserveModelFit(start time.Time) {
	ModelFitSeconds.Observe(time.Since(start).Seconds())
}

// CountLabels adds one count per label to LabelsAssigned under method.
func CountLabels[T ~string](method string, labels []T) {
	for _, l := range labels {
		LabelsAssigned.WithLabelValues(method, string(l)).Inc()
	}
}

// ServeMetrics exposes /metrics and /healthz on addr until ctx is done.
func ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
