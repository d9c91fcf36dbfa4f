package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	PositionsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stoptrack_positions_published_total",
		Help: "Vehicle positions published to the delivery queue.",
	}, []string{"agency"})

	PositionsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stoptrack_positions_dropped_total",
		Help: "Realtime entities dropped before publishing.",
	}, []string{"agency", "reason"})

	StopEventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stoptrack_stop_events_emitted_total",
		Help: "Stop events newly persisted.",
	}, []string{"agency"})

	StopEventsDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stoptrack_stop_events_deduplicated_total",
		Help: "Stop event candidates dropped as already persisted.",
	}, []string{"agency"})

	SamplesDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stoptrack_samples_discarded_total",
		Help: "Position samples discarded by the detector.",
	}, []string{"reason"})

	MissingPartitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stoptrack_missing_partitions_total",
		Help: "Stop event inserts rejected because no partition covers event_time.",
	})

	StaticImports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stoptrack_static_imports_total",
		Help: "Static import attempts by outcome.",
	}, []string{"agency", "outcome"})
)

// StartServer serves the prometheus metrics endpoint in the background.
func StartServer(listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(listen, mux); err != nil {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
}
