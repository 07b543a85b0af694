package overlay

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultActivated = "activated"
	resultFiltered  = "filtered"
	resultNoop      = "noop"
	resultDeferred  = "deferred"
	resultStale     = "stale"
	resultError     = "error"

	directionIn  = "in"
	directionOut = "out"
)

var (
	activationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "layerlibre",
			Subsystem: "engine",
			Name:      "activations_total",
			Help:      "Overlay activation outcomes by result.",
		},
		[]string{"result"},
	)

	loaderFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "layerlibre",
			Subsystem: "engine",
			Name:      "loader_failures_total",
			Help:      "Loader callbacks that returned an error or panicked.",
		},
	)

	zoomFilterTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "layerlibre",
			Subsystem: "engine",
			Name:      "zoom_filter_transitions_total",
			Help:      "Overlays crossing their zoom range bounds by direction.",
		},
		[]string{"direction"},
	)

	baseSwitchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "layerlibre",
			Subsystem: "engine",
			Name:      "base_switches_total",
			Help:      "Effective base style switches, including forced ones.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		activationsTotal,
		loaderFailuresTotal,
		zoomFilterTransitionsTotal,
		baseSwitchesTotal,
	)
}
