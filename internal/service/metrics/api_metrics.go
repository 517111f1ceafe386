package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "optedge",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of ops API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "optedge",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by ops API endpoint",
		},
		[]string{"endpoint"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "optedge",
			Subsystem: "api",
			Name:      "cache_lookups_total",
			Help:      "Snapshot cache lookups by result",
		},
		[]string{"endpoint", "result"},
	)

	WSClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "optedge",
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected alert stream clients",
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, CacheLookups, WSClients)
	})
}
