package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skywatch_cycles_total",
		Help: "Scan cycles by outcome (ok, failed, locked, preserved)",
	}, []string{"outcome"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skywatch_cycle_duration_seconds",
		Help:    "Duration of completed scan cycles",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	liveAircraft = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "skywatch_live_aircraft",
		Help: "Aircraft in the last live-state feed",
	})

	matchedAircraft = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "skywatch_matched_aircraft",
		Help: "Watched aircraft in the last written snapshot",
	})

	alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skywatch_alerts_total",
		Help: "Alert deliveries by outcome (sent, failed)",
	}, []string{"outcome"})
)
