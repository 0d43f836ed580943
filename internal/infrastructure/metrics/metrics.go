package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RegistrationsTotal counts completed user registrations
	RegistrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyforge_registrations_total",
		Help: "Total number of successful user registrations",
	})

	// LoginsTotal counts login attempts by outcome
	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyforge_logins_total",
		Help: "Total number of login attempts",
	}, []string{"result"})

	// KeyOperations counts API key lifecycle operations
	KeyOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyforge_key_operations_total",
		Help: "Total number of API key lifecycle operations",
	}, []string{"op"})

	// KeyVerifications counts API key verification attempts by outcome
	KeyVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyforge_key_verifications_total",
		Help: "Total number of API key verification attempts",
	}, []string{"result"})

	// RequestDuration tracks HTTP request processing time
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keyforge_request_duration_seconds",
		Help:    "Histogram of HTTP request processing duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// DBConnectionsActive tracks open database connections
	DBConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keyforge_db_connections_active",
		Help: "Number of active database connections",
	})
)
