// Package metrics provides Prometheus metrics for the license backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CertificateReconciliations tracks reconciliation outcomes by operation
	CertificateReconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "healthfirst",
			Subsystem: "certificates",
			Name:      "reconciliations_total",
			Help:      "Certificate reconciliation outcomes by operation",
		},
		[]string{"operation", "outcome"},
	)

	// CertificateCodesIssued counts pre-issued coded certificates
	CertificateCodesIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "healthfirst",
			Subsystem: "certificates",
			Name:      "codes_issued_total",
			Help:      "Number of pre-issued coded certificates",
		},
	)

	// LicenseOperations tracks orchestrated license operations by result
	LicenseOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "healthfirst",
			Subsystem: "licenses",
			Name:      "operations_total",
			Help:      "License operations by operation and result kind",
		},
		[]string{"operation", "result"},
	)

	// LicenseEvaluations tracks evaluations by the status they set
	LicenseEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "healthfirst",
			Subsystem: "licenses",
			Name:      "evaluations_total",
			Help:      "License evaluations by resulting status",
		},
		[]string{"status"},
	)

	// CollaboratorFailures tracks best-effort side effects that failed
	CollaboratorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "healthfirst",
			Subsystem: "collaborators",
			Name:      "failures_total",
			Help:      "Failed notification, storage, dataset and scoring calls",
		},
		[]string{"collaborator"},
	)

	// ScoringRequestDuration tracks outbound scoring latency
	ScoringRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "healthfirst",
			Subsystem: "scoring",
			Name:      "request_duration_seconds",
			Help:      "Duration of scoring requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "endpoint"},
	)

	// HTTPRequestsTotal tracks inbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "healthfirst",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)
)
