package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"

	"github.com/erc7824/ledgergate/pkg/keystore"
	"github.com/erc7824/ledgergate/pkg/log"
)

// Metrics contains all Prometheus metrics for the gateway
type Metrics struct {
	// WebSocket connection metrics
	ConnectedClients prometheus.Gauge
	ConnectionsTotal prometheus.Counter
	MessageReceived  prometheus.Counter
	MessageSent      prometheus.Counter

	RPCRequests *prometheus.CounterVec

	// Authorization and submission metrics
	AuthorizationRejections *prometheus.CounterVec
	Submissions             *prometheus.CounterVec
	SubmissionLatency       *prometheus.HistogramVec
	SubmissionsByStatus     *prometheus.GaugeVec

	UnlockedAccounts prometheus.Gauge
}

func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(nil)
}

// NewMetricsWithRegistry registers the metrics with registry, or with the
// default registerer when registry is nil.
func NewMetricsWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ledgergate_connected_clients",
			Help: "The current number of connected clients",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledgergate_connections_total",
			Help: "The total number of WebSocket connections made since server start",
		}),
		MessageReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledgergate_ws_messages_received_total",
			Help: "The total number of WebSocket messages received",
		}),
		MessageSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledgergate_ws_messages_sent_total",
			Help: "The total number of WebSocket messages sent",
		}),
		RPCRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgergate_rpc_requests_total",
				Help: "The total number of RPC requests by method",
			},
			[]string{"method", "status"},
		),
		AuthorizationRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgergate_authorization_rejections_total",
				Help: "Requests rejected before submission, by error code",
			},
			[]string{"method", "code"},
		),
		Submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledgergate_submissions_total",
				Help: "Ledger submissions by outcome",
			},
			[]string{"method", "outcome"},
		),
		SubmissionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledgergate_submission_latency_seconds",
				Help:    "Time from submission to the settling ledger event",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"method"},
		),
		SubmissionsByStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ledgergate_submissions",
				Help: "The number of stored submissions by status",
			},
			[]string{"status"},
		),
		UnlockedAccounts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ledgergate_unlocked_accounts",
			Help: "The number of unlocked keystore accounts",
		}),
	}
}

func (m *Metrics) RecordMetricsPeriodically(db *gorm.DB, keys *keystore.Store, logger log.Logger) {
	logger = logger.WithName("metrics")
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if err := m.UpdateSubmissionMetrics(db); err != nil {
			logger.Warn("failed to update submission metrics", "error", err)
		}
		m.UnlockedAccounts.Set(float64(keys.Unlocked()))
	}
}

// UpdateSubmissionMetrics refreshes the per-status submission gauge.
func (m *Metrics) UpdateSubmissionMetrics(db *gorm.DB) error {
	type StatusCount struct {
		Status string
		Count  int64
	}

	var results []StatusCount
	err := db.Model(&Submission{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&results).Error
	if err != nil {
		return err
	}

	m.SubmissionsByStatus.Reset()
	for _, row := range results {
		m.SubmissionsByStatus.WithLabelValues(row.Status).Set(float64(row.Count))
	}
	return nil
}
