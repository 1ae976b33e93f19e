package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/Kareem-Elnokali/system-creator/internal/config"
)

type Collector struct {
	config *config.MetricsConfig
	logger *zap.Logger

	// Sync metrics
	syncTotal    *prometheus.CounterVec
	syncDuration *prometheus.HistogramVec
	lastSyncTime *prometheus.GaugeVec

	// Remote MFA API metrics
	remoteCallsTotal   *prometheus.CounterVec
	remoteCallDuration *prometheus.HistogramVec

	// Tenant state metrics
	connectedTenants prometheus.Gauge
	tenantUsage      *prometheus.GaugeVec
}

func NewCollector(cfg config.MetricsConfig, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Collector{
		config: &cfg,
		logger: logger,

		syncTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mfa_tenant_syncs_total",
				Help: "Total number of tenant sync attempts",
			},
			[]string{"tenant_id", "result"},
		),

		syncDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mfa_tenant_sync_duration_seconds",
				Help:    "Duration of tenant sync passes in seconds",
				Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"tenant_id"},
		),

		lastSyncTime: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mfa_tenant_last_sync_timestamp_seconds",
				Help: "Unix timestamp of the last successful sync",
			},
			[]string{"tenant_id"},
		),

		remoteCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mfa_remote_calls_total",
				Help: "Total number of calls to the MFA system API",
			},
			[]string{"endpoint", "method", "status_code"},
		),

		remoteCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mfa_remote_call_duration_seconds",
				Help:    "Duration of MFA system API calls in seconds",
				Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint", "method"},
		),

		connectedTenants: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mfa_connected_tenants",
				Help: "Number of tenants currently connected to the MFA system",
			},
		),

		tenantUsage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mfa_tenant_usage",
				Help: "Last observed usage value per tenant and metric",
			},
			[]string{"tenant_id", "metric"},
		),
	}
}

func (c *Collector) RecordSync(tenantID string, success bool, elapsed time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.syncTotal.WithLabelValues(tenantID, result).Inc()
	c.syncDuration.WithLabelValues(tenantID).Observe(elapsed.Seconds())
	if success {
		c.lastSyncTime.WithLabelValues(tenantID).SetToCurrentTime()
	}
}

func (c *Collector) RecordRemoteCall(endpoint, method string, statusCode int, elapsed time.Duration) {
	c.remoteCallsTotal.WithLabelValues(endpoint, method, strconv.Itoa(statusCode)).Inc()
	c.remoteCallDuration.WithLabelValues(endpoint, method).Observe(elapsed.Seconds())
}

func (c *Collector) SetConnectedTenants(count int) {
	c.connectedTenants.Set(float64(count))
}

func (c *Collector) SetTenantUsage(tenantID, metric string, value int) {
	c.tenantUsage.WithLabelValues(tenantID, metric).Set(float64(value))
}
