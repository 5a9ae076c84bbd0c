// AngelaMos | 2026
// metrics.go

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gate's counters and the gauges refreshed by the
// periodic reporter.
type Metrics struct {
	Scans         *prometheus.CounterVec
	ScanDuration  prometheus.Histogram
	Issuances     *prometheus.CounterVec
	RoleChanges   *prometheus.CounterVec
	Registrations prometheus.Gauge
	Redemptions   *prometheus.GaugeVec
}

// New registers every metric on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Scans: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_scans_total",
			Help: "Scan submissions by verdict",
		}, []string{"verdict"}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatepass_scan_duration_seconds",
			Help:    "Time from scan submission to verdict, including image decode",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		Issuances: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_issuance_requests_total",
			Help: "Issuance requests by outcome",
		}, []string{"status"}),
		RoleChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatepass_role_changes_total",
			Help: "Role grant and revoke requests by role, direction and outcome",
		}, []string{"role", "direction", "outcome"}),
		Registrations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gatepass_registrations",
			Help: "Registration events on file",
		}),
		Redemptions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gatepass_redemptions",
			Help: "Redemptions on file per ticket class",
		}, []string{"class"}),
	}
}

func (m *Metrics) ObserveScan(verdict string, start time.Time) {
	m.Scans.WithLabelValues(verdict).Inc()
	m.ScanDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementIssuance(status string) {
	m.Issuances.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementRoleChange(role string, grant bool, outcome string) {
	direction := "revoke"
	if grant {
		direction = "grant"
	}
	m.RoleChanges.WithLabelValues(role, direction, outcome).Inc()
}

func (m *Metrics) SetTotals(registrations int, redemptions map[string]int) {
	m.Registrations.Set(float64(registrations))
	for class, n := range redemptions {
		m.Redemptions.WithLabelValues(class).Set(float64(n))
	}
}
