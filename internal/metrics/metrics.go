package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus metrics.
type Metrics struct {
	TransactionsScored     prometheus.Counter
	ReviewsFlagged         prometheus.Counter
	RegulatorSubmissions   *prometheus.CounterVec
	AuditWritesEscalated   prometheus.Counter
	AuditIntegrityFailures prometheus.Counter
	ConsentsExpired        prometheus.Counter
	ReportsGenerated       prometheus.Counter
	GSTValidationFailures  prometheus.Counter
}

// New creates and registers all engine metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on the given registerer. Tests pass a fresh
// registry so repeated construction does not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransactionsScored: factory.NewCounter(prometheus.CounterOpts{
			Name: "compliance_transactions_scored_total",
			Help: "Total transactions evaluated by the risk scoring engine",
		}),
		ReviewsFlagged: factory.NewCounter(prometheus.CounterOpts{
			Name: "compliance_reviews_flagged_total",
			Help: "Total risk records flagged for manual review",
		}),
		RegulatorSubmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_regulator_submissions_total",
			Help: "Regulator submission outcomes by status",
		}, []string{"status"}),
		AuditWritesEscalated: factory.NewCounter(prometheus.CounterOpts{
			Name: "compliance_audit_writes_escalated_total",
			Help: "Audit writes that exhausted retries and were escalated",
		}),
		AuditIntegrityFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "compliance_audit_integrity_failures_total",
			Help: "Audit entries whose signature failed verification on read",
		}),
		ConsentsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "compliance_consents_expired_total",
			Help: "Consent records transitioned to EXPIRED by the batch job",
		}),
		ReportsGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "compliance_reports_generated_total",
			Help: "Compliance reports generated",
		}),
		GSTValidationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "compliance_gst_validation_failures_total",
			Help: "GST details classified with validation errors",
		}),
	}
}
