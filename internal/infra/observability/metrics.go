package observability

import (
	"time"

	"github.com/boddenberg/bank-ledger/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Operation status labels.
const (
	StatusOK       = "ok"
	StatusRejected = "rejected"
)

// Login result labels.
const (
	LoginOK              = "ok"
	LoginInvalidPassword = "invalid_password"
	LoginLocked          = "locked"
	LoginUnknownUser     = "unknown_user"
)

// Metrics holds all Prometheus metrics for the ledger.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	operations        *prometheus.CounterVec
	logins            *prometheus.CounterVec
	lockouts          prometheus.Counter
	storeFailures     *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_operation_duration_seconds",
				Help:    "Duration of ledger and credential operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_operations_total",
				Help: "Total ledger operations by outcome.",
			},
			[]string{"operation", "status"},
		),
		logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_logins_total",
				Help: "Total login attempts by result.",
			},
			[]string{"result"},
		),
		lockouts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_lockouts_total",
				Help: "Total credentials locked after repeated failures.",
			},
		),
		storeFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_store_failures_total",
				Help: "Total snapshot writes that failed.",
			},
			[]string{"store"},
		),
	}
}

// RecordDuration records the duration of an operation.
func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrOperation counts one ledger operation with its outcome.
func (m *Metrics) IncrOperation(operation, status string) {
	m.operations.WithLabelValues(operation, status).Inc()
}

// IncrLogin counts one login attempt.
func (m *Metrics) IncrLogin(result string) {
	m.logins.WithLabelValues(result).Inc()
}

// IncrLockout counts a credential that just became locked.
func (m *Metrics) IncrLockout() {
	m.lockouts.Inc()
}

// IncrStoreFailure counts a failed snapshot write.
func (m *Metrics) IncrStoreFailure(store string) {
	m.storeFailures.WithLabelValues(store).Inc()
}

// ActivitySnapshot reads the current counter values for the admin stats screen.
func (m *Metrics) ActivitySnapshot() domain.ActivityStats {
	rejected := int64(0)
	for _, op := range []string{"create", "deposit", "withdraw", "delete"} {
		rejected += int64(getCounterValue(m.operations, op, StatusRejected))
	}
	failed := getCounterValue(m.logins, LoginInvalidPassword) +
		getCounterValue(m.logins, LoginLocked) +
		getCounterValue(m.logins, LoginUnknownUser)

	return domain.ActivityStats{
		Deposits:        int64(getCounterValue(m.operations, "deposit", StatusOK)),
		Withdrawals:     int64(getCounterValue(m.operations, "withdraw", StatusOK)),
		AccountsCreated: int64(getCounterValue(m.operations, "create", StatusOK)),
		AccountsDeleted: int64(getCounterValue(m.operations, "delete", StatusOK)),
		Rejected:        rejected,
		LoginsOK:        int64(getCounterValue(m.logins, LoginOK)),
		LoginsFailed:    int64(failed),
		Lockouts:        int64(metricValue(m.lockouts)),
		StoreFailures: int64(getCounterValue(m.storeFailures, "ledger") +
			getCounterValue(m.storeFailures, "credentials")),
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	return metricValue(cv.WithLabelValues(labels...))
}

func metricValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
