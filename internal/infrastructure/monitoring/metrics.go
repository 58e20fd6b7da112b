package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

type DBMetrics struct {
	QueryDuration *prometheus.HistogramVec
}

type LedgerMetrics struct {
	OperationsTotal *prometheus.CounterVec
	PointsTotal     *prometheus.CounterVec
	CreditIssued    prometheus.Counter
	CreditRepaid    prometheus.Counter
}

type SweepMetrics struct {
	RunsTotal       *prometheus.CounterVec
	OverdueCredits  prometheus.Gauge
	OverdueAmount   prometheus.Gauge
	BlockedTotal    prometheus.Counter
	LastRunDuration prometheus.Gauge
}

var (
	HTTP = HTTPMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pos_ledger_http_requests_total",
				Help: "Total number of HTTP requests received.",
			},
			[]string{"method", "path", "code"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pos_ledger_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "code"},
		),
	}

	DB = DBMetrics{
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pos_ledger_db_query_duration_seconds",
				Help:    "Histogram of database query latencies.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"query_name", "status"},
		),
	}

	Ledger = LedgerMetrics{
		OperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pos_ledger_operations_total",
				Help: "Ledger operations by name and outcome.",
			},
			[]string{"op", "status"},
		),
		PointsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pos_ledger_loyalty_points_total",
				Help: "Loyalty points accrued or redeemed.",
			},
			[]string{"direction"},
		),
		CreditIssued: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pos_ledger_credit_issued_amount_total",
				Help: "Sum of principal of all credits issued.",
			},
		),
		CreditRepaid: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pos_ledger_credit_repaid_amount_total",
				Help: "Sum of all accepted credit payments.",
			},
		),
	}

	Sweep = SweepMetrics{
		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pos_ledger_overdue_sweep_runs_total",
				Help: "Overdue sweep runs by outcome.",
			},
			[]string{"status"},
		),
		OverdueCredits: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pos_ledger_overdue_credits",
				Help: "Number of overdue credits found by the last sweep.",
			},
		),
		OverdueAmount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pos_ledger_overdue_amount",
				Help: "Outstanding amount of overdue credits found by the last sweep.",
			},
		),
		BlockedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pos_ledger_customers_blocked_total",
				Help: "Customers blocked by the overdue sweep.",
			},
		),
		LastRunDuration: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pos_ledger_overdue_sweep_duration_seconds",
				Help: "Duration of the last overdue sweep.",
			},
		),
	}
)

func RecordHTTPRequest(method, path, code string, duration time.Duration) {
	HTTP.RequestsTotal.WithLabelValues(method, path, code).Inc()
	HTTP.RequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
}

func RecordDBQuery(queryName, status string, duration time.Duration) {
	DB.QueryDuration.WithLabelValues(queryName, status).Observe(duration.Seconds())
}

// RecordOperation counts one engine call; status is "success" or the error code.
func RecordOperation(op, status string) {
	Ledger.OperationsTotal.WithLabelValues(op, status).Inc()
}

func RecordPointsAccrued(points int64) {
	if points > 0 {
		Ledger.PointsTotal.WithLabelValues("accrued").Add(float64(points))
	}
}

func RecordPointsRedeemed(points int64) {
	if points > 0 {
		Ledger.PointsTotal.WithLabelValues("redeemed").Add(float64(points))
	}
}

func RecordCreditIssued(amount float64) {
	Ledger.CreditIssued.Add(amount)
}

func RecordCreditRepaid(amount float64) {
	Ledger.CreditRepaid.Add(amount)
}

func RecordSweep(status string, overdueCredits int, overdueAmount float64, duration time.Duration) {
	Sweep.RunsTotal.WithLabelValues(status).Inc()
	Sweep.LastRunDuration.Set(duration.Seconds())
	if status == "success" {
		Sweep.OverdueCredits.Set(float64(overdueCredits))
		Sweep.OverdueAmount.Set(overdueAmount)
	}
}

func RecordCustomerBlocked() {
	Sweep.BlockedTotal.Inc()
}
