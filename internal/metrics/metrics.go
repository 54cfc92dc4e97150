package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LedgerAppends = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "feesvc", Name: "ledger_appends_total", Help: "Appended ledger entries",
	})
	PromotionRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "feesvc", Name: "promotion_runs_total", Help: "Session rollover runs",
	})
	PromotionErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "feesvc", Name: "promotion_errors_total", Help: "Failed session rollover runs",
	})
	PromotionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "feesvc", Name: "promotion_duration_seconds", Help: "Session rollover duration",
		Buckets: prometheus.DefBuckets,
	})
	DuesOutstanding = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "feesvc", Name: "dues_outstanding", Help: "Sum of positive student balances",
	})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "feesvc", Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(LedgerAppends, PromotionRuns, PromotionErrors, PromotionDuration, DuesOutstanding, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }
