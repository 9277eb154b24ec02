package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolStats) }

var dbPoolStats = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "db_pool_connections",
		Help: "Current state of the ledger database connection pool.",
	},
	[]string{"state"}, // total | idle | in_use
)

// PoolStat is satisfied by *pgxpool.Stat.
type PoolStat interface {
	TotalConns() int32
	IdleConns() int32
	AcquiredConns() int32
}

func ObservePool(s PoolStat) {
	dbPoolStats.WithLabelValues("total").Set(float64(s.TotalConns()))
	dbPoolStats.WithLabelValues("idle").Set(float64(s.IdleConns()))
	dbPoolStats.WithLabelValues("in_use").Set(float64(s.AcquiredConns()))
}
