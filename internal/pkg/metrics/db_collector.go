package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolStater is the part of *pgxpool.Pool the collector reads.
type PoolStater interface {
	Stat() *pgxpool.Stat
}

// RecordDBPoolMetrics snapshots pool statistics into the db_pool gauges.
func RecordDBPoolMetrics(pool PoolStater) {
	stats := pool.Stat()

	DBPoolConnections.WithLabelValues("in_use").Set(float64(stats.AcquiredConns()))
	DBPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	DBPoolConnections.WithLabelValues("constructing").Set(float64(stats.ConstructingConns()))
	DBPoolConnections.WithLabelValues("max").Set(float64(stats.MaxConns()))

	DBPoolAcquireWaitSeconds.Set(stats.AcquireDuration().Seconds())
	DBPoolEmptyAcquires.Set(float64(stats.EmptyAcquireCount()))
}

// WatchDBPool records pool statistics immediately and then every interval
// until ctx is cancelled.
func WatchDBPool(ctx context.Context, pool PoolStater, interval time.Duration) {
	RecordDBPoolMetrics(pool)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			RecordDBPoolMetrics(pool)
		case <-ctx.Done():
			return
		}
	}
}
