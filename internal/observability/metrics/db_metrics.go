package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const dbScrapeTimeout = 2 * time.Second

// dbCollector reads backlog gauges straight from Postgres on each scrape.
type dbCollector struct {
	db     *sql.DB
	logger *zap.Logger
	gauges []dbGauge
}

type dbGauge struct {
	desc  *prometheus.Desc
	query string
}

func newDBCollector(db *sql.DB, logger *zap.Logger) *dbCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	gauge := func(name, help, query string) dbGauge {
		return dbGauge{desc: prometheus.NewDesc(metricPrefix+name, help, nil, nil), query: query}
	}
	return &dbCollector{
		db:     db,
		logger: logger,
		gauges: []dbGauge{
			gauge("event_outbox_pending", "Undelivered outbox events.",
				"SELECT COUNT(*) FROM event_outbox WHERE status = 'pending'"),
			gauge("event_dlq_count", "Dead-lettered events.",
				"SELECT COUNT(*) FROM dead_letter_events"),
			gauge("overdue_records", "Unpaid fee records past their due date.",
				"SELECT COUNT(*) FROM fee_records WHERE status IN ('PENDING','PARTIALLY_PAID') AND due_date < CURRENT_DATE"),
		},
	}
}

func (c *dbCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range c.gauges {
		ch <- g.desc
	}
}

// Collect skips a gauge whose query fails rather than reporting zero.
func (c *dbCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), dbScrapeTimeout)
	defer cancel()
	for _, g := range c.gauges {
		var n int64
		if err := c.db.QueryRowContext(ctx, g.query).Scan(&n); err != nil {
			c.logger.Warn("metrics query failed", zap.String("metric", g.desc.String()), zap.Error(err))
			continue
		}
		ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, float64(n))
	}
}
