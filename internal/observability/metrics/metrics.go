package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "fees_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	structureOpsTotal *prometheus.CounterVec

	assignTotal   *prometheus.CounterVec
	assignLatency *prometheus.HistogramVec

	bulkAssignTotal   *prometheus.CounterVec
	bulkAssignLatency *prometheus.HistogramVec
	bulkMembersTotal  *prometheus.CounterVec

	settlementPreviewTotal *prometheus.CounterVec
	settlementWaivedAmount prometheus.Counter

	ledgerBuildLatency *prometheus.HistogramVec

	paymentEventsTotal *prometheus.CounterVec

	auditWriteFailures prometheus.Counter

	reminderTotal *prometheus.CounterVec

	rollForwardRecords prometheus.Counter

	lockWaitLatency *prometheus.HistogramVec

	consumerLag *prometheus.GaugeVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	outboxPublishTotal    *prometheus.CounterVec
	outboxPublishLatency  *prometheus.HistogramVec
	outboxDispatchTotal   *prometheus.CounterVec
	outboxDispatchLatency *prometheus.HistogramVec
	outboxDispatchEvents  *prometheus.CounterVec
)

// Init registers fee metrics and DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		structureOpsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "structure_ops_total",
				Help: "Fee structure catalog operations by operation and result",
			},
			[]string{"op", "result"},
		)

		assignTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "assign_total",
				Help: "Per-member assignment operations by result",
			},
			[]string{"result"},
		)
		assignLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "assign_latency_seconds",
				Help:    "Per-member assignment latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		bulkAssignTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bulk_assign_total",
				Help: "Bulk assignment batches by result",
			},
			[]string{"result"},
		)
		bulkAssignLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "bulk_assign_latency_seconds",
				Help:    "Bulk assignment batch latency in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"result"},
		)
		bulkMembersTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bulk_assign_members_total",
				Help: "Members processed by bulk assignment by outcome",
			},
			[]string{"outcome"},
		)

		settlementPreviewTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_preview_total",
				Help: "Settlement previews by result",
			},
			[]string{"result"},
		)
		settlementWaivedAmount = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_waived_amount_total",
				Help: "Total balance auto-waived by reassignment settlement",
			},
		)

		ledgerBuildLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ledger_build_latency_seconds",
				Help:    "Student ledger build latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		paymentEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payment_events_total",
				Help: "Payment, refund and waiver events by kind and mode",
			},
			[]string{"kind", "mode"},
		)

		auditWriteFailures = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "audit_write_failures_total",
				Help: "Audit entries that could not be persisted",
			},
		)

		reminderTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reminder_total",
				Help: "Fee reminders by result",
			},
			[]string{"result"},
		)

		rollForwardRecords = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "rollforward_records_total",
				Help: "Records generated by billing cycle roll-forward",
			},
		)

		lockWaitLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "member_lock_wait_seconds",
				Help:    "Time spent waiting for a member lock",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Ledger and audit exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		outboxPublishTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_publish_total",
				Help: "Outbox publish attempts by result",
			},
			[]string{"result"},
		)
		outboxPublishLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_publish_latency_seconds",
				Help:    "Outbox publish latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_total",
				Help: "Outbox dispatch runs by result",
			},
			[]string{"result"},
		)
		outboxDispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "outbox_dispatch_latency_seconds",
				Help:    "Outbox dispatch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		outboxDispatchEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "outbox_dispatch_events_total",
				Help: "Outbox events by dispatch outcome",
			},
			[]string{"status"},
		)

		prometheus.MustRegister(
			structureOpsTotal,
			assignTotal,
			assignLatency,
			bulkAssignTotal,
			bulkAssignLatency,
			bulkMembersTotal,
			settlementPreviewTotal,
			settlementWaivedAmount,
			ledgerBuildLatency,
			paymentEventsTotal,
			auditWriteFailures,
			reminderTotal,
			rollForwardRecords,
			lockWaitLatency,
			consumerLag,
			exportTotal,
			exportLatency,
			outboxPublishTotal,
			outboxPublishLatency,
			outboxDispatchTotal,
			outboxDispatchLatency,
			outboxDispatchEvents,
		)

		if db != nil {
			prometheus.MustRegister(newDBCollector(db, logger))
		}
	})
}

// IncStructureOp counts a catalog operation.
func IncStructureOp(op, result string) {
	if result == "" {
		result = resultSuccess
	}
	if structureOpsTotal != nil {
		structureOpsTotal.WithLabelValues(op, result).Inc()
	}
}

// ObserveAssign records a per-member assignment.
func ObserveAssign(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if assignTotal != nil {
		assignTotal.WithLabelValues(result).Inc()
	}
	if assignLatency != nil {
		assignLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveBulkAssign records a bulk batch and its per-outcome member counts.
func ObserveBulkAssign(result string, duration time.Duration, outcomes map[string]int) {
	if result == "" {
		result = resultSuccess
	}
	if bulkAssignTotal != nil {
		bulkAssignTotal.WithLabelValues(result).Inc()
	}
	if bulkAssignLatency != nil {
		bulkAssignLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if bulkMembersTotal != nil {
		for outcome, count := range outcomes {
			if count > 0 {
				bulkMembersTotal.WithLabelValues(outcome).Add(float64(count))
			}
		}
	}
}

// IncSettlementPreview counts a settlement preview.
func IncSettlementPreview(result string) {
	if result == "" {
		result = resultSuccess
	}
	if settlementPreviewTotal != nil {
		settlementPreviewTotal.WithLabelValues(result).Inc()
	}
}

// AddWaivedAmount adds auto-waived balance.
func AddWaivedAmount(amount float64) {
	if amount <= 0 {
		return
	}
	if settlementWaivedAmount != nil {
		settlementWaivedAmount.Add(amount)
	}
}

// ObserveLedgerBuild records ledger build latency.
func ObserveLedgerBuild(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ledgerBuildLatency != nil {
		ledgerBuildLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncPaymentEvent counts a payment, refund or waiver.
func IncPaymentEvent(kind, mode string) {
	if mode == "" {
		mode = "none"
	}
	if paymentEventsTotal != nil {
		paymentEventsTotal.WithLabelValues(kind, mode).Inc()
	}
}

// IncAuditWriteFailure counts an audit entry that was dropped.
func IncAuditWriteFailure() {
	if auditWriteFailures != nil {
		auditWriteFailures.Inc()
	}
}

// IncReminder counts a reminder attempt.
func IncReminder(result string) {
	if result == "" {
		result = resultSuccess
	}
	if reminderTotal != nil {
		reminderTotal.WithLabelValues(result).Inc()
	}
}

// AddRollForwardRecords counts generated cycle records.
func AddRollForwardRecords(count int) {
	if count <= 0 {
		return
	}
	if rollForwardRecords != nil {
		rollForwardRecords.Add(float64(count))
	}
}

// ObserveLockWait records member lock acquisition time.
func ObserveLockWait(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if lockWaitLatency != nil {
		lockWaitLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// ObserveOutboxPublish records outbox publish latency and result.
func ObserveOutboxPublish(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if outboxPublishTotal != nil {
		outboxPublishTotal.WithLabelValues(result).Inc()
	}
	if outboxPublishLatency != nil {
		outboxPublishLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveOutboxDispatch records outbox dispatch latency and outcomes.
func ObserveOutboxDispatch(result string, duration time.Duration, sent, failed, dlq int) {
	if result == "" {
		result = resultSuccess
	}
	if outboxDispatchTotal != nil {
		outboxDispatchTotal.WithLabelValues(result).Inc()
	}
	if outboxDispatchLatency != nil {
		outboxDispatchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if outboxDispatchEvents != nil {
		if sent > 0 {
			outboxDispatchEvents.WithLabelValues("sent").Add(float64(sent))
		}
		if failed > 0 {
			outboxDispatchEvents.WithLabelValues("failed").Add(float64(failed))
		}
		if dlq > 0 {
			outboxDispatchEvents.WithLabelValues("dlq").Add(float64(dlq))
		}
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	OutcomeSucceeded    = "succeeded"
	OutcomeFailed       = "failed"
	OutcomeSkipped      = "skipped"
	OutcomeNotAttempted = "not_attempted"
)
