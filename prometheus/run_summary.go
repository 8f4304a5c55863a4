package prometheus

import (
	"torramel/notify-relay/pipeline/processor"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	emailsProcessed prom.Counter
	emailsDeferred  prom.Counter
	runErrors       prom.Counter
	emailsQueued    prom.Counter
)

func init() {
	emailsProcessed = promauto.NewCounter(prom.CounterOpts{
		Name: "notify_relay_emails_processed_total",
		Help: "The total number of emails successfully dispatched",
	})
	emailsDeferred = promauto.NewCounter(prom.CounterOpts{
		Name: "notify_relay_emails_deferred_total",
		Help: "The total number of email jobs deferred by the circuit breaker",
	})
	runErrors = promauto.NewCounter(prom.CounterOpts{
		Name: "notify_relay_run_errors_total",
		Help: "The total number of errors across processing cycles",
	})
	emailsQueued = promauto.NewCounter(prom.CounterOpts{
		Name: "notify_relay_emails_queued_total",
		Help: "The total number of email jobs created by batch flushes",
	})
}

// ObserveRun folds one processing cycle summary into the counters and the
// queue and breaker gauges.
func ObserveRun(summary processor.RunSummary) {
	emailsProcessed.Add(float64(summary.Queue.Processed))
	emailsDeferred.Add(float64(summary.Queue.Deferred))
	emailsQueued.Add(float64(summary.Flush.EmailsQueued))
	runErrors.Add(float64(summary.Errors))

	setQueueStats(summary.Queue.StatsAfter)
	setBreakerState(summary.Queue.CircuitBreaker)
}
