// Package processor is the orchestration entry point for each scheduled
// trigger: flush ready batches into email jobs, drain the email queue
// through the circuit-breaker-guarded dispatcher, and opportunistically run
// retention cleanup. Every invocation is self-contained and safe to overlap
// with another; all cross-invocation coordination happens through the
// conditional updates in the repositories.
package processor

import (
	"math/rand"
	"time"

	"torramel/notify-relay/breaker"
	"torramel/notify-relay/config"
	"torramel/notify-relay/log"
	"torramel/notify-relay/mailer"
	"torramel/notify-relay/pipeline"
	"torramel/notify-relay/pipeline/aggregator"
	"torramel/notify-relay/retry"

	"github.com/sirupsen/logrus"
)

type jobRepository interface {
	ClaimDue(limit int) (*pipeline.JobClaim, error)
	CommitClaim(claim *pipeline.JobClaim)
	Stats() (pipeline.QueueStats, error)
}

type dedupLedger interface {
	RecordSent(subscriptionId string, appt pipeline.Appointment) error
}

type circuitBreaker interface {
	Allow() (bool, string, error)
	RecordSuccess() error
	RecordFailure() error
	State() (breaker.Snapshot, error)
}

type batchFlusher interface {
	Flush(limit int) (aggregator.FlushSummary, error)
}

type maintenanceJob interface {
	Execute() error
}

type Processor struct {
	jobs        jobRepository
	ledger      dedupLedger
	breaker     circuitBreaker
	dispatcher  mailer.Dispatcher
	flusher     batchFlusher
	maintenance maintenanceJob
	policy      retry.Policy
	cfg         *config.Config
}

func New(jobs jobRepository, ledger dedupLedger, cb circuitBreaker, dispatcher mailer.Dispatcher, flusher batchFlusher, maintenance maintenanceJob, policy retry.Policy, cfg *config.Config) Processor {
	return Processor{
		jobs:        jobs,
		ledger:      ledger,
		breaker:     cb,
		dispatcher:  dispatcher,
		flusher:     flusher,
		maintenance: maintenance,
		policy:      policy,
		cfg:         cfg,
	}
}

// QueueSummary is the observable result of one email queue drain.
type QueueSummary struct {
	Processed      int                 `json:"processed"`
	Errors         int                 `json:"errors"`
	Deferred       int                 `json:"deferred"`
	StatsBefore    pipeline.QueueStats `json:"queueStatsBefore"`
	StatsAfter     pipeline.QueueStats `json:"queueStatsAfter"`
	CircuitBreaker breaker.Snapshot    `json:"circuitBreakerState"`
}

// RunSummary is the structured report of one full trigger invocation.
type RunSummary struct {
	Flush      aggregator.FlushSummary `json:"flush"`
	Queue      QueueSummary            `json:"queue"`
	CleanupRan bool                    `json:"cleanupRan"`
	Errors     int                     `json:"errors"`
}

// ProcessEmailQueue drains up to limit due jobs through the dispatcher.
// A refusal from the circuit breaker defers the job without consuming an
// attempt; a dispatch failure counts one attempt and schedules the next
// try with exponential backoff. Ledger rows are written only after a
// confirmed successful dispatch.
func (p Processor) ProcessEmailQueue(limit int) (QueueSummary, error) {
	var summary QueueSummary

	statsBefore, err := p.jobs.Stats()
	if err != nil {
		log.Logger.WithError(err).Error("unable to read queue stats before processing")
		summary.Errors++
	}
	summary.StatsBefore = statsBefore

	claim, err := p.jobs.ClaimDue(limit)
	if err != nil && err != pipeline.ErrNoJobs {
		return summary, err
	}

	if claim != nil && len(claim.Jobs) > 0 {
		log.Logger.WithFields(logrus.Fields{
			"claim_id": claim.Id.String(),
			"num_jobs": len(claim.Jobs),
		}).Info("processing claimed email jobs")

		for _, j := range claim.Jobs {
			p.dispatchJob(j, &summary)
		}

		p.jobs.CommitClaim(claim)
	}

	statsAfter, err := p.jobs.Stats()
	if err != nil {
		log.Logger.WithError(err).Error("unable to read queue stats after processing")
		summary.Errors++
	}
	summary.StatsAfter = statsAfter

	snap, err := p.breaker.State()
	if err != nil {
		log.Logger.WithError(err).Error("unable to read circuit breaker state for the run summary")
		summary.Errors++
	}
	summary.CircuitBreaker = snap

	return summary, nil
}

func (p Processor) dispatchJob(j *pipeline.EmailJob, summary *QueueSummary) {
	now := time.Now().In(time.UTC)

	allowed, reason, err := p.breaker.Allow()
	if err != nil {
		log.Logger.WithError(err).Errorf("unable to consult the circuit breaker for email job %d, deferring", j.Id)
		summary.Errors++
		j.Outcome = pipeline.OutcomeDeferred
		j.RetryAt = now.Add(p.cfg.GetBreakerCooldown())
		return
	}

	if !allowed {
		log.Logger.WithFields(logrus.Fields{"job_id": j.Id, "reason": reason}).Info("circuit breaker refused dispatch, deferring email job")
		summary.Deferred++
		j.Outcome = pipeline.OutcomeDeferred
		j.RetryAt = now.Add(p.cfg.GetBreakerCooldown())
		return
	}

	if err := p.dispatcher.Dispatch(j); err != nil {
		if berr := p.breaker.RecordFailure(); berr != nil {
			log.Logger.WithError(berr).Error("unable to record dispatch failure on the circuit breaker")
		}

		j.Outcome = pipeline.OutcomeFailed
		j.Err = err
		j.RetryAt = p.policy.NextRetryAt(now, j.Attempts+1)
		summary.Errors++

		log.Logger.WithFields(logrus.Fields{"job_id": j.Id, "attempts": j.Attempts + 1}).WithError(err).Warn("email dispatch failed")
		return
	}

	if berr := p.breaker.RecordSuccess(); berr != nil {
		log.Logger.WithError(berr).Error("unable to record dispatch success on the circuit breaker")
	}

	j.Outcome = pipeline.OutcomeSent
	summary.Processed++

	p.recordSentAppointments(j, summary)
}

func (p Processor) recordSentAppointments(j *pipeline.EmailJob, summary *QueueSummary) {
	if !j.SubscriptionId.Valid {
		return
	}

	for _, appt := range j.Appointments {
		err := p.ledger.RecordSent(j.SubscriptionId.String, appt)
		if err == pipeline.ErrAlreadySent {
			log.Logger.WithFields(logrus.Fields{
				"subscription_id": j.SubscriptionId.String,
				"date":            appt.Date,
			}).Info("appointment was already recorded in the ledger")
			continue
		}
		if err != nil {
			log.Logger.WithError(err).Errorf("unable to record sent appointment for email job %d", j.Id)
			summary.Errors++
		}
	}
}

// Run executes one full processing cycle in the fixed order: batch flush
// first so appointments discovered earlier in the run are eligible for this
// run's dispatch, then the queue drain, then sampled retention cleanup.
// Errors in one phase are reported in the summary and never abort the rest
// of the cycle.
func (p Processor) Run() (RunSummary, error) {
	var summary RunSummary

	flushSum, err := p.flusher.Flush(p.cfg.FlushLimit)
	if err != nil {
		log.Logger.WithError(err).Error("batch flush failed")
		summary.Errors++
	}
	summary.Flush = flushSum

	queueSum, err := p.ProcessEmailQueue(p.cfg.QueueDrainLimit)
	if err != nil {
		log.Logger.WithError(err).Error("email queue drain failed")
		summary.Errors++
	}
	summary.Queue = queueSum

	if p.maintenance != nil && p.cfg.CleanupSampling > 0 && rand.Intn(p.cfg.CleanupSampling) == 0 {
		if err := p.maintenance.Execute(); err != nil {
			log.Logger.WithError(err).Error("opportunistic retention cleanup failed")
			summary.Errors++
		} else {
			summary.CleanupRan = true
		}
	}

	summary.Errors += flushSum.Errors + queueSum.Errors

	return summary, nil
}
