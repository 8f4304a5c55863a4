// Package breaker guards the SMTP dispatcher with a circuit breaker whose
// state lives in a singleton database row, shared by every concurrent
// invocation of the pipeline. All transitions are conditional UPDATEs, so
// overlapping invocations agree on the state without any locks.
package breaker

import (
	"database/sql"
	"time"

	"torramel/notify-relay/config"
	"torramel/notify-relay/log"

	"github.com/pkg/errors"
)

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"

	singletonId = "default"
)

type State string

// Snapshot is a read-only view of the breaker row, reported in run
// summaries and on the admin surface.
type Snapshot struct {
	State               State      `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	FailureCount        int        `json:"failure_count"`
	TotalRequests       int        `json:"total_requests"`
	TotalFailures       int        `json:"total_failures"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	NextRetryAt         *time.Time `json:"next_retry_at,omitempty"`
}

type Breaker struct {
	db            *sql.DB
	cfg           *config.Config
	queryProvider queryProvider
}

func New(db *sql.DB, cfg *config.Config) Breaker {
	var qp queryProvider = mysqlQueryProvider{}
	if cfg.DBDriver.Postgres() {
		qp = postgresQueryProvider{}
	}

	return NewWithQueryProvider(db, cfg, qp)
}

func NewWithQueryProvider(db *sql.DB, cfg *config.Config, qp queryProvider) Breaker {
	return Breaker{
		db:            db,
		cfg:           cfg,
		queryProvider: qp,
	}
}

// Allow decides whether a dispatch may go ahead. Closed always allows.
// Open allows exactly one caller through once the cooldown has elapsed:
// the conditional UPDATE to half_open has a single winner, and that winner
// owns the trial dispatch. A breaker already in half_open also allows, so
// a trial whose invocation died does not wedge the breaker forever.
func (b Breaker) Allow() (bool, string, error) {
	snap, err := b.State()
	if err != nil {
		return false, "", err
	}

	switch snap.State {
	case Closed, HalfOpen:
		return true, "", nil
	case Open:
		now := time.Now().In(time.UTC)
		if snap.NextRetryAt != nil && !now.Before(*snap.NextRetryAt) {
			res, err := b.db.Exec(b.queryProvider.HalfOpenSql(), singletonId, now)
			if err != nil {
				return false, "", errors.Errorf("breaker: error transitioning circuit breaker to half-open: %s", err)
			}

			count, _ := res.RowsAffected()
			if count > 0 {
				log.Logger.Info("circuit breaker moved to half-open, allowing a trial dispatch")
				return true, "", nil
			}

			return false, "another invocation owns the half-open trial", nil
		}

		reason := "circuit breaker is open"
		if snap.NextRetryAt != nil {
			reason = "circuit breaker is open until " + snap.NextRetryAt.Format(time.RFC3339)
		}
		return false, reason, nil
	}

	return true, "", nil
}

// RecordSuccess closes the circuit and clears the consecutive failure run.
func (b Breaker) RecordSuccess() error {
	_, err := b.db.Exec(b.queryProvider.SuccessSql(), singletonId)
	if err != nil {
		return errors.Errorf("breaker: error recording dispatch success on circuit breaker: %s", err)
	}

	return nil
}

// RecordFailure advances the failure run and opens the circuit when the
// run reaches the configured threshold, or immediately when a half-open
// trial fails. The threshold comparison happens inside the UPDATE, so
// concurrent failures cannot both conclude "not yet".
func (b Breaker) RecordFailure() error {
	retryAt := time.Now().In(time.UTC).Add(b.cfg.GetBreakerCooldown())

	_, err := b.db.Exec(b.queryProvider.FailureSql(b.cfg.BreakerFailureThreshold), retryAt, singletonId)
	if err != nil {
		return errors.Errorf("breaker: error recording dispatch failure on circuit breaker: %s", err)
	}

	return nil
}

// Reset is the manual recovery action: force-close the circuit and zero
// the failure run.
func (b Breaker) Reset() error {
	_, err := b.db.Exec(b.queryProvider.ResetSql(), singletonId)
	if err != nil {
		return errors.Errorf("breaker: error resetting circuit breaker: %s", err)
	}

	log.Logger.Info("circuit breaker was manually reset to closed")

	return nil
}

func (b Breaker) State() (Snapshot, error) {
	var snap Snapshot
	var state string
	var lastFailure, lastSuccess, nextRetry sql.NullTime

	err := b.db.QueryRow(b.queryProvider.FetchSql(), singletonId).
		Scan(&state, &snap.ConsecutiveFailures, &snap.FailureCount, &snap.TotalRequests, &snap.TotalFailures, &lastFailure, &lastSuccess, &nextRetry)
	if err != nil {
		return snap, errors.Errorf("breaker: error fetching circuit breaker state: %s", err)
	}

	snap.State = State(state)
	if lastFailure.Valid {
		snap.LastFailureAt = &lastFailure.Time
	}
	if lastSuccess.Valid {
		snap.LastSuccessAt = &lastSuccess.Time
	}
	if nextRetry.Valid {
		snap.NextRetryAt = &nextRetry.Time
	}

	return snap, nil
}
