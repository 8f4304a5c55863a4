package pipeline

import (
	"database/sql"
	"time"

	"torramel/notify-relay/config"
	"torramel/notify-relay/log"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoJobs       = errors.New("no email jobs due for dispatch")
	ErrNotRetryable = errors.New("job is not in a retryable state")
)

// JobRepository owns the email queue table. Claiming is a conditional
// UPDATE stamping a fresh claim id onto due rows, so two overlapping
// invocations can never dispatch the same job: the loser's UPDATE simply
// matches zero rows.
type JobRepository struct {
	db            *sql.DB
	cfg           *config.Config
	queryProvider jobQueryProvider
}

func NewJobRepository(db *sql.DB, cfg *config.Config) JobRepository {
	return NewJobRepositoryWithQueryProvider(db, cfg, newQueryProvider(cfg.DBDriver))
}

func NewJobRepositoryWithQueryProvider(db *sql.DB, cfg *config.Config, qp jobQueryProvider) JobRepository {
	return JobRepository{
		db:            db,
		cfg:           cfg,
		queryProvider: qp,
	}
}

// Enqueue appends a pending job with its retry timer set to now, so it is
// eligible on the next drain.
func (r JobRepository) Enqueue(job *EmailJob) error {
	appts, err := marshalAppointments(job.Appointments)
	if err != nil {
		return errors.Errorf("pipeline: error encoding appointment payload for email job: %s", err)
	}

	_, err = r.db.Exec(r.queryProvider.JobInsertSql(), job.SubscriptionId, job.To, job.Subject, job.Html, job.Text, appts, job.Priority, time.Now().In(time.UTC))
	if err != nil {
		return errors.Errorf("pipeline: error inserting email job in repository: %s", err)
	}

	return nil
}

// ClaimDue moves up to limit due jobs to processing under a new claim id
// and returns them, urgent priority first then FIFO. Rows stuck in
// processing longer than the configured timeout are reclaimed here, with
// the timed-out attempt counted against them. Returns ErrNoJobs when
// nothing is due.
func (r JobRepository) ClaimDue(limit int) (*JobClaim, error) {
	claimId := uuid.New()
	now := time.Now().In(time.UTC)
	stale := now.Add(-r.cfg.GetProcessingTimeout())

	res, err := r.db.Exec(r.queryProvider.JobClaimSql(limit), claimId, now, stale)
	if err != nil {
		return nil, errors.Errorf("pipeline: error claiming due email jobs in repository: %s", err)
	}

	// if there is an error determining the affected rows, we treat it as a
	// failed claim as the drivers we use never return an error value here
	count, _ := res.RowsAffected()
	if count < 1 {
		return nil, ErrNoJobs
	}

	rows, err := r.db.Query(r.queryProvider.JobFetchClaimSql(), claimId)
	if err != nil {
		return nil, errors.Errorf("pipeline: error fetching claimed email jobs in repository: %s", err)
	}
	defer rows.Close()

	claim := &JobClaim{
		Id:   claimId,
		Jobs: []*EmailJob{},
	}

	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		claim.Jobs = append(claim.Jobs, job)
	}

	return claim, nil
}

// CommitClaim persists the outcome of every job in the claim. Each update
// is guarded by the claim id, so a claim that was reclaimed elsewhere in
// the meantime updates nothing.
func (r JobRepository) CommitClaim(claim *JobClaim) {
	log.Logger.WithFields(logrus.Fields{
		"claim_id": claim.Id.String(),
		"num_jobs": len(claim.Jobs),
	}).Debug("starting claim commit")

	tx, err := r.db.Begin()
	if err != nil {
		log.Logger.Errorf("error occurred starting a DB transaction to commit the claim: %s", err)
		return
	}

	for _, job := range claim.Jobs {
		r.commitJob(tx, claim.Id, job)
	}

	if err = tx.Commit(); err != nil {
		log.Logger.Errorf("error occurred committing transaction for claim: %s", err)
	}
}

func (r JobRepository) commitJob(tx *sql.Tx, claimId uuid.UUID, job *EmailJob) {
	var err error

	switch job.Outcome {
	case OutcomeSent:
		_, err = tx.Exec(r.queryProvider.JobSentUpdateSql(), job.Id, claimId)
	case OutcomeFailed:
		reason := "unknown dispatch error"
		if job.Err != nil {
			reason = job.Err.Error()
		}
		_, err = tx.Exec(r.queryProvider.JobFailedUpdateSql(r.cfg.MaxSendAttempts), reason, job.retryAt(), job.Id, claimId)
	default:
		// deferred by the circuit breaker, or never handed to the
		// dispatcher at all; either way the attempt counter stays put
		_, err = tx.Exec(r.queryProvider.JobDeferredUpdateSql(), job.retryAt(), job.Id, claimId)
	}

	if err != nil {
		log.Logger.Errorf("error occurred updating the email job with ID %d: %s", job.Id, err)
	}
}

func (j *EmailJob) retryAt() time.Time {
	if j.RetryAt.IsZero() {
		return time.Now().In(time.UTC)
	}
	return j.RetryAt
}

// Stats returns a per-status row count snapshot for monitoring. It is a
// read-only summary and plays no part in delivery correctness.
func (r JobRepository) Stats() (QueueStats, error) {
	var stats QueueStats

	rows, err := r.db.Query(r.queryProvider.JobStatsSql())
	if err != nil {
		return stats, errors.Errorf("pipeline: error fetching email queue stats in repository: %s", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count uint
		if err := rows.Scan(&status, &count); err != nil {
			return stats, errors.Errorf("pipeline: error scanning email queue stats in repository: %s", err)
		}
		stats.add(JobStatus(status), count)
	}

	return stats, nil
}

// RetryJob is the admin escape hatch for a terminal job: attempts go back
// to zero and the retry timer is cleared. Returns ErrNotRetryable when the
// job is not failed or abandoned.
func (r JobRepository) RetryJob(id int64) error {
	res, err := r.db.Exec(r.queryProvider.JobRetrySql(), id)
	if err != nil {
		return errors.Errorf("pipeline: error resetting email job %d in repository: %s", id, err)
	}

	count, _ := res.RowsAffected()
	if count < 1 {
		return ErrNotRetryable
	}

	return nil
}

// AbandonFailed bulk-moves every failed job to abandoned and returns how
// many were moved.
func (r JobRepository) AbandonFailed() (int64, error) {
	res, err := r.db.Exec(r.queryProvider.JobAbandonFailedSql())
	if err != nil {
		return 0, errors.Errorf("pipeline: error abandoning failed email jobs in repository: %s", err)
	}

	return res.RowsAffected()
}

// DeleteTerminal purges sent and abandoned jobs created before the cutoff.
func (r JobRepository) DeleteTerminal(olderThan time.Time) (int64, error) {
	res, err := r.db.Exec(r.queryProvider.JobDeleteTerminalSql(), olderThan)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func scanJob(rows *sql.Rows) (*EmailJob, error) {
	job := &EmailJob{}
	var appts []byte
	var claimId sql.NullString
	var status string

	err := rows.Scan(&job.Id, &job.SubscriptionId, &job.To, &job.Subject, &job.Html, &job.Text, &appts, &job.Priority, &status, &job.Attempts, &job.LastError, &job.NextRetryAt, &claimId, &job.SentAt, &job.CreatedAt)
	if err != nil {
		return nil, errors.Errorf("pipeline: error scanning email job result into memory in repository: %s", err)
	}

	job.Status = JobStatus(status)

	if job.Appointments, err = unmarshalAppointments(appts); err != nil {
		return nil, errors.Errorf("pipeline: error decoding appointment payload for email job %d: %s", job.Id, err)
	}

	if claimId.Valid {
		id, err := uuid.Parse(claimId.String)
		if err != nil {
			return nil, errors.Errorf("pipeline: invalid claim id on email job %d: %s", job.Id, err)
		}
		job.ClaimId = &id
	}

	return job, nil
}
