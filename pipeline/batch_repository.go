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
	ErrNoBatches = errors.New("no batch entries ready for flushing")
	ErrLostClaim = errors.New("batch claim lost to a concurrent invocation")
)

// BatchRepository owns the batch queue table. Entries wait out the
// aggregation delay here; flushing claims them with the same conditional
// UPDATE discipline as the email queue.
type BatchRepository struct {
	db            *sql.DB
	cfg           *config.Config
	queryProvider batchQueryProvider
}

func NewBatchRepository(db *sql.DB, cfg *config.Config) BatchRepository {
	return NewBatchRepositoryWithQueryProvider(db, cfg, newQueryProvider(cfg.DBDriver))
}

func NewBatchRepositoryWithQueryProvider(db *sql.DB, cfg *config.Config, qp batchQueryProvider) BatchRepository {
	return BatchRepository{
		db:            db,
		cfg:           cfg,
		queryProvider: qp,
	}
}

// Append records one scraper finding for one subscription.
func (r BatchRepository) Append(entry *BatchEntry) error {
	appts, err := marshalAppointments(entry.Appointments)
	if err != nil {
		return errors.Errorf("pipeline: error encoding appointment payload for batch entry: %s", err)
	}

	_, err = r.db.Exec(r.queryProvider.BatchInsertSql(), entry.SubscriptionId, appts, entry.IsUrgent, entry.ScheduledSendTime.In(time.UTC))
	if err != nil {
		return errors.Errorf("pipeline: error inserting batch entry in repository: %s", err)
	}

	return nil
}

// ClaimReady claims up to limit pending entries whose send time has
// arrived, urgent first. Entries claimed by a flush that never completed
// are reclaimable once their claim is older than the processing timeout.
// Returns ErrNoBatches when nothing is ready.
func (r BatchRepository) ClaimReady(limit int) (*FlushSet, error) {
	claimId := uuid.New()
	now := time.Now().In(time.UTC)
	stale := now.Add(-r.cfg.GetProcessingTimeout())

	res, err := r.db.Exec(r.queryProvider.BatchClaimSql(limit), claimId, now, stale)
	if err != nil {
		return nil, errors.Errorf("pipeline: error claiming ready batch entries in repository: %s", err)
	}

	count, _ := res.RowsAffected()
	if count < 1 {
		return nil, ErrNoBatches
	}

	rows, err := r.db.Query(r.queryProvider.BatchFetchClaimSql(), claimId)
	if err != nil {
		return nil, errors.Errorf("pipeline: error fetching claimed batch entries in repository: %s", err)
	}
	defer rows.Close()

	set := &FlushSet{
		Id:      claimId,
		Entries: []*BatchEntry{},
	}

	for rows.Next() {
		entry, err := scanBatchEntry(rows)
		if err != nil {
			return nil, err
		}
		set.Entries = append(set.Entries, entry)
	}

	return set, nil
}

// CompleteFlush finishes one subscription's flush in a single transaction:
// the consumed entries flip to sent, and, when the merged union produced an
// email, the job is enqueued and the subscription counter advanced. If a
// concurrent invocation got to the entries first, nothing is written and
// ErrLostClaim is returned so the caller can treat the race as a no-op.
func (r BatchRepository) CompleteFlush(result FlushResult) error {
	tx, err := r.db.Begin()
	if err != nil {
		return errors.Errorf("pipeline: error starting a DB transaction to complete the flush: %s", err)
	}

	args := make([]interface{}, 0, len(result.EntryIds)+1)
	args = append(args, result.ClaimId)
	for _, id := range result.EntryIds {
		args = append(args, id)
	}

	res, err := tx.Exec(r.queryProvider.BatchCompleteSql(len(result.EntryIds)), args...)
	if err != nil {
		r.rollback(tx)
		return errors.Errorf("pipeline: error marking batch entries as sent in repository: %s", err)
	}

	count, _ := res.RowsAffected()
	if count < 1 {
		r.rollback(tx)
		return ErrLostClaim
	}

	if result.Job != nil {
		appts, err := marshalAppointments(result.Job.Appointments)
		if err != nil {
			r.rollback(tx)
			return errors.Errorf("pipeline: error encoding appointment payload for flushed email job: %s", err)
		}

		_, err = tx.Exec(r.queryProvider.JobInsertSql(), result.Job.SubscriptionId, result.Job.To, result.Job.Subject, result.Job.Html, result.Job.Text, appts, result.Job.Priority, time.Now().In(time.UTC))
		if err != nil {
			r.rollback(tx)
			return errors.Errorf("pipeline: error inserting flushed email job in repository: %s", err)
		}

		_, err = tx.Exec(r.queryProvider.SubscriptionNotifiedUpdateSql(), result.Subscription.Id)
		if err != nil {
			r.rollback(tx)
			return errors.Errorf("pipeline: error advancing notification counter for subscription %s: %s", result.Subscription.Id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Errorf("pipeline: error committing transaction for flush: %s", err)
	}

	log.Logger.WithFields(logrus.Fields{
		"claim_id":    result.ClaimId.String(),
		"num_entries": len(result.EntryIds),
		"email_queued": result.Job != nil,
	}).Debug("batch flush committed")

	return nil
}

// DeleteProcessed purges consumed entries processed before the cutoff.
func (r BatchRepository) DeleteProcessed(olderThan time.Time) (int64, error) {
	res, err := r.db.Exec(r.queryProvider.BatchDeleteProcessedSql(), olderThan)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (r BatchRepository) rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil {
		log.Logger.Errorf("error rolling back the DB transaction: %s", err)
	}
}

func scanBatchEntry(rows *sql.Rows) (*BatchEntry, error) {
	entry := &BatchEntry{}
	var appts []byte
	var claimId sql.NullString
	var status string

	err := rows.Scan(&entry.Id, &entry.SubscriptionId, &appts, &entry.IsUrgent, &entry.ScheduledSendTime, &status, &claimId, &entry.ClaimedAt, &entry.ProcessedAt, &entry.CreatedAt)
	if err != nil {
		return nil, errors.Errorf("pipeline: error scanning batch entry result into memory in repository: %s", err)
	}

	entry.Status = BatchStatus(status)

	if entry.Appointments, err = unmarshalAppointments(appts); err != nil {
		return nil, errors.Errorf("pipeline: error decoding appointment payload for batch entry %d: %s", entry.Id, err)
	}

	if claimId.Valid {
		id, err := uuid.Parse(claimId.String)
		if err != nil {
			return nil, errors.Errorf("pipeline: invalid claim id on batch entry %d: %s", entry.Id, err)
		}
		entry.ClaimId = &id
	}

	return entry, nil
}
