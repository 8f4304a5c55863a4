package pipeline

import (
	"database/sql"
	"encoding/json"
	"time"

	"torramel/notify-relay/config"

	"github.com/pkg/errors"
)

// ErrAlreadySent is the expected outcome of a dedup race: some other
// invocation recorded the same appointment first. Callers treat it as
// "already handled", never as a failure.
var ErrAlreadySent = errors.New("appointment already recorded as sent")

// Ledger is the append-only record of appointments a subscription has been
// notified about, keyed by (subscription, date, normalized time-set). The
// database uniqueness constraint over that key is the single enforcement
// point for "never double-notify".
type Ledger struct {
	db            *sql.DB
	queryProvider ledgerQueryProvider
}

func NewLedger(db *sql.DB, cfg *config.Config) Ledger {
	return NewLedgerWithQueryProvider(db, newQueryProvider(cfg.DBDriver))
}

func NewLedgerWithQueryProvider(db *sql.DB, qp ledgerQueryProvider) Ledger {
	return Ledger{
		db:            db,
		queryProvider: qp,
	}
}

// RecordSent inserts a ledger row for the appointment. Concurrent attempts
// on the same key race safely: exactly one insert wins and every other
// caller gets ErrAlreadySent.
func (l Ledger) RecordSent(subscriptionId string, appt Appointment) error {
	n := appt.Normalize()

	times, err := json.Marshal(n.Times)
	if err != nil {
		return errors.Errorf("pipeline: error encoding time slots for ledger row: %s", err)
	}

	res, err := l.db.Exec(l.queryProvider.LedgerInsertSql(), subscriptionId, n.Date, times, n.TimesKey())
	if err != nil {
		return errors.Errorf("pipeline: error inserting ledger row in repository: %s", err)
	}

	count, _ := res.RowsAffected()
	if count < 1 {
		return ErrAlreadySent
	}

	return nil
}

// HasBeenSent reports whether the exact (date, time-set) pair was already
// notified for the subscription.
func (l Ledger) HasBeenSent(subscriptionId string, appt Appointment) (bool, error) {
	n := appt.Normalize()

	var count uint
	err := l.db.QueryRow(l.queryProvider.LedgerExistsSql(), subscriptionId, n.Date, n.TimesKey()).Scan(&count)
	if err != nil {
		return false, errors.Errorf("pipeline: error checking ledger in repository: %s", err)
	}

	return count > 0, nil
}

// FilterNew returns only the appointments not yet recorded for the
// subscription, preserving input order.
func (l Ledger) FilterNew(subscriptionId string, appts []Appointment) ([]Appointment, error) {
	if len(appts) == 0 {
		return nil, nil
	}

	rows, err := l.db.Query(l.queryProvider.LedgerKeysFetchSql(), subscriptionId)
	if err != nil {
		return nil, errors.Errorf("pipeline: error fetching ledger keys in repository: %s", err)
	}
	defer rows.Close()

	sent := map[string]bool{}
	for rows.Next() {
		var date, timesKey string
		if err := rows.Scan(&date, &timesKey); err != nil {
			return nil, errors.Errorf("pipeline: error scanning ledger keys in repository: %s", err)
		}
		sent[date+"|"+timesKey] = true
	}

	var fresh []Appointment
	for _, a := range appts {
		if !sent[a.Key()] {
			fresh = append(fresh, a.Normalize())
		}
	}

	return fresh, nil
}

// DeleteOld purges ledger rows recorded before the cutoff. Retention only;
// rows inside the window are never touched.
func (l Ledger) DeleteOld(olderThan time.Time) (int64, error) {
	res, err := l.db.Exec(l.queryProvider.LedgerDeleteOldSql(), olderThan)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
