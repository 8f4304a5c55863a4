package sql

import (
	"fmt"
	"strings"
)

// PostgresQueryProvider builds the Postgres dialect of every pipeline query.
// Unlike MySQL, Postgres evaluates every UPDATE assignment against the
// pre-update row, so threshold expressions here always use the old value
// plus one.
type PostgresQueryProvider struct {
}

func (p PostgresQueryProvider) JobInsertSql() string {
	q := `INSERT INTO %s (subscription_id, email_to, subject, body_html, body_text, appointments, priority, status, attempts, last_error, next_retry_at, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', 0, '', $8, NOW(), NOW())`

	return fmt.Sprintf(q, JobsTable)
}

func (p PostgresQueryProvider) JobClaimSql(limit int) string {
	q := `UPDATE %s SET attempts = CASE WHEN status = 'processing' THEN attempts + 1 ELSE attempts END, last_error = CASE WHEN status = 'processing' THEN 'processing timed out' ELSE last_error END, claim_id = $1, status = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM %s WHERE ((status = 'pending' AND next_retry_at <= $2) OR (status = 'processing' AND updated_at < $3))
			ORDER BY priority DESC, created_at ASC LIMIT %d)`

	return fmt.Sprintf(q, JobsTable, JobsTable, limit)
}

func (p PostgresQueryProvider) JobFetchClaimSql() string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE claim_id = $1 ORDER BY priority DESC, created_at ASC`, strings.Join(JobColumns, ", "), JobsTable)
}

func (p PostgresQueryProvider) JobSentUpdateSql() string {
	return fmt.Sprintf(`UPDATE %s SET status = 'sent', sent_at = NOW(), last_error = '', claim_id = NULL, updated_at = NOW() WHERE id = $1 AND claim_id = $2`, JobsTable)
}

func (p PostgresQueryProvider) JobFailedUpdateSql(maxAttempts int) string {
	q := `UPDATE %s SET status = CASE WHEN attempts + 1 >= %d THEN 'failed' ELSE 'pending' END, last_error = $1, next_retry_at = $2, claim_id = NULL, attempts = attempts + 1, updated_at = NOW() WHERE id = $3 AND claim_id = $4`

	return fmt.Sprintf(q, JobsTable, maxAttempts)
}

func (p PostgresQueryProvider) JobDeferredUpdateSql() string {
	return fmt.Sprintf(`UPDATE %s SET status = 'pending', next_retry_at = $1, claim_id = NULL, updated_at = NOW() WHERE id = $2 AND claim_id = $3`, JobsTable)
}

func (p PostgresQueryProvider) JobStatsSql() string {
	return fmt.Sprintf(`SELECT status, COUNT(*) FROM %s GROUP BY status`, JobsTable)
}

func (p PostgresQueryProvider) JobRetrySql() string {
	return fmt.Sprintf(`UPDATE %s SET status = 'pending', attempts = 0, last_error = '', next_retry_at = NOW(), claim_id = NULL, updated_at = NOW() WHERE id = $1 AND status IN ('failed', 'abandoned')`, JobsTable)
}

func (p PostgresQueryProvider) JobAbandonFailedSql() string {
	return fmt.Sprintf(`UPDATE %s SET status = 'abandoned', updated_at = NOW() WHERE status = 'failed'`, JobsTable)
}

func (p PostgresQueryProvider) JobDeleteTerminalSql() string {
	return fmt.Sprintf(`DELETE FROM %s WHERE status IN ('sent', 'abandoned') AND created_at <= $1`, JobsTable)
}

func (p PostgresQueryProvider) BatchInsertSql() string {
	q := `INSERT INTO %s (subscription_id, appointments, is_urgent, scheduled_send_time, status, created_at) VALUES ($1, $2, $3, $4, 'pending', NOW())`

	return fmt.Sprintf(q, BatchTable)
}

func (p PostgresQueryProvider) BatchClaimSql(limit int) string {
	q := `UPDATE %s SET claim_id = $1, claimed_at = NOW()
		WHERE id IN (
			SELECT id FROM %s WHERE status = 'pending' AND scheduled_send_time <= $2 AND (claim_id IS NULL OR claimed_at < $3)
			ORDER BY is_urgent DESC, scheduled_send_time ASC LIMIT %d)`

	return fmt.Sprintf(q, BatchTable, BatchTable, limit)
}

func (p PostgresQueryProvider) BatchFetchClaimSql() string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE claim_id = $1 ORDER BY is_urgent DESC, scheduled_send_time ASC`, strings.Join(BatchColumns, ", "), BatchTable)
}

func (p PostgresQueryProvider) BatchCompleteSql(idCount int) string {
	q := `UPDATE %s SET status = 'sent', processed_at = NOW(), claim_id = NULL WHERE claim_id = $1 AND id IN (%s)`

	var placeholders []string
	for i := 2; i <= idCount+1; i++ {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i))
	}

	return fmt.Sprintf(q, BatchTable, strings.Join(placeholders, ", "))
}

func (p PostgresQueryProvider) BatchDeleteProcessedSql() string {
	return fmt.Sprintf(`DELETE FROM %s WHERE status = 'sent' AND processed_at <= $1`, BatchTable)
}

func (p PostgresQueryProvider) SubscriptionActiveFetchSql() string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE status = 'active' ORDER BY created_at ASC`, strings.Join(SubscriptionColumns, ", "), SubscriptionsTable)
}

func (p PostgresQueryProvider) SubscriptionExpireSql() string {
	return fmt.Sprintf(`UPDATE %s SET status = 'expired', updated_at = NOW() WHERE id = $1 AND status = 'active'`, SubscriptionsTable)
}

func (p PostgresQueryProvider) SubscriptionNotifiedUpdateSql() string {
	q := `UPDATE %s SET status = CASE WHEN notification_count + 1 >= max_notifications THEN 'max_reached' ELSE status END, last_notified = NOW(), notification_count = notification_count + 1, updated_at = NOW() WHERE id = $1 AND status = 'active'`

	return fmt.Sprintf(q, SubscriptionsTable)
}

func (p PostgresQueryProvider) LedgerInsertSql() string {
	q := `INSERT INTO %s (subscription_id, appointment_date, times, times_key, sent_at) VALUES ($1, $2, $3, $4, NOW()) ON CONFLICT (subscription_id, appointment_date, times_key) DO NOTHING`

	return fmt.Sprintf(q, LedgerTable)
}

func (p PostgresQueryProvider) LedgerKeysFetchSql() string {
	return fmt.Sprintf(`SELECT appointment_date, times_key FROM %s WHERE subscription_id = $1`, LedgerTable)
}

func (p PostgresQueryProvider) LedgerExistsSql() string {
	return fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE subscription_id = $1 AND appointment_date = $2 AND times_key = $3`, LedgerTable)
}

func (p PostgresQueryProvider) LedgerDeleteOldSql() string {
	return fmt.Sprintf(`DELETE FROM %s WHERE sent_at <= $1`, LedgerTable)
}
