package sql

import (
	"fmt"
	"strings"
)

// MysqlQueryProvider builds the MySQL dialect of every pipeline query.
// Assignments in MySQL UPDATEs are applied left to right against already
// updated values, so any expression that must observe the pre-update row
// (attempt thresholds, reclaim detection) is written before the column it
// depends on is reassigned.
type MysqlQueryProvider struct {
}

func (m MysqlQueryProvider) JobInsertSql() string {
	q := `INSERT INTO %s (subscription_id, email_to, subject, body_html, body_text, appointments, priority, status, attempts, last_error, next_retry_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', 0, '', ?, NOW(), NOW())`

	return fmt.Sprintf(q, JobsTable)
}

func (m MysqlQueryProvider) JobClaimSql(limit int) string {
	q := `UPDATE %s SET attempts = IF(status = 'processing', attempts + 1, attempts), last_error = IF(status = 'processing', 'processing timed out', last_error), claim_id = ?, status = 'processing', updated_at = NOW()
		WHERE ((status = 'pending' AND next_retry_at <= ?) OR (status = 'processing' AND updated_at < ?))
		ORDER BY priority DESC, created_at ASC LIMIT %d`

	return fmt.Sprintf(q, JobsTable, limit)
}

func (m MysqlQueryProvider) JobFetchClaimSql() string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE claim_id = ? ORDER BY priority DESC, created_at ASC`, strings.Join(JobColumns, ", "), JobsTable)
}

func (m MysqlQueryProvider) JobSentUpdateSql() string {
	return fmt.Sprintf(`UPDATE %s SET status = 'sent', sent_at = NOW(), last_error = '', claim_id = NULL, updated_at = NOW() WHERE id = ? AND claim_id = ?`, JobsTable)
}

func (m MysqlQueryProvider) JobFailedUpdateSql(maxAttempts int) string {
	q := `UPDATE %s SET status = IF((attempts + 1) >= %d, 'failed', 'pending'), last_error = ?, next_retry_at = ?, claim_id = NULL, attempts = attempts + 1, updated_at = NOW() WHERE id = ? AND claim_id = ?`

	return fmt.Sprintf(q, JobsTable, maxAttempts)
}

func (m MysqlQueryProvider) JobDeferredUpdateSql() string {
	return fmt.Sprintf(`UPDATE %s SET status = 'pending', next_retry_at = ?, claim_id = NULL, updated_at = NOW() WHERE id = ? AND claim_id = ?`, JobsTable)
}

func (m MysqlQueryProvider) JobStatsSql() string {
	return fmt.Sprintf(`SELECT status, COUNT(*) FROM %s GROUP BY status`, JobsTable)
}

func (m MysqlQueryProvider) JobRetrySql() string {
	return fmt.Sprintf(`UPDATE %s SET status = 'pending', attempts = 0, last_error = '', next_retry_at = NOW(), claim_id = NULL, updated_at = NOW() WHERE id = ? AND status IN ('failed', 'abandoned')`, JobsTable)
}

func (m MysqlQueryProvider) JobAbandonFailedSql() string {
	return fmt.Sprintf(`UPDATE %s SET status = 'abandoned', updated_at = NOW() WHERE status = 'failed'`, JobsTable)
}

func (m MysqlQueryProvider) JobDeleteTerminalSql() string {
	return fmt.Sprintf(`DELETE FROM %s WHERE status IN ('sent', 'abandoned') AND created_at <= ?`, JobsTable)
}

func (m MysqlQueryProvider) BatchInsertSql() string {
	q := `INSERT INTO %s (subscription_id, appointments, is_urgent, scheduled_send_time, status, created_at) VALUES (?, ?, ?, ?, 'pending', NOW())`

	return fmt.Sprintf(q, BatchTable)
}

func (m MysqlQueryProvider) BatchClaimSql(limit int) string {
	q := `UPDATE %s SET claim_id = ?, claimed_at = NOW()
		WHERE status = 'pending' AND scheduled_send_time <= ? AND (claim_id IS NULL OR claimed_at < ?)
		ORDER BY is_urgent DESC, scheduled_send_time ASC LIMIT %d`

	return fmt.Sprintf(q, BatchTable, limit)
}

func (m MysqlQueryProvider) BatchFetchClaimSql() string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE claim_id = ? ORDER BY is_urgent DESC, scheduled_send_time ASC`, strings.Join(BatchColumns, ", "), BatchTable)
}

func (m MysqlQueryProvider) BatchCompleteSql(idCount int) string {
	q := `UPDATE %s SET status = 'sent', processed_at = NOW(), claim_id = NULL WHERE claim_id = ? AND id IN (%s)`

	return fmt.Sprintf(q, BatchTable, strings.Trim(strings.Repeat("?, ", idCount), ", "))
}

func (m MysqlQueryProvider) BatchDeleteProcessedSql() string {
	return fmt.Sprintf(`DELETE FROM %s WHERE status = 'sent' AND processed_at <= ?`, BatchTable)
}

func (m MysqlQueryProvider) SubscriptionActiveFetchSql() string {
	return fmt.Sprintf(`SELECT %s FROM %s WHERE status = 'active' ORDER BY created_at ASC`, strings.Join(SubscriptionColumns, ", "), SubscriptionsTable)
}

func (m MysqlQueryProvider) SubscriptionExpireSql() string {
	return fmt.Sprintf(`UPDATE %s SET status = 'expired', updated_at = NOW() WHERE id = ? AND status = 'active'`, SubscriptionsTable)
}

func (m MysqlQueryProvider) SubscriptionNotifiedUpdateSql() string {
	q := `UPDATE %s SET status = IF((notification_count + 1) >= max_notifications, 'max_reached', status), last_notified = NOW(), notification_count = notification_count + 1, updated_at = NOW() WHERE id = ? AND status = 'active'`

	return fmt.Sprintf(q, SubscriptionsTable)
}

func (m MysqlQueryProvider) LedgerInsertSql() string {
	q := `INSERT IGNORE INTO %s (subscription_id, appointment_date, times, times_key, sent_at) VALUES (?, ?, ?, ?, NOW())`

	return fmt.Sprintf(q, LedgerTable)
}

func (m MysqlQueryProvider) LedgerKeysFetchSql() string {
	return fmt.Sprintf(`SELECT appointment_date, times_key FROM %s WHERE subscription_id = ?`, LedgerTable)
}

func (m MysqlQueryProvider) LedgerExistsSql() string {
	return fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE subscription_id = ? AND appointment_date = ? AND times_key = ?`, LedgerTable)
}

func (m MysqlQueryProvider) LedgerDeleteOldSql() string {
	return fmt.Sprintf(`DELETE FROM %s WHERE sent_at <= ?`, LedgerTable)
}
