package breaker

import "fmt"

const table = "smtp_circuit_breaker"

type queryProvider interface {
	FetchSql() string
	HalfOpenSql() string
	SuccessSql() string
	FailureSql(threshold int) string
	ResetSql() string
}

type mysqlQueryProvider struct {
}

func (m mysqlQueryProvider) FetchSql() string {
	return fmt.Sprintf(`SELECT state, consecutive_failures, failure_count, total_requests, total_failures, last_failure_at, last_success_at, next_retry_at FROM %s WHERE id = ?`, table)
}

func (m mysqlQueryProvider) HalfOpenSql() string {
	return fmt.Sprintf(`UPDATE %s SET state = 'half_open', updated_at = NOW() WHERE id = ? AND state = 'open' AND next_retry_at <= ?`, table)
}

func (m mysqlQueryProvider) SuccessSql() string {
	return fmt.Sprintf(`UPDATE %s SET state = 'closed', consecutive_failures = 0, last_success_at = NOW(), total_requests = total_requests + 1, updated_at = NOW() WHERE id = ?`, table)
}

// FailureSql folds the threshold decision into the UPDATE itself so the
// transition is atomic under concurrent invocations. MySQL applies SET
// clauses left to right against updated values, so next_retry_at and state
// are assigned before consecutive_failures is incremented.
func (m mysqlQueryProvider) FailureSql(threshold int) string {
	q := `UPDATE %s SET next_retry_at = IF(state = 'half_open' OR (consecutive_failures + 1) >= %d, ?, next_retry_at), state = IF(state = 'half_open' OR (consecutive_failures + 1) >= %d, 'open', state), consecutive_failures = consecutive_failures + 1, failure_count = failure_count + 1, total_requests = total_requests + 1, total_failures = total_failures + 1, last_failure_at = NOW(), updated_at = NOW() WHERE id = ?`

	return fmt.Sprintf(q, table, threshold, threshold)
}

func (m mysqlQueryProvider) ResetSql() string {
	return fmt.Sprintf(`UPDATE %s SET state = 'closed', consecutive_failures = 0, next_retry_at = NULL, updated_at = NOW() WHERE id = ?`, table)
}

type postgresQueryProvider struct {
}

func (p postgresQueryProvider) FetchSql() string {
	return fmt.Sprintf(`SELECT state, consecutive_failures, failure_count, total_requests, total_failures, last_failure_at, last_success_at, next_retry_at FROM %s WHERE id = $1`, table)
}

func (p postgresQueryProvider) HalfOpenSql() string {
	return fmt.Sprintf(`UPDATE %s SET state = 'half_open', updated_at = NOW() WHERE id = $1 AND state = 'open' AND next_retry_at <= $2`, table)
}

func (p postgresQueryProvider) SuccessSql() string {
	return fmt.Sprintf(`UPDATE %s SET state = 'closed', consecutive_failures = 0, last_success_at = NOW(), total_requests = total_requests + 1, updated_at = NOW() WHERE id = $1`, table)
}

func (p postgresQueryProvider) FailureSql(threshold int) string {
	q := `UPDATE %s SET next_retry_at = CASE WHEN state = 'half_open' OR consecutive_failures + 1 >= %d THEN $1 ELSE next_retry_at END, state = CASE WHEN state = 'half_open' OR consecutive_failures + 1 >= %d THEN 'open' ELSE state END, consecutive_failures = consecutive_failures + 1, failure_count = failure_count + 1, total_requests = total_requests + 1, total_failures = total_failures + 1, last_failure_at = NOW(), updated_at = NOW() WHERE id = $2`

	return fmt.Sprintf(q, table, threshold, threshold)
}

func (p postgresQueryProvider) ResetSql() string {
	return fmt.Sprintf(`UPDATE %s SET state = 'closed', consecutive_failures = 0, next_retry_at = NULL, updated_at = NOW() WHERE id = $1`, table)
}
