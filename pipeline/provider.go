package pipeline

import (
	"torramel/notify-relay/config"
	s "torramel/notify-relay/pipeline/data/sql"
)

type jobQueryProvider interface {
	JobInsertSql() string
	JobClaimSql(limit int) string
	JobFetchClaimSql() string
	JobSentUpdateSql() string
	JobFailedUpdateSql(maxAttempts int) string
	JobDeferredUpdateSql() string
	JobStatsSql() string
	JobRetrySql() string
	JobAbandonFailedSql() string
	JobDeleteTerminalSql() string
}

type batchQueryProvider interface {
	BatchInsertSql() string
	BatchClaimSql(limit int) string
	BatchFetchClaimSql() string
	BatchCompleteSql(idCount int) string
	BatchDeleteProcessedSql() string
	JobInsertSql() string
	SubscriptionNotifiedUpdateSql() string
}

type ledgerQueryProvider interface {
	LedgerInsertSql() string
	LedgerKeysFetchSql() string
	LedgerExistsSql() string
	LedgerDeleteOldSql() string
}

type subscriptionQueryProvider interface {
	SubscriptionActiveFetchSql() string
	SubscriptionExpireSql() string
}

type queryProvider interface {
	jobQueryProvider
	batchQueryProvider
	ledgerQueryProvider
	subscriptionQueryProvider
}

func newQueryProvider(d config.DbDriver) queryProvider {
	switch true {
	case d.Postgres():
		return &s.PostgresQueryProvider{}
	case d.MySQL():
		return &s.MysqlQueryProvider{}
	}

	return nil
}
