package pipeline

import (
	"database/sql"

	"torramel/notify-relay/config"

	"github.com/pkg/errors"
)

// SubscriptionRepository reads the subscription store. The pipeline never
// creates or deletes subscriptions; it only lists the active ones and flips
// the ones whose criteria can no longer match to expired. The notification
// counter advances inside BatchRepository.CompleteFlush so it stays atomic
// with the email enqueue.
type SubscriptionRepository struct {
	db            *sql.DB
	queryProvider subscriptionQueryProvider
}

func NewSubscriptionRepository(db *sql.DB, cfg *config.Config) SubscriptionRepository {
	return NewSubscriptionRepositoryWithQueryProvider(db, newQueryProvider(cfg.DBDriver))
}

func NewSubscriptionRepositoryWithQueryProvider(db *sql.DB, qp subscriptionQueryProvider) SubscriptionRepository {
	return SubscriptionRepository{
		db:            db,
		queryProvider: qp,
	}
}

func (r SubscriptionRepository) ActiveSubscriptions() ([]*Subscription, error) {
	rows, err := r.db.Query(r.queryProvider.SubscriptionActiveFetchSql())
	if err != nil {
		return nil, errors.Errorf("pipeline: error fetching active subscriptions in repository: %s", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub := &Subscription{}
		var subType, status string
		var targetDate, dateStart, dateEnd sql.NullString

		err := rows.Scan(&sub.Id, &sub.Email, &subType, &targetDate, &dateStart, &dateEnd, &sub.NotificationCount, &sub.MaxNotifications, &status, &sub.UnsubscribeToken)
		if err != nil {
			return nil, errors.Errorf("pipeline: error scanning subscription result into memory in repository: %s", err)
		}

		sub.Type = SubscriptionType(subType)
		sub.Status = SubscriptionStatus(status)
		sub.TargetDate = targetDate.String
		sub.DateStart = dateStart.String
		sub.DateEnd = dateEnd.String

		subs = append(subs, sub)
	}

	return subs, nil
}

// MarkExpired flips an active subscription to expired. Losing the race to
// another invocation is fine; zero rows affected is not an error.
func (r SubscriptionRepository) MarkExpired(id string) error {
	_, err := r.db.Exec(r.queryProvider.SubscriptionExpireSql(), id)
	if err != nil {
		return errors.Errorf("pipeline: error marking subscription %s as expired in repository: %s", id, err)
	}

	return nil
}
