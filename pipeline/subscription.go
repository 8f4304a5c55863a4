package pipeline

const (
	SubscriptionSingle SubscriptionType = "single"
	SubscriptionRange  SubscriptionType = "range"

	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionMaxReached SubscriptionStatus = "max_reached"
	SubscriptionStopped    SubscriptionStatus = "stopped"
	SubscriptionExpired    SubscriptionStatus = "expired"
)

type SubscriptionType string

type SubscriptionStatus string

// Subscription is the slice of the subscription store the pipeline consumes:
// matching criteria plus the notification counter it increments. CRUD and
// authentication live in the surrounding product, not here.
//
// Dates are ISO-8601 day strings (YYYY-MM-DD) and are compared lexically,
// which is equivalent to chronological comparison for this format.
type Subscription struct {
	Id                string
	Email             string
	Type              SubscriptionType
	TargetDate        string
	DateStart         string
	DateEnd           string
	NotificationCount int
	MaxNotifications  int
	Status            SubscriptionStatus
	UnsubscribeToken  string
}

// Matches reports whether an appointment on the given date satisfies the
// subscription's criteria: exact date for single subscriptions, inclusive
// range otherwise.
func (s *Subscription) Matches(date string) bool {
	switch s.Type {
	case SubscriptionSingle:
		return date == s.TargetDate
	case SubscriptionRange:
		return date >= s.DateStart && date <= s.DateEnd
	}

	return false
}

// ExpiredAsOf reports whether the subscription can never match again because
// its last eligible date is in the past.
func (s *Subscription) ExpiredAsOf(today string) bool {
	switch s.Type {
	case SubscriptionSingle:
		return s.TargetDate < today
	case SubscriptionRange:
		return s.DateEnd < today
	}

	return false
}
