package sql

const (
	JobsTable          = "email_queue"
	BatchTable         = "notification_batch_queue"
	SubscriptionsTable = "notifications"
	LedgerTable        = "sent_appointments"
)

var (
	JobColumns = []string{
		"id", "subscription_id", "email_to", "subject", "body_html", "body_text",
		"appointments", "priority", "status", "attempts", "last_error",
		"next_retry_at", "claim_id", "sent_at", "created_at",
	}

	BatchColumns = []string{
		"id", "subscription_id", "appointments", "is_urgent", "scheduled_send_time",
		"status", "claim_id", "claimed_at", "processed_at", "created_at",
	}

	SubscriptionColumns = []string{
		"id", "email", "subscription_type", "target_date", "date_start", "date_end",
		"notification_count", "max_notifications", "status", "unsubscribe_token",
	}
)
