package pipeline

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	BatchPending BatchStatus = "pending"
	// BatchSent means the entry was folded into an email job, not that the
	// email was delivered; delivery is the email queue's concern.
	BatchSent BatchStatus = "sent"
)

type BatchStatus string

// BatchEntry records one scraper finding for one subscription, waiting out
// the aggregation delay before it is merged into an email.
type BatchEntry struct {
	Id                int64
	SubscriptionId    string
	Appointments      []Appointment
	IsUrgent          bool
	ScheduledSendTime time.Time
	Status            BatchStatus
	ClaimId           *uuid.UUID
	ClaimedAt         sql.NullTime
	ProcessedAt       sql.NullTime
	CreatedAt         time.Time
}

// FlushSet is the group of batch entries claimed by one flush invocation.
type FlushSet struct {
	Id      uuid.UUID
	Entries []*BatchEntry
}

// BySubscription groups the claimed entries per subscription, preserving
// claim order within each group.
func (f *FlushSet) BySubscription() map[string][]*BatchEntry {
	grouped := map[string][]*BatchEntry{}
	for _, e := range f.Entries {
		grouped[e.SubscriptionId] = append(grouped[e.SubscriptionId], e)
	}

	return grouped
}

// FlushResult describes the atomic completion of one subscription's flush:
// the consumed entries, and, when the merged union was non-empty, the email
// job to enqueue plus the subscription whose counter must advance.
type FlushResult struct {
	ClaimId      uuid.UUID
	EntryIds     []int64
	Job          *EmailJob
	Subscription *Subscription
}
