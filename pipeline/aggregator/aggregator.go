// Package aggregator converts scraper findings into batch queue entries and
// later folds the accumulated entries into at most one email job per
// subscription per flush.
package aggregator

import (
	"database/sql"
	"time"

	"torramel/notify-relay/log"
	"torramel/notify-relay/pipeline"
	"torramel/notify-relay/render"

	"github.com/sirupsen/logrus"
)

const urgentPriority = 10

type subscriptionRepository interface {
	ActiveSubscriptions() ([]*pipeline.Subscription, error)
	MarkExpired(id string) error
}

type batchRepository interface {
	Append(entry *pipeline.BatchEntry) error
	ClaimReady(limit int) (*pipeline.FlushSet, error)
	CompleteFlush(result pipeline.FlushResult) error
}

type dedupLedger interface {
	FilterNew(subscriptionId string, appts []pipeline.Appointment) ([]pipeline.Appointment, error)
}

type Aggregator struct {
	subs     subscriptionRepository
	batches  batchRepository
	ledger   dedupLedger
	renderer render.Renderer
	delay    time.Duration
	location *time.Location
}

func New(subs subscriptionRepository, batches batchRepository, ledger dedupLedger, renderer render.Renderer, delay time.Duration, location *time.Location) *Aggregator {
	return &Aggregator{
		subs:     subs,
		batches:  batches,
		ledger:   ledger,
		renderer: renderer,
		delay:    delay,
		location: location,
	}
}

// IngestSummary reports what one scraper result did to the batch queue.
type IngestSummary struct {
	Appended int `json:"appended"`
	Expired  int `json:"expired"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

// FlushSummary reports one flush invocation.
type FlushSummary struct {
	BatchesProcessed int `json:"batchesProcessed"`
	EmailsQueued     int `json:"emailsQueued"`
	Errors           int `json:"errors"`
}

// Ingest matches a scraper run against every active subscription and
// appends one batch entry per match. Findings for today bypass the
// aggregation delay and are flagged urgent. Appointments the subscription
// was already notified about never enter the batch queue.
func (a *Aggregator) Ingest(results []pipeline.ScrapeResult) (IngestSummary, error) {
	var summary IngestSummary

	var appts []pipeline.Appointment
	for _, r := range results {
		if r.Actionable() {
			appts = append(appts, r.Appointment())
		}
	}

	if len(appts) == 0 {
		return summary, nil
	}

	subs, err := a.subs.ActiveSubscriptions()
	if err != nil {
		return summary, err
	}

	now := time.Now().In(time.UTC)
	today := time.Now().In(a.location).Format("2006-01-02")

	for _, sub := range subs {
		if sub.ExpiredAsOf(today) {
			if err := a.subs.MarkExpired(sub.Id); err != nil {
				log.Logger.WithError(err).Errorf("unable to mark subscription %s as expired", sub.Id)
				summary.Errors++
				continue
			}
			summary.Expired++
			continue
		}

		var matching []pipeline.Appointment
		for _, appt := range appts {
			if sub.Matches(appt.Date) {
				matching = append(matching, appt)
			}
		}

		if len(matching) == 0 {
			continue
		}

		fresh, err := a.ledger.FilterNew(sub.Id, matching)
		if err != nil {
			log.Logger.WithError(err).Errorf("unable to consult the dedup ledger for subscription %s", sub.Id)
			summary.Errors++
			continue
		}

		if len(fresh) == 0 {
			summary.Skipped++
			continue
		}

		urgent := false
		for _, appt := range fresh {
			if appt.Date == today {
				urgent = true
				break
			}
		}

		scheduled := now
		if !urgent {
			scheduled = now.Add(a.delay)
		}

		entry := &pipeline.BatchEntry{
			SubscriptionId:    sub.Id,
			Appointments:      fresh,
			IsUrgent:          urgent,
			ScheduledSendTime: scheduled,
		}

		if err := a.batches.Append(entry); err != nil {
			log.Logger.WithError(err).Errorf("unable to append batch entry for subscription %s", sub.Id)
			summary.Errors++
			continue
		}

		summary.Appended++
	}

	return summary, nil
}

// Flush claims every batch entry whose send time has arrived (bounded by
// limit), merges each subscription's entries into one deduplicated union
// and enqueues at most one email job per subscription. Entries whose whole
// union is already in the ledger are consumed without producing an email.
func (a *Aggregator) Flush(limit int) (FlushSummary, error) {
	var summary FlushSummary

	set, err := a.batches.ClaimReady(limit)
	if err == pipeline.ErrNoBatches {
		return summary, nil
	}
	if err != nil {
		return summary, err
	}

	subs, err := a.subs.ActiveSubscriptions()
	if err != nil {
		return summary, err
	}

	subById := make(map[string]*pipeline.Subscription, len(subs))
	for _, sub := range subs {
		subById[sub.Id] = sub
	}

	for subId, entries := range set.BySubscription() {
		ids := make([]int64, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.Id)
		}

		sub := subById[subId]
		if sub == nil {
			// the subscription went inactive after the entries were queued;
			// consume the entries without an email
			a.complete(pipeline.FlushResult{ClaimId: set.Id, EntryIds: ids}, &summary, len(entries))
			continue
		}

		lists := make([][]pipeline.Appointment, 0, len(entries))
		urgent := false
		for _, e := range entries {
			lists = append(lists, e.Appointments)
			urgent = urgent || e.IsUrgent
		}

		union := pipeline.MergeAppointments(lists...)

		fresh, err := a.ledger.FilterNew(subId, union)
		if err != nil {
			log.Logger.WithError(err).Errorf("unable to consult the dedup ledger for subscription %s during flush", subId)
			summary.Errors++
			continue
		}

		if len(fresh) == 0 {
			a.complete(pipeline.FlushResult{ClaimId: set.Id, EntryIds: ids}, &summary, len(entries))
			continue
		}

		email, err := a.renderer.AppointmentNotification(sub, fresh)
		if err != nil {
			log.Logger.WithError(err).Errorf("unable to render notification email for subscription %s", subId)
			summary.Errors++
			continue
		}

		priority := 0
		if urgent {
			priority = urgentPriority
		}

		job := &pipeline.EmailJob{
			SubscriptionId: sql.NullString{String: sub.Id, Valid: true},
			To:             sub.Email,
			Subject:        email.Subject,
			Html:           email.Html,
			Text:           email.Text,
			Appointments:   fresh,
			Priority:       priority,
		}

		result := pipeline.FlushResult{
			ClaimId:      set.Id,
			EntryIds:     ids,
			Job:          job,
			Subscription: sub,
		}

		if err := a.batches.CompleteFlush(result); err != nil {
			if err == pipeline.ErrLostClaim {
				log.Logger.WithFields(logrus.Fields{"subscription_id": subId}).Debug("flush claim lost to a concurrent invocation, skipping")
				continue
			}
			log.Logger.WithError(err).Errorf("unable to complete the flush for subscription %s", subId)
			summary.Errors++
			continue
		}

		summary.EmailsQueued++
		summary.BatchesProcessed += len(entries)
	}

	return summary, nil
}

func (a *Aggregator) complete(result pipeline.FlushResult, summary *FlushSummary, numEntries int) {
	if err := a.batches.CompleteFlush(result); err != nil {
		if err == pipeline.ErrLostClaim {
			return
		}
		log.Logger.WithError(err).Error("unable to mark batch entries as consumed")
		summary.Errors++
		return
	}

	summary.BatchesProcessed += numEntries
}
