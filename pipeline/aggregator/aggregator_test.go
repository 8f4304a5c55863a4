package aggregator

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"torramel/notify-relay/pipeline"
	"torramel/notify-relay/pipeline/test"
	"torramel/notify-relay/render"

	"github.com/go-test/deep"
	"github.com/google/uuid"
)

func TestAggregator_Ingest(t *testing.T) {
	subs := test.NewMockSubscriptionRepository()
	subs.AddSubscription(&pipeline.Subscription{
		Id:        "sub-1",
		Email:     "bob@example.com",
		Type:      pipeline.SubscriptionRange,
		DateStart: "2000-01-01",
		DateEnd:   "2999-12-31",
		Status:    pipeline.SubscriptionActive,
	})
	batches := test.NewMockBatchRepository()
	ledger := test.NewMockLedger()

	agg := New(subs, batches, ledger, &mockRenderer{}, time.Minute*3, time.UTC)

	yes := true
	summary, err := agg.Ingest([]pipeline.ScrapeResult{
		{Date: "2999-06-01", Available: &yes, Times: []string{"09:00"}},
		{Date: "2999-06-02", Available: &yes},
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if summary.Appended != 1 {
		t.Errorf("expected 1 appended entry, but got %d", summary.Appended)
	}

	entries := batches.AppendedEntries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 batch entry, but got %d", len(entries))
	}

	if entries[0].IsUrgent {
		t.Error("expected a future appointment not to be urgent")
	}

	delay := time.Until(entries[0].ScheduledSendTime)
	if delay < time.Minute*2 || delay > time.Minute*4 {
		t.Errorf("expected the send time to honour the aggregation delay, but got %s", delay)
	}
}

func TestAggregator_IngestTodayBypassesTheDelay(t *testing.T) {
	subs := test.NewMockSubscriptionRepository()
	subs.AddSubscription(&pipeline.Subscription{
		Id:        "sub-1",
		Type:      pipeline.SubscriptionRange,
		DateStart: "2000-01-01",
		DateEnd:   "2999-12-31",
		Status:    pipeline.SubscriptionActive,
	})
	batches := test.NewMockBatchRepository()

	agg := New(subs, batches, test.NewMockLedger(), &mockRenderer{}, time.Minute*3, time.UTC)

	yes := true
	today := time.Now().In(time.UTC).Format("2006-01-02")
	summary, err := agg.Ingest([]pipeline.ScrapeResult{
		{Date: today, Available: &yes, Times: []string{"09:00"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if summary.Appended != 1 {
		t.Fatalf("expected 1 appended entry, but got %d", summary.Appended)
	}

	entry := batches.AppendedEntries()[0]
	if !entry.IsUrgent {
		t.Error("expected a same-day appointment to be urgent")
	}

	if time.Until(entry.ScheduledSendTime) > time.Second*10 {
		t.Error("expected an urgent entry to be sendable immediately")
	}
}

func TestAggregator_IngestMarksExpiredSubscriptions(t *testing.T) {
	subs := test.NewMockSubscriptionRepository()
	subs.AddSubscription(&pipeline.Subscription{
		Id:         "sub-old",
		Type:       pipeline.SubscriptionSingle,
		TargetDate: "2000-01-01",
		Status:     pipeline.SubscriptionActive,
	})
	batches := test.NewMockBatchRepository()

	agg := New(subs, batches, test.NewMockLedger(), &mockRenderer{}, time.Minute*3, time.UTC)

	yes := true
	summary, err := agg.Ingest([]pipeline.ScrapeResult{
		{Date: "2999-06-01", Available: &yes, Times: []string{"09:00"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if summary.Expired != 1 {
		t.Errorf("expected 1 expired subscription, but got %d", summary.Expired)
	}

	if !subs.WasExpired("sub-old") {
		t.Error("expected the subscription to be marked expired")
	}

	if len(batches.AppendedEntries()) != 0 {
		t.Error("expected no batch entries for an expired subscription")
	}
}

func TestAggregator_IngestSkipsAlreadyNotifiedAppointments(t *testing.T) {
	subs := test.NewMockSubscriptionRepository()
	subs.AddSubscription(&pipeline.Subscription{
		Id:        "sub-1",
		Type:      pipeline.SubscriptionRange,
		DateStart: "2000-01-01",
		DateEnd:   "2999-12-31",
		Status:    pipeline.SubscriptionActive,
	})
	ledger := test.NewMockLedger()
	ledger.MarkSent("sub-1", pipeline.Appointment{Date: "2999-06-01", Times: []string{"09:00"}})
	batches := test.NewMockBatchRepository()

	agg := New(subs, batches, ledger, &mockRenderer{}, time.Minute*3, time.UTC)

	yes := true
	summary, err := agg.Ingest([]pipeline.ScrapeResult{
		{Date: "2999-06-01", Available: &yes, Times: []string{"09:00"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if summary.Skipped != 1 {
		t.Errorf("expected 1 skipped subscription, but got %d", summary.Skipped)
	}

	if len(batches.AppendedEntries()) != 0 {
		t.Error("expected no batch entries for an already notified appointment")
	}
}

func TestAggregator_FlushMergesEntriesIntoOneEmail(t *testing.T) {
	subs := test.NewMockSubscriptionRepository()
	subs.AddSubscription(&pipeline.Subscription{
		Id:               "sub-1",
		Email:            "bob@example.com",
		Type:             pipeline.SubscriptionRange,
		DateStart:        "2000-01-01",
		DateEnd:          "2999-12-31",
		Status:           pipeline.SubscriptionActive,
		MaxNotifications: 10,
	})

	batches := test.NewMockBatchRepository()
	batches.AddFlushSet(&pipeline.FlushSet{
		Id: uuid.New(),
		Entries: []*pipeline.BatchEntry{
			{
				Id:             1,
				SubscriptionId: "sub-1",
				Appointments:   []pipeline.Appointment{{Date: "2999-06-01", Times: []string{"09:00"}}},
			},
			{
				Id:             2,
				SubscriptionId: "sub-1",
				IsUrgent:       true,
				Appointments: []pipeline.Appointment{
					{Date: "2999-06-01", Times: []string{"09:00"}},
					{Date: "2999-06-02", Times: []string{"16:00"}},
				},
			},
		},
	})

	agg := New(subs, batches, test.NewMockLedger(), &mockRenderer{}, time.Minute*3, time.UTC)

	summary, err := agg.Flush(50)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if summary.EmailsQueued != 1 {
		t.Errorf("expected 1 queued email, but got %d", summary.EmailsQueued)
	}

	if summary.BatchesProcessed != 2 {
		t.Errorf("expected 2 processed entries, but got %d", summary.BatchesProcessed)
	}

	completed := batches.CompletedFlushes()
	if len(completed) != 1 {
		t.Fatalf("expected 1 completed flush, but got %d", len(completed))
	}

	job := completed[0].Job
	if job == nil {
		t.Fatal("expected the flush to carry an email job")
	}

	expAppts := []pipeline.Appointment{
		{Date: "2999-06-01", Times: []string{"09:00"}},
		{Date: "2999-06-02", Times: []string{"16:00"}},
	}
	if diff := deep.Equal(expAppts, job.Appointments); diff != nil {
		t.Error(diff)
	}

	if job.Priority != 10 {
		t.Errorf("expected the urgent entry to raise the job priority, but got %d", job.Priority)
	}

	if job.To != "bob@example.com" {
		t.Errorf("unexpected recipient: %s", job.To)
	}
}

func TestAggregator_FlushConsumesEntriesWhenUnionIsAlreadyNotified(t *testing.T) {
	subs := test.NewMockSubscriptionRepository()
	subs.AddSubscription(&pipeline.Subscription{
		Id:        "sub-1",
		Type:      pipeline.SubscriptionRange,
		DateStart: "2000-01-01",
		DateEnd:   "2999-12-31",
		Status:    pipeline.SubscriptionActive,
	})

	ledger := test.NewMockLedger()
	ledger.MarkSent("sub-1", pipeline.Appointment{Date: "2999-06-01", Times: []string{"09:00"}})

	batches := test.NewMockBatchRepository()
	batches.AddFlushSet(&pipeline.FlushSet{
		Id: uuid.New(),
		Entries: []*pipeline.BatchEntry{
			{
				Id:             1,
				SubscriptionId: "sub-1",
				Appointments:   []pipeline.Appointment{{Date: "2999-06-01", Times: []string{"09:00"}}},
			},
		},
	})

	agg := New(subs, batches, ledger, &mockRenderer{}, time.Minute*3, time.UTC)

	summary, err := agg.Flush(50)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if summary.EmailsQueued != 0 {
		t.Errorf("expected no queued email, but got %d", summary.EmailsQueued)
	}

	if summary.BatchesProcessed != 1 {
		t.Errorf("expected the entry to be consumed anyway, but got %d", summary.BatchesProcessed)
	}

	completed := batches.CompletedFlushes()
	if len(completed) != 1 || completed[0].Job != nil {
		t.Errorf("expected 1 completed flush without an email job")
	}
}

func TestAggregator_FlushConsumesEntriesOfInactiveSubscriptions(t *testing.T) {
	batches := test.NewMockBatchRepository()
	batches.AddFlushSet(&pipeline.FlushSet{
		Id: uuid.New(),
		Entries: []*pipeline.BatchEntry{
			{
				Id:             1,
				SubscriptionId: "sub-gone",
				Appointments:   []pipeline.Appointment{{Date: "2999-06-01", Times: []string{"09:00"}}},
			},
		},
	})

	agg := New(test.NewMockSubscriptionRepository(), batches, test.NewMockLedger(), &mockRenderer{}, time.Minute*3, time.UTC)

	summary, err := agg.Flush(50)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if summary.EmailsQueued != 0 || summary.BatchesProcessed != 1 {
		t.Errorf("expected the entry to be consumed without an email: %+v", summary)
	}
}

func TestAggregator_FlushWithLostClaimIsANoOp(t *testing.T) {
	subs := test.NewMockSubscriptionRepository()
	subs.AddSubscription(&pipeline.Subscription{
		Id:        "sub-1",
		Type:      pipeline.SubscriptionRange,
		DateStart: "2000-01-01",
		DateEnd:   "2999-12-31",
		Status:    pipeline.SubscriptionActive,
	})

	batches := test.NewMockBatchRepository()
	batches.AddFlushSet(&pipeline.FlushSet{
		Id: uuid.New(),
		Entries: []*pipeline.BatchEntry{
			{
				Id:             1,
				SubscriptionId: "sub-1",
				Appointments:   []pipeline.Appointment{{Date: "2999-06-01", Times: []string{"09:00"}}},
			},
		},
	})
	batches.ReturnLostClaimError()

	agg := New(subs, batches, test.NewMockLedger(), &mockRenderer{}, time.Minute*3, time.UTC)

	summary, err := agg.Flush(50)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if summary.Errors != 0 || summary.EmailsQueued != 0 || summary.BatchesProcessed != 0 {
		t.Errorf("expected a lost claim to be a silent no-op: %+v", summary)
	}
}

func TestAggregator_FlushWithNothingReady(t *testing.T) {
	batches := test.NewMockBatchRepository()
	batches.ReturnNoBatchesError()

	agg := New(test.NewMockSubscriptionRepository(), batches, test.NewMockLedger(), &mockRenderer{}, time.Minute*3, time.UTC)

	summary, err := agg.Flush(50)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if summary.BatchesProcessed != 0 || summary.EmailsQueued != 0 {
		t.Errorf("expected an empty summary, but got %+v", summary)
	}
}

type mockRenderer struct {
	returnError bool
}

func (m *mockRenderer) AppointmentNotification(sub *pipeline.Subscription, appts []pipeline.Appointment) (render.Email, error) {
	if m.returnError {
		return render.Email{}, errors.New("oops")
	}

	return render.Email{
		Subject: fmt.Sprintf("%d appointments", len(appts)),
		Html:    "<p>appointments</p>",
		Text:    "appointments",
	}, nil
}
