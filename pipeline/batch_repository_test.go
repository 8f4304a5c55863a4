package pipeline

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"torramel/notify-relay/config"
	s "torramel/notify-relay/pipeline/data/sql"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-test/deep"
	"github.com/google/uuid"
)

func TestBatchRepository_Append(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	repo := NewBatchRepositoryWithQueryProvider(db, &config.Config{}, &mockQueryProvider{})
	mock.ExpectExec("INSERT INTO notification_batch_queue").
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &BatchEntry{
		SubscriptionId:    "sub-1",
		Appointments:      []Appointment{{Date: "2026-09-10", Times: []string{"09:00"}}},
		IsUrgent:          true,
		ScheduledSendTime: time.Now(),
	}

	if err := repo.Append(entry); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("some SQL expectations were not met: %s", err)
	}
}

func TestBatchRepository_ClaimReady(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()
	now := time.Now()

	repo := NewBatchRepositoryWithQueryProvider(db, &config.Config{}, &mockQueryProvider{})
	mock.ExpectExec("UPDATE notification_batch_queue LIMIT 50").
		WillReturnResult(sqlmock.NewResult(0, 2))

	claimId := "f58e7c8a-e0d2-47fb-8111-eb0ae02ea21e"
	rows := sqlmock.NewRows(s.BatchColumns).
		AddRow(21, "sub-1", `[{"date":"2026-09-10","times":["09:00"]}]`, true, now, "pending", claimId, now, nil, now).
		AddRow(22, "sub-2", `[{"date":"2026-09-11","times":["16:00"]}]`, false, now, "pending", claimId, now, nil, now)

	mock.ExpectQuery("SELECT .* FROM notification_batch_queue").WillReturnRows(rows)

	set, err := repo.ClaimReady(50)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("some SQL expectations were not met: %s", err)
	}

	if len(set.Entries) != 2 {
		t.Fatalf("expected 2 entries in the flush set, but got %d", len(set.Entries))
	}

	if !set.Entries[0].IsUrgent {
		t.Error("expected the first entry to be urgent")
	}

	expAppts := []Appointment{{Date: "2026-09-11", Times: []string{"16:00"}}}
	if diff := deep.Equal(expAppts, set.Entries[1].Appointments); diff != nil {
		t.Error(diff)
	}
}

func TestBatchRepository_ClaimReadyWithNothingReady(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	repo := NewBatchRepositoryWithQueryProvider(db, &config.Config{}, &mockQueryProvider{})
	mock.ExpectExec("UPDATE notification_batch_queue LIMIT 50").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if _, err := repo.ClaimReady(50); err != ErrNoBatches {
		t.Errorf("expected ErrNoBatches, but got %v", err)
	}
}

func TestBatchRepository_CompleteFlush(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	repo := NewBatchRepositoryWithQueryProvider(db, &config.Config{}, &mockQueryProvider{})

	result := FlushResult{
		ClaimId:  uuid.New(),
		EntryIds: []int64{21, 22},
		Job: &EmailJob{
			SubscriptionId: sql.NullString{String: "sub-1", Valid: true},
			To:             "bob@example.com",
			Subject:        "New appointment slots on 2026-09-10",
			Appointments:   []Appointment{{Date: "2026-09-10", Times: []string{"09:00"}}},
			Priority:       10,
		},
		Subscription: &Subscription{Id: "sub-1"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE notification_batch_queue SET status = 'sent' IDS 2").
		WithArgs(result.ClaimId, int64(21), int64(22)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO email_queue").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE notifications SET notification_count").
		WithArgs("sub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.CompleteFlush(result); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("some SQL expectations were not met: %s", err)
	}
}

func TestBatchRepository_CompleteFlushWithoutEmail(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	repo := NewBatchRepositoryWithQueryProvider(db, &config.Config{}, &mockQueryProvider{})

	result := FlushResult{
		ClaimId:  uuid.New(),
		EntryIds: []int64{21},
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE notification_batch_queue SET status = 'sent' IDS 1").
		WithArgs(result.ClaimId, int64(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.CompleteFlush(result); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("some SQL expectations were not met: %s", err)
	}
}

func TestBatchRepository_CompleteFlushWithLostClaim(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	repo := NewBatchRepositoryWithQueryProvider(db, &config.Config{}, &mockQueryProvider{})

	result := FlushResult{
		ClaimId:  uuid.New(),
		EntryIds: []int64{21},
		Job:      &EmailJob{To: "bob@example.com"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE notification_batch_queue SET status = 'sent' IDS 1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if err := repo.CompleteFlush(result); err != ErrLostClaim {
		t.Errorf("expected ErrLostClaim, but got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("some SQL expectations were not met: %s", err)
	}
}

func TestBatchRepository_CompleteFlushWithInsertError(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	repo := NewBatchRepositoryWithQueryProvider(db, &config.Config{}, &mockQueryProvider{})

	result := FlushResult{
		ClaimId:      uuid.New(),
		EntryIds:     []int64{21},
		Job:          &EmailJob{To: "bob@example.com"},
		Subscription: &Subscription{Id: "sub-1"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE notification_batch_queue SET status = 'sent' IDS 1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO email_queue").
		WillReturnError(errors.New("oops"))
	mock.ExpectRollback()

	if err := repo.CompleteFlush(result); err == nil {
		t.Error("expected an error, but got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("some SQL expectations were not met: %s", err)
	}
}

func TestBatchRepository_DeleteProcessed(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	cutoff := time.Now().Add(time.Hour * -720)
	repo := NewBatchRepositoryWithQueryProvider(db, &config.Config{}, &mockQueryProvider{})
	mock.ExpectExec("DELETE FROM notification_batch_queue").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := repo.DeleteProcessed(cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if n != 12 {
		t.Errorf("expected 12 deleted entries, but got %d", n)
	}
}
