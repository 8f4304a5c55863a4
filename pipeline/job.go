package pipeline

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobSent       JobStatus = "sent"
	JobFailed     JobStatus = "failed"
	JobAbandoned  JobStatus = "abandoned"
)

type JobStatus string

// Outcome is the result of one dispatch attempt on a claimed job, recorded
// in memory between dispatch and claim commit.
type Outcome int

const (
	// OutcomeNone means the job was claimed but never handed to the
	// dispatcher; committing it releases the claim without bookkeeping.
	OutcomeNone Outcome = iota
	OutcomeSent
	OutcomeFailed
	// OutcomeDeferred means the circuit breaker refused the dispatch. The
	// job returns to pending with a pushed retry timer and its attempt
	// counter untouched.
	OutcomeDeferred
)

// EmailJob is one row of the durable email queue.
type EmailJob struct {
	Id             int64
	SubscriptionId sql.NullString
	To             string
	Subject        string
	Html           string
	Text           string
	Appointments   []Appointment
	Priority       int
	Status         JobStatus
	Attempts       int
	LastError      string
	NextRetryAt    time.Time
	ClaimId        *uuid.UUID
	SentAt         sql.NullTime
	CreatedAt      time.Time

	// Claim-local dispatch result, never persisted as-is.
	Outcome Outcome
	Err     error
	RetryAt time.Time
}

// JobClaim is a set of queue rows moved to processing under one claim id.
// Only the claiming invocation may commit them.
type JobClaim struct {
	Id   uuid.UUID
	Jobs []*EmailJob
}

// QueueStats is a per-status row count snapshot of the email queue.
type QueueStats struct {
	Pending    uint `json:"pending"`
	Processing uint `json:"processing"`
	Sent       uint `json:"sent"`
	Failed     uint `json:"failed"`
	Abandoned  uint `json:"abandoned"`
	Total      uint `json:"total"`
}

func (s *QueueStats) add(status JobStatus, count uint) {
	switch status {
	case JobPending:
		s.Pending += count
	case JobProcessing:
		s.Processing += count
	case JobSent:
		s.Sent += count
	case JobFailed:
		s.Failed += count
	case JobAbandoned:
		s.Abandoned += count
	}
	s.Total += count
}

func marshalAppointments(appts []Appointment) ([]byte, error) {
	if len(appts) == 0 {
		return nil, nil
	}
	return json.Marshal(appts)
}

func unmarshalAppointments(raw []byte) ([]Appointment, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var appts []Appointment
	if err := json.Unmarshal(raw, &appts); err != nil {
		return nil, err
	}

	return appts, nil
}
