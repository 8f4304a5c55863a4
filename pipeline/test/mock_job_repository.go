package test

import (
	"errors"
	"sync"
	"time"

	"torramel/notify-relay/pipeline"
)

type MockJobRepository struct {
	sync.RWMutex
	claimsToReturn    []*pipeline.JobClaim
	claimsCommitted   []*pipeline.JobClaim
	enqueued          []*pipeline.EmailJob
	stats             pipeline.QueueStats
	deletedRowsCount  int64
	returnError       bool
	returnNoJobsError bool
}

func NewMockJobRepository() *MockJobRepository {
	return &MockJobRepository{}
}

func (mr *MockJobRepository) Enqueue(job *pipeline.EmailJob) error {
	mr.Lock()
	defer mr.Unlock()
	if mr.returnError {
		return errors.New("oops")
	}
	mr.enqueued = append(mr.enqueued, job)
	return nil
}

func (mr *MockJobRepository) ClaimDue(limit int) (*pipeline.JobClaim, error) {
	mr.Lock()
	defer mr.Unlock()

	if mr.returnNoJobsError {
		return nil, pipeline.ErrNoJobs
	}

	if mr.returnError {
		return nil, errors.New("oops")
	}

	return mr.popClaim(), nil
}

func (mr *MockJobRepository) CommitClaim(claim *pipeline.JobClaim) {
	mr.Lock()
	defer mr.Unlock()
	mr.claimsCommitted = append(mr.claimsCommitted, claim)
}

func (mr *MockJobRepository) Stats() (pipeline.QueueStats, error) {
	mr.RLock()
	defer mr.RUnlock()
	if mr.returnError {
		return pipeline.QueueStats{}, errors.New("oops")
	}
	return mr.stats, nil
}

func (mr *MockJobRepository) DeleteTerminal(olderThan time.Time) (int64, error) {
	if mr.returnError {
		return 0, errors.New("oops")
	}
	return mr.deletedRowsCount, nil
}

func (mr *MockJobRepository) AddClaim(claim *pipeline.JobClaim) {
	mr.Lock()
	defer mr.Unlock()
	mr.claimsToReturn = append(mr.claimsToReturn, claim)
}

func (mr *MockJobRepository) CommittedClaims() []*pipeline.JobClaim {
	mr.RLock()
	defer mr.RUnlock()
	return mr.claimsCommitted
}

func (mr *MockJobRepository) EnqueuedJobs() []*pipeline.EmailJob {
	mr.RLock()
	defer mr.RUnlock()
	return mr.enqueued
}

func (mr *MockJobRepository) SetStats(s pipeline.QueueStats) {
	mr.Lock()
	defer mr.Unlock()
	mr.stats = s
}

func (mr *MockJobRepository) SetDeletedRowsCount(c int64) {
	mr.deletedRowsCount = c
}

func (mr *MockJobRepository) ReturnErrors() {
	mr.returnError = true
}

func (mr *MockJobRepository) ReturnNoJobsError() {
	mr.returnNoJobsError = true
}

func (mr *MockJobRepository) popClaim() *pipeline.JobClaim {
	if len(mr.claimsToReturn) == 0 {
		return nil
	}

	var c *pipeline.JobClaim
	c, mr.claimsToReturn = mr.claimsToReturn[0], mr.claimsToReturn[1:]

	return c
}
