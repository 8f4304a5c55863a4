package test

import (
	"errors"
	"sync"
	"time"

	"torramel/notify-relay/pipeline"
)

type MockBatchRepository struct {
	sync.RWMutex
	appended             []*pipeline.BatchEntry
	flushSetsToReturn    []*pipeline.FlushSet
	completed            []pipeline.FlushResult
	deletedRowsCount     int64
	returnError          bool
	returnNoBatchesError bool
	returnLostClaimError bool
}

func NewMockBatchRepository() *MockBatchRepository {
	return &MockBatchRepository{}
}

func (mr *MockBatchRepository) Append(entry *pipeline.BatchEntry) error {
	mr.Lock()
	defer mr.Unlock()
	if mr.returnError {
		return errors.New("oops")
	}
	mr.appended = append(mr.appended, entry)
	return nil
}

func (mr *MockBatchRepository) ClaimReady(limit int) (*pipeline.FlushSet, error) {
	mr.Lock()
	defer mr.Unlock()

	if mr.returnNoBatchesError {
		return nil, pipeline.ErrNoBatches
	}

	if mr.returnError {
		return nil, errors.New("oops")
	}

	return mr.popFlushSet(), nil
}

func (mr *MockBatchRepository) CompleteFlush(result pipeline.FlushResult) error {
	mr.Lock()
	defer mr.Unlock()

	if mr.returnLostClaimError {
		return pipeline.ErrLostClaim
	}

	if mr.returnError {
		return errors.New("oops")
	}

	mr.completed = append(mr.completed, result)
	return nil
}

func (mr *MockBatchRepository) DeleteProcessed(olderThan time.Time) (int64, error) {
	if mr.returnError {
		return 0, errors.New("oops")
	}
	return mr.deletedRowsCount, nil
}

func (mr *MockBatchRepository) AddFlushSet(fs *pipeline.FlushSet) {
	mr.Lock()
	defer mr.Unlock()
	mr.flushSetsToReturn = append(mr.flushSetsToReturn, fs)
}

func (mr *MockBatchRepository) AppendedEntries() []*pipeline.BatchEntry {
	mr.RLock()
	defer mr.RUnlock()
	return mr.appended
}

func (mr *MockBatchRepository) CompletedFlushes() []pipeline.FlushResult {
	mr.RLock()
	defer mr.RUnlock()
	return mr.completed
}

func (mr *MockBatchRepository) SetDeletedRowsCount(c int64) {
	mr.deletedRowsCount = c
}

func (mr *MockBatchRepository) ReturnErrors() {
	mr.returnError = true
}

func (mr *MockBatchRepository) ReturnNoBatchesError() {
	mr.returnNoBatchesError = true
}

func (mr *MockBatchRepository) ReturnLostClaimError() {
	mr.returnLostClaimError = true
}

func (mr *MockBatchRepository) popFlushSet() *pipeline.FlushSet {
	if len(mr.flushSetsToReturn) == 0 {
		return nil
	}

	var fs *pipeline.FlushSet
	fs, mr.flushSetsToReturn = mr.flushSetsToReturn[0], mr.flushSetsToReturn[1:]

	return fs
}
