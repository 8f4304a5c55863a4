package test

import (
	"errors"
	"sync"
	"time"

	"torramel/notify-relay/pipeline"
)

type MockLedger struct {
	sync.RWMutex
	sent                map[string]bool
	deletedRowsCount    int64
	returnError         bool
	returnAlreadySent   bool
	filterOutEverything bool
}

func NewMockLedger() *MockLedger {
	return &MockLedger{
		sent: map[string]bool{},
	}
}

func (ml *MockLedger) RecordSent(subscriptionId string, appt pipeline.Appointment) error {
	ml.Lock()
	defer ml.Unlock()

	if ml.returnError {
		return errors.New("oops")
	}

	key := subscriptionId + "|" + appt.Key()
	if ml.returnAlreadySent || ml.sent[key] {
		return pipeline.ErrAlreadySent
	}

	ml.sent[key] = true
	return nil
}

func (ml *MockLedger) FilterNew(subscriptionId string, appts []pipeline.Appointment) ([]pipeline.Appointment, error) {
	ml.RLock()
	defer ml.RUnlock()

	if ml.returnError {
		return nil, errors.New("oops")
	}

	if ml.filterOutEverything {
		return nil, nil
	}

	fresh := make([]pipeline.Appointment, 0, len(appts))
	for _, a := range appts {
		if !ml.sent[subscriptionId+"|"+a.Key()] {
			fresh = append(fresh, a)
		}
	}

	return fresh, nil
}

func (ml *MockLedger) DeleteOld(olderThan time.Time) (int64, error) {
	if ml.returnError {
		return 0, errors.New("oops")
	}
	return ml.deletedRowsCount, nil
}

func (ml *MockLedger) WasRecorded(subscriptionId string, appt pipeline.Appointment) bool {
	ml.RLock()
	defer ml.RUnlock()
	return ml.sent[subscriptionId+"|"+appt.Key()]
}

func (ml *MockLedger) MarkSent(subscriptionId string, appt pipeline.Appointment) {
	ml.Lock()
	defer ml.Unlock()
	ml.sent[subscriptionId+"|"+appt.Key()] = true
}

func (ml *MockLedger) SetDeletedRowsCount(c int64) {
	ml.deletedRowsCount = c
}

func (ml *MockLedger) ReturnErrors() {
	ml.returnError = true
}

func (ml *MockLedger) ReturnAlreadySentError() {
	ml.returnAlreadySent = true
}

func (ml *MockLedger) FilterOutEverything() {
	ml.filterOutEverything = true
}
