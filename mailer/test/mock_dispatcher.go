package test

import (
	"errors"
	"sync"

	"torramel/notify-relay/pipeline"
)

type MockDispatcher struct {
	sync.RWMutex
	dispatched  []*pipeline.EmailJob
	returnError bool
}

func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{}
}

func (md *MockDispatcher) Dispatch(job *pipeline.EmailJob) error {
	md.Lock()
	defer md.Unlock()

	if md.returnError {
		return errors.New("oops")
	}

	md.dispatched = append(md.dispatched, job)
	return nil
}

func (md *MockDispatcher) Dispatched() []*pipeline.EmailJob {
	md.RLock()
	defer md.RUnlock()
	return md.dispatched
}

func (md *MockDispatcher) ReturnErrors() {
	md.returnError = true
}
