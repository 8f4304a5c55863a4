package test

import (
	"errors"
	"sync"

	"torramel/notify-relay/pipeline"
)

type MockSubscriptionRepository struct {
	sync.RWMutex
	subscriptions []*pipeline.Subscription
	expired       map[string]bool
	returnError   bool
}

func NewMockSubscriptionRepository() *MockSubscriptionRepository {
	return &MockSubscriptionRepository{
		expired: map[string]bool{},
	}
}

func (mr *MockSubscriptionRepository) ActiveSubscriptions() ([]*pipeline.Subscription, error) {
	mr.RLock()
	defer mr.RUnlock()
	if mr.returnError {
		return nil, errors.New("oops")
	}
	return mr.subscriptions, nil
}

func (mr *MockSubscriptionRepository) MarkExpired(id string) error {
	mr.Lock()
	defer mr.Unlock()
	if mr.returnError {
		return errors.New("oops")
	}
	mr.expired[id] = true
	return nil
}

func (mr *MockSubscriptionRepository) AddSubscription(s *pipeline.Subscription) {
	mr.Lock()
	defer mr.Unlock()
	mr.subscriptions = append(mr.subscriptions, s)
}

func (mr *MockSubscriptionRepository) WasExpired(id string) bool {
	mr.RLock()
	defer mr.RUnlock()
	return mr.expired[id]
}

func (mr *MockSubscriptionRepository) ReturnErrors() {
	mr.returnError = true
}
