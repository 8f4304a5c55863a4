package relayhttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"torramel/notify-relay/breaker"
	"torramel/notify-relay/pipeline"
)

func TestRetryJobHandler_ServeHTTP(t *testing.T) {
	jobs := &mockAdminJobRepository{}

	recorder := httptest.NewRecorder()
	NewRetryJobHandler(jobs).ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/admin/jobs/42/retry", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 response code, but got %d", recorder.Code)
	}

	if len(jobs.retriedIds) != 1 || jobs.retriedIds[0] != 42 {
		t.Errorf("unexpected retried job ids: %v", jobs.retriedIds)
	}
}

func TestRetryJobHandler_ServeHTTPWithNonRetryableJob(t *testing.T) {
	jobs := &mockAdminJobRepository{returnNotRetryable: true}

	recorder := httptest.NewRecorder()
	NewRetryJobHandler(jobs).ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/admin/jobs/42/retry", nil))

	if recorder.Code != http.StatusNotFound {
		t.Errorf("expected 404 response code, but got %d", recorder.Code)
	}
}

func TestRetryJobHandler_ServeHTTPWithBadPath(t *testing.T) {
	paths := []string{
		"/admin/jobs/retry",
		"/admin/jobs/not-a-number/retry",
		"/admin/jobs/0/retry",
		"/admin/jobs/-1/retry",
		"/admin/jobs/42/abandon",
	}

	for _, path := range paths {
		recorder := httptest.NewRecorder()
		NewRetryJobHandler(&mockAdminJobRepository{}).ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, path, nil))

		if recorder.Code != http.StatusBadRequest {
			t.Errorf("expected 400 response code for %s, but got %d", path, recorder.Code)
		}
	}
}

func TestRetryJobHandler_ServeHTTPWithWrongMethod(t *testing.T) {
	recorder := httptest.NewRecorder()
	NewRetryJobHandler(&mockAdminJobRepository{}).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/admin/jobs/42/retry", nil))

	if recorder.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 response code, but got %d", recorder.Code)
	}
}

func TestAbandonFailedHandler_ServeHTTP(t *testing.T) {
	jobs := &mockAdminJobRepository{abandonedCount: 7}

	recorder := httptest.NewRecorder()
	NewAbandonFailedHandler(jobs).ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/admin/jobs/abandon-failed", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 response code, but got %d", recorder.Code)
	}

	var resp map[string]int64
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error decoding the response: %s", err)
	}

	if resp["abandoned"] != 7 {
		t.Errorf("unexpected response: %v", resp)
	}
}

func TestAbandonFailedHandler_ServeHTTPWithError(t *testing.T) {
	jobs := &mockAdminJobRepository{returnError: true}

	recorder := httptest.NewRecorder()
	NewAbandonFailedHandler(jobs).ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/admin/jobs/abandon-failed", nil))

	if recorder.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 response code, but got %d", recorder.Code)
	}
}

func TestBreakerResetHandler_ServeHTTP(t *testing.T) {
	cb := &mockAdminBreaker{snapshot: breaker.Snapshot{State: breaker.Closed}}

	recorder := httptest.NewRecorder()
	NewBreakerResetHandler(cb).ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/admin/circuit-breaker/reset", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 response code, but got %d", recorder.Code)
	}

	if cb.resets != 1 {
		t.Errorf("expected 1 reset, but got %d", cb.resets)
	}

	var snap breaker.Snapshot
	if err := json.Unmarshal(recorder.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unexpected error decoding the response: %s", err)
	}

	if snap.State != breaker.Closed {
		t.Errorf("unexpected breaker state in the response: %s", snap.State)
	}
}

func TestBreakerResetHandler_ServeHTTPWithError(t *testing.T) {
	cb := &mockAdminBreaker{returnError: true}

	recorder := httptest.NewRecorder()
	NewBreakerResetHandler(cb).ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/admin/circuit-breaker/reset", nil))

	if recorder.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 response code, but got %d", recorder.Code)
	}
}

func TestQueueStatsHandler_ServeHTTP(t *testing.T) {
	jobs := &mockAdminJobRepository{stats: pipeline.QueueStats{Pending: 3, Failed: 1, Total: 4}}

	recorder := httptest.NewRecorder()
	NewQueueStatsHandler(jobs).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/queue-stats", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 response code, but got %d", recorder.Code)
	}

	var stats pipeline.QueueStats
	if err := json.Unmarshal(recorder.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unexpected error decoding the response: %s", err)
	}

	if stats.Pending != 3 || stats.Failed != 1 || stats.Total != 4 {
		t.Errorf("unexpected queue stats: %+v", stats)
	}
}

func TestQueueStatsHandler_ServeHTTPWithWrongMethod(t *testing.T) {
	recorder := httptest.NewRecorder()
	NewQueueStatsHandler(&mockAdminJobRepository{}).ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/queue-stats", nil))

	if recorder.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 response code, but got %d", recorder.Code)
	}
}

type mockAdminJobRepository struct {
	retriedIds         []int64
	abandonedCount     int64
	stats              pipeline.QueueStats
	returnError        bool
	returnNotRetryable bool
}

func (m *mockAdminJobRepository) RetryJob(id int64) error {
	if m.returnNotRetryable {
		return pipeline.ErrNotRetryable
	}
	if m.returnError {
		return errors.New("oops")
	}
	m.retriedIds = append(m.retriedIds, id)
	return nil
}

func (m *mockAdminJobRepository) AbandonFailed() (int64, error) {
	if m.returnError {
		return 0, errors.New("oops")
	}
	return m.abandonedCount, nil
}

func (m *mockAdminJobRepository) Stats() (pipeline.QueueStats, error) {
	if m.returnError {
		return pipeline.QueueStats{}, errors.New("oops")
	}
	return m.stats, nil
}

type mockAdminBreaker struct {
	snapshot    breaker.Snapshot
	resets      int
	returnError bool
}

func (m *mockAdminBreaker) Reset() error {
	if m.returnError {
		return errors.New("oops")
	}
	m.resets++
	return nil
}

func (m *mockAdminBreaker) State() (breaker.Snapshot, error) {
	if m.returnError {
		return breaker.Snapshot{}, errors.New("oops")
	}
	return m.snapshot, nil
}
