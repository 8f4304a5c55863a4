package relayhttp

import (
	"net/http"
	"strconv"
	"strings"

	"torramel/notify-relay/breaker"
	"torramel/notify-relay/log"
	"torramel/notify-relay/pipeline"
)

type adminJobRepository interface {
	RetryJob(id int64) error
	AbandonFailed() (int64, error)
	Stats() (pipeline.QueueStats, error)
}

type adminBreaker interface {
	Reset() error
	State() (breaker.Snapshot, error)
}

type retryJobHandler struct {
	jobs adminJobRepository
}

// NewRetryJobHandler resets one failed or abandoned job back to pending
// with a clean attempt counter. Expects POST /admin/jobs/{id}/retry.
func NewRetryJobHandler(jobs adminJobRepository) http.Handler {
	return &retryJobHandler{jobs: jobs}
}

func (h retryJobHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id, ok := jobIdFromPath(req.URL.Path)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	err := h.jobs.RetryJob(id)
	if err == pipeline.ErrNotRetryable {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		log.Logger.WithError(err).Errorf("unable to retry email job %d", id)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJson(w, map[string]int64{"retried": id})
}

type abandonFailedHandler struct {
	jobs adminJobRepository
}

// NewAbandonFailedHandler moves every failed job to abandoned so it stops
// being retried.
func NewAbandonFailedHandler(jobs adminJobRepository) http.Handler {
	return &abandonFailedHandler{jobs: jobs}
}

func (h abandonFailedHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	n, err := h.jobs.AbandonFailed()
	if err != nil {
		log.Logger.WithError(err).Error("unable to abandon failed email jobs")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJson(w, map[string]int64{"abandoned": n})
}

type breakerResetHandler struct {
	breaker adminBreaker
}

// NewBreakerResetHandler force-closes the circuit breaker and returns the
// resulting state.
func NewBreakerResetHandler(cb adminBreaker) http.Handler {
	return &breakerResetHandler{breaker: cb}
}

func (h breakerResetHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := h.breaker.Reset(); err != nil {
		log.Logger.WithError(err).Error("unable to reset the circuit breaker")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	snap, err := h.breaker.State()
	if err != nil {
		log.Logger.WithError(err).Error("unable to read the circuit breaker state after reset")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJson(w, snap)
}

type queueStatsHandler struct {
	jobs adminJobRepository
}

// NewQueueStatsHandler exposes the per-status email queue counts.
func NewQueueStatsHandler(jobs adminJobRepository) http.Handler {
	return &queueStatsHandler{jobs: jobs}
}

func (h queueStatsHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.jobs.Stats()
	if err != nil {
		log.Logger.WithError(err).Error("unable to read email queue stats")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJson(w, stats)
}

// jobIdFromPath extracts the id from /admin/jobs/{id}/retry.
func jobIdFromPath(path string) (int64, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 || parts[0] != "admin" || parts[1] != "jobs" || parts[3] != "retry" {
		return 0, false
	}

	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}

	return id, true
}
