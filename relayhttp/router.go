package relayhttp

import (
	"fmt"
	"net/http"

	"torramel/notify-relay/config"
)

// NewRouter mounts the trigger and admin surface. Everything except
// /healthz sits behind the shared bearer token.
func NewRouter(cfg *config.Config, runner cycleRunner, agg ingester, jobs adminJobRepository, cb adminBreaker, db Pinger) *http.ServeMux {
	mux := http.NewServeMux()

	smtpAddr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)
	mux.Handle("/healthz", NewHealthzHandler([]string{smtpAddr}, db))

	auth := func(h http.Handler) http.Handler {
		return NewTokenAuth(cfg.TriggerToken, h)
	}

	mux.Handle("/process", auth(NewProcessHandler(runner, agg)))
	mux.Handle("/process-batches", auth(NewFlushHandler(agg, cfg.FlushLimit)))
	mux.Handle("/process-queue", auth(NewDrainHandler(runner, cfg.QueueDrainLimit)))
	mux.Handle("/queue-stats", auth(NewQueueStatsHandler(jobs)))
	mux.Handle("/admin/jobs/", auth(NewRetryJobHandler(jobs)))
	mux.Handle("/admin/jobs/abandon-failed", auth(NewAbandonFailedHandler(jobs)))
	mux.Handle("/admin/circuit-breaker/reset", auth(NewBreakerResetHandler(cb)))

	return mux
}
