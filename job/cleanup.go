// Package job holds the standalone maintenance jobs that run to completion
// and exit, typically as Kubernetes cron jobs alongside the relay itself.
package job

import (
	"net/http"
	"time"

	"torramel/notify-relay/config"
	"torramel/notify-relay/log"
)

type TerminalJobDeleter interface {
	DeleteTerminal(olderThan time.Time) (int64, error)
}

type ProcessedBatchDeleter interface {
	DeleteProcessed(olderThan time.Time) (int64, error)
}

type LedgerPruner interface {
	DeleteOld(olderThan time.Time) (int64, error)
}

type cleanup struct {
	jobs      TerminalJobDeleter
	batches   ProcessedBatchDeleter
	ledger    LedgerPruner
	retention time.Duration
	SidecarQuitter
}

func RunCleanup(jobs TerminalJobDeleter, batches ProcessedBatchDeleter, ledger LedgerPruner, cfg *config.Config) int {
	j := NewCleanupWithDefaultClient(jobs, batches, ledger, cfg.GetRetention())
	if cfg.SidecarProxyUrl != "" {
		j.EnableSideCarProxyQuit(cfg.SidecarProxyUrl)
	}

	if err := j.Execute(); err != nil {
		return 1
	}

	return 0
}

func NewCleanupWithDefaultClient(jobs TerminalJobDeleter, batches ProcessedBatchDeleter, ledger LedgerPruner, retention time.Duration) *cleanup {
	return newCleanup(jobs, batches, ledger, retention, http.DefaultClient)
}

func newCleanup(jobs TerminalJobDeleter, batches ProcessedBatchDeleter, ledger LedgerPruner, retention time.Duration, cl httpPoster) *cleanup {
	return &cleanup{
		jobs:      jobs,
		batches:   batches,
		ledger:    ledger,
		retention: retention,
		SidecarQuitter: SidecarQuitter{
			Client: cl,
		},
	}
}

// Execute deletes terminal email jobs, processed batch entries and old
// dedup ledger rows that fall outside the retention window. Each table is
// pruned independently so a failure on one does not leave the others
// untouched, but the first error is still reported to the caller.
func (c *cleanup) Execute() error {
	cutoff := time.Now().Add(-1 * c.retention)

	var firstErr error

	rows, err := c.jobs.DeleteTerminal(cutoff)
	if err != nil {
		log.Logger.WithError(err).Error("an error occurred whilst deleting terminal email jobs")
		firstErr = err
	} else {
		log.Logger.Infof("deleted %d terminal email jobs", rows)
	}

	rows, err = c.batches.DeleteProcessed(cutoff)
	if err != nil {
		log.Logger.WithError(err).Error("an error occurred whilst deleting processed batch entries")
		if firstErr == nil {
			firstErr = err
		}
	} else {
		log.Logger.Infof("deleted %d processed batch entries", rows)
	}

	rows, err = c.ledger.DeleteOld(cutoff)
	if err != nil {
		log.Logger.WithError(err).Error("an error occurred whilst pruning the sent appointments ledger")
		if firstErr == nil {
			firstErr = err
		}
	} else {
		log.Logger.Infof("pruned %d sent appointment records", rows)
	}

	if firstErr != nil {
		return firstErr
	}

	if c.QuitSidecar {
		if err = c.Quit(); err != nil {
			return err
		}
	}

	return nil
}
