package prometheus

import (
	"context"
	"time"

	"torramel/notify-relay/log"
	"torramel/notify-relay/pipeline"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var emailQueueSize *prom.GaugeVec

type statsProvider interface {
	Stats() (pipeline.QueueStats, error)
}

func init() {
	emailQueueSize = promauto.NewGaugeVec(prom.GaugeOpts{
		Name: "notify_relay_email_queue_size",
		Help: "The current number of email jobs in the queue by status",
	}, []string{"status"})
}

func ObserveQueueStats(repo statsProvider, ctx context.Context) {
	for {
		stats, err := repo.Stats()
		if err != nil {
			log.Logger.WithError(err).Error("an error occurred determining the size of the email queue")
			time.Sleep(time.Second * 1)
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
			setQueueStats(stats)

			time.Sleep(time.Second * 1)
		}
	}
}

func setQueueStats(stats pipeline.QueueStats) {
	emailQueueSize.WithLabelValues(string(pipeline.JobPending)).Set(float64(stats.Pending))
	emailQueueSize.WithLabelValues(string(pipeline.JobProcessing)).Set(float64(stats.Processing))
	emailQueueSize.WithLabelValues(string(pipeline.JobSent)).Set(float64(stats.Sent))
	emailQueueSize.WithLabelValues(string(pipeline.JobFailed)).Set(float64(stats.Failed))
	emailQueueSize.WithLabelValues(string(pipeline.JobAbandoned)).Set(float64(stats.Abandoned))
}
