package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"torramel/notify-relay/breaker"
	"torramel/notify-relay/config"
	"torramel/notify-relay/job"
	"torramel/notify-relay/log"
	"torramel/notify-relay/mailer"
	"torramel/notify-relay/pipeline"
	"torramel/notify-relay/pipeline/aggregator"
	"torramel/notify-relay/pipeline/data"
	"torramel/notify-relay/pipeline/processor"
	"torramel/notify-relay/prometheus"
	"torramel/notify-relay/relayhttp"
	"torramel/notify-relay/render"
	"torramel/notify-relay/retry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	cfg, err := config.NewConfig()
	if err != nil {
		log.Logger.Fatalf("unable to create configuration: %s", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	db, dbClose := data.NewDB(cfg)
	defer dbClose()

	jobs := pipeline.NewJobRepository(db, cfg)
	batches := pipeline.NewBatchRepository(db, cfg)
	ledger := pipeline.NewLedger(db, cfg)
	subs := pipeline.NewSubscriptionRepository(db, cfg)

	var exitCode int
	if cfg.RunCleanup {
		exitCode = job.RunCleanup(jobs, batches, ledger, cfg)
	} else {
		exitCode = runMainApp(ctx, cfg, db, jobs, batches, ledger, subs)
	}

	if exitCode > 0 {
		dbClose() // we call this manually because os.Exit() does not respect defer
		os.Exit(exitCode)
	}
}

func runMainApp(ctx context.Context, cfg *config.Config, db *sql.DB, jobs pipeline.JobRepository, batches pipeline.BatchRepository, ledger pipeline.Ledger, subs pipeline.SubscriptionRepository) int {
	renderer, err := render.NewTemplateRenderer(cfg.BaseURL)
	if err != nil {
		log.Logger.Fatalf("unable to create the email renderer: %s", err)
	}

	cb := breaker.New(db, cfg)
	dispatcher := mailer.NewDispatcher(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
	agg := aggregator.New(subs, batches, ledger, renderer, cfg.GetBatchDelay(), cfg.GetLocation())
	policy := retry.Policy{
		Base:   cfg.GetRetryBase(),
		Cap:    cfg.GetRetryCap(),
		Jitter: cfg.RetryJitter,
	}
	maintenance := job.NewCleanupWithDefaultClient(jobs, batches, ledger, cfg.GetRetention())
	proc := processor.New(jobs, ledger, cb, dispatcher, agg, maintenance, policy, cfg)

	if !cfg.RunServe {
		summary, err := proc.Run()
		if err != nil {
			log.Logger.WithError(err).Error("processing cycle failed")
			return 1
		}

		out, _ := json.Marshal(summary)
		log.Logger.Infof("processing cycle finished: %s", out)
		return 0
	}

	go prometheus.ObserveQueueStats(jobs, ctx)
	go prometheus.ObserveBreakerState(cb, ctx)

	mux := relayhttp.NewRouter(cfg, observedProcessor{proc}, agg, jobs, cb, db)
	prometheus.StartHttpServer(cfg, mux)

	return 0
}

// observedProcessor feeds every triggered cycle into the metrics before
// handing the summary back to the HTTP layer.
type observedProcessor struct {
	processor.Processor
}

func (o observedProcessor) Run() (processor.RunSummary, error) {
	summary, err := o.Processor.Run()
	prometheus.ObserveRun(summary)
	return summary, err
}
