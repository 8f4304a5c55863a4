package prometheus

import (
	"fmt"
	"net/http"

	"torramel/notify-relay/config"
	"torramel/notify-relay/log"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StartHttpServer serves the application routes alongside /metrics. It
// blocks for the lifetime of the process.
func StartHttpServer(cfg *config.Config, mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())

	err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.HTTPPort), mux)
	if err != nil {
		log.Logger.Fatalf("failed to start HTTP server: %s", err)
	}
}
