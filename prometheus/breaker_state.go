package prometheus

import (
	"context"
	"time"

	"torramel/notify-relay/breaker"
	"torramel/notify-relay/log"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState    *prom.GaugeVec
	breakerFailures prom.Gauge
)

type breakerStater interface {
	State() (breaker.Snapshot, error)
}

func init() {
	breakerState = promauto.NewGaugeVec(prom.GaugeOpts{
		Name: "notify_relay_circuit_breaker_state",
		Help: "The current SMTP circuit breaker state (1 for the active state, 0 otherwise)",
	}, []string{"state"})
	breakerFailures = promauto.NewGauge(prom.GaugeOpts{
		Name: "notify_relay_circuit_breaker_consecutive_failures",
		Help: "The current consecutive SMTP failure count on the circuit breaker",
	})
}

func ObserveBreakerState(cb breakerStater, ctx context.Context) {
	for {
		snap, err := cb.State()
		if err != nil {
			log.Logger.WithError(err).Error("an error occurred reading the circuit breaker state")
			time.Sleep(time.Second * 1)
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
			setBreakerState(snap)

			time.Sleep(time.Second * 1)
		}
	}
}

func setBreakerState(snap breaker.Snapshot) {
	for _, s := range []breaker.State{breaker.Closed, breaker.Open, breaker.HalfOpen} {
		var v float64
		if snap.State == s {
			v = 1
		}
		breakerState.WithLabelValues(string(s)).Set(v)
	}
	breakerFailures.Set(float64(snap.ConsecutiveFailures))
}
