// Package metrics holds the engine's prometheus instrumentation. The gateway
// counters double as the data source for the gateway_success_rate alert
// sampler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_jobs_processed_total",
		Help: "Dispatch jobs that reached a terminal state, by kind and status.",
	}, []string{"kind", "status"})

	JobsRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_jobs_retried_total",
		Help: "Dispatch job attempts that failed and were requeued for retry.",
	})

	JobsStalled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_jobs_stalled_total",
		Help: "Jobs whose worker lock expired and were requeued by the watchdog.",
	})

	GatewaySendsOK = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_sends_ok_total",
		Help: "Successful external gateway deliveries.",
	})

	GatewaySendsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_sends_failed_total",
		Help: "Failed external gateway deliveries.",
	})

	AlertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alerts_fired_total",
		Help: "Alert rules that breached and fired, by metric.",
	}, []string{"metric"})
)

// CounterValue reads the current value of a plain counter. Used by the
// gateway success-rate sampler.
func CounterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
