// Package metrics exposes digest counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gamecatalog/backend/internal/digest"
)

var (
	DigestRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamecatalog_digest_runs_total",
			Help: "Digest runs by outcome",
		},
		[]string{"outcome"},
	)

	DigestEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamecatalog_digest_emails_total",
			Help: "Digest emails by result (sent, failed)",
		},
		[]string{"result"},
	)

	DigestLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gamecatalog_digest_last_run_timestamp_seconds",
			Help: "Unix time the last digest run finished",
		},
	)
)

// DigestObserver records digest events.
type DigestObserver struct{}

func (DigestObserver) OnDigestEvent(e digest.Event) {
	switch e.Type {
	case digest.EventSent:
		DigestEmails.WithLabelValues("sent").Inc()
	case digest.EventFailed:
		DigestEmails.WithLabelValues("failed").Inc()
	case digest.EventFinished:
		if e.Report != nil {
			DigestRuns.WithLabelValues(string(e.Report.Outcome)).Inc()
			DigestLastRun.Set(float64(e.Report.FinishedAt.Unix()))
		}
	}
}
