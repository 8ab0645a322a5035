package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// SchedulerMetrics tracks cron cycles and the jobs they run.
type SchedulerMetrics struct {
	jobDuration *prometheus.HistogramVec
	jobRuns     *prometheus.CounterVec
	skipped     prometheus.Counter
	lastSuccess *prometheus.GaugeVec
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	if reg == nil {
		return &SchedulerMetrics{}
	}
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "payvault",
		Subsystem: "cron",
		Name:      "job_duration_seconds",
		Help:      "Wall time of scheduled jobs.",
		Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"job", "outcome"})
	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payvault",
		Subsystem: "cron",
		Name:      "job_runs_total",
		Help:      "Scheduled job executions grouped by outcome.",
	}, []string{"job", "outcome"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "payvault",
		Subsystem: "cron",
		Name:      "cycles_skipped_total",
		Help:      "Cycles skipped because another replica held the scheduler lock.",
	})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "payvault",
		Subsystem: "cron",
		Name:      "job_last_success_timestamp_seconds",
		Help:      "Unix time of the last successful run per job.",
	}, []string{"job"})
	reg.MustRegister(jobDuration, jobRuns, skipped, lastSuccess)
	return &SchedulerMetrics{
		jobDuration: jobDuration,
		jobRuns:     jobRuns,
		skipped:     skipped,
		lastSuccess: lastSuccess,
	}
}

// ObserveJob records one finished job run. A nil err counts as success.
func (s *SchedulerMetrics) ObserveJob(job string, duration time.Duration, err error) {
	if s == nil || s.jobRuns == nil {
		return
	}
	job = normalizeLabel(job)
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	s.jobDuration.WithLabelValues(job, outcome).Observe(duration.Seconds())
	s.jobRuns.WithLabelValues(job, outcome).Inc()
	if err == nil {
		s.lastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
}

// IncSkipped counts a cycle that lost the scheduler lock.
func (s *SchedulerMetrics) IncSkipped() {
	if s == nil || s.skipped == nil {
		return
	}
	s.skipped.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
