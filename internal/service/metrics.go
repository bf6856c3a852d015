package service

import (
	"time"

	"EventSync/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 流水线 Prometheus 指标；nil 接收者安全（测试中可不注册）
type Metrics struct {
	runs      *prometheus.CounterVec
	duration  prometheus.Histogram
	rows      *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventsync_pipeline_runs_total",
			Help: "Number of pipeline runs by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventsync_pipeline_run_duration_seconds",
			Help:    "Duration of pipeline runs",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventsync_pipeline_rows_total",
			Help: "Rows touched by the pipeline by action",
		}, []string{"action"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventsync_oracle_fallbacks_total",
			Help: "Oracle failures that triggered a phase fallback policy",
		}, []string{"phase"}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.duration, m.rows, m.fallbacks)
	}
	return m
}

func (m *Metrics) observeRun(trigger string, report *RunReport, elapsed time.Duration) {
	if m == nil || report == nil {
		return
	}
	outcome := "ok"
	switch {
	case report.Aborted:
		outcome = "aborted"
	case len(report.Errors) > 0:
		outcome = "error"
	}
	m.runs.WithLabelValues(trigger, outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
	m.addRows(report.Stats)
}

func (m *Metrics) addRows(s model.RunStats) {
	for action, n := range map[string]float64{
		"archived":           float64(s.Archived),
		"orphans_deleted":    float64(s.OrphansDeleted),
		"intra_main_deleted": float64(s.IntraMainDeleted),
		"intra_sub_deleted":  float64(s.IntraSubDeleted),
		"intra_cascaded":     float64(s.IntraCascaded),
		"cross_deleted":      float64(s.CrossDeleted),
		"mains_inserted":     float64(s.MainsInserted),
		"subs_inserted":      float64(s.SubsInserted),
		"corrections":        float64(s.Corrections),
	} {
		if n > 0 {
			m.rows.WithLabelValues(action).Add(n)
		}
	}
}

func (m *Metrics) fallback(phase string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(phase).Inc()
}
