package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerCollector exposes metrics for the cooperative task scheduler.
type SchedulerCollector struct {
	gatherer prometheus.Gatherer

	TaskRuns     *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	TaskLag      *prometheus.GaugeVec
}

// NewSchedulerCollector registers scheduler metrics against the provided registerer.
func NewSchedulerCollector(reg prometheus.Registerer) (*SchedulerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_task_runs_total",
		Help: "Scheduled task invocations, labeled by task and result (ok, error).",
	}, []string{"task", "result"})
	runs, err := registerCounterVec(reg, runs, "scheduler_task_runs_total")
	if err != nil {
		return nil, err
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduler_task_duration_seconds",
		Help:    "Wall time spent inside a scheduled task callback.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"task"})
	duration, err = registerHistogramVec(reg, duration, "scheduler_task_duration_seconds")
	if err != nil {
		return nil, err
	}

	lag := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_task_lag_seconds",
		Help: "Accumulated time beyond the task period when it last fired.",
	}, []string{"task"})
	lag, err = registerGaugeVec(reg, lag, "scheduler_task_lag_seconds")
	if err != nil {
		return nil, err
	}

	return &SchedulerCollector{
		gatherer:     gatherer,
		TaskRuns:     runs,
		TaskDuration: duration,
		TaskLag:      lag,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SchedulerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveTask records one task invocation. It satisfies timectrl.TaskObserver.
func (c *SchedulerCollector) ObserveTask(name string, lag, took time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	if c.TaskRuns != nil {
		c.TaskRuns.WithLabelValues(name, result).Inc()
	}
	if c.TaskDuration != nil {
		c.TaskDuration.WithLabelValues(name).Observe(took.Seconds())
	}
	if c.TaskLag != nil {
		if lag < 0 {
			lag = 0
		}
		c.TaskLag.WithLabelValues(name).Set(lag.Seconds())
	}
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
