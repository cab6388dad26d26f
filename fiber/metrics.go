package fiber

import "github.com/prometheus/client_golang/prometheus"

var (
	activeFibersDesc = prometheus.NewDesc(
		"pergyra_scheduler_active_fibers", "Fibers not yet Done or Error.", nil, nil)
	fibersCreatedDesc = prometheus.NewDesc(
		"pergyra_scheduler_fibers_created_total", "Fibers ever spawned on this scheduler.", nil, nil)
	stealAttemptsDesc = prometheus.NewDesc(
		"pergyra_scheduler_steal_attempts_total", "Work-stealing attempts across all workers.", nil, nil)
	stealsDesc = prometheus.NewDesc(
		"pergyra_scheduler_steals_total", "Work-stealing attempts that found a fiber.", nil, nil)
)

// MetricsCollector adapts a Scheduler's counters to prometheus.Collector,
// per SPEC_FULL.md's scheduler/dispatcher metrics section (grounded on
// kedacore-keda's registered scaler metrics).
type MetricsCollector struct {
	sched *Scheduler
}

// Collector returns a prometheus.Collector for s's statistics. The caller
// registers it with whatever prometheus.Registerer it uses; the scheduler
// itself never reaches for a package-level default registry.
func (s *Scheduler) Collector() *MetricsCollector {
	return &MetricsCollector{sched: s}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- activeFibersDesc
	ch <- fibersCreatedDesc
	ch <- stealAttemptsDesc
	ch <- stealsDesc
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(activeFibersDesc, prometheus.GaugeValue, float64(c.sched.ActiveCount()))
	ch <- prometheus.MustNewConstMetric(fibersCreatedDesc, prometheus.CounterValue, float64(c.sched.TotalFibersCreated()))
	ch <- prometheus.MustNewConstMetric(stealAttemptsDesc, prometheus.CounterValue, float64(c.sched.TotalStealAttempts()))
	ch <- prometheus.MustNewConstMetric(stealsDesc, prometheus.CounterValue, float64(c.sched.TotalSteals()))
}
