package party

import "github.com/prometheus/client_golang/prometheus"

var (
	execCountDesc = prometheus.NewDesc(
		"pergyra_dispatcher_role_executions_total", "Fiber executions per role.", []string{"role"}, nil)
	errCountDesc = prometheus.NewDesc(
		"pergyra_dispatcher_role_errors_total", "Failed fiber executions per role.", []string{"role"}, nil)
	avgDurationDesc = prometheus.NewDesc(
		"pergyra_dispatcher_role_duration_avg_ns", "Average fiber execution duration per role, in nanoseconds.", []string{"role"}, nil)
)

// MetricsCollector adapts a Dispatcher's per-role FiberStats to
// prometheus.Collector, per SPEC_FULL.md's scheduler/dispatcher metrics
// section (grounded on kedacore-keda's registered scaler metrics).
type MetricsCollector struct {
	dispatcher *Dispatcher
}

// Collector returns a prometheus.Collector for d's per-role statistics.
// The caller registers it with whatever prometheus.Registerer it uses.
func (d *Dispatcher) Collector() *MetricsCollector {
	return &MetricsCollector{dispatcher: d}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- execCountDesc
	ch <- errCountDesc
	ch <- avgDurationDesc
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	for roleId, snap := range c.dispatcher.AllStats() {
		ch <- prometheus.MustNewConstMetric(execCountDesc, prometheus.CounterValue, float64(snap.ExecutionCount), roleId)
		ch <- prometheus.MustNewConstMetric(errCountDesc, prometheus.CounterValue, float64(snap.ErrorCount), roleId)
		ch <- prometheus.MustNewConstMetric(avgDurationDesc, prometheus.GaugeValue, float64(snap.AvgNs), roleId)
	}
}
