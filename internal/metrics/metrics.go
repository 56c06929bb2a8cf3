// Package metrics 远程调用相关的 Prometheus 指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"remoting/internal/worker"
)

// 调用路径
const (
	RouteInline    = "inline"
	RouteRelocated = "relocated"
	RouteLocal     = "local"
)

// Metrics 调用指标集合，nil 值可以安全使用
type Metrics struct {
	invocations *prometheus.CounterVec
	failures    *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
	diagnostics prometheus.Counter
	latency     *prometheus.HistogramVec
}

// New 创建并注册指标
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Service proxy invocations by route.",
		}, []string{"contract", "operation", "route"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocation_failures_total",
			Help:      "Failed contract invocations by error kind.",
		}, []string{"contract", "operation", "kind"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "default_value_fallbacks_total",
			Help:      "Communication failures converted to a default value.",
		}, []string{"contract", "operation"}),
		diagnostics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "privileged_context_calls_total",
			Help:      "Contract operations called from the privileged context.",
		}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Latency of forwarded contract invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"contract", "operation"}),
	}

	for _, c := range []prometheus.Collector{m.invocations, m.failures, m.fallbacks, m.diagnostics, m.latency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RegisterPool 注册工作池的状态指标
func RegisterPool(reg prometheus.Registerer, namespace string, pool *worker.Pool) error {
	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "busy",
			Help:      "Workers currently running a relocated invocation.",
		}, func() float64 { return float64(pool.Stats().Busy) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queued",
			Help:      "Relocated invocations waiting for a worker.",
		}, func() float64 { return float64(pool.Stats().Queued) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "completed_total",
			Help:      "Units of work completed by the pool.",
		}, func() float64 { return float64(pool.Stats().Completed) }),
	}
	for _, g := range gauges {
		if err := reg.Register(g); err != nil {
			return err
		}
	}
	return nil
}

// ObserveInvocation 记录一次调用
func (m *Metrics) ObserveInvocation(contract, operation, route string) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(contract, operation, route).Inc()
}

// ObserveResult 记录转发结果和耗时
func (m *Metrics) ObserveResult(contract, operation string, elapsed time.Duration, kind string) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(contract, operation).Observe(elapsed.Seconds())
	if kind != "" {
		m.failures.WithLabelValues(contract, operation, kind).Inc()
	}
}

// ObserveFallback 记录一次默认值降级
func (m *Metrics) ObserveFallback(contract, operation string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(contract, operation).Inc()
}

// ObserveDiagnostic 记录一次特权上下文调用
func (m *Metrics) ObserveDiagnostic() {
	if m == nil {
		return
	}
	m.diagnostics.Inc()
}
