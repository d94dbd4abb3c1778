package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/fx"
)

/* ========================================================================
 * Prometheus Metrics - 可观测性指标
 * ========================================================================
 * 职责: 参考编号分配与列表查询的 Prometheus 指标
 *   - app_sequence_allocations_total{entity,outcome}
 *   - app_sequence_allocation_duration_seconds{entity}
 *   - app_sequence_conflicts_total{entity}
 *   - app_query_builds_total{entity,paginated}
 * 所有方法对 nil *Collector 安全（不采集）
 * ======================================================================== */

// Collector 数据访问核心指标
type Collector struct {
	allocations        *prometheus.CounterVec
	allocationDuration *prometheus.HistogramVec
	conflicts          *prometheus.CounterVec
	queryBuilds        *prometheus.CounterVec
}

// NewCollector 在 reg 上注册指标，reg 为 nil 时使用默认注册表
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collector{
		allocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "app",
				Subsystem: "sequence",
				Name:      "allocations_total",
				Help:      "Total number of reference number allocations by outcome",
			},
			[]string{"entity", "outcome"},
		),
		allocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "app",
				Subsystem: "sequence",
				Name:      "allocation_duration_seconds",
				Help:      "Reference number allocation duration in seconds, lock wait included",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"entity"},
		),
		conflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "app",
				Subsystem: "sequence",
				Name:      "conflicts_total",
				Help:      "Total number of concurrent allocation conflicts",
			},
			[]string{"entity"},
		),
		queryBuilds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "app",
				Subsystem: "query",
				Name:      "builds_total",
				Help:      "Total number of list queries built",
			},
			[]string{"entity", "paginated"},
		),
	}
}

// ObserveAllocation 记录一次分配
func (c *Collector) ObserveAllocation(entity, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.allocations.WithLabelValues(entity, outcome).Inc()
	c.allocationDuration.WithLabelValues(entity).Observe(d.Seconds())
}

// IncConflict 记录一次分配冲突
func (c *Collector) IncConflict(entity string) {
	if c == nil {
		return
	}
	c.conflicts.WithLabelValues(entity).Inc()
}

// IncQueryBuild 记录一次列表查询构建
func (c *Collector) IncQueryBuild(entity string, paginated bool) {
	if c == nil {
		return
	}
	c.queryBuilds.WithLabelValues(entity, strconv.FormatBool(paginated)).Inc()
}

// RegisterMetricsEndpoint 注册 /metrics 端点
func RegisterMetricsEndpoint(app *fiber.App, gatherer prometheus.Gatherer) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	// 使用 fasthttpadaptor 将 promhttp.Handler 适配到 Fiber
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	app.Get("/metrics", func(c fiber.Ctx) error {
		handler(c.RequestCtx())
		return nil
	})
}

// Module 指标模块
// 提供: *Collector（注册到默认注册表）
var Module = fx.Module("metrics",
	fx.Provide(func() *Collector { return NewCollector(nil) }),
)
