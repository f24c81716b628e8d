// Package metrics 提供事件分发指标
package metrics

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-evbridge/internal/core/dispatcher"
	"github.com/dep2p/go-evbridge/pkg/types"
)

// 确保实现接口
var _ dispatcher.Observer = (*Metrics)(nil)

// DefaultNamespace 默认指标命名空间
const DefaultNamespace = "evbridge"

// 投递失败原因标签
const (
	ReasonQueueFull         = "queue_full"
	ReasonInvalidState      = "invalid_state"
	ReasonResourceExhausted = "resource_exhausted"
	ReasonOther             = "other"
)

// Option 指标选项
type Option func(*options)

type options struct {
	namespace string
	clock     clock.Clock
}

// WithNamespace 设置指标命名空间
func WithNamespace(ns string) Option {
	return func(o *options) {
		o.namespace = ns
	}
}

// WithClock 设置速率计算使用的时钟（用于测试）
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// ============================================================================
//                              Metrics
// ============================================================================

// Metrics 分发器指标
type Metrics struct {
	clock clock.Clock

	posted          *prometheus.CounterVec
	rejected        *prometheus.CounterVec
	delivered       *prometheus.CounterVec
	stale           prometheus.Counter
	decodeErrors    *prometheus.CounterVec
	subscriptions   prometheus.Gauge
	handlerDuration *prometheus.HistogramVec

	mu    sync.RWMutex
	bases map[types.EventBase]*baseStats
}

// New 创建指标并注册到 reg
func New(reg prometheus.Registerer, opts ...Option) (*Metrics, error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: nil registerer", types.ErrInvalidState)
	}

	o := options{namespace: DefaultNamespace, clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}
	ns := o.namespace

	m := &Metrics{
		clock: o.clock,
		bases: make(map[types.EventBase]*baseStats),

		posted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_posted_total",
			Help:      "Events accepted by the event source queue.",
		}, []string{"base"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "post_rejected_total",
			Help:      "Posts rejected by the event source.",
		}, []string{"base", "reason"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_delivered_total",
			Help:      "Handler invocations completed.",
		}, []string{"base"}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "stale_invocations_total",
			Help:      "Native callbacks dropped because the subscription was no longer live.",
		}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "decode_errors_total",
			Help:      "Payloads that failed to decode.",
		}, []string{"base"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "subscriptions",
			Help:      "Subscriptions present in the dispatcher mapping.",
		}),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "handler_duration_seconds",
			Help:      "Handler execution time on the shared dispatch context.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}, []string{"base"}),
	}

	collectors := []prometheus.Collector{
		m.posted, m.rejected, m.delivered, m.stale,
		m.decodeErrors, m.subscriptions, m.handlerDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	return m, nil
}

// base 返回事件基的速率表，首次出现时创建
func (m *Metrics) base(b types.EventBase) *baseStats {
	m.mu.RLock()
	s, ok := m.bases[b]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.bases[b]; !ok {
		s = newBaseStats(m.clock)
		m.bases[b] = s
	}
	return s
}

// ============================================================================
//                              Observer 实现
// ============================================================================

// PostAccepted 实现 dispatcher.Observer
func (m *Metrics) PostAccepted(base types.EventBase) {
	m.posted.WithLabelValues(string(base)).Inc()
	m.base(base).posted.Add(1)
}

// PostRejected 实现 dispatcher.Observer
func (m *Metrics) PostRejected(base types.EventBase, err error) {
	m.rejected.WithLabelValues(string(base), reasonLabel(err)).Inc()
	m.base(base).rejected.Add(1)
}

// Delivered 实现 dispatcher.Observer
func (m *Metrics) Delivered(base types.EventBase, elapsed time.Duration) {
	m.delivered.WithLabelValues(string(base)).Inc()
	m.handlerDuration.WithLabelValues(string(base)).Observe(elapsed.Seconds())
	m.base(base).delivered.Add(1)
}

// StaleInvocation 实现 dispatcher.Observer
func (m *Metrics) StaleInvocation(types.EventBase) {
	m.stale.Inc()
}

// DecodeFailed 实现 dispatcher.Observer
func (m *Metrics) DecodeFailed(base types.EventBase) {
	m.decodeErrors.WithLabelValues(string(base)).Inc()
}

// SubscriptionsChanged 实现 dispatcher.Observer
func (m *Metrics) SubscriptionsChanged(n int) {
	m.subscriptions.Set(float64(n))
}

// ============================================================================
//                              快照
// ============================================================================

// Snapshot 返回各事件基的统计快照
func (m *Metrics) Snapshot() map[types.EventBase]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[types.EventBase]Stats, len(m.bases))
	for b, s := range m.bases {
		out[b] = s.snapshot()
	}
	return out
}

// reasonLabel 把投递错误归类为标签值
func reasonLabel(err error) string {
	switch {
	case errors.Is(err, types.ErrQueueFull):
		return ReasonQueueFull
	case errors.Is(err, types.ErrInvalidState):
		return ReasonInvalidState
	case errors.Is(err, types.ErrResourceExhausted):
		return ReasonResourceExhausted
	default:
		return ReasonOther
	}
}
