package evbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-evbridge/config"
	"github.com/dep2p/go-evbridge/internal/core/codec"
	"github.com/dep2p/go-evbridge/internal/core/dispatcher"
	"github.com/dep2p/go-evbridge/internal/core/eventloop"
	"github.com/dep2p/go-evbridge/internal/core/metrics"
	"github.com/dep2p/go-evbridge/internal/core/netif"
	"github.com/dep2p/go-evbridge/internal/core/waitable"
	"github.com/dep2p/go-evbridge/pkg/interfaces"
	"github.com/dep2p/go-evbridge/pkg/lib/log"
	"github.com/dep2p/go-evbridge/pkg/types"
)

var logger = log.Logger("evbridge")

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期常量
// ════════════════════════════════════════════════════════════════════════════

const (
	// startTimeout 调用方未设置截止时间时 Fx App Start 的超时
	startTimeout = 10 * time.Second

	// stopTimeout 调用方未设置截止时间时 Fx App Stop 的超时
	stopTimeout = 10 * time.Second
)

// ════════════════════════════════════════════════════════════════════════════
//                              Bridge 结构
// ════════════════════════════════════════════════════════════════════════════

// Bridge 事件桥接入口
//
// 组装事件循环、编解码注册表、分发器与可选的指标，
// 并跟踪通过它创建的网络接口监视器，停止时一并释放。
type Bridge struct {
	app *fx.App

	cfg        *config.Config
	loop       *eventloop.Loop
	dispatcher *dispatcher.Dispatcher
	registry   *codec.Registry
	metrics    *metrics.Metrics

	mu       sync.Mutex
	started  bool
	closed   bool
	monitors []*netif.Monitor
}

// New 创建 Bridge
//
// 创建后事件循环已可投递，Start 之前也可以订阅。
func New(opts ...Option) (*Bridge, error) {
	o := newOptions()
	if err := o.apply(opts...); err != nil {
		return nil, fmt.Errorf("apply options: %w", err)
	}
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	applyLogConfig(o.config.Log)

	reg, err := buildRegistry(o.codecs)
	if err != nil {
		return nil, err
	}

	b := &Bridge{}
	cleanup := eventloop.NewCleanup()
	app := buildFxApp(o, reg, cleanup, b)
	if err := app.Err(); err != nil {
		// 构建失败时 OnStop 不会执行，已创建的事件循环在这里关闭
		if n := cleanup.Len(); n > 0 {
			logger.Debug("构建失败，关闭已创建的事件循环", "loops", n)
		}
		cleanup.Close()
		return nil, fmt.Errorf("build bridge: %w", err)
	}
	b.app = app

	logger.Info("Bridge 已创建",
		"loop", b.loop.Name(),
		"kind", string(b.loop.Kind()),
		"queueSize", b.cfg.Loop.QueueSize,
		"stickyEvents", b.cfg.Dispatcher.StickyEvents)
	return b, nil
}

// applyLogConfig 应用日志配置，空值保留环境变量给出的设置
func applyLogConfig(cfg config.LogConfig) {
	if cfg.Level != "" {
		if level, ok := log.ParseLevel(cfg.Level); ok {
			log.SetLevel(level)
		}
	}
	switch cfg.Format {
	case "json":
		log.SetFormat(log.FormatJSON)
	case "text":
		log.SetFormat(log.FormatText)
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期管理
// ════════════════════════════════════════════════════════════════════════════

// Start 启动 Bridge
//
// 只能调用一次；停止后不能重新启动。
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBridgeClosed
	}
	if b.started {
		return ErrAlreadyStarted
	}

	ctx, cancel := withDefaultTimeout(ctx, startTimeout)
	defer cancel()

	if err := b.app.Start(ctx); err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}
	b.started = true

	logger.Info("Bridge 已启动", "loop", b.loop.Name())
	return nil
}

// Stop 停止 Bridge
//
// 先关闭所有监视器，再按依赖逆序关闭分发器与事件循环。
// 所有失败合并返回。
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBridgeClosed
	}
	if !b.started {
		return ErrNotStarted
	}
	b.closed = true

	err := b.closeMonitors()

	ctx, cancel := withDefaultTimeout(ctx, stopTimeout)
	defer cancel()

	if stopErr := b.app.Stop(ctx); stopErr != nil {
		err = multierr.Append(err, fmt.Errorf("stop bridge: %w", stopErr))
	}

	logger.Info("Bridge 已停止", "loop", b.loop.Name(), "error", err)
	return err
}

// Close 释放 Bridge 的全部资源
//
// 已启动时等价于 Stop；未启动时直接关闭分发器与事件循环。
// 重复调用返回 ErrBridgeClosed。
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return b.Stop(context.Background())
	}
	defer b.mu.Unlock()

	if b.closed {
		return ErrBridgeClosed
	}
	b.closed = true

	err := b.closeMonitors()
	if !b.dispatcher.Closed() {
		err = multierr.Append(err, b.dispatcher.Close())
	}
	return multierr.Append(err, b.loop.Close())
}

// closeMonitors 关闭所有未关闭的监视器
func (b *Bridge) closeMonitors() error {
	var err error
	for _, m := range b.monitors {
		if cerr := m.Close(); cerr != nil && !errors.Is(cerr, types.ErrInvalidState) {
			err = multierr.Append(err, fmt.Errorf("close monitor %s: %w", m.Interface(), cerr))
		}
	}
	b.monitors = nil
	return err
}

// IsStarted 检查 Bridge 是否在运行
func (b *Bridge) IsStarted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started && !b.closed
}

func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// ════════════════════════════════════════════════════════════════════════════
//                              组件访问
// ════════════════════════════════════════════════════════════════════════════

// Config 返回生效配置的副本
func (b *Bridge) Config() *config.Config {
	return b.cfg.Clone()
}

// Loop 返回原生事件循环
func (b *Bridge) Loop() *eventloop.Loop {
	return b.loop
}

// Dispatcher 返回事件分发器
func (b *Bridge) Dispatcher() *dispatcher.Dispatcher {
	return b.dispatcher
}

// Registry 返回编解码注册表
func (b *Bridge) Registry() *codec.Registry {
	return b.registry
}

// Metrics 返回指标，关闭时为 nil
func (b *Bridge) Metrics() *metrics.Metrics {
	return b.metrics
}

// ════════════════════════════════════════════════════════════════════════════
//                              订阅与投递
// ════════════════════════════════════════════════════════════════════════════

// Subscribe 订阅匹配 sel 的类型化事件
func (b *Bridge) Subscribe(sel types.Selector, handler interfaces.Handler) (interfaces.Subscription, error) {
	return b.dispatcher.Subscribe(sel, handler)
}

// Post 编码并投递事件，不阻塞
func (b *Bridge) Post(sel types.Selector, evt types.Event) error {
	return b.dispatcher.Post(sel, evt)
}

// PostTimeout 编码并投递事件，队列满时最多等待 wait
func (b *Bridge) PostTimeout(sel types.Selector, evt types.Event, wait time.Duration) error {
	return b.dispatcher.PostTimeout(sel, evt, wait)
}

// ════════════════════════════════════════════════════════════════════════════
//                              网络接口
// ════════════════════════════════════════════════════════════════════════════

// NewNetifMonitor 创建跟踪 iface 连通性的监视器
//
// 监视器随 Bridge 停止而关闭，也可以提前手动关闭。
func (b *Bridge) NewNetifMonitor(iface string, opts ...netif.Option) (*netif.Monitor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBridgeClosed
	}

	m, err := netif.NewMonitor(b.dispatcher, iface, opts...)
	if err != nil {
		return nil, err
	}
	b.monitors = append(b.monitors, m)
	return m, nil
}

// NewNetifDriver 创建向本 Bridge 投递 iface 事件的模拟驱动
func (b *Bridge) NewNetifDriver(iface string, opts ...netif.DriverOption) *netif.Driver {
	return netif.NewDriver(b.dispatcher, iface, opts...)
}

// ════════════════════════════════════════════════════════════════════════════
//                              状态统计
// ════════════════════════════════════════════════════════════════════════════

// Stats Bridge 运行统计
type Stats struct {
	Loop       eventloop.Stats
	Dispatcher dispatcher.Stats
}

// Stats 返回运行统计
func (b *Bridge) Stats() Stats {
	return Stats{
		Loop:       b.loop.Stats(),
		Dispatcher: b.dispatcher.Stats(),
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              可等待状态
// ════════════════════════════════════════════════════════════════════════════

// NewState 创建初始值为 initial 的可等待状态
func NewState[T any](initial T, opts ...waitable.Option) *waitable.State[T] {
	return waitable.New(initial, opts...)
}

// 等待时长
const (
	// Forever 不设截止时间
	Forever = types.Forever

	// NoWait 只检查一次
	NoWait = types.NoWait
)
