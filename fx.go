package evbridge

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-evbridge/config"
	"github.com/dep2p/go-evbridge/internal/core/codec"
	"github.com/dep2p/go-evbridge/internal/core/dispatcher"
	"github.com/dep2p/go-evbridge/internal/core/eventloop"
	"github.com/dep2p/go-evbridge/internal/core/metrics"
	"github.com/dep2p/go-evbridge/pkg/lib/log"
)

var fxLogger = log.Logger("evbridge/fx")

// buildFxApp 根据配置构建 Fx 应用
//
// 模块加载顺序：
//  1. 配置与编解码注册表
//  2. 事件循环（原生事件源）
//  3. 指标（可选）
//  4. 分发器
//  5. Bridge 组件注入
//
// 停止时 Fx 按相反顺序执行 OnStop：先关闭分发器释放所有订阅，再关闭事件循环。
func buildFxApp(o *options, reg *codec.Registry, cleanup *eventloop.Cleanup, b *Bridge) *fx.App {
	cfg := o.config

	modules := []fx.Option{
		// ════════════════════════════════════════════════════════════════════
		// 1. 配置与编解码
		// ════════════════════════════════════════════════════════════════════
		fx.Supply(cfg),
		fx.Supply(reg),
		fx.Supply(cleanup),

		// ════════════════════════════════════════════════════════════════════
		// 2. 事件循环
		// ════════════════════════════════════════════════════════════════════
		eventloop.Module(),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 指标 / 观察者
	// ════════════════════════════════════════════════════════════════════════
	switch {
	case cfg.Metrics.Enable:
		modules = append(modules, metrics.Module())
		if o.registerer != nil {
			registerer := o.registerer
			modules = append(modules, fx.Provide(func() prometheus.Registerer { return registerer }))
		}
		if o.observer != nil {
			fxLogger.Debug("指标已启用，忽略自定义观察者")
		}
	case o.observer != nil:
		obs := o.observer
		modules = append(modules, fx.Provide(func() dispatcher.Observer { return obs }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 4. 分发器
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, dispatcher.Module())

	if len(o.userFxOptions) > 0 {
		modules = append(modules, o.userFxOptions...)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 5. Bridge 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		fx.Invoke(injectBridgeComponents(b)),

		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	return fx.New(modules...)
}

// buildRegistry 创建包含 IfaceCodec 与追加编解码器的注册表
func buildRegistry(extra []codec.Codec) (*codec.Registry, error) {
	reg := codec.DefaultRegistry()
	for _, c := range extra {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register codec %s: %w", c.Base(), err)
		}
	}
	return reg, nil
}

// bridgeComponents Bridge 依赖的组件
type bridgeComponents struct {
	fx.In

	Config     *config.Config
	Loop       *eventloop.Loop
	Dispatcher *dispatcher.Dispatcher
	Registry   *codec.Registry
	Metrics    *metrics.Metrics `optional:"true"`
}

// injectBridgeComponents 将组件注入 Bridge
func injectBridgeComponents(b *Bridge) func(bridgeComponents) {
	return func(c bridgeComponents) {
		b.cfg = c.Config
		b.loop = c.Loop
		b.dispatcher = c.Dispatcher
		b.registry = c.Registry
		b.metrics = c.Metrics
		fxLogger.Debug("组件注入完成",
			"loop", c.Loop.Name(),
			"kind", string(c.Loop.Kind()),
			"metrics", c.Metrics != nil)
	}
}
