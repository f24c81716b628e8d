package dispatcher

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-evbridge/config"
	"github.com/dep2p/go-evbridge/internal/core/codec"
	"github.com/dep2p/go-evbridge/pkg/interfaces"
)

// ============================================================================
// Fx 模块
// ============================================================================

// Params 模块输入参数
type Params struct {
	fx.In

	Source   interfaces.RawEventSource
	Config   *config.Config  `optional:"true"`
	Registry *codec.Registry `optional:"true"`
	Observer Observer        `optional:"true"`
}

// Result 模块输出结果
type Result struct {
	fx.Out

	Dispatcher      *Dispatcher
	EventDispatcher interfaces.EventDispatcher
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("dispatcher",
		fx.Provide(ProvideDispatcher),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideDispatcher 提供分发器实例
func ProvideDispatcher(p Params) (Result, error) {
	opts := []Option{
		WithRegistry(p.Registry),
		WithObserver(p.Observer),
	}
	if p.Config != nil {
		opts = append(opts, WithConfig(p.Config.Dispatcher))
	}

	d, err := New(p.Source, opts...)
	if err != nil {
		return Result{}, err
	}
	return Result{Dispatcher: d, EventDispatcher: d}, nil
}

// registerLifecycle 注册生命周期
func registerLifecycle(lc fx.Lifecycle, d *Dispatcher) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			// 应用代码可能已经手动关闭
			if d.Closed() {
				return nil
			}
			return d.Close()
		},
	})
}

// ============================================================================
// 模块元信息
// ============================================================================

const (
	// Version 模块版本
	Version = "1.0.0"
	// Name 模块名称
	Name = "dispatcher"
	// Description 模块描述
	Description = "类型化事件分发器，保证订阅释放后回调不再执行"
)
