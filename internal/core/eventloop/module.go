package eventloop

import (
	"context"
	"sync"

	"go.uber.org/fx"

	"github.com/dep2p/go-evbridge/config"
	"github.com/dep2p/go-evbridge/pkg/interfaces"
)

// ============================================================================
// Fx 模块
// ============================================================================

// Params 模块输入参数
type Params struct {
	fx.In

	Config  *config.Config `optional:"true"`
	Cleanup *Cleanup       `optional:"true"`
}

// Result 模块输出结果
type Result struct {
	fx.Out

	Loop   *Loop
	Source interfaces.RawEventSource
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("eventloop",
		fx.Provide(ProvideLoop),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideLoop 提供事件循环实例
func ProvideLoop(p Params) (Result, error) {
	cfg := config.DefaultLoopConfig()
	if p.Config != nil {
		cfg = p.Config.Loop
	}

	loop, err := New(cfg)
	if err != nil {
		return Result{}, err
	}
	if p.Cleanup != nil {
		p.Cleanup.track(loop)
	}
	return Result{Loop: loop, Source: loop}, nil
}

// Cleanup 记录 Fx 构建过程中创建的事件循环
//
// 构建失败时 OnStop 钩子不会执行，由调用方调用 Close 释放。
type Cleanup struct {
	mu    sync.Mutex
	loops []*Loop
}

// NewCleanup 创建空的清理槽
func NewCleanup() *Cleanup {
	return &Cleanup{}
}

func (c *Cleanup) track(l *Loop) {
	c.mu.Lock()
	c.loops = append(c.loops, l)
	c.mu.Unlock()
}

// Len 返回记录的事件循环数
func (c *Cleanup) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.loops)
}

// Close 关闭所有记录的事件循环
func (c *Cleanup) Close() {
	c.mu.Lock()
	loops := c.loops
	c.loops = nil
	c.mu.Unlock()

	for _, l := range loops {
		// Loop.Close 幂等且总是返回 nil
		_ = l.Close()
	}
}

// registerLifecycle 注册生命周期
func registerLifecycle(lc fx.Lifecycle, loop *Loop) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return loop.Close()
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
	Name = "eventloop"
	// Description 模块描述
	Description = "进程内原生事件循环，提供原始回调注册与阻塞/非阻塞投递"
)
