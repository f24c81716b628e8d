package dispatcher

import (
	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-evbridge/config"
	"github.com/dep2p/go-evbridge/internal/core/codec"
)

// Option 分发器选项
type Option func(*Dispatcher)

// WithConfig 设置分发器配置
func WithConfig(cfg config.DispatcherConfig) Option {
	return func(d *Dispatcher) {
		d.cfg = cfg
	}
}

// WithRegistry 设置编解码注册表
func WithRegistry(r *codec.Registry) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.registry = r
		}
	}
}

// WithObserver 设置观察者
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithStickyEvents 保留最近 n 个精确选择器的事件，n 为 0 时关闭
func WithStickyEvents(n int) Option {
	return func(d *Dispatcher) {
		d.cfg.StickyEvents = n
	}
}

// WithClock 设置时钟（用于测试）
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) {
		d.clock = c
	}
}
