package evbridge

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-evbridge/config"
	"github.com/dep2p/go-evbridge/internal/core/codec"
	"github.com/dep2p/go-evbridge/internal/core/dispatcher"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
//
// 选项按传入顺序作用于同一份配置，后面的选项覆盖前面的值。
type options struct {
	config *config.Config

	// 外部 Prometheus 注册器，为空时使用独立注册器
	registerer prometheus.Registerer

	// 追加的编解码器（IfaceCodec 总是注册）
	codecs []codec.Codec

	// 分发器观察者，指标关闭时使用
	observer dispatcher.Observer

	// 高级用户的 Fx 选项
	userFxOptions []fx.Option
}

func newOptions() *options {
	return &options{config: config.NewConfig()}
}

// apply 依次应用选项
func (o *options) apply(opts ...Option) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(o); err != nil {
			return err
		}
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置来源
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用给定配置替换当前配置
//
// 配置会被复制，调用方之后的修改不影响 Bridge。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("%w: nil config", ErrInvalidOption)
		}
		o.config = cfg.Clone()
		return nil
	}
}

// WithConfigFile 从文件加载配置（按扩展名选择 JSON 或 YAML）
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		o.config = cfg
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              事件循环
// ════════════════════════════════════════════════════════════════════════════

// WithLoopKind 设置事件循环类型
func WithLoopKind(kind config.LoopKind) Option {
	return func(o *options) error {
		o.config.Loop.Kind = kind
		return nil
	}
}

// WithQueueSize 设置事件队列容量
func WithQueueSize(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("%w: queue size %d", ErrInvalidOption, n)
		}
		o.config.Loop.QueueSize = n
		return nil
	}
}

// WithMaxHandlers 设置原始回调注册上限
func WithMaxHandlers(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("%w: max handlers %d", ErrInvalidOption, n)
		}
		o.config.Loop.MaxHandlers = n
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              分发器
// ════════════════════════════════════════════════════════════════════════════

// WithStickyEvents 设置粘性事件缓存条目数，0 表示关闭
func WithStickyEvents(n int) Option {
	return func(o *options) error {
		if n < 0 {
			return fmt.Errorf("%w: sticky events %d", ErrInvalidOption, n)
		}
		o.config.Dispatcher.StickyEvents = n
		return nil
	}
}

// WithCodec 注册额外的事件编解码器
func WithCodec(c codec.Codec) Option {
	return func(o *options) error {
		if c == nil {
			return fmt.Errorf("%w: nil codec", ErrInvalidOption)
		}
		o.codecs = append(o.codecs, c)
		return nil
	}
}

// WithObserver 设置分发器观察者
//
// 启用指标时指标观察者优先，该选项被忽略。
func WithObserver(obs dispatcher.Observer) Option {
	return func(o *options) error {
		o.observer = obs
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              指标
// ════════════════════════════════════════════════════════════════════════════

// WithRegisterer 在给定注册器上注册指标
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithMetrics 启用或关闭指标
func WithMetrics(enable bool) Option {
	return func(o *options) error {
		o.config.Metrics.Enable = enable
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              高级选项
// ════════════════════════════════════════════════════════════════════════════

// WithFxOption 追加 Fx 选项（高级用户）
func WithFxOption(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
