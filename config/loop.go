package config

import (
	"errors"
	"fmt"
)

// LoopKind 事件循环类型
type LoopKind string

const (
	// LoopSystem 进程级默认事件循环，同一时刻只能存在一个
	LoopSystem LoopKind = "system"

	// LoopBackground 自带分发 goroutine 的用户事件循环
	LoopBackground LoopKind = "background"

	// LoopExplicit 由调用方通过 Run 显式驱动的事件循环
	LoopExplicit LoopKind = "explicit"
)

// LoopConfig 事件循环配置
//
// 字段与原生 SDK 的事件循环参数一一对应，
// 其中 TaskPriority / TaskStackSize / PinToCore 只做记录，Go 运行时不支持。
type LoopConfig struct {
	// Kind 事件循环类型
	Kind LoopKind `json:"kind" yaml:"kind"`

	// QueueSize 事件队列容量
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// TaskName 分发任务名称，为空时自动生成
	TaskName string `json:"task_name,omitempty" yaml:"task_name,omitempty"`

	// TaskPriority 分发任务优先级
	TaskPriority int `json:"task_priority" yaml:"task_priority"`

	// TaskStackSize 分发任务栈大小
	TaskStackSize int `json:"task_stack_size" yaml:"task_stack_size"`

	// PinToCore 分发任务绑定的核
	PinToCore int `json:"pin_to_core" yaml:"pin_to_core"`

	// MaxHandlers 最大原始回调注册数
	MaxHandlers int `json:"max_handlers" yaml:"max_handlers"`
}

// 默认值
const (
	DefaultBackgroundQueueSize = 64
	DefaultExplicitQueueSize   = 8192
	DefaultTaskStackSize       = 3072
	DefaultMaxHandlers         = 128
)

// DefaultLoopConfig 返回默认事件循环配置
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		Kind:          LoopBackground,
		QueueSize:     DefaultBackgroundQueueSize, // 后台循环：64 个事件
		TaskPriority:  0,
		TaskStackSize: DefaultTaskStackSize, // 3 KB
		PinToCore:     0,
		MaxHandlers:   DefaultMaxHandlers,
	}
}

// DefaultExplicitLoopConfig 返回显式驱动事件循环的默认配置
func DefaultExplicitLoopConfig() LoopConfig {
	cfg := DefaultLoopConfig()
	cfg.Kind = LoopExplicit
	cfg.QueueSize = DefaultExplicitQueueSize
	return cfg
}

// Validate 验证事件循环配置
func (c LoopConfig) Validate() error {
	switch c.Kind {
	case LoopSystem, LoopBackground, LoopExplicit:
	default:
		return fmt.Errorf("unknown loop kind %q", c.Kind)
	}
	if c.QueueSize <= 0 {
		return errors.New("queue_size must be positive")
	}
	if c.MaxHandlers <= 0 {
		return errors.New("max_handlers must be positive")
	}
	if c.TaskStackSize < 0 {
		return errors.New("task_stack_size must not be negative")
	}
	if c.PinToCore < 0 {
		return errors.New("pin_to_core must not be negative")
	}
	return nil
}
