package config

import (
	"errors"
	"fmt"
)

// ValidateAll 验证整个配置的有效性
//
// 这是 Config.Validate() 的别名，额外处理 nil。
func ValidateAll(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}

// ValidateAndFix 验证配置并尝试自动修复常见问题
//
// 可修复的问题：
//   - 队列容量非正 -> 按循环类型使用默认值
//   - 注册槽位非正 -> 使用默认值
//   - 负的时长 -> 使用默认值
func ValidateAndFix(c *Config) (*Config, error) {
	if c == nil {
		return NewConfig(), nil
	}

	if c.Loop.Kind == "" {
		c.Loop.Kind = LoopBackground
	}
	if c.Loop.QueueSize <= 0 {
		if c.Loop.Kind == LoopExplicit {
			c.Loop.QueueSize = DefaultExplicitQueueSize
		} else {
			c.Loop.QueueSize = DefaultBackgroundQueueSize
		}
	}
	if c.Loop.MaxHandlers <= 0 {
		c.Loop.MaxHandlers = DefaultMaxHandlers
	}

	def := DefaultDispatcherConfig()
	if c.Dispatcher.SlowHandlerThreshold < 0 {
		c.Dispatcher.SlowHandlerThreshold = def.SlowHandlerThreshold
	}
	if c.Dispatcher.SlowHandlerLogInterval < 0 {
		c.Dispatcher.SlowHandlerLogInterval = def.SlowHandlerLogInterval
	}
	if c.Dispatcher.ReleaseWaitWarning < 0 {
		c.Dispatcher.ReleaseWaitWarning = def.ReleaseWaitWarning
	}
	if c.Dispatcher.StickyEvents < 0 {
		c.Dispatcher.StickyEvents = 0
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed after fixes: %w", err)
	}
	return c, nil
}

// MustValidate 验证配置，如果失败则 panic
//
// 仅用于初始化阶段或测试代码。
func MustValidate(c *Config) {
	if err := ValidateAll(c); err != nil {
		panic(fmt.Sprintf("invalid config: %v", err))
	}
}
