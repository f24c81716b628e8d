// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义
//   - 支持从 JSON / YAML 加载和保存配置
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.Loop.QueueSize = 128
//
//	// 从文件加载（按扩展名选择 JSON 或 YAML）
//	cfg, err := config.LoadFile("bridge.yaml")
package config

import "fmt"

// Config 是 evbridge 的完整配置结构
//
// 配置按照功能模块组织：
//   - Loop: 原生事件循环（队列、分发任务、注册槽位）
//   - Dispatcher: 事件分发器（粘性事件、慢回调阈值）
//   - Metrics: Prometheus 指标
//   - Log: 日志
type Config struct {
	// Loop 事件循环配置
	Loop LoopConfig `json:"loop" yaml:"loop"`

	// Dispatcher 分发器配置
	Dispatcher DispatcherConfig `json:"dispatcher" yaml:"dispatcher"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Log 日志配置
	Log LogConfig `json:"log" yaml:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Loop:       DefaultLoopConfig(),
		Dispatcher: DefaultDispatcherConfig(),
		Metrics:    DefaultMetricsConfig(),
		Log:        DefaultLogConfig(),
	}
}

// Validate 验证整个配置
func (c *Config) Validate() error {
	if err := c.Loop.Validate(); err != nil {
		return fmt.Errorf("loop: %w", err)
	}
	if err := c.Dispatcher.Validate(); err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// Clone 返回配置的深拷贝
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
