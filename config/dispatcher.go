package config

import (
	"errors"
	"time"
)

// DispatcherConfig 事件分发器配置
type DispatcherConfig struct {
	// StickyEvents 按选择器缓存最近事件的条目数
	// 0 表示不缓存
	StickyEvents int `json:"sticky_events" yaml:"sticky_events"`

	// SlowHandlerThreshold 回调执行超过该时长时输出警告
	// 0 表示不检测
	SlowHandlerThreshold Duration `json:"slow_handler_threshold" yaml:"slow_handler_threshold"`

	// SlowHandlerLogInterval 慢回调警告的最小间隔
	SlowHandlerLogInterval Duration `json:"slow_handler_log_interval" yaml:"slow_handler_log_interval"`

	// ReleaseWaitWarning 释放等待回调结束超过该时长时输出警告
	// 0 表示不检测
	ReleaseWaitWarning Duration `json:"release_wait_warning" yaml:"release_wait_warning"`
}

// DefaultDispatcherConfig 返回默认分发器配置
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		StickyEvents:           64,
		SlowHandlerThreshold:   Duration(50 * time.Millisecond),
		SlowHandlerLogInterval: Duration(time.Second),
		ReleaseWaitWarning:     Duration(time.Second),
	}
}

// Validate 验证分发器配置
func (c DispatcherConfig) Validate() error {
	if c.StickyEvents < 0 {
		return errors.New("sticky_events must not be negative")
	}
	if c.SlowHandlerThreshold < 0 {
		return errors.New("slow_handler_threshold must not be negative")
	}
	if c.SlowHandlerLogInterval < 0 {
		return errors.New("slow_handler_log_interval must not be negative")
	}
	if c.ReleaseWaitWarning < 0 {
		return errors.New("release_wait_warning must not be negative")
	}
	return nil
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enable 启用 Prometheus 指标
	Enable bool `json:"enable" yaml:"enable"`

	// Namespace 指标命名空间
	Namespace string `json:"namespace" yaml:"namespace"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enable:    true,
		Namespace: "evbridge",
	}
}

// Validate 验证指标配置
func (c MetricsConfig) Validate() error {
	if c.Enable && c.Namespace == "" {
		return errors.New("namespace required when metrics enabled")
	}
	return nil
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 默认日志级别（debug/info/warn/error）
	// 为空时沿用 EVBRIDGE_LOG_LEVEL
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format 输出格式（text/json）
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return errors.New("unknown log level " + c.Level)
	}
	switch c.Format {
	case "", "text", "json":
	default:
		return errors.New("unknown log format " + c.Format)
	}
	return nil
}
