package log

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Format 日志输出格式
type Format int

const (
	// FormatText 文本格式（默认）
	FormatText Format = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
//
// 支持通过环境变量配置：
//   - EVBRIDGE_LOG_LEVEL: 格式 组件=级别,组件=级别,默认级别
//     示例: core/dispatcher=debug,core/eventloop=warn,info
//   - EVBRIDGE_LOG_FORMAT: text 或 json
//   - EVBRIDGE_LOG_ADD_SOURCE: true 或 false
type Config struct {
	mu sync.RWMutex

	// DefaultLevel 默认日志级别
	DefaultLevel slog.Level

	// ComponentLevels 各组件的日志级别
	ComponentLevels map[string]slog.Level

	// Format 输出格式
	Format Format

	// AddSource 是否添加源码位置
	AddSource bool
}

// LevelFor 获取指定组件的日志级别
//
// 先精确匹配组件名，再匹配最后一段（"core/dispatcher" 也可以写作 "dispatcher"）。
func (c *Config) LevelFor(component string) slog.Level {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if level, ok := c.ComponentLevels[component]; ok {
		return level
	}
	if i := strings.LastIndex(component, "/"); i >= 0 {
		if level, ok := c.ComponentLevels[component[i+1:]]; ok {
			return level
		}
	}
	return c.DefaultLevel
}

func (c *Config) setDefault(level slog.Level) {
	c.mu.Lock()
	c.DefaultLevel = level
	c.mu.Unlock()
}

func (c *Config) setComponent(component string, level slog.Level) {
	c.mu.Lock()
	c.ComponentLevels[component] = level
	c.mu.Unlock()
}

var (
	configCache *Config
	configOnce  sync.Once
)

// ConfigFromEnv 从环境变量解析配置（只解析一次）
func ConfigFromEnv() *Config {
	configOnce.Do(func() {
		configCache = parseConfig(os.Getenv)
	})
	return configCache
}

// ResetConfig 重置配置缓存（仅用于测试）
func ResetConfig() {
	configOnce = sync.Once{}
	configCache = nil
	rebuild()
}

// parseConfig 解析环境变量配置
func parseConfig(getenv func(string) string) *Config {
	cfg := &Config{
		DefaultLevel:    slog.LevelInfo,
		ComponentLevels: make(map[string]slog.Level),
		Format:          FormatText,
	}

	if levelStr := getenv("EVBRIDGE_LOG_LEVEL"); levelStr != "" {
		parseLevelConfig(cfg, levelStr)
	}

	if strings.EqualFold(getenv("EVBRIDGE_LOG_FORMAT"), "json") {
		cfg.Format = FormatJSON
	}

	if s := getenv("EVBRIDGE_LOG_ADD_SOURCE"); s != "" {
		cfg.AddSource = s != "false" && s != "0"
	}

	return cfg
}

// parseLevelConfig 解析日志级别配置字符串
func parseLevelConfig(cfg *Config, levelStr string) {
	for _, part := range strings.Split(levelStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if component, levelName, ok := strings.Cut(part, "="); ok {
			if level, ok := ParseLevel(strings.TrimSpace(levelName)); ok {
				cfg.ComponentLevels[strings.TrimSpace(component)] = level
			}
			continue
		}

		if level, ok := ParseLevel(part); ok {
			cfg.DefaultLevel = level
		}
	}
}

// ParseLevel 解析日志级别名称
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
