// Package log 提供 evbridge 统一日志接口
//
// 基于 Go 标准库 log/slog 封装，提供简洁的日志 API。
// 每个组件通过 Logger("core/dispatcher") 获取带组件名的 LazyLogger，
// 级别可以按组件通过 EVBRIDGE_LOG_LEVEL 环境变量配置。
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// 日志级别常量（从 slog 导出，方便使用）
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var (
	// outputMu 保护 output 与 format
	outputMu sync.RWMutex
	output   io.Writer = os.Stderr
	format             = FormatText

	// base 当前的根 logger，所有组件 logger 共享
	base guarded[*slog.Logger]
)

// guarded 读写锁保护的值
type guarded[T any] struct {
	mu sync.RWMutex
	v  T
}

func (a *guarded[T]) load() T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.v
}

func (a *guarded[T]) store(v T) {
	a.mu.Lock()
	a.v = v
	a.mu.Unlock()
}

// rebuild 根据当前输出与格式重建根 logger
//
// 根 handler 始终放行 Debug，真正的级别过滤在 LazyLogger 中按组件完成。
func rebuild() {
	outputMu.RLock()
	w, f := output, format
	outputMu.RUnlock()

	opts := &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: ConfigFromEnv().AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			return a
		},
	}

	var h slog.Handler
	if f == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	base.store(slog.New(h))
}

// SetOutput 设置日志输出目标
//
// 已创建的 LazyLogger 也会立即使用新的输出。
//
// 示例：
//
//	file, _ := os.OpenFile("bridge.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
//	log.SetOutput(file)
func SetOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
	rebuild()
}

// SetFormat 设置输出格式
func SetFormat(f Format) {
	outputMu.Lock()
	format = f
	outputMu.Unlock()
	rebuild()
}

// SetLevel 设置默认日志级别
//
// 不影响通过 EVBRIDGE_LOG_LEVEL 单独配置过的组件。
func SetLevel(level slog.Level) {
	ConfigFromEnv().setDefault(level)
}

// SetComponentLevel 设置指定组件的日志级别
func SetComponentLevel(component string, level slog.Level) {
	ConfigFromEnv().setComponent(component, level)
}

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 懒加载 logger
//
// 每次日志调用时都使用最新的根 logger，
// 支持在运行时动态切换日志输出目标。
//
// 使用方式：
//
//	var logger = log.Logger("core/eventloop")
//	logger.Info("事件循环已启动", "name", name)
type LazyLogger struct {
	component string
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

// Component 返回组件名
func (l *LazyLogger) Component() string {
	return l.component
}

// Enabled 检查指定级别是否会输出
func (l *LazyLogger) Enabled(level slog.Level) bool {
	return level >= ConfigFromEnv().LevelFor(l.component)
}

func (l *LazyLogger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	base.load().With("component", l.component).Log(ctx, level, msg, args...)
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) {
	l.log(context.Background(), slog.LevelDebug, msg, args...)
}

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) {
	l.log(context.Background(), slog.LevelInfo, msg, args...)
}

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) {
	l.log(context.Background(), slog.LevelWarn, msg, args...)
}

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) {
	l.log(context.Background(), slog.LevelError, msg, args...)
}

// DebugContext 带 context 的 Debug 日志
func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelDebug, msg, args...)
}

// WarnContext 带 context 的 Warn 日志
func (l *LazyLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, slog.LevelWarn, msg, args...)
}

// With 添加额外的属性
func (l *LazyLogger) With(args ...any) *slog.Logger {
	return base.load().With("component", l.component).With(args...)
}

// ============================================================================
//                              工具函数
// ============================================================================

// TruncateID 安全截取 ID 用于日志显示
func TruncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen]
}

func init() {
	cfg := ConfigFromEnv()
	outputMu.Lock()
	format = cfg.Format
	outputMu.Unlock()
	rebuild()
}
