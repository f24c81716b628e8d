package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/dep2p/go-evbridge"
)

// ============================================================================
//                              环境变量（CLI 专用）
// ============================================================================

// 环境变量名
const (
	envPrefix       = "EVBRIDGE_"
	envQueueSize    = "QUEUE_SIZE"
	envMaxHandlers  = "MAX_HANDLERS"
	envStickyEvents = "STICKY_EVENTS"
	envMetrics      = "METRICS"
)

// envOptions 将环境变量转换为 Bridge 选项
//
// 无法解析的值被忽略并记录警告。
func envOptions() []evbridge.Option {
	var opts []evbridge.Option

	if n, ok := envInt(envQueueSize); ok {
		opts = append(opts, evbridge.WithQueueSize(n))
	}
	if n, ok := envInt(envMaxHandlers); ok {
		opts = append(opts, evbridge.WithMaxHandlers(n))
	}
	if n, ok := envInt(envStickyEvents); ok {
		opts = append(opts, evbridge.WithStickyEvents(n))
	}
	if v := os.Getenv(envPrefix + envMetrics); v != "" {
		opts = append(opts, evbridge.WithMetrics(parseBool(v)))
	}
	return opts
}

// envInt 读取整数环境变量
func envInt(name string) (int, bool) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		logger.Warn("忽略无效环境变量", "name", envPrefix+name, "value", v)
		return 0, false
	}
	return n, true
}

// parseBool 解析布尔值字符串
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
