// Package types 定义 evbridge 的基础类型
//
// 本文件定义所有公共错误类型。
package types

import (
	"errors"
	"fmt"
)

// ============================================================================
//                              错误分类
// ============================================================================

var (
	// ErrResourceExhausted 原生事件源无法再分配注册槽位或队列容量
	//
	// 可恢复：调用方可以稍后重试。
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrQueueFull 原生分发队列已满（瞬时背压）
	//
	// 可恢复：调用方可以重试或丢弃该事件。
	ErrQueueFull = errors.New("event queue full")

	// ErrTimedOut 等待截止时间已过
	//
	// 这是预期结果而非故障，由调用方决定重试、升级或放弃。
	ErrTimedOut = errors.New("wait timed out")

	// ErrCancelled 等待被外部关闭信号中断
	ErrCancelled = errors.New("wait cancelled")

	// ErrInvalidState 在已释放的订阅或已关闭的分发器上执行操作
	//
	// 属于编程错误，始终向调用方暴露。
	ErrInvalidState = errors.New("invalid state")
)

// ============================================================================
//                              编解码错误
// ============================================================================

var (
	// ErrUnknownEventBase 事件基没有注册编解码器
	ErrUnknownEventBase = errors.New("unknown event base")

	// ErrMalformedPayload 载荷无法解码
	ErrMalformedPayload = errors.New("malformed payload")
)

// Cancelled 将上下文错误包装为 ErrCancelled
//
// 返回的错误同时满足 errors.Is(err, ErrCancelled) 与 errors.Is(err, cause)。
func Cancelled(cause error) error {
	if cause == nil {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
