package evbridge

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-evbridge/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              错误分类
// ════════════════════════════════════════════════════════════════════════════

var (
	// ErrResourceExhausted 原生事件源无法再分配注册槽位
	ErrResourceExhausted = types.ErrResourceExhausted

	// ErrQueueFull 原生分发队列已满
	ErrQueueFull = types.ErrQueueFull

	// ErrTimedOut 等待截止时间已过
	ErrTimedOut = types.ErrTimedOut

	// ErrCancelled 等待被关闭信号或上下文中断
	ErrCancelled = types.ErrCancelled

	// ErrInvalidState 在已释放的订阅或已关闭的分发器上执行操作
	ErrInvalidState = types.ErrInvalidState
)

// ════════════════════════════════════════════════════════════════════════════
//                              编解码错误
// ════════════════════════════════════════════════════════════════════════════

var (
	// ErrUnknownEventBase 事件基没有注册编解码器
	ErrUnknownEventBase = types.ErrUnknownEventBase

	// ErrMalformedPayload 载荷无法解码
	ErrMalformedPayload = types.ErrMalformedPayload
)

// ════════════════════════════════════════════════════════════════════════════
//                              Bridge 错误
// ════════════════════════════════════════════════════════════════════════════

var (
	// ErrBridgeClosed Bridge 已停止
	ErrBridgeClosed = fmt.Errorf("%w: bridge closed", types.ErrInvalidState)

	// ErrAlreadyStarted Bridge 已启动
	ErrAlreadyStarted = fmt.Errorf("%w: bridge already started", types.ErrInvalidState)

	// ErrNotStarted Bridge 未启动
	ErrNotStarted = fmt.Errorf("%w: bridge not started", types.ErrInvalidState)

	// ErrInvalidOption 选项参数无效
	ErrInvalidOption = errors.New("invalid option")
)
