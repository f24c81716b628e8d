// Package interfaces 定义 evbridge 公共接口
//
// 本文件定义 EventDispatcher 接口，提供类型化的事件订阅与投递。
package interfaces

import (
	"context"
	"time"

	"github.com/dep2p/go-evbridge/pkg/types"
)

// Handler 类型化事件回调
//
// 在共享分发上下文中执行，不得长时间阻塞。
// ctx 标识本次调用，可交给 Subscription.CloseFromCallback 在回调内释放自身。
type Handler func(ctx context.Context, evt types.Event)

// RawHandler 未解码事件回调
type RawHandler func(ctx context.Context, evt types.RawEvent)

// EventDispatcher 定义事件分发器接口
type EventDispatcher interface {
	// Subscribe 订阅匹配 sel 的事件，回调收到解码后的载荷
	Subscribe(sel types.Selector, handler Handler) (Subscription, error)

	// SubscribeRaw 订阅匹配 sel 的事件，回调收到原始载荷
	SubscribeRaw(sel types.Selector, handler RawHandler) (Subscription, error)

	// Post 编码并投递事件，不阻塞
	Post(sel types.Selector, evt types.Event) error

	// PostTimeout 编码并投递事件，队列满时最多等待 wait
	PostTimeout(sel types.Selector, evt types.Event, wait time.Duration) error

	// PostRaw 投递原始载荷
	PostRaw(sel types.Selector, payload []byte, wait time.Duration) error

	// Close 释放全部订阅并拒绝后续操作
	Close() error
}

// Subscription 定义事件订阅接口
//
// 释放（Close）返回后，回调不会再以任何方式执行。
type Subscription interface {
	// Selector 返回订阅的选择器
	Selector() types.Selector

	// Close 取消订阅
	//
	// 如果回调正在另一个上下文中执行，阻塞直到它返回。
	// 重复调用返回 types.ErrInvalidState。
	Close() error

	// CloseFromCallback 在自身回调内取消订阅
	//
	// ctx 必须是回调收到的 ctx；不会等待当前这次调用。
	CloseFromCallback(ctx context.Context) error
}
