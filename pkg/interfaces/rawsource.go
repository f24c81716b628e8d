// Package interfaces 定义 evbridge 公共接口
//
// 本文件定义原生事件源接口。
package interfaces

import (
	"time"

	"github.com/dep2p/go-evbridge/pkg/types"
)

// NativeHandler 原生回调签名
//
// 在事件源的共享分发上下文中调用，一次只调用一个。
// payload 仅在调用期间有效；userCtx 是注册时传入的不透明值。
type NativeHandler func(base types.EventBase, id types.EventID, payload []byte, userCtx uint64)

// RawEventSource 原生事件源
//
// 对应原生 SDK 的事件循环：注册原始回调、注销、投递事件。
// 实现必须保证同一事件基 + 事件编号的事件按投递顺序分发。
type RawEventSource interface {
	// Subscribe 注册原始回调
	//
	// id 为 types.AnyID 时接收 base 下的所有事件。
	// 注册槽位耗尽时返回 types.ErrResourceExhausted。
	Subscribe(base types.EventBase, id types.EventID, handler NativeHandler, userCtx uint64) (types.Token, error)

	// Unsubscribe 注销原始回调
	//
	// 返回后不会再有新的调用开始，但可能有一次调用正在进行或
	// 已经从注销前的快照中取出，调用方需要自行处理这个竞态。
	Unsubscribe(token types.Token) error

	// Post 投递事件
	//
	// 载荷会被复制。队列满时最多阻塞 wait，仍然满则返回 types.ErrQueueFull。
	// wait 为 0 表示不阻塞。
	Post(base types.EventBase, id types.EventID, payload []byte, wait time.Duration) error
}
