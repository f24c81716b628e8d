package dispatcher

import (
	"time"

	"github.com/dep2p/go-evbridge/pkg/types"
)

// Observer 分发器观察者
//
// 所有方法在热路径上同步调用，实现不得阻塞。
type Observer interface {
	// PostAccepted 事件已进入事件源队列
	PostAccepted(base types.EventBase)

	// PostRejected 投递失败
	PostRejected(base types.EventBase, err error)

	// Delivered 回调执行完成
	Delivered(base types.EventBase, elapsed time.Duration)

	// StaleInvocation 原生回调到达时订阅已不存活
	StaleInvocation(base types.EventBase)

	// DecodeFailed 载荷解码失败
	DecodeFailed(base types.EventBase)

	// SubscriptionsChanged 存活订阅数变化
	SubscriptionsChanged(n int)
}

// nopObserver 空观察者
type nopObserver struct{}

func (nopObserver) PostAccepted(types.EventBase) {}
func (nopObserver) PostRejected(types.EventBase, error) {}
func (nopObserver) Delivered(types.EventBase, time.Duration) {}
func (nopObserver) StaleInvocation(types.EventBase) {}
func (nopObserver) DecodeFailed(types.EventBase) {}
func (nopObserver) SubscriptionsChanged(int) {}
