// Package waitable 实现可等待状态
//
// State[T] 是带版本号的受保护值。生产者（通常是分发器回调）调用 Publish 发布新值，
// 消费者调用 WaitUntil 阻塞到谓词成立、超时、ctx 取消或 Shutdown。
//
// # 唤醒机制
//
// 每个版本对应一个广播 channel。Publish 替换值、版本号加一、换上新 channel，
// 然后关闭旧 channel，唤醒所有在旧版本上挂起的等待者，每个等待者重新检查自己的谓词。
// 等待者在锁内同时读取值和 channel，所以不会错过唤醒：
// 读到旧 channel 的等待者一定会被随后的 close 唤醒。
//
// # 超时语义
//
//	types.Forever (-1)  不设时限
//	0                   只检查一次
//	> 0                 最多等待该时长，到期返回 types.ErrTimedOut
//
// 谓词已经成立时立即返回，不挂起、不创建定时器。
//
// # 快速开始
//
//	link := waitable.New(LinkDown)
//
//	// 分发器回调中
//	link.Publish(LinkUp)
//
//	// 消费者
//	v, err := link.WaitUntil(ctx, waitable.Equal(LinkUp), 5*time.Second)
package waitable
