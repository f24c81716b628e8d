// Package eventloop 实现进程内的原生事件循环
//
// 事件循环对应原生 SDK 的事件循环原语：创建循环、投递事件、
// 注册原始回调、在分发任务上运行回调。它只实现 interfaces.RawEventSource
// 描述的原始契约，不做任何类型化处理，类型化和生命周期安全由 dispatcher 负责。
//
// # 循环类型
//
//   - System: 进程级默认循环，同一时刻只能存在一个
//   - Background: 自带分发 goroutine
//   - Explicit: 没有 goroutine，由调用方通过 Run 驱动
//
// # 快速开始
//
//	loop, _ := eventloop.New(config.DefaultLoopConfig())
//	defer loop.Close()
//
//	token, _ := loop.Subscribe("IFACE_EVENT", types.AnyID, handler, 0)
//	defer loop.Unsubscribe(token)
//
//	loop.Post("IFACE_EVENT", 2, payload, 10*time.Millisecond)
//
// # 并发安全
//
//   - 注册表：RWMutex 保护，分发时在锁内取快照、锁外调用回调
//   - 队列：带缓冲 channel，FIFO，单一分发者保证同一事件的投递顺序
//   - 关闭：closeOnce + stopCh，关闭后投递返回 ErrInvalidState
//
// 注销与分发之间存在固有竞态：注销前取出的快照仍可能调用一次已注销的回调。
// 这与原生 SDK 的行为一致。
package eventloop
