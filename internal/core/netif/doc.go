// Package netif 实现网络接口连通性监视
//
// Monitor 只依赖分发器和可等待状态：订阅 IFACE_EVENT，
// 按接口名过滤，每个逻辑条件对应一个 waitable.State：
//
//	Link  链路状态（含最近一次断开原因）
//	IP    IP 信息
//
// 消费者调用 WaitUp / WaitDown / WaitIP 阻塞到条件成立，超时时间由调用方决定。
//
// Driver 是模拟驱动，按真实驱动的顺序投递接口事件：
//
//	Connect:    IfaceUp → IPAcquired
//	Disconnect: IPLost → Disconnected → IfaceDown
package netif
