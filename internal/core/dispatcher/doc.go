// Package dispatcher 实现类型化事件分发器
//
// Dispatcher 把原生事件源的原始回调转换为带生命周期保证的类型化订阅：
//
//   - 订阅释放（Subscription.Close）返回后，回调不会再以任何方式执行
//   - 释放时回调正在执行，则阻塞到它返回
//   - 映射表与原生注册保持一致：每个存活的原生注册恰好对应一个映射项
//
// # 竞态与竞技场
//
// 原生层只持有订阅在竞技场中的索引（userCtx），不持有指针。
// 原生回调进入蹦床后先在竞技场中查找索引，再检查订阅状态，
// 只有处于存活状态的订阅才会进入调用，其余计为过期调用并丢弃。
//
// 订阅状态：
//
//	Pending → Registered → Detaching → Released
//
// # 释放顺序
//
//  1. 状态切换为 Detaching（之后不再有新调用开始）
//  2. 注销原生注册
//  3. 删除映射项
//  4. 等待正在进行的调用结束
//
// 任何一步都不在分发器锁内调用事件源或回调。
//
// # 在回调内释放
//
// 回调在共享分发上下文中执行，回调内调用 Close 会等待自身而死锁。
// 回调内释放自身应使用 CloseFromCallback(ctx)，ctx 是回调收到的 ctx。
// 释放等待超过 ReleaseWaitWarning 时输出警告并计入 Stats.StalledReleases。
//
// # 粘性事件
//
// WithStickyEvents(n) 保留最近投递的 n 个精确选择器的载荷，
// 新订阅者通过 Last 获取订阅前已经发生的状态。
// 实现 types.Keyed 的事件另按 (选择器, StickyKey) 记录，通过 LastFor 读取。
package dispatcher
