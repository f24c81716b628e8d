// Package metrics 提供事件分发指标
//
// Metrics 实现 dispatcher.Observer，把分发器的热路径事件转换为 Prometheus 指标：
//
//	evbridge_events_posted_total{base}            投递成功
//	evbridge_post_rejected_total{base,reason}     投递失败
//	evbridge_events_delivered_total{base}         回调执行完成
//	evbridge_stale_invocations_total              过期调用
//	evbridge_decode_errors_total{base}            解码失败
//	evbridge_subscriptions                        存活订阅数
//	evbridge_handler_duration_seconds{base}       回调耗时
//
// 同时按事件基维护最近 60 秒的速率，Snapshot 返回进程内可读的统计快照，
// 不需要抓取 Prometheus。
//
// # 快速开始
//
//	reg := prometheus.NewRegistry()
//	m, _ := metrics.New(reg)
//
//	d, _ := dispatcher.New(loop, dispatcher.WithObserver(m))
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// # 并发安全
//
// Prometheus 向量本身并发安全；按事件基的速率表由 RWMutex 保护，
// 首次出现的事件基在写锁内创建。
package metrics
