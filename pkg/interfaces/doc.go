// Package interfaces 定义 evbridge 的公共接口
//
// # 外部协作者
//
//   - rawsource.go  - RawEventSource，原生事件循环需要满足的契约
//
// # 核心接口
//
//   - dispatcher.go - EventDispatcher / Subscription，连接状态机使用的订阅接口
//
// 接口只依赖 pkg/types，实现位于 internal/core 下对应目录。
package interfaces
