// Package mocks 提供统一的测试 Mock 实现
//
// # 核心 Mock
//
//   - MockRawEventSource: 模拟 interfaces.RawEventSource，同步分发，支持注册上限和快照
//
// # 设计原则
//
// 1. 函数式注入: 每个 Mock 都支持通过 XxxFunc 字段注入自定义行为
// 2. 调用记录: 关键 Mock 记录调用历史，便于验证测试行为
//
// # 使用示例
//
//	src := mocks.NewMockRawEventSource()
//	src.MaxHandlers = 1
//
//	d, _ := dispatcher.New(src)
//	d.Subscribe(types.All("IFACE_EVENT"), handler)
//
//	_, err := d.Subscribe(types.All("IFACE_EVENT"), handler)
//	// errors.Is(err, types.ErrResourceExhausted)
//
//	src.Fire("IFACE_EVENT", 0, payload)
package mocks
