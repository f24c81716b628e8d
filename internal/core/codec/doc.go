// Package codec 实现事件载荷的类型化编解码
//
// 原生事件循环只搬运字节。codec 把 (base, id, payload) 还原为带类型的事件，
// 并在投递时把带类型的事件编码回字节。
//
// # 接口事件
//
// IFACE_EVENT 基下定义了 5 种事件：
//
//	IfaceUp        链路就绪
//	IfaceDown      链路断开
//	IPAcquired     获取到 IP（含地址、网关、是否变更）
//	IPLost         丢失 IP
//	Disconnected   断开连接（含原因）
//
// 载荷使用 protobuf 线格式编码，未知字段在解码时跳过，旧版本可以解码新版本的载荷。
//
// # 注册表
//
// Registry 维护 base 到 Codec 的映射。没有注册编解码器的 base 解码为 types.RawEvent。
package codec
