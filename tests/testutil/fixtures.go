// Package testutil 提供测试辅助工具
package testutil

import (
	"net/netip"
	"time"
)

// 测试数据固件
//
// 提供测试中常用的常量值，确保测试一致性。

const (
	// DefaultTestIface 默认测试接口名
	DefaultTestIface = "sta0"

	// DefaultTestBase 非 IFACE_EVENT 的测试事件基
	//
	// 没有注册编解码器，订阅者收到 types.RawEvent。
	DefaultTestBase = "TEST_EVENT"

	// DefaultWaitTimeout 等待类断言的默认超时
	DefaultWaitTimeout = 2 * time.Second

	// DefaultBlockCheck 确认"仍在阻塞"的观察时长
	DefaultBlockCheck = 30 * time.Millisecond
)

var (
	// DefaultTestAddr 默认测试地址
	DefaultTestAddr = netip.MustParsePrefix("192.168.4.23/24")

	// DefaultTestGateway 默认测试网关
	DefaultTestGateway = netip.MustParseAddr("192.168.4.1")
)
