package codec

import (
	"fmt"
	"net/netip"

	"github.com/dep2p/go-evbridge/pkg/types"
)

// IfaceBase 接口事件基
const IfaceBase types.EventBase = "IFACE_EVENT"

// 接口事件 ID
const (
	EventIfaceUp      types.EventID = 0
	EventIfaceDown    types.EventID = 1
	EventIPAcquired   types.EventID = 2
	EventIPLost       types.EventID = 3
	EventDisconnected types.EventID = 4
)

// ============================================================================
//                              断开原因
// ============================================================================

// DisconnectReason 断开原因
type DisconnectReason uint8

const (
	// ReasonUnspecified 未指定
	ReasonUnspecified DisconnectReason = iota
	// ReasonAuthFailed 认证失败
	ReasonAuthFailed
	// ReasonNoPeer 对端不可达
	ReasonNoPeer
	// ReasonCableUnplugged 线缆拔出
	ReasonCableUnplugged
	// ReasonLocalShutdown 本地关闭
	ReasonLocalShutdown
	// ReasonTimeout 超时
	ReasonTimeout
)

// String 返回原因名称
func (r DisconnectReason) String() string {
	switch r {
	case ReasonUnspecified:
		return "unspecified"
	case ReasonAuthFailed:
		return "auth-failed"
	case ReasonNoPeer:
		return "no-peer"
	case ReasonCableUnplugged:
		return "cable-unplugged"
	case ReasonLocalShutdown:
		return "local-shutdown"
	case ReasonTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// ============================================================================
//                              事件类型
// ============================================================================

// IfaceEvent 所有接口事件共有的方法
type IfaceEvent interface {
	types.Event
	types.Keyed
	Interface() string
}

// IfaceUp 链路就绪
type IfaceUp struct {
	Iface string
}

// EventID 实现 types.Event
func (IfaceUp) EventID() types.EventID { return EventIfaceUp }

// Interface 返回接口名
func (e IfaceUp) Interface() string { return e.Iface }

// StickyKey 实现 types.Keyed
func (e IfaceUp) StickyKey() string { return e.Iface }

// IfaceDown 链路断开
type IfaceDown struct {
	Iface string
}

// EventID 实现 types.Event
func (IfaceDown) EventID() types.EventID { return EventIfaceDown }

// Interface 返回接口名
func (e IfaceDown) Interface() string { return e.Iface }

// StickyKey 实现 types.Keyed
func (e IfaceDown) StickyKey() string { return e.Iface }

// IPAcquired 获取到 IP
type IPAcquired struct {
	Iface   string
	Addr    netip.Prefix
	Gateway netip.Addr

	// Changed 与上一次获取的地址不同
	Changed bool
}

// EventID 实现 types.Event
func (IPAcquired) EventID() types.EventID { return EventIPAcquired }

// Interface 返回接口名
func (e IPAcquired) Interface() string { return e.Iface }

// StickyKey 实现 types.Keyed
func (e IPAcquired) StickyKey() string { return e.Iface }

// IPLost 丢失 IP
type IPLost struct {
	Iface string
}

// EventID 实现 types.Event
func (IPLost) EventID() types.EventID { return EventIPLost }

// Interface 返回接口名
func (e IPLost) Interface() string { return e.Iface }

// StickyKey 实现 types.Keyed
func (e IPLost) StickyKey() string { return e.Iface }

// Disconnected 断开连接
type Disconnected struct {
	Iface  string
	Reason DisconnectReason
}

// EventID 实现 types.Event
func (Disconnected) EventID() types.EventID { return EventDisconnected }

// Interface 返回接口名
func (e Disconnected) Interface() string { return e.Iface }

// StickyKey 实现 types.Keyed
func (e Disconnected) StickyKey() string { return e.Iface }
