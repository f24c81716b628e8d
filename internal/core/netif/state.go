package netif

import (
	"net/netip"

	"github.com/dep2p/go-evbridge/internal/core/codec"
)

// LinkState 链路状态
type LinkState int

const (
	// LinkDown 链路断开
	LinkDown LinkState = iota
	// LinkUp 链路就绪
	LinkUp
)

// String 返回状态名称
func (s LinkState) String() string {
	if s == LinkUp {
		return "up"
	}
	return "down"
}

// Link 链路信息
type Link struct {
	State LinkState

	// Reason 最近一次断开的原因，链路就绪时为 ReasonUnspecified
	Reason codec.DisconnectReason
}

// Up 链路是否就绪
func (l Link) Up() bool {
	return l.State == LinkUp
}

// IPInfo IP 信息
type IPInfo struct {
	Addr    netip.Prefix
	Gateway netip.Addr
}

// Valid 是否已获取地址
func (i IPInfo) Valid() bool {
	return i.Addr.IsValid()
}

// String 返回地址字符串
func (i IPInfo) String() string {
	if !i.Valid() {
		return "none"
	}
	if i.Gateway.IsValid() {
		return i.Addr.String() + " via " + i.Gateway.String()
	}
	return i.Addr.String()
}
