package netif

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-evbridge/internal/core/codec"
	"github.com/dep2p/go-evbridge/internal/core/dispatcher"
	"github.com/dep2p/go-evbridge/internal/core/waitable"
	"github.com/dep2p/go-evbridge/pkg/interfaces"
	"github.com/dep2p/go-evbridge/pkg/lib/log"
	"github.com/dep2p/go-evbridge/pkg/types"
)

var logger = log.Logger("core/netif")

// stickySource 支持粘性事件的分发器
type stickySource interface {
	LastFor(sel types.Selector, key string) (dispatcher.Sticky, bool)
}

// Option 监视器选项
type Option func(*Monitor)

// WithClock 设置等待使用的时钟（用于测试）
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		m.clock = c
	}
}

// ============================================================================
//                              Monitor
// ============================================================================

// Monitor 单个网络接口的连通性监视器
type Monitor struct {
	iface string
	clock clock.Clock

	sub  interfaces.Subscription
	link *waitable.State[Link]
	ip   *waitable.State[IPInfo]

	// mu 串行化实时事件与补种；liveLink/liveIP 记录是否已经收到实时事件
	mu       sync.Mutex
	liveLink bool
	liveIP   bool

	closed atomic.Bool
}

// NewMonitor 创建监视器并订阅接口事件
//
// d 支持粘性事件时，用订阅前最近的事件初始化状态。
func NewMonitor(d interfaces.EventDispatcher, iface string, opts ...Option) (*Monitor, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: nil dispatcher", types.ErrInvalidState)
	}
	if iface == "" {
		return nil, fmt.Errorf("%w: empty interface name", types.ErrInvalidState)
	}

	m := &Monitor{
		iface: iface,
		clock: clock.New(),
	}
	for _, opt := range opts {
		opt(m)
	}

	stateOpts := func(kind string) []waitable.Option {
		return []waitable.Option{waitable.WithClock(m.clock), waitable.WithName(iface + "/" + kind)}
	}
	m.link = waitable.New(Link{State: LinkDown}, stateOpts("link")...)
	m.ip = waitable.New(IPInfo{}, stateOpts("ip")...)

	// 先订阅再补种，已经收到实时事件的条件不再补种
	sub, err := d.Subscribe(types.All(codec.IfaceBase), m.handle)
	if err != nil {
		return nil, fmt.Errorf("netif %s: %w", iface, err)
	}
	m.sub = sub

	if s, ok := d.(stickySource); ok {
		m.seed(s)
	}

	logger.Debug("接口监视器已创建", "iface", iface, "link", m.Link().State, "ip", m.IP())
	return m, nil
}

// Interface 返回接口名
func (m *Monitor) Interface() string {
	return m.iface
}

// handle 分发器回调
func (m *Monitor) handle(_ context.Context, evt types.Event) {
	e, ok := evt.(codec.IfaceEvent)
	if !ok || e.Interface() != m.iface {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.liveLink = m.liveLink || isLinkEvent(e)
	// 链路断开会清除 IP，同样算作 IP 的实时事件
	m.liveIP = m.liveIP || !isLinkEvent(e) || e.EventID() != codec.EventIfaceUp
	m.apply(e)
}

func isLinkEvent(evt codec.IfaceEvent) bool {
	switch evt.EventID() {
	case codec.EventIfaceUp, codec.EventIfaceDown, codec.EventDisconnected:
		return true
	default:
		return false
	}
}

// apply 把接口事件应用到状态
func (m *Monitor) apply(evt codec.IfaceEvent) {
	switch e := evt.(type) {
	case codec.IfaceUp:
		m.link.Update(func(l Link) (Link, bool) {
			return Link{State: LinkUp}, l.State != LinkUp
		})
	case codec.IfaceDown:
		m.setDown(codec.ReasonUnspecified, false)
	case codec.Disconnected:
		m.setDown(e.Reason, true)
	case codec.IPAcquired:
		m.ip.Publish(IPInfo{Addr: e.Addr, Gateway: e.Gateway})
		logger.Info("接口获取到 IP", "iface", m.iface, "addr", e.Addr, "gateway", e.Gateway, "changed", e.Changed)
	case codec.IPLost:
		m.clearIP()
	}
}

// setDown 链路断开，同时清除 IP
//
// IfaceDown 不覆盖此前 Disconnected 记录的原因。
func (m *Monitor) setDown(reason codec.DisconnectReason, override bool) {
	m.link.Update(func(l Link) (Link, bool) {
		next := Link{State: LinkDown, Reason: l.Reason}
		if override || l.State == LinkUp {
			next.Reason = reason
		}
		return next, next != l
	})
	m.clearIP()
}

func (m *Monitor) clearIP() {
	m.ip.Update(func(i IPInfo) (IPInfo, bool) {
		return IPInfo{}, i.Valid()
	})
}

// seed 用粘性事件初始化状态
//
// 按投递顺序重放本接口最近的各类事件，已经收到实时事件的条件跳过。
func (m *Monitor) seed(s stickySource) {
	ids := []types.EventID{
		codec.EventIfaceUp,
		codec.EventIfaceDown,
		codec.EventDisconnected,
		codec.EventIPAcquired,
		codec.EventIPLost,
	}

	var replay []dispatcher.Sticky
	for _, id := range ids {
		last, ok := s.LastFor(types.On(codec.IfaceBase, id), m.iface)
		if !ok {
			continue
		}
		if e, ok := last.Event.(codec.IfaceEvent); ok && e.Interface() == m.iface {
			replay = append(replay, last)
		}
	}
	sort.Slice(replay, func(i, j int) bool { return replay[i].Seq < replay[j].Seq })

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, st := range replay {
		evt := st.Event.(codec.IfaceEvent)
		if isLinkEvent(evt) && m.liveLink || !isLinkEvent(evt) && m.liveIP {
			continue
		}
		m.apply(evt)
	}
}

// ============================================================================
//                              查询与等待
// ============================================================================

// Link 返回当前链路信息
func (m *Monitor) Link() Link {
	v, _ := m.link.Get()
	return v
}

// IP 返回当前 IP 信息
func (m *Monitor) IP() IPInfo {
	v, _ := m.ip.Get()
	return v
}

// LinkState 返回链路可等待状态
func (m *Monitor) LinkState() *waitable.State[Link] {
	return m.link
}

// IPState 返回 IP 可等待状态
func (m *Monitor) IPState() *waitable.State[IPInfo] {
	return m.ip
}

// WaitUp 等待链路就绪
func (m *Monitor) WaitUp(ctx context.Context, timeout time.Duration) error {
	_, err := m.link.WaitUntil(ctx, Link.Up, timeout)
	if err != nil {
		return fmt.Errorf("netif %s wait up: %w", m.iface, err)
	}
	return nil
}

// WaitDown 等待链路断开，返回断开原因
func (m *Monitor) WaitDown(ctx context.Context, timeout time.Duration) (codec.DisconnectReason, error) {
	l, err := m.link.WaitUntil(ctx, func(l Link) bool { return !l.Up() }, timeout)
	if err != nil {
		return codec.ReasonUnspecified, fmt.Errorf("netif %s wait down: %w", m.iface, err)
	}
	return l.Reason, nil
}

// WaitIP 等待获取 IP
func (m *Monitor) WaitIP(ctx context.Context, timeout time.Duration) (IPInfo, error) {
	info, err := m.ip.WaitUntil(ctx, IPInfo.Valid, timeout)
	if err != nil {
		return IPInfo{}, fmt.Errorf("netif %s wait ip: %w", m.iface, err)
	}
	return info, nil
}

// Close 释放订阅并取消所有等待
func (m *Monitor) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: netif monitor %s closed", types.ErrInvalidState, m.iface)
	}

	err := m.sub.Close()
	m.link.Shutdown()
	m.ip.Shutdown()

	logger.Debug("接口监视器已关闭", "iface", m.iface)
	return err
}
