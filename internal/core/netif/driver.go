package netif

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-evbridge/internal/core/codec"
	"github.com/dep2p/go-evbridge/pkg/interfaces"
	"github.com/dep2p/go-evbridge/pkg/types"
)

// DefaultPostWait 驱动投递事件时的默认等待
const DefaultPostWait = 100 * time.Millisecond

// DriverOption 驱动选项
type DriverOption func(*Driver)

// WithAddress 设置 Connect 时分配的地址和网关
func WithAddress(addr netip.Prefix, gateway netip.Addr) DriverOption {
	return func(d *Driver) {
		d.addr = addr
		d.gateway = gateway
	}
}

// WithDriverClock 设置驱动延迟使用的时钟（用于测试）
func WithDriverClock(c clock.Clock) DriverOption {
	return func(d *Driver) {
		d.clock = c
	}
}

// WithPostWait 设置投递等待
func WithPostWait(wait time.Duration) DriverOption {
	return func(d *Driver) {
		d.postWait = wait
	}
}

// ============================================================================
//                              Driver
// ============================================================================

// Driver 模拟网络接口驱动
type Driver struct {
	d        interfaces.EventDispatcher
	iface    string
	clock    clock.Clock
	postWait time.Duration

	addr    netip.Prefix
	gateway netip.Addr

	mu     sync.Mutex
	lastIP netip.Prefix
}

// NewDriver 创建模拟驱动
func NewDriver(d interfaces.EventDispatcher, iface string, opts ...DriverOption) *Driver {
	drv := &Driver{
		d:        d,
		iface:    iface,
		clock:    clock.New(),
		postWait: DefaultPostWait,
		addr:     netip.MustParsePrefix("192.168.4.2/24"),
		gateway:  netip.MustParseAddr("192.168.4.1"),
	}
	for _, opt := range opts {
		opt(drv)
	}
	return drv
}

// Connect 在 delay 后投递 IfaceUp 和 IPAcquired
func (drv *Driver) Connect(ctx context.Context, delay time.Duration) error {
	if err := drv.sleep(ctx, delay); err != nil {
		return err
	}

	if err := drv.post(codec.IfaceUp{Iface: drv.iface}); err != nil {
		return err
	}

	drv.mu.Lock()
	changed := drv.lastIP != drv.addr
	drv.lastIP = drv.addr
	drv.mu.Unlock()

	logger.Info("模拟驱动已连接", "iface", drv.iface, "addr", drv.addr, "changed", changed)
	return drv.post(codec.IPAcquired{
		Iface:   drv.iface,
		Addr:    drv.addr,
		Gateway: drv.gateway,
		Changed: changed,
	})
}

// Disconnect 投递 IPLost、Disconnected 和 IfaceDown
func (drv *Driver) Disconnect(reason codec.DisconnectReason) error {
	events := []types.Event{
		codec.IPLost{Iface: drv.iface},
		codec.Disconnected{Iface: drv.iface, Reason: reason},
		codec.IfaceDown{Iface: drv.iface},
	}
	for _, evt := range events {
		if err := drv.post(evt); err != nil {
			return err
		}
	}

	logger.Info("模拟驱动已断开", "iface", drv.iface, "reason", reason)
	return nil
}

func (drv *Driver) post(evt types.Event) error {
	sel := types.On(codec.IfaceBase, evt.EventID())
	if err := drv.d.PostTimeout(sel, evt, drv.postWait); err != nil {
		return fmt.Errorf("driver %s: %w", drv.iface, err)
	}
	return nil
}

func (drv *Driver) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := drv.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return types.Cancelled(ctx.Err())
	}
}
