// Package dispatcher 实现类型化事件分发器
package dispatcher

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-evbridge/config"
	"github.com/dep2p/go-evbridge/internal/core/codec"
	"github.com/dep2p/go-evbridge/pkg/interfaces"
	"github.com/dep2p/go-evbridge/pkg/lib/log"
	"github.com/dep2p/go-evbridge/pkg/types"
)

var logger = log.Logger("core/dispatcher")

// 确保实现接口
var _ interfaces.EventDispatcher = (*Dispatcher)(nil)

// ============================================================================
//                              Dispatcher
// ============================================================================

// Dispatcher 类型化事件分发器
type Dispatcher struct {
	src      interfaces.RawEventSource
	registry *codec.Registry
	observer Observer
	cfg      config.DispatcherConfig
	clock    clock.Clock

	// mu 保护竞技场，不在锁内调用事件源或回调
	mu      sync.Mutex
	subs    map[uint64]*Subscription
	nextIdx uint64

	closed atomic.Bool

	sticky    *lru.Cache[stickyKey, stickyEntry]
	stickySeq atomic.Uint64

	slowLimiter *rate.Limiter

	delivered    atomic.Uint64
	stale        atomic.Uint64
	decodeErrors atomic.Uint64
	panics       atomic.Uint64
	slow         atomic.Uint64
	stalled      atomic.Uint64
}

// stickyKey 粘性缓存键，key 为空时表示该选择器下的最近事件
type stickyKey struct {
	sel types.Selector
	key string
}

// stickyEntry 粘性事件条目
type stickyEntry struct {
	seq     uint64
	payload []byte
}

// New 创建分发器
func New(src interfaces.RawEventSource, opts ...Option) (*Dispatcher, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil event source", types.ErrInvalidState)
	}

	d := &Dispatcher{
		src:      src,
		registry: codec.DefaultRegistry(),
		observer: nopObserver{},
		cfg:      config.DefaultDispatcherConfig(),
		clock:    clock.New(),
		subs:     make(map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dispatcher config: %w", err)
	}

	if d.cfg.StickyEvents > 0 {
		cache, err := lru.New[stickyKey, stickyEntry](d.cfg.StickyEvents)
		if err != nil {
			return nil, fmt.Errorf("create sticky cache: %w", err)
		}
		d.sticky = cache
	}

	interval := d.cfg.SlowHandlerLogInterval.Duration()
	if interval > 0 {
		d.slowLimiter = rate.NewLimiter(rate.Every(interval), 1)
	} else {
		d.slowLimiter = rate.NewLimiter(rate.Inf, 1)
	}

	return d, nil
}

// Registry 返回编解码注册表
func (d *Dispatcher) Registry() *codec.Registry {
	return d.registry
}

// ============================================================================
//                              订阅
// ============================================================================

// Subscribe 订阅匹配 sel 的事件，回调收到解码后的载荷
func (d *Dispatcher) Subscribe(sel types.Selector, handler interfaces.Handler) (interfaces.Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: nil handler", types.ErrInvalidState)
	}
	return d.toSubscription(d.subscribe(sel, handler, nil))
}

// SubscribeRaw 订阅匹配 sel 的事件，回调收到原始载荷
func (d *Dispatcher) SubscribeRaw(sel types.Selector, handler interfaces.RawHandler) (interfaces.Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: nil handler", types.ErrInvalidState)
	}
	return d.toSubscription(d.subscribe(sel, nil, handler))
}

// toSubscription 转换为接口，失败时返回无类型的 nil
func (d *Dispatcher) toSubscription(sub *Subscription, err error) (interfaces.Subscription, error) {
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (d *Dispatcher) subscribe(sel types.Selector, typed interfaces.Handler, raw interfaces.RawHandler) (*Subscription, error) {
	if d.closed.Load() {
		return nil, fmt.Errorf("%w: dispatcher closed", types.ErrInvalidState)
	}
	if err := sel.Validate(); err != nil {
		return nil, err
	}

	// 先在竞技场中预留，原生注册成功后再切换为 Registered
	d.mu.Lock()
	d.nextIdx++
	sub := &Subscription{
		d:     d,
		idx:   d.nextIdx,
		sel:   sel,
		typed: typed,
		raw:   raw,
		state: StatePending,
	}
	d.subs[sub.idx] = sub
	d.mu.Unlock()

	token, err := d.src.Subscribe(sel.Base, sel.ID, d.trampoline, sub.idx)
	if err != nil {
		d.mu.Lock()
		delete(d.subs, sub.idx)
		d.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", sel, err)
	}

	sub.mu.Lock()
	sub.token = token
	sub.state = StateRegistered
	sub.mu.Unlock()

	// Close 与 Subscribe 并发时，Close 看到的是 Pending 状态，这里补做释放
	if d.closed.Load() {
		err := fmt.Errorf("%w: dispatcher closed", types.ErrInvalidState)
		if cerr := sub.Close(); cerr != nil {
			err = multierr.Append(err, cerr)
		}
		return nil, err
	}

	n := d.Len()
	d.observer.SubscriptionsChanged(n)
	logger.Debug("订阅已注册", "selector", sel, "index", sub.idx, "token", token, "subscriptions", n)

	return sub, nil
}

// Len 返回映射表中的订阅数（含正在释放的）
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// lookup 在竞技场中查找订阅
func (d *Dispatcher) lookup(idx uint64) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subs[idx]
}

// forget 删除映射项
func (d *Dispatcher) forget(idx uint64) {
	d.mu.Lock()
	delete(d.subs, idx)
	n := len(d.subs)
	d.mu.Unlock()

	d.observer.SubscriptionsChanged(n)
}

// ============================================================================
//                              蹦床
// ============================================================================

// invocationKey 回调 ctx 中标识当前调用的订阅
type invocationKey struct{}

// trampoline 原生回调入口
//
// userCtx 是竞技场索引。只有能在竞技场中找到且处于存活状态的订阅才会被调用。
func (d *Dispatcher) trampoline(base types.EventBase, id types.EventID, payload []byte, userCtx uint64) {
	sub := d.lookup(userCtx)
	if sub == nil || !sub.enter() {
		d.stale.Add(1)
		d.observer.StaleInvocation(base)
		logger.Debug("丢弃过期调用", "base", base, "id", id, "index", userCtx)
		return
	}
	defer sub.exit()

	ctx := context.WithValue(context.Background(), invocationKey{}, sub)

	var call func()
	if sub.raw != nil {
		evt := types.RawEvent{Base: base, ID: id, Payload: payload}
		call = func() { sub.raw(ctx, evt) }
	} else {
		evt, err := d.registry.Decode(base, id, payload)
		if err != nil {
			d.decodeErrors.Add(1)
			d.observer.DecodeFailed(base)
			logger.Warn("事件载荷解码失败", "base", base, "id", id, "len", len(payload), "error", err)
			return
		}
		call = func() { sub.typed(ctx, evt) }
	}

	start := d.clock.Now()
	d.safeCall(sub, base, id, call)
	elapsed := d.clock.Since(start)

	d.delivered.Add(1)
	d.observer.Delivered(base, elapsed)

	threshold := d.cfg.SlowHandlerThreshold.Duration()
	if threshold > 0 && elapsed > threshold {
		d.slow.Add(1)
		if d.slowLimiter.Allow() {
			logger.Warn("回调执行过慢，阻塞了共享分发上下文",
				"selector", sub.sel,
				"id", id,
				"elapsed", elapsed,
				"threshold", threshold,
				"slow_total", d.slow.Load())
		}
	}
}

// safeCall 执行回调并恢复 panic
func (d *Dispatcher) safeCall(sub *Subscription, base types.EventBase, id types.EventID, call func()) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			logger.Error("事件回调 panic",
				"selector", sub.sel,
				"base", base,
				"id", id,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	call()
}

// awaitDrain 等待订阅的在途调用结束
//
// 等待超过 ReleaseWaitWarning 时输出一次警告后继续等待。
// 常见原因是在自身回调内调用了 Close 而不是 CloseFromCallback。
func (d *Dispatcher) awaitDrain(sub *Subscription, wait <-chan struct{}) {
	grace := d.cfg.ReleaseWaitWarning.Duration()
	if grace <= 0 {
		<-wait
		return
	}

	timer := d.clock.Timer(grace)
	defer timer.Stop()

	select {
	case <-wait:
		return
	case <-timer.C:
		d.stalled.Add(1)
		logger.Warn("释放等待在途回调过久，回调内释放自身应使用 CloseFromCallback",
			"selector", sub.sel,
			"index", sub.idx,
			"waited", grace,
			"stalled_total", d.stalled.Load())
	}
	<-wait
}

// ============================================================================
//                              投递
// ============================================================================

// Post 编码并投递事件，不阻塞
func (d *Dispatcher) Post(sel types.Selector, evt types.Event) error {
	return d.PostTimeout(sel, evt, types.NoWait)
}

// PostTimeout 编码并投递事件，队列满时最多等待 wait
func (d *Dispatcher) PostTimeout(sel types.Selector, evt types.Event, wait time.Duration) error {
	if evt == nil {
		return fmt.Errorf("%w: nil event", types.ErrInvalidState)
	}
	if err := d.checkPost(sel); err != nil {
		return err
	}
	if _, raw := evt.(types.RawEvent); !raw && evt.EventID() != sel.ID {
		return fmt.Errorf("%w: event id %s does not match selector %s", types.ErrInvalidState, evt.EventID(), sel)
	}

	payload, err := d.registry.Encode(sel.Base, evt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", sel, err)
	}
	key := ""
	if k, ok := evt.(types.Keyed); ok {
		key = k.StickyKey()
	}
	return d.post(sel, key, payload, wait)
}

// PostRaw 投递原始载荷
func (d *Dispatcher) PostRaw(sel types.Selector, payload []byte, wait time.Duration) error {
	if err := d.checkPost(sel); err != nil {
		return err
	}
	return d.post(sel, "", payload, wait)
}

func (d *Dispatcher) checkPost(sel types.Selector) error {
	if d.closed.Load() {
		return fmt.Errorf("%w: dispatcher closed", types.ErrInvalidState)
	}
	if err := sel.Validate(); err != nil {
		return err
	}
	if sel.IsWildcard() {
		return fmt.Errorf("%w: cannot post to wildcard selector %s", types.ErrInvalidState, sel)
	}
	return nil
}

func (d *Dispatcher) post(sel types.Selector, key string, payload []byte, wait time.Duration) error {
	if err := d.src.Post(sel.Base, sel.ID, payload, wait); err != nil {
		d.observer.PostRejected(sel.Base, err)
		return fmt.Errorf("post %s: %w", sel, err)
	}
	d.observer.PostAccepted(sel.Base)

	if d.sticky != nil {
		entry := stickyEntry{
			seq:     d.stickySeq.Add(1),
			payload: append([]byte(nil), payload...),
		}
		d.sticky.Add(stickyKey{sel: sel}, entry)
		if key != "" {
			d.sticky.Add(stickyKey{sel: sel, key: key}, entry)
		}
	}
	return nil
}

// ============================================================================
//                              粘性事件
// ============================================================================

// Sticky 最近投递的事件
type Sticky struct {
	// Event 解码后的事件
	Event types.Event

	// Seq 投递序号，越大越新
	Seq uint64
}

// Last 返回 sel 最近一次投递的事件
//
// sel 必须是精确选择器。未开启粘性事件、没有记录或解码失败时返回 false。
func (d *Dispatcher) Last(sel types.Selector) (Sticky, bool) {
	return d.LastFor(sel, "")
}

// LastFor 返回 sel 下 StickyKey 为 key 的最近事件，key 为空时等同于 Last
//
// 实现 types.Keyed 的事件每次投递占用两个缓存条目。
func (d *Dispatcher) LastFor(sel types.Selector, key string) (Sticky, bool) {
	if d.sticky == nil || sel.IsWildcard() {
		return Sticky{}, false
	}
	entry, ok := d.sticky.Get(stickyKey{sel: sel, key: key})
	if !ok {
		return Sticky{}, false
	}
	evt, err := d.registry.Decode(sel.Base, sel.ID, entry.payload)
	if err != nil {
		logger.Warn("粘性事件解码失败", "selector", sel, "error", err)
		return Sticky{}, false
	}
	return Sticky{Event: evt, Seq: entry.seq}, true
}

// ============================================================================
//                              关闭与统计
// ============================================================================

// Close 释放全部订阅并拒绝后续操作
//
// 会等待正在进行的回调结束，不能在回调内调用。重复调用返回 types.ErrInvalidState。
func (d *Dispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: dispatcher already closed", types.ErrInvalidState)
	}

	d.mu.Lock()
	subs := make([]*Subscription, 0, len(d.subs))
	for _, sub := range d.subs {
		subs = append(subs, sub)
	}
	d.mu.Unlock()

	var errs error
	released := 0
	for _, sub := range subs {
		// 已经在释放或尚未完成注册的订阅由各自的调用方处理
		ok, err := sub.release(nil)
		if ok {
			released++
		}
		if ok && err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	logger.Info("分发器已关闭", "released", released, "stale", d.stale.Load(), "panics", d.panics.Load())
	return errs
}

// Closed 返回分发器是否已关闭
func (d *Dispatcher) Closed() bool {
	return d.closed.Load()
}

// Stats 分发器统计
type Stats struct {
	Subscriptions int
	Delivered     uint64
	Stale         uint64
	DecodeErrors  uint64
	Panics        uint64
	SlowHandlers  uint64

	// StalledReleases 等待回调结束超过 ReleaseWaitWarning 的释放次数
	StalledReleases uint64
}

// Stats 返回统计快照
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Subscriptions: d.Len(),
		Delivered:     d.delivered.Load(),
		Stale:         d.stale.Load(),
		DecodeErrors:  d.decodeErrors.Load(),
		Panics:        d.panics.Load(),
		SlowHandlers:  d.slow.Load(),

		StalledReleases: d.stalled.Load(),
	}
}
