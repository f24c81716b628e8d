// Package eventloop 实现进程内的原生事件循环
package eventloop

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-evbridge/config"
	"github.com/dep2p/go-evbridge/pkg/interfaces"
	"github.com/dep2p/go-evbridge/pkg/lib/log"
	"github.com/dep2p/go-evbridge/pkg/types"
)

var logger = log.Logger("core/eventloop")

// 确保实现接口
var _ interfaces.RawEventSource = (*Loop)(nil)

// system 进程级默认循环占用标记
var (
	systemMu    sync.Mutex
	systemTaken bool
)

// ============================================================================
//                              Loop
// ============================================================================

// Loop 原生事件循环
type Loop struct {
	cfg   config.LoopConfig
	name  string
	clock clock.Clock

	mu        sync.RWMutex
	handlers  []*handler // 按注册顺序
	nextToken types.Token

	queue chan event

	closed    atomic.Bool
	closeOnce sync.Once
	stopCh    chan struct{}
	done      chan struct{} // 分发 goroutine 退出（仅 Background/System）
	running   atomic.Bool   // Explicit 模式下 Run 的重入保护

	posted    atomic.Uint64
	delivered atomic.Uint64
	rejected  atomic.Uint64
	panics    atomic.Uint64
}

// handler 原始回调注册项
type handler struct {
	token   types.Token
	base    types.EventBase
	id      types.EventID
	fn      interfaces.NativeHandler
	userCtx uint64
}

// event 队列中的事件
type event struct {
	base    types.EventBase
	id      types.EventID
	payload []byte
}

// Option 事件循环选项
type Option func(*Loop)

// WithClock 设置时钟（用于测试）
func WithClock(c clock.Clock) Option {
	return func(l *Loop) {
		l.clock = c
	}
}

// New 按配置创建事件循环
//
// Kind 为 System 时，如果已有默认循环存在则返回 ErrInvalidState。
func New(cfg config.LoopConfig, opts ...Option) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid loop config: %w", err)
	}

	if cfg.Kind == config.LoopSystem {
		systemMu.Lock()
		defer systemMu.Unlock()
		if systemTaken {
			return nil, fmt.Errorf("%w: system event loop already created", types.ErrInvalidState)
		}
		systemTaken = true
	}

	l := &Loop{
		cfg:    cfg,
		name:   cfg.TaskName,
		clock:  clock.New(),
		queue:  make(chan event, cfg.QueueSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.name == "" {
		l.name = "loop-" + uuid.NewString()[:8]
	}

	if cfg.Kind == config.LoopExplicit {
		close(l.done)
	} else {
		go l.run()
	}

	logger.Info("事件循环已创建",
		"name", l.name,
		"kind", cfg.Kind,
		"queue_size", cfg.QueueSize,
		"max_handlers", cfg.MaxHandlers,
		"priority", cfg.TaskPriority,
		"stack_size", cfg.TaskStackSize,
		"core", cfg.PinToCore)

	return l, nil
}

// NewSystem 创建进程级默认事件循环
func NewSystem(opts ...Option) (*Loop, error) {
	cfg := config.DefaultLoopConfig()
	cfg.Kind = config.LoopSystem
	cfg.TaskName = "sys_evt"
	return New(cfg, opts...)
}

// NewBackground 创建自带分发 goroutine 的事件循环
func NewBackground(cfg config.LoopConfig, opts ...Option) (*Loop, error) {
	cfg.Kind = config.LoopBackground
	return New(cfg, opts...)
}

// NewExplicit 创建由调用方驱动的事件循环
func NewExplicit(cfg config.LoopConfig, opts ...Option) (*Loop, error) {
	cfg.Kind = config.LoopExplicit
	return New(cfg, opts...)
}

// Name 返回分发任务名称
func (l *Loop) Name() string {
	return l.name
}

// Kind 返回循环类型
func (l *Loop) Kind() config.LoopKind {
	return l.cfg.Kind
}

// ============================================================================
//                              注册
// ============================================================================

// Subscribe 注册原始回调
func (l *Loop) Subscribe(base types.EventBase, id types.EventID, fn interfaces.NativeHandler, userCtx uint64) (types.Token, error) {
	if fn == nil {
		return 0, fmt.Errorf("%w: nil handler", types.ErrInvalidState)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed.Load() {
		return 0, fmt.Errorf("%w: event loop %s closed", types.ErrInvalidState, l.name)
	}
	if len(l.handlers) >= l.cfg.MaxHandlers {
		return 0, fmt.Errorf("%w: %d handlers registered on %s", types.ErrResourceExhausted, len(l.handlers), l.name)
	}

	l.nextToken++
	h := &handler{
		token:   l.nextToken,
		base:    base,
		id:      id,
		fn:      fn,
		userCtx: userCtx,
	}
	l.handlers = append(l.handlers, h)

	return h.token, nil
}

// Unsubscribe 注销原始回调
func (l *Loop) Unsubscribe(token types.Token) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, h := range l.handlers {
		if h.token == token {
			l.handlers = append(l.handlers[:i], l.handlers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown token %d", types.ErrInvalidState, token)
}

// Handlers 返回当前注册数
func (l *Loop) Handlers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers)
}

// ============================================================================
//                              投递
// ============================================================================

// Post 投递事件
//
// 载荷会被复制。wait 为 0 时不阻塞，为 types.Forever 时阻塞到有空位或循环关闭。
func (l *Loop) Post(base types.EventBase, id types.EventID, payload []byte, wait time.Duration) error {
	if l.closed.Load() {
		return fmt.Errorf("%w: event loop %s closed", types.ErrInvalidState, l.name)
	}
	if id == types.AnyID {
		return fmt.Errorf("%w: cannot post to wildcard id", types.ErrInvalidState)
	}

	ev := event{base: base, id: id}
	if len(payload) > 0 {
		ev.payload = append([]byte(nil), payload...)
	}

	select {
	case l.queue <- ev:
		l.posted.Add(1)
		return nil
	default:
	}

	if wait == 0 {
		l.rejected.Add(1)
		return fmt.Errorf("%w: %s/%d on %s", types.ErrQueueFull, base, id, l.name)
	}

	var timeout <-chan time.Time
	if wait > 0 {
		timer := l.clock.Timer(wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case l.queue <- ev:
		l.posted.Add(1)
		return nil
	case <-timeout:
		l.rejected.Add(1)
		return fmt.Errorf("%w: %s/%d on %s after %s", types.ErrQueueFull, base, id, l.name, wait)
	case <-l.stopCh:
		return fmt.Errorf("%w: event loop %s closed", types.ErrInvalidState, l.name)
	}
}

// PostFromISR 从中断上下文投递事件，永不阻塞
func (l *Loop) PostFromISR(base types.EventBase, id types.EventID, payload []byte) error {
	return l.Post(base, id, payload, types.NoWait)
}

// ============================================================================
//                              分发
// ============================================================================

// run Background/System 模式的分发 goroutine
func (l *Loop) run() {
	defer close(l.done)

	for {
		select {
		case <-l.stopCh:
			return
		case ev := <-l.queue:
			l.deliver(ev)
		}
	}
}

// Run 在调用方 goroutine 上驱动 Explicit 循环
//
// 处理事件直到 d 耗尽、ctx 取消或循环关闭。
// d 为 0 时只处理当前已在队列中的事件；为 types.Forever 时不设时限。
func (l *Loop) Run(ctx context.Context, d time.Duration) error {
	if l.cfg.Kind != config.LoopExplicit {
		return fmt.Errorf("%w: Run on %s loop", types.ErrInvalidState, l.cfg.Kind)
	}
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: loop %s already running", types.ErrInvalidState, l.name)
	}
	defer l.running.Store(false)

	if d == 0 {
		for {
			select {
			case ev := <-l.queue:
				l.deliver(ev)
			default:
				return nil
			}
		}
	}

	var timeout <-chan time.Time
	if d > 0 {
		timer := l.clock.Timer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return types.Cancelled(ctx.Err())
		case <-l.stopCh:
			return nil
		case <-timeout:
			return nil
		case ev := <-l.queue:
			l.deliver(ev)
		}
	}
}

// deliver 把事件交给所有匹配的回调
//
// 快照在锁内获取，回调在锁外执行，回调内可以安全地注册/注销。
func (l *Loop) deliver(ev event) {
	l.mu.RLock()
	matched := make([]*handler, 0, len(l.handlers))
	for _, h := range l.handlers {
		if h.base == ev.base && (h.id == types.AnyID || h.id == ev.id) {
			matched = append(matched, h)
		}
	}
	l.mu.RUnlock()

	for _, h := range matched {
		l.invoke(h, ev)
	}
}

// invoke 调用单个回调并恢复 panic
func (l *Loop) invoke(h *handler, ev event) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			logger.Error("原始回调 panic",
				"loop", l.name,
				"base", ev.base,
				"id", ev.id,
				"token", h.token,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	l.delivered.Add(1)
	h.fn(ev.base, ev.id, ev.payload, h.userCtx)
}

// ============================================================================
//                              关闭与统计
// ============================================================================

// Close 关闭事件循环
//
// 关闭后投递和注册返回 ErrInvalidState，队列中未分发的事件被丢弃。
// 等待分发 goroutine 退出，因此不能在回调内调用。
func (l *Loop) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed.Store(true)
		remaining := len(l.handlers)
		l.handlers = nil
		l.mu.Unlock()

		close(l.stopCh)
		<-l.done

		if l.cfg.Kind == config.LoopSystem {
			systemMu.Lock()
			systemTaken = false
			systemMu.Unlock()
		}

		logger.Info("事件循环已关闭",
			"name", l.name,
			"dropped", len(l.queue),
			"handlers", remaining)
	})
	return nil
}

// Stats 事件循环统计
type Stats struct {
	Posted     uint64
	Delivered  uint64
	Rejected   uint64
	Panics     uint64
	QueueDepth int
	Handlers   int
}

// Stats 返回统计快照
func (l *Loop) Stats() Stats {
	return Stats{
		Posted:     l.posted.Load(),
		Delivered:  l.delivered.Load(),
		Rejected:   l.rejected.Load(),
		Panics:     l.panics.Load(),
		QueueDepth: len(l.queue),
		Handlers:   l.Handlers(),
	}
}
