package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/dep2p/go-evbridge/pkg/interfaces"
	"github.com/dep2p/go-evbridge/pkg/types"
)

// 确保实现接口
var _ interfaces.Subscription = (*Subscription)(nil)

// State 订阅状态
type State int32

const (
	// StatePending 已预留竞技场索引，原生注册进行中
	StatePending State = iota
	// StateRegistered 存活
	StateRegistered
	// StateDetaching 释放中，不再开始新调用
	StateDetaching
	// StateReleased 已释放
	StateReleased
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRegistered:
		return "registered"
	case StateDetaching:
		return "detaching"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ============================================================================
//                              Subscription
// ============================================================================

// Subscription 类型化订阅
type Subscription struct {
	d     *Dispatcher
	idx   uint64
	sel   types.Selector
	typed interfaces.Handler
	raw   interfaces.RawHandler

	mu       sync.Mutex
	token    types.Token
	state    State
	inflight int

	// drain 释放时等待调用结束，inflight 降到 drainAt 时关闭
	drain   chan struct{}
	drainAt int
}

// Selector 返回订阅的选择器
func (s *Subscription) Selector() types.Selector {
	return s.sel
}

// State 返回当前状态
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close 取消订阅
//
// 如果回调正在执行，阻塞直到它返回。重复调用返回 types.ErrInvalidState。
// 在自身回调内必须使用 CloseFromCallback，否则 Close 会等待自己；
// 等待超过 ReleaseWaitWarning 时输出警告并计入 Stats.StalledReleases。
func (s *Subscription) Close() error {
	_, err := s.release(nil)
	return err
}

// CloseFromCallback 在自身回调内取消订阅
//
// ctx 不是本订阅回调收到的 ctx 时等同于 Close。
func (s *Subscription) CloseFromCallback(ctx context.Context) error {
	_, err := s.release(ctx)
	return err
}

// release 执行释放，返回本次调用是否完成了状态切换
func (s *Subscription) release(ctx context.Context) (bool, error) {
	self := false
	if ctx != nil {
		cur, _ := ctx.Value(invocationKey{}).(*Subscription)
		self = cur == s
	}

	s.mu.Lock()
	if s.state != StateRegistered {
		state := s.state
		s.mu.Unlock()
		return false, fmt.Errorf("%w: subscription %s is %s", types.ErrInvalidState, s.sel, state)
	}
	s.state = StateDetaching

	var wait chan struct{}
	threshold := 0
	if self {
		threshold = 1
	}
	if s.inflight > threshold {
		wait = make(chan struct{})
		s.drain = wait
		s.drainAt = threshold
	}
	token := s.token
	s.mu.Unlock()

	err := s.d.src.Unsubscribe(token)
	s.d.forget(s.idx)

	if wait != nil {
		s.d.awaitDrain(s, wait)
	}

	s.mu.Lock()
	s.state = StateReleased
	s.mu.Unlock()

	logger.Debug("订阅已释放", "selector", s.sel, "index", s.idx, "token", token, "self", self)

	if err != nil {
		return true, fmt.Errorf("unsubscribe %s: %w", s.sel, err)
	}
	return true, nil
}

// enter 开始一次调用，订阅不存活时返回 false
func (s *Subscription) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Pending 期间原生层可能已经开始分发
	if s.state != StateRegistered && s.state != StatePending {
		return false
	}
	s.inflight++
	return true
}

// exit 结束一次调用
func (s *Subscription) exit() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inflight--
	if s.drain != nil && s.inflight <= s.drainAt {
		close(s.drain)
		s.drain = nil
	}
}
