package waitable

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-evbridge/pkg/lib/log"
	"github.com/dep2p/go-evbridge/pkg/types"
)

var logger = log.Logger("core/waitable")

// Option 选项
type Option func(*options)

type options struct {
	clock clock.Clock
	name  string
}

// WithClock 设置时钟（用于测试）
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithName 设置日志中使用的名称
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// ============================================================================
//                              State
// ============================================================================

// State 可等待状态
type State[T any] struct {
	clock clock.Clock
	name  string

	mu      sync.Mutex
	value   T
	version uint64
	changed chan struct{} // 当前版本的广播 channel，Publish 时关闭

	shutdown     chan struct{}
	shutdownOnce sync.Once

	waiting atomic.Int64  // 当前挂起的等待者
	parks   atomic.Uint64 // 累计挂起次数
}

// New 创建可等待状态
func New[T any](initial T, opts ...Option) *State[T] {
	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}

	return &State[T]{
		clock:    o.clock,
		name:     o.name,
		value:    initial,
		changed:  make(chan struct{}),
		shutdown: make(chan struct{}),
	}
}

// Publish 替换当前值并唤醒所有等待者，返回新版本号
func (s *State[T]) Publish(v T) uint64 {
	s.mu.Lock()
	ver := s.publishLocked(v)
	s.mu.Unlock()
	return ver
}

// Update 在锁内读-改-写
//
// fn 返回 false 时不发布，版本号不变。fn 在锁内执行，不得访问同一个 State。
func (s *State[T]) Update(fn func(T) (T, bool)) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, changed := fn(s.value)
	if !changed {
		return s.version, false
	}
	return s.publishLocked(next), true
}

func (s *State[T]) publishLocked(v T) uint64 {
	s.value = v
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})
	return s.version
}

// Get 返回当前值和版本号
func (s *State[T]) Get() (T, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.version
}

func (s *State[T]) snapshot() (T, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.changed
}

// WaitUntil 阻塞到 pred 对当前值成立
//
// 返回使 pred 成立的值。超时返回 types.ErrTimedOut，
// ctx 取消或 Shutdown 返回 types.ErrCancelled，此时同时返回最后观察到的值。
// 负的 timeout 都视为 types.Forever。pred 在锁外执行。
func (s *State[T]) WaitUntil(ctx context.Context, pred func(T) bool, timeout time.Duration) (T, error) {
	if pred == nil {
		var zero T
		return zero, fmt.Errorf("%w: nil predicate", types.ErrInvalidState)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	v, ch := s.snapshot()
	if pred(v) {
		return v, nil
	}

	select {
	case <-s.shutdown:
		return v, types.ErrCancelled
	default:
	}

	if timeout == 0 {
		return v, types.ErrTimedOut
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := s.clock.Timer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	s.waiting.Add(1)
	defer s.waiting.Add(-1)

	for {
		s.parks.Add(1)

		select {
		case <-ch:
		case <-deadline:
			// 到期时再看一眼，发布与到期同时发生时以值为准
			v, _ = s.snapshot()
			if pred(v) {
				return v, nil
			}
			return v, fmt.Errorf("%w after %s", types.ErrTimedOut, timeout)
		case <-ctx.Done():
			return v, types.Cancelled(ctx.Err())
		case <-s.shutdown:
			return v, types.ErrCancelled
		}

		v, ch = s.snapshot()
		if pred(v) {
			return v, nil
		}
	}
}

// Shutdown 取消所有进行中和之后的等待
//
// 谓词已经成立的等待仍然立即成功。可以重复调用。
func (s *State[T]) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		logger.Debug("可等待状态已关闭", "name", s.name, "waiting", s.waiting.Load())
	})
}

// IsShutdown 返回是否已关闭
func (s *State[T]) IsShutdown() bool {
	select {
	case <-s.shutdown:
		return true
	default:
		return false
	}
}

// Stats 统计
type Stats struct {
	// Version 当前版本号
	Version uint64

	// Waiting 当前挂起的等待者数
	Waiting int

	// Parks 累计挂起次数
	Parks uint64
}

// Stats 返回统计快照
func (s *State[T]) Stats() Stats {
	_, ver := s.Get()
	return Stats{
		Version: ver,
		Waiting: int(s.waiting.Load()),
		Parks:   s.parks.Load(),
	}
}

// ============================================================================
//                              谓词
// ============================================================================

// Equal 返回判断值等于 want 的谓词
func Equal[T comparable](want T) func(T) bool {
	return func(v T) bool { return v == want }
}

// NotEqual 返回判断值不等于 v0 的谓词
func NotEqual[T comparable](v0 T) func(T) bool {
	return func(v T) bool { return v != v0 }
}
