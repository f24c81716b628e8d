package eventloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-evbridge/config"
	"github.com/dep2p/go-evbridge/pkg/interfaces"
	"github.com/dep2p/go-evbridge/pkg/types"
)

const testBase types.EventBase = "TEST_EVENT"

func newTestLoop(t *testing.T, mutate func(*config.LoopConfig), opts ...Option) *Loop {
	t.Helper()
	cfg := config.DefaultLoopConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	l, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

// ============================================================================
// 注册测试
// ============================================================================

// TestLoop_ImplementsInterface 验证 Loop 实现接口
func TestLoop_ImplementsInterface(t *testing.T) {
	var _ interfaces.RawEventSource = (*Loop)(nil)
}

// TestLoop_DefaultName 测试自动生成任务名
func TestLoop_DefaultName(t *testing.T) {
	l := newTestLoop(t, nil)
	assert.Regexp(t, `^loop-[0-9a-f]{8}$`, l.Name())
	assert.Equal(t, config.LoopBackground, l.Kind())
}

// TestLoop_SubscribeDeliver 测试注册与分发
func TestLoop_SubscribeDeliver(t *testing.T) {
	l := newTestLoop(t, nil)

	got := make(chan []byte, 1)
	_, err := l.Subscribe(testBase, 2, func(base types.EventBase, id types.EventID, payload []byte, userCtx uint64) {
		assert.Equal(t, testBase, base)
		assert.Equal(t, types.EventID(2), id)
		assert.Equal(t, uint64(42), userCtx)
		got <- payload
	}, 42)
	require.NoError(t, err)

	payload := []byte{1, 2, 3}
	require.NoError(t, l.Post(testBase, 2, payload, types.NoWait))
	payload[0] = 9 // 投递时已复制

	select {
	case p := <-got:
		assert.Equal(t, []byte{1, 2, 3}, p)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

// TestLoop_Wildcard 测试通配订阅与过滤
func TestLoop_Wildcard(t *testing.T) {
	l := newTestLoop(t, nil)

	var wildcard, exact, other atomic.Int32
	_, err := l.Subscribe(testBase, types.AnyID, func(types.EventBase, types.EventID, []byte, uint64) { wildcard.Add(1) }, 0)
	require.NoError(t, err)
	_, err = l.Subscribe(testBase, 1, func(types.EventBase, types.EventID, []byte, uint64) { exact.Add(1) }, 0)
	require.NoError(t, err)
	_, err = l.Subscribe("OTHER", types.AnyID, func(types.EventBase, types.EventID, []byte, uint64) { other.Add(1) }, 0)
	require.NoError(t, err)

	require.NoError(t, l.Post(testBase, 1, nil, types.NoWait))
	require.NoError(t, l.Post(testBase, 2, nil, types.NoWait))

	assert.Eventually(t, func() bool { return wildcard.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return exact.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), other.Load())
}

// TestLoop_PostWildcardRejected 测试禁止向通配 ID 投递
func TestLoop_PostWildcardRejected(t *testing.T) {
	l := newTestLoop(t, nil)
	err := l.Post(testBase, types.AnyID, nil, types.NoWait)
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

// TestLoop_MaxHandlers 测试注册上限
func TestLoop_MaxHandlers(t *testing.T) {
	l := newTestLoop(t, func(c *config.LoopConfig) { c.MaxHandlers = 2 })

	noop := func(types.EventBase, types.EventID, []byte, uint64) {}
	tok, err := l.Subscribe(testBase, 1, noop, 0)
	require.NoError(t, err)
	_, err = l.Subscribe(testBase, 2, noop, 0)
	require.NoError(t, err)

	_, err = l.Subscribe(testBase, 3, noop, 0)
	assert.ErrorIs(t, err, types.ErrResourceExhausted)

	require.NoError(t, l.Unsubscribe(tok))
	_, err = l.Subscribe(testBase, 3, noop, 0)
	assert.NoError(t, err)
}

// TestLoop_UnsubscribeUnknown 测试注销未知 token
func TestLoop_UnsubscribeUnknown(t *testing.T) {
	l := newTestLoop(t, nil)
	assert.ErrorIs(t, l.Unsubscribe(999), types.ErrInvalidState)
}

// TestLoop_NilHandler 测试空回调
func TestLoop_NilHandler(t *testing.T) {
	l := newTestLoop(t, nil)
	_, err := l.Subscribe(testBase, 1, nil, 0)
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

// ============================================================================
// 投递测试
// ============================================================================

// TestLoop_FIFO 测试单一投递者的顺序
func TestLoop_FIFO(t *testing.T) {
	l := newTestLoop(t, func(c *config.LoopConfig) { c.QueueSize = 256 })

	var mu sync.Mutex
	var seen []byte
	done := make(chan struct{})
	_, err := l.Subscribe(testBase, 1, func(_ types.EventBase, _ types.EventID, payload []byte, _ uint64) {
		mu.Lock()
		seen = append(seen, payload[0])
		n := len(seen)
		mu.Unlock()
		if n == 100 {
			close(done)
		}
	}, 0)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.NoError(t, l.Post(testBase, 1, []byte{byte(i)}, types.Forever))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, b := range seen {
		assert.Equal(t, byte(i), b)
	}
}

// TestLoop_QueueFull 测试队列满时的非阻塞与超时投递
func TestLoop_QueueFull(t *testing.T) {
	mock := clock.NewMock()
	l := newTestLoop(t, func(c *config.LoopConfig) { c.QueueSize = 1 }, WithClock(mock))

	block := make(chan struct{})
	entered := make(chan struct{}, 1)
	_, err := l.Subscribe(testBase, 1, func(types.EventBase, types.EventID, []byte, uint64) {
		entered <- struct{}{}
		<-block
	}, 0)
	require.NoError(t, err)
	defer close(block)

	// 第一个事件占住分发者，第二个填满队列
	require.NoError(t, l.Post(testBase, 1, nil, types.NoWait))
	<-entered
	require.NoError(t, l.Post(testBase, 1, nil, types.NoWait))

	err = l.Post(testBase, 1, nil, types.NoWait)
	assert.ErrorIs(t, err, types.ErrQueueFull)
	err = l.PostFromISR(testBase, 1, nil)
	assert.ErrorIs(t, err, types.ErrQueueFull)

	result := make(chan error, 1)
	go func() {
		result <- l.Post(testBase, 1, nil, 10*time.Millisecond)
	}()

	// 等待 Post 创建定时器后推进时钟
	time.Sleep(20 * time.Millisecond)
	mock.Add(10 * time.Millisecond)

	select {
	case err := <-result:
		assert.ErrorIs(t, err, types.ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("timed post did not return")
	}

	assert.Equal(t, uint64(3), l.Stats().Rejected)
}

// TestLoop_PostForeverUnblockedByClose 测试关闭唤醒阻塞投递
func TestLoop_PostForeverUnblockedByClose(t *testing.T) {
	cfg := config.DefaultExplicitLoopConfig()
	cfg.QueueSize = 1
	l, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, l.Post(testBase, 1, nil, types.NoWait))

	result := make(chan error, 1)
	go func() {
		result <- l.Post(testBase, 1, nil, types.Forever)
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, l.Close())

	select {
	case err := <-result:
		assert.ErrorIs(t, err, types.ErrInvalidState)
	case <-time.After(time.Second):
		t.Fatal("blocked post not released by Close")
	}
}

// ============================================================================
// 分发安全测试
// ============================================================================

// TestLoop_PanicRecovered 测试回调 panic 不影响后续分发
func TestLoop_PanicRecovered(t *testing.T) {
	l := newTestLoop(t, nil)

	var ok atomic.Int32
	_, err := l.Subscribe(testBase, 1, func(types.EventBase, types.EventID, []byte, uint64) {
		panic("boom")
	}, 0)
	require.NoError(t, err)
	_, err = l.Subscribe(testBase, 1, func(types.EventBase, types.EventID, []byte, uint64) {
		ok.Add(1)
	}, 0)
	require.NoError(t, err)

	require.NoError(t, l.Post(testBase, 1, nil, types.NoWait))
	require.NoError(t, l.Post(testBase, 1, nil, types.NoWait))

	assert.Eventually(t, func() bool { return ok.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), l.Stats().Panics)
}

// TestLoop_UnsubscribeFromCallback 测试回调内注销不会死锁
func TestLoop_UnsubscribeFromCallback(t *testing.T) {
	l := newTestLoop(t, nil)

	var tok types.Token
	var calls atomic.Int32
	var err error
	tok, err = l.Subscribe(testBase, 1, func(types.EventBase, types.EventID, []byte, uint64) {
		calls.Add(1)
		_ = l.Unsubscribe(tok)
	}, 0)
	require.NoError(t, err)

	require.NoError(t, l.Post(testBase, 1, nil, types.NoWait))
	assert.Eventually(t, func() bool { return l.Handlers() == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, l.Post(testBase, 1, nil, types.NoWait))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

// ============================================================================
// 循环类型测试
// ============================================================================

// TestLoop_Explicit 测试显式驱动循环
func TestLoop_Explicit(t *testing.T) {
	l, err := NewExplicit(config.DefaultExplicitLoopConfig())
	require.NoError(t, err)
	defer l.Close()

	var calls atomic.Int32
	_, err = l.Subscribe(testBase, 1, func(types.EventBase, types.EventID, []byte, uint64) { calls.Add(1) }, 0)
	require.NoError(t, err)

	require.NoError(t, l.Post(testBase, 1, nil, types.NoWait))
	require.NoError(t, l.Post(testBase, 1, nil, types.NoWait))

	// 未驱动时不分发
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	require.NoError(t, l.Run(context.Background(), 0))
	assert.Equal(t, int32(2), calls.Load())
}

// TestLoop_ExplicitRunDeadline 测试 Run 的时限与取消
func TestLoop_ExplicitRunDeadline(t *testing.T) {
	l, err := NewExplicit(config.DefaultExplicitLoopConfig())
	require.NoError(t, err)
	defer l.Close()

	start := time.Now()
	require.NoError(t, l.Run(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = l.Run(ctx, types.Forever)
	assert.ErrorIs(t, err, types.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestLoop_RunOnBackground 测试后台循环不允许 Run
func TestLoop_RunOnBackground(t *testing.T) {
	l := newTestLoop(t, nil)
	assert.ErrorIs(t, l.Run(context.Background(), 0), types.ErrInvalidState)
}

// TestLoop_SystemSingleton 测试默认循环唯一性
func TestLoop_SystemSingleton(t *testing.T) {
	first, err := NewSystem()
	require.NoError(t, err)

	_, err = NewSystem()
	assert.ErrorIs(t, err, types.ErrInvalidState)

	require.NoError(t, first.Close())

	again, err := NewSystem()
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

// ============================================================================
// 关闭测试
// ============================================================================

// TestLoop_CloseIdempotent 测试重复关闭
func TestLoop_CloseIdempotent(t *testing.T) {
	l, err := New(config.DefaultLoopConfig())
	require.NoError(t, err)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	assert.ErrorIs(t, l.Post(testBase, 1, nil, types.NoWait), types.ErrInvalidState)
	_, err = l.Subscribe(testBase, 1, func(types.EventBase, types.EventID, []byte, uint64) {}, 0)
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

// TestLoop_InvalidConfig 测试非法配置
func TestLoop_InvalidConfig(t *testing.T) {
	cfg := config.DefaultLoopConfig()
	cfg.QueueSize = 0
	_, err := New(cfg)
	assert.Error(t, err)
}

// ============================================================================
// Fx 模块测试
// ============================================================================

// TestModule_Lifecycle 测试 Fx 模块生命周期
func TestModule_Lifecycle(t *testing.T) {
	var loop *Loop
	var src interfaces.RawEventSource

	app := fxtest.New(t,
		fx.NopLogger,
		Module(),
		fx.Populate(&loop, &src),
	)
	app.RequireStart()

	require.NotNil(t, loop)
	assert.Same(t, loop, src)

	app.RequireStop()
	assert.ErrorIs(t, loop.Post(testBase, 1, nil, types.NoWait), types.ErrInvalidState)
}

// TestModule_CleanupOnBuildFailure 测试构建失败时清理槽关闭事件循环
func TestModule_CleanupOnBuildFailure(t *testing.T) {
	cleanup := NewCleanup()

	app := fx.New(
		fx.NopLogger,
		fx.Supply(&config.Config{Loop: systemLoopConfig()}),
		fx.Supply(cleanup),
		Module(),
		fx.Invoke(func(*Loop) error { return errors.New("later component failed") }),
	)
	require.Error(t, app.Err())
	require.Equal(t, 1, cleanup.Len())

	cleanup.Close()
	assert.Equal(t, 0, cleanup.Len())

	// 系统事件循环的占用标记已清除
	loop, err := New(systemLoopConfig())
	require.NoError(t, err)
	require.NoError(t, loop.Close())
}

func systemLoopConfig() config.LoopConfig {
	cfg := config.DefaultLoopConfig()
	cfg.Kind = config.LoopSystem
	return cfg
}
