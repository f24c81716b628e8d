package dispatcher

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-evbridge/config"
	"github.com/dep2p/go-evbridge/internal/core/eventloop"
	"github.com/dep2p/go-evbridge/pkg/types"
	"github.com/dep2p/go-evbridge/tests/testutil"
)

func newTestLoop(t *testing.T, queue int) *eventloop.Loop {
	t.Helper()
	cfg := config.DefaultLoopConfig()
	cfg.QueueSize = queue
	loop, err := eventloop.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { loop.Close() })
	return loop
}

// ============================================================================
// 真实事件循环上的并发测试
// ============================================================================

// TestConcurrent_PerSelectorOrder 测试同一选择器按投递顺序分发
func TestConcurrent_PerSelectorOrder(t *testing.T) {
	loop := newTestLoop(t, 32)
	d := newTestDispatcher(t, loop)

	const n = 500
	var mu sync.Mutex
	seen := make([]uint16, 0, n)
	done := make(chan struct{})

	_, err := d.SubscribeRaw(types.On(testBase, 1), func(_ context.Context, evt types.RawEvent) {
		mu.Lock()
		seen = append(seen, uint16(evt.Payload[0])<<8|uint16(evt.Payload[1]))
		full := len(seen) == n
		mu.Unlock()
		if full {
			close(done)
		}
	})
	require.NoError(t, err)

	go func() {
		for i := 0; i < n; i++ {
			_ = d.PostRaw(types.On(testBase, 1), []byte{byte(i >> 8), byte(i)}, types.Forever)
		}
	}()

	testutil.RequireClosed(t, done, testutil.DefaultWaitTimeout, "所有事件应该已分发")

	mu.Lock()
	defer mu.Unlock()
	for i, v := range seen {
		require.Equal(t, uint16(i), v, "position %d", i)
	}
}

// TestConcurrent_NoInvocationAfterRelease 测试释放返回后回调不再执行
func TestConcurrent_NoInvocationAfterRelease(t *testing.T) {
	loop := newTestLoop(t, 256)
	d := newTestDispatcher(t, loop)

	var violations atomic.Int32
	var stop atomic.Bool

	// 持续投递
	posterDone := make(chan struct{})
	go func() {
		defer close(posterDone)
		for i := 0; !stop.Load(); i++ {
			_ = d.PostRaw(types.On(testBase, types.EventID(i%4)), nil, time.Millisecond)
		}
	}()

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				var released atomic.Bool
				sub, err := d.SubscribeRaw(types.All(testBase), func(context.Context, types.RawEvent) {
					if released.Load() {
						violations.Add(1)
					}
				})
				if err != nil {
					return err
				}
				runtime.Gosched()
				if err := sub.Close(); err != nil {
					return err
				}
				released.Store(true)
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())
	stop.Store(true)
	<-posterDone

	assert.Equal(t, int32(0), violations.Load())
	assert.Equal(t, 0, d.Len())
	assert.Equal(t, 0, loop.Handlers())
}

// TestConcurrent_CloseWhileDispatching 测试分发进行中关闭分发器
func TestConcurrent_CloseWhileDispatching(t *testing.T) {
	loop := newTestLoop(t, 64)
	d := newTestDispatcher(t, loop)

	entered := make(chan struct{})
	var once sync.Once
	unblock := make(chan struct{})

	_, err := d.SubscribeRaw(types.All(testBase), func(context.Context, types.RawEvent) {
		once.Do(func() { close(entered) })
		<-unblock
	})
	require.NoError(t, err)

	require.NoError(t, d.PostRaw(types.On(testBase, 1), nil, 0))
	testutil.RequireClosed(t, entered, testutil.DefaultWaitTimeout, "回调应该已开始")

	closed := make(chan error, 1)
	go func() { closed <- d.Close() }()
	testutil.RequireBlocked(t, closed, testutil.DefaultBlockCheck, "回调返回前 Close 不应返回")

	close(unblock)
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(testutil.DefaultWaitTimeout):
		t.Fatal("Close 未返回")
	}
	assert.Equal(t, 0, loop.Handlers())
}

// TestConcurrent_ReleaseFromCallbackOnLoop 测试在事件循环上回调内释放
func TestConcurrent_ReleaseFromCallbackOnLoop(t *testing.T) {
	loop := newTestLoop(t, 8)
	d := newTestDispatcher(t, loop)

	var calls atomic.Int32
	released := make(chan error, 1)

	var sub interface {
		CloseFromCallback(context.Context) error
	}
	s, err := d.SubscribeRaw(types.All(testBase), func(ctx context.Context, _ types.RawEvent) {
		if calls.Add(1) == 1 {
			released <- sub.CloseFromCallback(ctx)
		}
	})
	require.NoError(t, err)
	sub = s

	require.NoError(t, d.PostRaw(types.On(testBase, 1), nil, 0))
	select {
	case err := <-released:
		require.NoError(t, err)
	case <-time.After(testutil.DefaultWaitTimeout):
		t.Fatal("回调内释放未完成")
	}

	require.NoError(t, d.PostRaw(types.On(testBase, 1), nil, 0))
	time.Sleep(testutil.DefaultBlockCheck)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, loop.Handlers())
}
