package waitable

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-evbridge/pkg/types"
	"github.com/dep2p/go-evbridge/tests/testutil"
)

type waitResult struct {
	v   int
	err error
}

func waitAsync(s *State[int], ctx context.Context, pred func(int) bool, timeout time.Duration) <-chan waitResult {
	ch := make(chan waitResult, 1)
	go func() {
		v, err := s.WaitUntil(ctx, pred, timeout)
		ch <- waitResult{v, err}
	}()
	return ch
}

func waitParked(t *testing.T, s *State[int], n int) {
	t.Helper()
	testutil.Eventually(t, testutil.DefaultWaitTimeout, func() bool {
		return s.Stats().Waiting == n
	}, "等待者应该已挂起")
}

// ============================================================================
// 发布测试
// ============================================================================

// TestState_PublishGet 测试发布与读取
func TestState_PublishGet(t *testing.T) {
	s := New(10)

	v, ver := s.Get()
	assert.Equal(t, 10, v)
	assert.Equal(t, uint64(0), ver)

	assert.Equal(t, uint64(1), s.Publish(11))
	assert.Equal(t, uint64(2), s.Publish(11))

	v, ver = s.Get()
	assert.Equal(t, 11, v)
	assert.Equal(t, uint64(2), ver)
}

// TestState_Update 测试读-改-写
func TestState_Update(t *testing.T) {
	s := New(1)

	ver, changed := s.Update(func(v int) (int, bool) { return v + 1, true })
	assert.True(t, changed)
	assert.Equal(t, uint64(1), ver)

	ver, changed = s.Update(func(v int) (int, bool) { return v, false })
	assert.False(t, changed)
	assert.Equal(t, uint64(1), ver)

	v, _ := s.Get()
	assert.Equal(t, 2, v)
}

// ============================================================================
// 等待测试
// ============================================================================

// TestState_ImmediateSuccess 测试谓词已成立时不挂起
func TestState_ImmediateSuccess(t *testing.T) {
	mock := clock.NewMock()
	s := New(5, WithClock(mock))

	for _, timeout := range []time.Duration{0, time.Second, types.Forever} {
		v, err := s.WaitUntil(context.Background(), Equal(5), timeout)
		require.NoError(t, err)
		assert.Equal(t, 5, v)
	}

	stats := s.Stats()
	assert.Equal(t, uint64(0), stats.Parks)
	assert.Equal(t, 0, stats.Waiting)
}

// TestState_ImmediateSuccessAfterCancel 测试 ctx 已取消但谓词成立
func TestState_ImmediateSuccessAfterCancel(t *testing.T) {
	s := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v, err := s.WaitUntil(ctx, Equal(1), types.Forever)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

// TestState_ZeroTimeout 测试只检查一次
func TestState_ZeroTimeout(t *testing.T) {
	s := New(0)

	v, err := s.WaitUntil(context.Background(), Equal(1), 0)
	assert.ErrorIs(t, err, types.ErrTimedOut)
	assert.Equal(t, 0, v)
	assert.Equal(t, uint64(0), s.Stats().Parks)
}

// TestState_WakeOnPublish 测试发布唤醒并重新检查谓词
func TestState_WakeOnPublish(t *testing.T) {
	s := New(0)

	res := waitAsync(s, context.Background(), Equal(3), types.Forever)
	waitParked(t, s, 1)

	s.Publish(1)
	s.Publish(2)
	testutil.RequireBlocked(t, res, testutil.DefaultBlockCheck, "谓词不成立时不应返回")

	s.Publish(3)
	select {
	case r := <-res:
		require.NoError(t, r.err)
		assert.Equal(t, 3, r.v)
	case <-time.After(testutil.DefaultWaitTimeout):
		t.Fatal("发布后等待者未返回")
	}

	assert.GreaterOrEqual(t, s.Stats().Parks, uint64(1))
	assert.Equal(t, 0, s.Stats().Waiting)
}

// TestState_WakeAll 测试一次发布唤醒所有等待者
func TestState_WakeAll(t *testing.T) {
	s := New(0)

	results := make([]<-chan waitResult, 5)
	for i := range results {
		results[i] = waitAsync(s, context.Background(), func(v int) bool { return v > 0 }, types.Forever)
	}
	waitParked(t, s, len(results))

	s.Publish(7)
	for _, res := range results {
		select {
		case r := <-res:
			require.NoError(t, r.err)
			assert.Equal(t, 7, r.v)
		case <-time.After(testutil.DefaultWaitTimeout):
			t.Fatal("等待者未被唤醒")
		}
	}
}

// TestState_NoMissedWakeup 测试发布与等待任意交错时不丢失唤醒
func TestState_NoMissedWakeup(t *testing.T) {
	for round := 0; round < 200; round++ {
		s := New(0)
		ctx, cancel := context.WithTimeout(context.Background(), testutil.DefaultWaitTimeout)

		var g errgroup.Group
		for w := 0; w < 4; w++ {
			g.Go(func() error {
				v, err := s.WaitUntil(ctx, Equal(1), types.Forever)
				if err != nil {
					return err
				}
				if v != 1 {
					return errors.New("unexpected value")
				}
				return nil
			})
		}
		g.Go(func() error {
			s.Publish(1)
			return nil
		})

		err := g.Wait()
		cancel()
		require.NoError(t, err, "round %d", round)
	}
}

// TestState_TimeoutMockClock 测试超时不早于时限
func TestState_TimeoutMockClock(t *testing.T) {
	mock := clock.NewMock()
	s := New(0, WithClock(mock))

	res := waitAsync(s, context.Background(), Equal(1), 5*time.Second)
	waitParked(t, s, 1)

	mock.Add(4 * time.Second)
	testutil.RequireBlocked(t, res, testutil.DefaultBlockCheck, "时限前不应超时")

	mock.Add(time.Second)
	select {
	case r := <-res:
		assert.ErrorIs(t, r.err, types.ErrTimedOut)
	case <-time.After(testutil.DefaultWaitTimeout):
		t.Fatal("到期后未返回")
	}
	assert.Equal(t, 0, s.Stats().Waiting)
}

// TestState_TimeoutRealClock 测试真实时钟下的超时与余量
func TestState_TimeoutRealClock(t *testing.T) {
	s := New(0)

	const timeout = 50 * time.Millisecond
	start := time.Now()
	_, err := s.WaitUntil(context.Background(), Equal(1), timeout)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, types.ErrTimedOut)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+500*time.Millisecond)
}

// TestState_SatisfiedAtDeadline 测试到期时谓词已成立
func TestState_SatisfiedAtDeadline(t *testing.T) {
	mock := clock.NewMock()
	s := New(0, WithClock(mock))

	var calls atomic.Int32
	// 第一次检查不成立，之后都成立，模拟到期前一刻的发布
	pred := func(int) bool { return calls.Add(1) > 1 }

	res := waitAsync(s, context.Background(), pred, time.Second)
	waitParked(t, s, 1)
	mock.Add(time.Second)

	select {
	case r := <-res:
		assert.NoError(t, r.err)
	case <-time.After(testutil.DefaultWaitTimeout):
		t.Fatal("到期后未返回")
	}
}

// ============================================================================
// 取消测试
// ============================================================================

// TestState_ContextCancel 测试 ctx 取消
func TestState_ContextCancel(t *testing.T) {
	s := New(0)
	ctx, cancel := context.WithCancel(context.Background())

	res := waitAsync(s, ctx, Equal(1), types.Forever)
	waitParked(t, s, 1)
	cancel()

	select {
	case r := <-res:
		assert.ErrorIs(t, r.err, types.ErrCancelled)
		assert.ErrorIs(t, r.err, context.Canceled)
	case <-time.After(testutil.DefaultWaitTimeout):
		t.Fatal("取消后未返回")
	}
	assert.Equal(t, 0, s.Stats().Waiting)
}

// TestState_Shutdown 测试 Shutdown 取消进行中和之后的等待
func TestState_Shutdown(t *testing.T) {
	s := New(0)

	res := waitAsync(s, context.Background(), Equal(1), types.Forever)
	waitParked(t, s, 1)

	s.Shutdown()
	s.Shutdown()
	assert.True(t, s.IsShutdown())

	select {
	case r := <-res:
		assert.ErrorIs(t, r.err, types.ErrCancelled)
	case <-time.After(testutil.DefaultWaitTimeout):
		t.Fatal("Shutdown 后未返回")
	}

	_, err := s.WaitUntil(context.Background(), Equal(1), time.Second)
	assert.ErrorIs(t, err, types.ErrCancelled)

	// 谓词已成立仍然成功
	v, err := s.WaitUntil(context.Background(), Equal(0), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
	assert.Equal(t, 0, s.Stats().Waiting)
}

// TestState_NilPredicate 测试空谓词
func TestState_NilPredicate(t *testing.T) {
	s := New(0)
	_, err := s.WaitUntil(context.Background(), nil, 0)
	assert.ErrorIs(t, err, types.ErrInvalidState)
}

// TestPredicates 测试谓词辅助函数
func TestPredicates(t *testing.T) {
	assert.True(t, Equal("up")("up"))
	assert.False(t, Equal("up")("down"))
	assert.True(t, NotEqual(0)(1))
	assert.False(t, NotEqual(0)(0))
}
