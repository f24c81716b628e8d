package mocks

import (
	"fmt"
	"sync"
	"time"

	"github.com/dep2p/go-evbridge/pkg/interfaces"
	"github.com/dep2p/go-evbridge/pkg/types"
)

// 确保实现接口
var _ interfaces.RawEventSource = (*MockRawEventSource)(nil)

// MockRegistration 记录的原生注册
type MockRegistration struct {
	Token   types.Token
	Base    types.EventBase
	ID      types.EventID
	Handler interfaces.NativeHandler
	UserCtx uint64
}

// PostCall Post 调用记录
type PostCall struct {
	Base    types.EventBase
	ID      types.EventID
	Payload []byte
	Wait    time.Duration
}

// MockRawEventSource 模拟 RawEventSource 接口实现
//
// 不带队列和分发 goroutine：Fire 在调用方 goroutine 上同步调用匹配的回调，
// Snapshot 可以取出注销前的回调，用来构造"注销后仍被调用一次"的竞态。
type MockRawEventSource struct {
	mu        sync.Mutex
	regs      []MockRegistration
	nextToken types.Token

	// MaxHandlers 注册上限，0 表示不限制
	MaxHandlers int

	// DeliverOnPost Post 成功后立即同步分发
	DeliverOnPost bool

	// 可覆盖的方法
	SubscribeFunc   func(base types.EventBase, id types.EventID, handler interfaces.NativeHandler, userCtx uint64) (types.Token, error)
	UnsubscribeFunc func(token types.Token) error
	PostFunc        func(base types.EventBase, id types.EventID, payload []byte, wait time.Duration) error

	// 调用记录
	SubscribeCalls   int
	UnsubscribeCalls []types.Token
	PostCalls        []PostCall
}

// NewMockRawEventSource 创建 MockRawEventSource
func NewMockRawEventSource() *MockRawEventSource {
	return &MockRawEventSource{}
}

// Subscribe 注册原始回调
func (m *MockRawEventSource) Subscribe(base types.EventBase, id types.EventID, handler interfaces.NativeHandler, userCtx uint64) (types.Token, error) {
	m.mu.Lock()
	m.SubscribeCalls++
	m.mu.Unlock()

	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(base, id, handler, userCtx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.MaxHandlers > 0 && len(m.regs) >= m.MaxHandlers {
		return 0, fmt.Errorf("%w: mock source full", types.ErrResourceExhausted)
	}
	m.nextToken++
	m.regs = append(m.regs, MockRegistration{
		Token:   m.nextToken,
		Base:    base,
		ID:      id,
		Handler: handler,
		UserCtx: userCtx,
	})
	return m.nextToken, nil
}

// Unsubscribe 注销原始回调
func (m *MockRawEventSource) Unsubscribe(token types.Token) error {
	m.mu.Lock()
	m.UnsubscribeCalls = append(m.UnsubscribeCalls, token)
	m.mu.Unlock()

	if m.UnsubscribeFunc != nil {
		return m.UnsubscribeFunc(token)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.regs {
		if r.Token == token {
			m.regs = append(m.regs[:i], m.regs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown token %d", types.ErrInvalidState, token)
}

// Post 记录投递
func (m *MockRawEventSource) Post(base types.EventBase, id types.EventID, payload []byte, wait time.Duration) error {
	if m.PostFunc != nil {
		return m.PostFunc(base, id, payload, wait)
	}

	cp := append([]byte(nil), payload...)
	m.mu.Lock()
	m.PostCalls = append(m.PostCalls, PostCall{Base: base, ID: id, Payload: cp, Wait: wait})
	deliver := m.DeliverOnPost
	m.mu.Unlock()

	if deliver {
		m.Fire(base, id, cp)
	}
	return nil
}

// Snapshot 返回当前匹配 (base, id) 的注册
func (m *MockRawEventSource) Snapshot(base types.EventBase, id types.EventID) []MockRegistration {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []MockRegistration
	for _, r := range m.regs {
		if r.Base == base && (r.ID == types.AnyID || r.ID == id) {
			out = append(out, r)
		}
	}
	return out
}

// Fire 同步调用所有匹配的回调
func (m *MockRawEventSource) Fire(base types.EventBase, id types.EventID, payload []byte) {
	for _, r := range m.Snapshot(base, id) {
		r.Handler(base, id, payload, r.UserCtx)
	}
}

// Registrations 返回当前注册数
func (m *MockRawEventSource) Registrations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.regs)
}

// Posts 返回投递记录副本
func (m *MockRawEventSource) Posts() []PostCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PostCall(nil), m.PostCalls...)
}
