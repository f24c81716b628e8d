package codec

import (
	"fmt"
	"sync"

	"github.com/dep2p/go-evbridge/pkg/types"
)

// Codec 单个事件基的编解码器
type Codec interface {
	// Base 返回负责的事件基
	Base() types.EventBase

	// Encode 编码事件载荷
	Encode(evt types.Event) ([]byte, error)

	// Decode 按事件 ID 解码载荷
	Decode(id types.EventID, payload []byte) (types.Event, error)
}

// Registry 事件基到编解码器的映射
type Registry struct {
	mu     sync.RWMutex
	codecs map[types.EventBase]Codec
}

// NewRegistry 创建注册表
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[types.EventBase]Codec)}
	for _, c := range codecs {
		r.codecs[c.Base()] = c
	}
	return r
}

// DefaultRegistry 创建预置 IFACE_EVENT 编解码器的注册表
func DefaultRegistry() *Registry {
	return NewRegistry(IfaceCodec{})
}

// Register 注册编解码器
func (r *Registry) Register(c Codec) error {
	if c == nil || c.Base() == "" {
		return fmt.Errorf("%w: codec without base", types.ErrInvalidState)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.codecs[c.Base()]; exists {
		return fmt.Errorf("%w: codec for %s already registered", types.ErrInvalidState, c.Base())
	}
	r.codecs[c.Base()] = c
	return nil
}

// Lookup 查找编解码器
func (r *Registry) Lookup(base types.EventBase) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[base]
	return c, ok
}

// Bases 返回已注册的事件基
func (r *Registry) Bases() []types.EventBase {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.EventBase, 0, len(r.codecs))
	for b := range r.codecs {
		out = append(out, b)
	}
	return out
}

// Encode 编码事件
//
// types.RawEvent 原样透传；其它事件需要 base 已注册编解码器。
func (r *Registry) Encode(base types.EventBase, evt types.Event) ([]byte, error) {
	if raw, ok := evt.(types.RawEvent); ok {
		return raw.Payload, nil
	}
	c, ok := r.Lookup(base)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownEventBase, base)
	}
	return c.Encode(evt)
}

// Decode 解码事件
//
// 没有注册编解码器的 base 解码为 types.RawEvent。
func (r *Registry) Decode(base types.EventBase, id types.EventID, payload []byte) (types.Event, error) {
	c, ok := r.Lookup(base)
	if !ok {
		return types.RawEvent{Base: base, ID: id, Payload: payload}, nil
	}
	return c.Decode(id, payload)
}
