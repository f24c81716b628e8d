// Package types 定义 evbridge 公共类型
//
// 本文件定义事件选择器相关类型。
package types

import "fmt"

// ============================================================================
//                              事件标识
// ============================================================================

// EventBase 事件基，标识一类事件源（如 IFACE_EVENT、WIFI_EVENT）
type EventBase string

// EventID 事件基内的事件编号
type EventID int32

// AnyID 匹配事件基下的所有事件
const AnyID EventID = -1

// String 返回事件编号字符串表示
func (id EventID) String() string {
	if id == AnyID {
		return "any"
	}
	return fmt.Sprintf("%d", int32(id))
}

// Token 原生注册令牌
//
// 对调用方不透明，只能交还给签发它的事件源。
type Token uint64

// ============================================================================
//                              Selector
// ============================================================================

// Selector 事件选择器
//
// ID 为 AnyID 时匹配该事件基下的所有事件。
type Selector struct {
	Base EventBase
	ID   EventID
}

// On 创建匹配单个事件的选择器
func On(base EventBase, id EventID) Selector {
	return Selector{Base: base, ID: id}
}

// All 创建匹配整个事件基的选择器
func All(base EventBase) Selector {
	return Selector{Base: base, ID: AnyID}
}

// Matches 检查事件是否匹配选择器
func (s Selector) Matches(base EventBase, id EventID) bool {
	if s.Base != base {
		return false
	}
	return s.ID == AnyID || s.ID == id
}

// IsWildcard 是否为通配选择器
func (s Selector) IsWildcard() bool {
	return s.ID == AnyID
}

// Validate 检查选择器是否有效
func (s Selector) Validate() error {
	if s.Base == "" {
		return fmt.Errorf("%w: empty event base", ErrInvalidState)
	}
	if s.ID < AnyID {
		return fmt.Errorf("%w: negative event id %d", ErrInvalidState, s.ID)
	}
	return nil
}

// String 返回选择器字符串表示
func (s Selector) String() string {
	return string(s.Base) + "/" + s.ID.String()
}

// ============================================================================
//                              Event - 类型化事件
// ============================================================================

// Event 类型化事件接口
//
// 原生载荷在分发器边界解码一次为 Event，下游只处理类型化的值。
type Event interface {
	// EventID 返回事件在其事件基内的编号
	EventID() EventID
}

// Keyed 在同一选择器下区分事件来源的事件
//
// 分发器的粘性缓存按 (选择器, StickyKey) 记录，同一选择器下不同来源互不覆盖。
type Keyed interface {
	StickyKey() string
}

// RawEvent 未解码的原生事件
//
// 没有注册编解码器的事件基，或通过 SubscribeRaw 订阅的回调，收到的都是 RawEvent。
// Payload 归事件源所有，回调返回后不得继续持有。
type RawEvent struct {
	Base    EventBase
	ID      EventID
	Payload []byte
}

// EventID 实现 Event 接口
func (e RawEvent) EventID() EventID {
	return e.ID
}
