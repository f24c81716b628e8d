package codec

import (
	"fmt"
	"math"
	"net/netip"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-evbridge/pkg/types"
)

// 线格式字段编号
const (
	fieldIface   protowire.Number = 1
	fieldAddr    protowire.Number = 2
	fieldBits    protowire.Number = 3
	fieldGateway protowire.Number = 4
	fieldChanged protowire.Number = 5
	fieldReason  protowire.Number = 6
)

// 确保实现接口
var _ Codec = IfaceCodec{}

// IfaceCodec IFACE_EVENT 编解码器
type IfaceCodec struct{}

// Base 返回事件基
func (IfaceCodec) Base() types.EventBase { return IfaceBase }

// Encode 编码接口事件
func (IfaceCodec) Encode(evt types.Event) ([]byte, error) {
	var b []byte
	switch e := evt.(type) {
	case IfaceUp:
		b = appendString(b, fieldIface, e.Iface)
	case IfaceDown:
		b = appendString(b, fieldIface, e.Iface)
	case IPLost:
		b = appendString(b, fieldIface, e.Iface)
	case IPAcquired:
		b = appendString(b, fieldIface, e.Iface)
		if e.Addr.IsValid() {
			b = protowire.AppendTag(b, fieldAddr, protowire.BytesType)
			b = protowire.AppendBytes(b, e.Addr.Addr().AsSlice())
			b = protowire.AppendTag(b, fieldBits, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(e.Addr.Bits()))
		}
		if e.Gateway.IsValid() {
			b = protowire.AppendTag(b, fieldGateway, protowire.BytesType)
			b = protowire.AppendBytes(b, e.Gateway.AsSlice())
		}
		if e.Changed {
			b = protowire.AppendTag(b, fieldChanged, protowire.VarintType)
			b = protowire.AppendVarint(b, protowire.EncodeBool(true))
		}
	case Disconnected:
		b = appendString(b, fieldIface, e.Iface)
		if e.Reason != ReasonUnspecified {
			b = protowire.AppendTag(b, fieldReason, protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(e.Reason))
		}
	default:
		return nil, fmt.Errorf("%w: %T is not an %s event", types.ErrMalformedPayload, evt, IfaceBase)
	}
	return b, nil
}

// Decode 解码接口事件
func (IfaceCodec) Decode(id types.EventID, payload []byte) (types.Event, error) {
	var f ifaceFields
	if err := f.parse(payload); err != nil {
		return nil, fmt.Errorf("%w: %s/%d: %w", types.ErrMalformedPayload, IfaceBase, id, err)
	}

	switch id {
	case EventIfaceUp:
		return IfaceUp{Iface: f.iface}, nil
	case EventIfaceDown:
		return IfaceDown{Iface: f.iface}, nil
	case EventIPLost:
		return IPLost{Iface: f.iface}, nil
	case EventDisconnected:
		if f.reason > math.MaxUint8 {
			return nil, fmt.Errorf("%w: reason %d out of range", types.ErrMalformedPayload, f.reason)
		}
		return Disconnected{Iface: f.iface, Reason: DisconnectReason(f.reason)}, nil
	case EventIPAcquired:
		evt := IPAcquired{Iface: f.iface, Changed: f.changed}
		if f.addr != nil {
			addr, ok := netip.AddrFromSlice(f.addr)
			if !ok {
				return nil, fmt.Errorf("%w: bad address length %d", types.ErrMalformedPayload, len(f.addr))
			}
			if f.bits > uint64(addr.BitLen()) {
				return nil, fmt.Errorf("%w: bad prefix length %d", types.ErrMalformedPayload, f.bits)
			}
			// 保留主机位，不做 Masked
			evt.Addr = netip.PrefixFrom(addr, int(f.bits))
			if !evt.Addr.IsValid() {
				return nil, fmt.Errorf("%w: bad prefix length %d", types.ErrMalformedPayload, f.bits)
			}
		}
		if f.gateway != nil {
			gw, ok := netip.AddrFromSlice(f.gateway)
			if !ok {
				return nil, fmt.Errorf("%w: bad gateway length %d", types.ErrMalformedPayload, len(f.gateway))
			}
			evt.Gateway = gw
		}
		return evt, nil
	default:
		return nil, fmt.Errorf("%w: %s/%d", types.ErrUnknownEventBase, IfaceBase, id)
	}
}

// ifaceFields 解析出的原始字段
type ifaceFields struct {
	iface   string
	addr    []byte
	bits    uint64
	gateway []byte
	changed bool
	reason  uint64
}

func (f *ifaceFields) parse(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldIface && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			f.iface, n = v, m
		case num == fieldAddr && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			f.addr, n = append([]byte(nil), v...), m
		case num == fieldGateway && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			f.gateway, n = append([]byte(nil), v...), m
		case num == fieldBits && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			f.bits, n = v, m
		case num == fieldChanged && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			f.changed, n = protowire.DecodeBool(v), m
		case num == fieldReason && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return protowire.ParseError(m)
			}
			f.reason, n = v, m
		default:
			// 未知字段
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
		}
		b = b[n:]
	}
	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}
