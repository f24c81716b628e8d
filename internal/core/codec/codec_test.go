package codec

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-evbridge/pkg/types"
)

// ============================================================================
// IfaceCodec 测试
// ============================================================================

// TestIfaceCodec_Events 测试各类接口事件的编解码
func TestIfaceCodec_Events(t *testing.T) {
	tests := []struct {
		name string
		evt  types.Event
	}{
		{"up", IfaceUp{Iface: "sta0"}},
		{"down", IfaceDown{Iface: "sta0"}},
		{"lost", IPLost{Iface: "eth0"}},
		{"disconnected", Disconnected{Iface: "sta0", Reason: ReasonAuthFailed}},
		{"disconnected unspecified", Disconnected{Iface: "sta0"}},
		{"ip v4", IPAcquired{
			Iface:   "sta0",
			Addr:    netip.MustParsePrefix("192.168.4.23/24"),
			Gateway: netip.MustParseAddr("192.168.4.1"),
			Changed: true,
		}},
		{"ip v6 no gateway", IPAcquired{
			Iface: "eth0",
			Addr:  netip.MustParsePrefix("fd00::17/64"),
		}},
	}

	var c IfaceCodec
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := c.Encode(tt.evt)
			require.NoError(t, err)

			got, err := c.Decode(tt.evt.EventID(), payload)
			require.NoError(t, err)
			assert.Equal(t, tt.evt, got)
		})
	}
}

// TestIfaceCodec_HostBitsKept 测试地址主机位保留
func TestIfaceCodec_HostBitsKept(t *testing.T) {
	var c IfaceCodec
	payload, err := c.Encode(IPAcquired{Iface: "sta0", Addr: netip.MustParsePrefix("10.0.0.5/8")})
	require.NoError(t, err)

	got, err := c.Decode(EventIPAcquired, payload)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", got.(IPAcquired).Addr.Addr().String())
}

// TestIfaceCodec_UnknownFieldsSkipped 测试跳过未知字段
func TestIfaceCodec_UnknownFieldsSkipped(t *testing.T) {
	var c IfaceCodec
	payload, err := c.Encode(Disconnected{Iface: "sta0", Reason: ReasonNoPeer})
	require.NoError(t, err)

	payload = protowire.AppendTag(payload, 99, protowire.BytesType)
	payload = protowire.AppendString(payload, "future")
	payload = protowire.AppendTag(payload, 100, protowire.VarintType)
	payload = protowire.AppendVarint(payload, 7)

	got, err := c.Decode(EventDisconnected, payload)
	require.NoError(t, err)
	assert.Equal(t, Disconnected{Iface: "sta0", Reason: ReasonNoPeer}, got)
}

// TestIfaceCodec_Malformed 测试损坏载荷
func TestIfaceCodec_Malformed(t *testing.T) {
	var c IfaceCodec

	_, err := c.Decode(EventIfaceUp, []byte{0x0a, 0x05, 's'})
	assert.ErrorIs(t, err, types.ErrMalformedPayload)

	bad := protowire.AppendTag(nil, fieldAddr, protowire.BytesType)
	bad = protowire.AppendBytes(bad, []byte{1, 2, 3})
	_, err = c.Decode(EventIPAcquired, bad)
	assert.ErrorIs(t, err, types.ErrMalformedPayload)

	bits := protowire.AppendTag(nil, fieldAddr, protowire.BytesType)
	bits = protowire.AppendBytes(bits, []byte{10, 0, 0, 1})
	bits = protowire.AppendTag(bits, fieldBits, protowire.VarintType)
	bits = protowire.AppendVarint(bits, 40)
	_, err = c.Decode(EventIPAcquired, bits)
	assert.ErrorIs(t, err, types.ErrMalformedPayload)
}

// TestIfaceCodec_ReasonOutOfRange 测试超出 uint8 的断开原因被拒绝而不是截断
func TestIfaceCodec_ReasonOutOfRange(t *testing.T) {
	var c IfaceCodec

	payload := protowire.AppendTag(nil, fieldIface, protowire.BytesType)
	payload = protowire.AppendString(payload, "sta0")
	payload = protowire.AppendTag(payload, fieldReason, protowire.VarintType)
	payload = protowire.AppendVarint(payload, 257)

	evt, err := c.Decode(EventDisconnected, payload)
	assert.ErrorIs(t, err, types.ErrMalformedPayload)
	assert.Nil(t, evt)

	// 边界值 255 仍可解码
	payload = protowire.AppendTag(nil, fieldIface, protowire.BytesType)
	payload = protowire.AppendString(payload, "sta0")
	payload = protowire.AppendTag(payload, fieldReason, protowire.VarintType)
	payload = protowire.AppendVarint(payload, 255)

	evt, err = c.Decode(EventDisconnected, payload)
	require.NoError(t, err)
	assert.Equal(t, Disconnected{Iface: "sta0", Reason: DisconnectReason(255)}, evt)
}

// TestIfaceCodec_HugePrefixLength 测试超大前缀长度被拒绝
func TestIfaceCodec_HugePrefixLength(t *testing.T) {
	var c IfaceCodec

	payload := protowire.AppendTag(nil, fieldAddr, protowire.BytesType)
	payload = protowire.AppendBytes(payload, []byte{10, 0, 0, 1})
	payload = protowire.AppendTag(payload, fieldBits, protowire.VarintType)
	payload = protowire.AppendVarint(payload, 1<<63|24)

	_, err := c.Decode(EventIPAcquired, payload)
	assert.ErrorIs(t, err, types.ErrMalformedPayload)
}

// TestIfaceCodec_UnknownID 测试未知事件 ID
func TestIfaceCodec_UnknownID(t *testing.T) {
	var c IfaceCodec
	_, err := c.Decode(42, nil)
	assert.ErrorIs(t, err, types.ErrUnknownEventBase)
}

// TestIfaceCodec_ForeignEvent 测试编码非接口事件
func TestIfaceCodec_ForeignEvent(t *testing.T) {
	var c IfaceCodec
	_, err := c.Encode(types.RawEvent{Base: "OTHER", ID: 1})
	assert.ErrorIs(t, err, types.ErrMalformedPayload)
}

// TestDisconnectReason_String 测试原因名称
func TestDisconnectReason_String(t *testing.T) {
	assert.Equal(t, "auth-failed", ReasonAuthFailed.String())
	assert.Equal(t, "cable-unplugged", ReasonCableUnplugged.String())
	assert.Equal(t, "reason(200)", DisconnectReason(200).String())
}

// ============================================================================
// Registry 测试
// ============================================================================

// TestRegistry_DecodeUnknownBase 测试未注册事件基解码为原始事件
func TestRegistry_DecodeUnknownBase(t *testing.T) {
	r := DefaultRegistry()

	evt, err := r.Decode("VENDOR_EVENT", 3, []byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, types.RawEvent{Base: "VENDOR_EVENT", ID: 3, Payload: []byte{1, 2}}, evt)
}

// TestRegistry_EncodeDecode 测试通过注册表编解码
func TestRegistry_EncodeDecode(t *testing.T) {
	r := DefaultRegistry()

	payload, err := r.Encode(IfaceBase, IfaceUp{Iface: "sta0"})
	require.NoError(t, err)

	evt, err := r.Decode(IfaceBase, EventIfaceUp, payload)
	require.NoError(t, err)
	assert.Equal(t, IfaceUp{Iface: "sta0"}, evt)

	// 原始事件透传
	payload, err = r.Encode("VENDOR_EVENT", types.RawEvent{Payload: []byte{7}})
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, payload)

	_, err = r.Encode("VENDOR_EVENT", IfaceUp{})
	assert.ErrorIs(t, err, types.ErrUnknownEventBase)
}

// TestRegistry_Register 测试注册编解码器
func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Bases())

	require.NoError(t, r.Register(IfaceCodec{}))
	assert.ErrorIs(t, r.Register(IfaceCodec{}), types.ErrInvalidState)
	assert.ErrorIs(t, r.Register(nil), types.ErrInvalidState)

	_, ok := r.Lookup(IfaceBase)
	assert.True(t, ok)
	assert.Equal(t, []types.EventBase{IfaceBase}, r.Bases())
}
