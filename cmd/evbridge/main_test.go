package main

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-evbridge"
	"github.com/dep2p/go-evbridge/internal/core/codec"
	"github.com/dep2p/go-evbridge/pkg/types"
)

// TestPrintStats 测试统计输出包含各事件基的指标快照
func TestPrintStats(t *testing.T) {
	b, err := evbridge.New(evbridge.WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.Post(types.On(codec.IfaceBase, codec.EventIfaceUp), codec.IfaceUp{Iface: "sta0"}))

	var buf bytes.Buffer
	printStats(&buf, b)

	out := buf.String()
	assert.Contains(t, out, b.Loop().Name())
	assert.Contains(t, out, string(codec.IfaceBase))
	assert.Contains(t, out, "投递 1")
}

// TestPrintStats_MetricsDisabled 测试关闭指标时只输出基础统计
func TestPrintStats_MetricsDisabled(t *testing.T) {
	b, err := evbridge.New(evbridge.WithMetrics(false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	var buf bytes.Buffer
	printStats(&buf, b)

	assert.NotContains(t, buf.String(), string(codec.IfaceBase))
}
