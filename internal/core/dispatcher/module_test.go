package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-evbridge/config"
	"github.com/dep2p/go-evbridge/internal/core/eventloop"
	"github.com/dep2p/go-evbridge/pkg/interfaces"
)

// ============================================================================
// Fx 模块测试
// ============================================================================

// TestModule_Load 测试 Fx 模块加载
func TestModule_Load(t *testing.T) {
	var d *Dispatcher
	var ed interfaces.EventDispatcher

	cfg := config.NewConfig()
	cfg.Dispatcher.StickyEvents = 0

	app := fxtest.New(t,
		fx.NopLogger,
		fx.Supply(cfg),
		eventloop.Module(),
		Module(),
		fx.Populate(&d, &ed),
	)
	app.RequireStart()

	require.NotNil(t, d)
	assert.Same(t, d, ed)
	assert.Nil(t, d.sticky)

	app.RequireStop()
	assert.True(t, d.Closed())
}

// TestModule_StopAfterManualClose 测试手动关闭后停止应用
func TestModule_StopAfterManualClose(t *testing.T) {
	var d *Dispatcher

	app := fxtest.New(t,
		fx.NopLogger,
		eventloop.Module(),
		Module(),
		fx.Populate(&d),
	)
	app.RequireStart()

	require.NoError(t, d.Close())
	app.RequireStop()
}
