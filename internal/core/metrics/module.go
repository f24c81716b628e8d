package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-evbridge/config"
	"github.com/dep2p/go-evbridge/internal/core/dispatcher"
	"github.com/dep2p/go-evbridge/pkg/lib/log"
)

var logger = log.Logger("core/metrics")

// Params 模块输入参数
type Params struct {
	fx.In

	Config     *config.Config        `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

// Result 模块输出结果
//
// 指标关闭时两者都为 nil，分发器回退到空观察者。
type Result struct {
	fx.Out

	Metrics  *Metrics
	Observer dispatcher.Observer
}

// Module 是 metrics 的 Fx 模块
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideMetrics),
	)
}

// ProvideMetrics 按配置创建指标
//
// 没有注入 Registerer 时使用独立的 prometheus.Registry。
func ProvideMetrics(p Params) (Result, error) {
	cfg := config.DefaultMetricsConfig()
	if p.Config != nil {
		cfg = p.Config.Metrics
	}
	if !cfg.Enable {
		logger.Debug("指标已关闭")
		return Result{}, nil
	}

	reg := p.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m, err := New(reg, WithNamespace(cfg.Namespace))
	if err != nil {
		return Result{}, err
	}
	return Result{Metrics: m, Observer: m}, nil
}
