// Package main 提供 evbridge 演示命令行入口
//
// 启动 Bridge，用模拟驱动在 --delay 后让接口上线并获得地址，
// 同时等待地址就绪并输出结果。
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-evbridge"
	"github.com/dep2p/go-evbridge/internal/core/codec"
	"github.com/dep2p/go-evbridge/pkg/lib/log"
	"github.com/dep2p/go-evbridge/pkg/types"
)

var logger = log.Logger("evbridge/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数：本次运行的场景（接口、延迟、超时）
//   配置文件：事件循环与分发器参数（队列容量、粘性事件等）
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	configFile  = flag.StringP("config", "c", "", "配置文件路径（.json / .yaml）")
	iface       = flag.StringP("iface", "i", "sta0", "模拟的网络接口名")
	timeout     = flag.DurationP("timeout", "t", 5*time.Second, "等待地址的超时（负数表示不限）")
	delay       = flag.Duration("delay", 200*time.Millisecond, "模拟驱动上线前的延迟")
	disconnect  = flag.String("disconnect", "", "获得地址后以该原因断开（auth-failed/no-peer/cable-unplugged/timeout）")
	logLevel    = flag.String("log-level", "", "日志级别 (debug/info/warn/error)")
	metricsAddr = flag.String("metrics-addr", "", "Prometheus 指标监听地址，例如 :9100")
	hold        = flag.Bool("hold", false, "场景结束后保持运行直到收到退出信号")
	showVersion = flag.BoolP("version", "v", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Usage = printHelp
	flag.Parse()

	if *showVersion {
		fmt.Println(evbridge.VersionInfo())
		return nil
	}

	if *logLevel != "" {
		level, ok := log.ParseLevel(*logLevel)
		if !ok {
			return fmt.Errorf("未知日志级别 %q", *logLevel)
		}
		log.SetLevel(level)
	}

	reason, err := parseReason(*disconnect)
	if err != nil {
		return err
	}

	// ═══════════════════════════════════════════════════════════════════
	// 1. 创建并启动 Bridge
	// ═══════════════════════════════════════════════════════════════════
	reg := prometheus.NewRegistry()
	opts := buildOptions(reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := evbridge.New(opts...)
	if err != nil {
		return fmt.Errorf("创建失败: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		_ = b.Close()
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() {
		if err := b.Stop(context.Background()); err != nil {
			logger.Warn("停止 Bridge 失败", "error", err)
		}
	}()

	fmt.Printf("📦 %s\n", evbridge.VersionInfo())
	logger.Info("Bridge 已就绪", "iface", *iface, "delay", *delay, "timeout", *timeout)

	// ═══════════════════════════════════════════════════════════════════
	// 2. 指标服务（可选）
	// ═══════════════════════════════════════════════════════════════════
	if *metricsAddr != "" {
		srv := serveMetrics(*metricsAddr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// ═══════════════════════════════════════════════════════════════════
	// 3. 运行场景
	// ═══════════════════════════════════════════════════════════════════
	if err := runScenario(ctx, b, reason); err != nil {
		return err
	}

	printStats(os.Stdout, b)

	if *hold {
		fmt.Println("场景结束，按 Ctrl+C 退出")
		<-ctx.Done()
	}
	return nil
}

// buildOptions 构建 Bridge 选项
//
// 配置优先级（从高到低）：
//  1. 环境变量（EVBRIDGE_* 前缀）
//  2. 配置文件
//  3. 默认值
func buildOptions(reg prometheus.Registerer) []evbridge.Option {
	var opts []evbridge.Option
	if *configFile != "" {
		opts = append(opts, evbridge.WithConfigFile(*configFile))
	}
	opts = append(opts, envOptions()...)
	opts = append(opts, evbridge.WithRegisterer(reg))
	return opts
}

// runScenario 并发运行模拟驱动与等待方
func runScenario(ctx context.Context, b *evbridge.Bridge, reason codec.DisconnectReason) error {
	mon, err := b.NewNetifMonitor(*iface)
	if err != nil {
		return fmt.Errorf("创建监视器失败: %w", err)
	}
	drv := b.NewNetifDriver(*iface)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return drv.Connect(gctx, *delay)
	})

	g.Go(func() error {
		start := time.Now()
		ip, err := mon.WaitIP(gctx, *timeout)
		elapsed := time.Since(start).Round(time.Millisecond)
		switch {
		case err == nil:
			fmt.Printf("✅ %s 已获得地址 %s（耗时 %s）\n", *iface, ip, elapsed)
		case errors.Is(err, evbridge.ErrTimedOut):
			fmt.Printf("⏱  %s 在 %s 内未获得地址\n", *iface, *timeout)
			return err
		default:
			return fmt.Errorf("等待地址失败: %w", err)
		}

		if reason == codec.ReasonUnspecified {
			return nil
		}
		if err := drv.Disconnect(reason); err != nil {
			return fmt.Errorf("断开失败: %w", err)
		}
		got, err := mon.WaitDown(gctx, *timeout)
		if err != nil {
			return fmt.Errorf("等待断开失败: %w", err)
		}
		fmt.Printf("🔌 %s 已断开，原因 %s\n", *iface, got)
		return nil
	})

	return g.Wait()
}

// serveMetrics 启动 /metrics 服务
func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("指标服务退出", "addr", addr, "error", err)
		}
	}()
	fmt.Printf("📈 指标地址: http://%s/metrics\n", addr)
	return srv
}

// parseReason 解析断开原因名称
func parseReason(name string) (codec.DisconnectReason, error) {
	if name == "" {
		return codec.ReasonUnspecified, nil
	}
	for _, r := range []codec.DisconnectReason{
		codec.ReasonAuthFailed,
		codec.ReasonNoPeer,
		codec.ReasonCableUnplugged,
		codec.ReasonLocalShutdown,
		codec.ReasonTimeout,
	} {
		if r.String() == name {
			return r, nil
		}
	}
	return codec.ReasonUnspecified, fmt.Errorf("未知断开原因 %q", name)
}

// printStats 打印运行统计
func printStats(w io.Writer, b *evbridge.Bridge) {
	s := b.Stats()
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "  事件循环  %s\n", b.Loop().Name())
	fmt.Fprintf(w, "  投递      %d（拒绝 %d）\n", s.Loop.Posted, s.Loop.Rejected)
	fmt.Fprintf(w, "  送达      %d（过期 %d，解码失败 %d）\n",
		s.Dispatcher.Delivered, s.Dispatcher.Stale, s.Dispatcher.DecodeErrors)
	fmt.Fprintf(w, "  订阅      %d\n", s.Dispatcher.Subscriptions)

	if m := b.Metrics(); m != nil {
		snap := m.Snapshot()
		bases := make([]types.EventBase, 0, len(snap))
		for base := range snap {
			bases = append(bases, base)
		}
		sort.Slice(bases, func(i, j int) bool { return bases[i] < bases[j] })

		fmt.Fprintln(w, "───────────────────────────────────────────────────────────")
		for _, base := range bases {
			st := snap[base]
			fmt.Fprintf(w, "  %-12s 投递 %d（拒绝 %d）送达 %d  %.2f/s\n",
				base, st.Posted, st.Rejected, st.Delivered, st.PostRate)
		}
	}
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════")
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("evbridge - 原生事件循环桥接演示")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  evbridge [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  EVBRIDGE_QUEUE_SIZE       事件队列容量")
	fmt.Println("  EVBRIDGE_MAX_HANDLERS     原始回调注册上限")
	fmt.Println("  EVBRIDGE_STICKY_EVENTS    粘性事件缓存条目数")
	fmt.Println("  EVBRIDGE_METRICS          启用指标 (true/false)")
	fmt.Println("  EVBRIDGE_LOG_LEVEL        日志级别，支持 component=level 形式")
	fmt.Println("  EVBRIDGE_LOG_FORMAT       日志格式 (text/json)")
}
