// Package evbridge 将回调式原生事件循环桥接为类型安全的订阅与可等待状态
//
// 原生事件循环只认识三元组（事件基、事件编号、原始载荷）和一个
// 由调用方持有的不透明上下文。evbridge 在其上提供两个原语：
//
//   - Subscription / Dispatcher: 类型化订阅，释放返回后回调绝不再执行
//   - WaitableState[T]: 可阻塞等待谓词成立的共享状态，带超时与取消
//
// # 快速开始
//
//	import "github.com/dep2p/go-evbridge"
//
//	// 1. 创建并启动 Bridge
//	b, err := evbridge.New(evbridge.WithStickyEvents(64))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := b.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Stop(ctx)
//
//	// 2. 监视网络接口
//	mon, _ := b.NewNetifMonitor("sta0")
//	if err := mon.WaitUp(ctx, 5*time.Second); err != nil {
//	    // errors.Is(err, evbridge.ErrTimedOut)
//	}
//
//	// 3. 直接订阅
//	sub, _ := b.Subscribe(types.On(codec.IfaceBase, codec.EventIPAcquired),
//	    func(ctx context.Context, evt types.Event) {
//	        ip := evt.(codec.IPAcquired)
//	        fmt.Println(ip.Addr)
//	    })
//	defer sub.Close()
//
// # 组件层次
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│  入口层      Bridge          evbridge.New() / Start() / Stop()  │
//	├─────────────────────────────────────────────────────────────────┤
//	│  消费层      netif.Monitor   WaitUp / WaitDown / WaitIP         │
//	├─────────────────────────────────────────────────────────────────┤
//	│  原语层      Dispatcher      Subscribe / Post / Close           │
//	│              waitable.State  Publish / WaitUntil / Shutdown     │
//	├─────────────────────────────────────────────────────────────────┤
//	│  编解码层    codec.Registry  IfaceCodec（protowire）            │
//	├─────────────────────────────────────────────────────────────────┤
//	│  原生层      eventloop.Loop  原始回调注册与投递                 │
//	└─────────────────────────────────────────────────────────────────┘
//
// # 错误处理
//
// 所有错误都是返回值，可以用 errors.Is 判断类别：
//
//	ErrResourceExhausted  原生注册槽位耗尽
//	ErrQueueFull          分发队列已满
//	ErrTimedOut           等待超时（预期结果）
//	ErrCancelled          等待被关闭或上下文取消
//	ErrInvalidState       在已释放或已关闭的对象上操作
//
// # 文件组织
//
//	evbridge/
//	├── doc.go        # 包文档
//	├── version.go    # 版本信息
//	├── bridge.go     # Bridge 结构、生命周期、组件访问
//	├── options.go    # 配置选项
//	├── errors.go     # 错误定义
//	└── fx.go         # Fx 模块组装
package evbridge
