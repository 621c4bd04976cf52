// Package crawlers 提供房源列表发现、详情页渲染提取和截图上传功能
//
// # 概述
//
// crawlers包实现了固定容量的浏览器会话池,列表页使用Colly静态抓取,
// 详情页使用go-rod渲染。所有阻塞操作都观察同一个停止信号(StopSignal)。
//
// # 核心组件
//
// ## Discoverer
//
// 基于Colly的列表页发现器,按顺序抓取 1..TotalPages 页并收集
// a[data-role="property-card"] 的链接。列表页请求经过 rate.Limiter 限速,
// 每个请求随机选择一个User-Agent。
//
//	d := NewDiscoverer(config, checkpointPath, headerProvider, userAgentProvider)
//	urls, err := d.Discover(stop, resume)
//
// 连续3个列表页重试耗尽后以 ErrSiteUnavailable 置位停止信号,之后的页不再请求。
// 每隔 CheckpointEvery 页保存一次检查点,--resume 时从检查点继续。
//
// ## SessionPool (会话池)
//
// 管理浏览器会话的生命周期,容量在创建时确定:
//   - Acquire 在停止信号置位后返回 ErrCancelled
//   - 崩溃的会话由 Discard 销毁并立即补充,补充失败时容量减一
//   - 容量降到0时 Acquire 返回 ErrNoSessions
//   - CloseAll 可重复调用
//
// 使用示例:
//
//	pool, err := NewSessionPool(ctx, size, factory)
//	defer pool.CloseAll()
//
//	listing, err := WithSession(ctx, pool, func(s Session) (*models.Listing, error) {
//	    return extractor.Scrape(ctx, s, url)
//	})
//
// ## ListingExtractor (详情页提取器)
//
// 从渲染后的HTML提取11个字段,每个字段独立提取,一个字段失败只会让该字段为空。
// CSS定位使用goquery,XPath定位使用htmlquery,城市和区从BreadcrumbList的ld+json读取。
//
// ## Retry
//
// 有界重试: 最多 MaxRetries 次尝试,两次尝试之间固定间隔 RetryDelay。
// 停止信号置位、ErrNoSessions、ErrPoolClosed 不重试。
//
// ## ScreenshotUploader
//
// 详情页整页截图(JPEG),以房源编号为名上传到图床并写入截图映射。
// 失败记录按 screenshot_failed / upload_failed 分类,可用 --failed-csv 重试。
//
// ## ResourceMonitor (资源监控器)
//
// 根据可用内存和CPU核数限制会话数,每个Chromium按 SessionMemoryMB 估算:
//
//	monitor := NewResourceMonitor(ResourceMonitorConfig{SessionMemoryMB: 300})
//	size := monitor.MaxSessions(config.MaxWorkers)
//
// # 并发安全
//
//   - SessionPool: channel + sync.Mutex
//   - StopSignal: context取消 + 原因只记录第一次
//   - URLSet: sync.RWMutex
//   - Discoverer: 单goroutine顺序抓取,不需要加锁
//
// # 错误处理
//
//   - 导航超时: ErrNavigationTimeout,可重试
//   - 会话失联或panic: ErrSessionCrashed,销毁会话后重试
//   - 页面没有任何字段: ErrEmptyPage,可重试
//   - 停止: ErrCancelled,不重试,计入放弃
package crawlers
