package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/crawlers"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/storage"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
	"github.com/rs/zerolog"
)

// URLDiscoverer 详情页URL来源
type URLDiscoverer interface {
	// Discover 返回发现的URL;停止信号置位时返回已收集的部分
	Discover(stop *crawlers.StopSignal, resume bool) ([]string, error)
}

// PageScraper 用一个会话抓取一个详情页
type PageScraper interface {
	Scrape(ctx context.Context, session crawlers.Session, url string) (*models.Listing, error)
}

// CoordinatorOptions 协调器选项
type CoordinatorOptions struct {
	Config      models.ScrapeConfig
	URLsPath    string // 发现结果JSON
	DetailsPath string // 详情CSV

	Sequential      bool // 单会话顺序抓取
	Fresh           bool // 忽略已有输出,从头抓取
	ResumeDiscovery bool // 发现阶段从检查点继续
	ShowProgress    bool
}

// Coordinator 运行协调器
// 状态: Idle → Discovering → Filtering → Dispatching → Draining → Closed
// 一个协调器只能运行一次
type Coordinator struct {
	opts       CoordinatorOptions
	stop       *crawlers.StopSignal
	discoverer URLDiscoverer
	factory    crawlers.SessionFactory
	scraper    PageScraper
	monitor    *crawlers.ResourceMonitor
	policy     crawlers.RetryPolicy
	logger     zerolog.Logger

	mu    sync.Mutex
	state models.RunState
	used  bool

	// 调度阶段持有的资源,由drain统一释放
	pool      *crawlers.SessionPool
	sink      *storage.CSVSink
	drainOnce sync.Once

	// 统计
	succeeded   atomic.Int64
	failed      atomic.Int64
	abandoned   atomic.Int64
	writeErrors atomic.Int64
	stats       models.RunStats

	failedMu   sync.Mutex
	failedURLs []models.FailedURLInfo
}

// NewCoordinator 创建协调器
// discoverer只在需要发现阶段时使用,可以为nil
func NewCoordinator(opts CoordinatorOptions, stop *crawlers.StopSignal, discoverer URLDiscoverer, factory crawlers.SessionFactory) *Coordinator {
	return &Coordinator{
		opts:       opts,
		stop:       stop,
		discoverer: discoverer,
		factory:    factory,
		scraper:    crawlers.NewListingExtractor(),
		policy:     crawlers.NewRetryPolicy(opts.Config),
		state:      models.StateIdle,
		logger:     utils.Component("coordinator"),
	}
}

// SetScraper 替换详情页抓取器
func (c *Coordinator) SetScraper(scraper PageScraper) {
	c.scraper = scraper
}

// SetRetryPolicy 替换重试策略
func (c *Coordinator) SetRetryPolicy(policy crawlers.RetryPolicy) {
	c.policy = policy
}

// SetResourceMonitor 设置资源监控器,用于限制会话数
func (c *Coordinator) SetResourceMonitor(monitor *crawlers.ResourceMonitor) {
	c.monitor = monitor
}

// State 返回当前状态
func (c *Coordinator) State() models.RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(state models.RunState) {
	c.mu.Lock()
	prev := c.state
	c.state = state
	c.mu.Unlock()
	c.logger.Debug().Str("from", string(prev)).Str("to", string(state)).Msg("协调器状态变更")
}

// RunDiscovery 只执行发现阶段并保存URL列表
func (c *Coordinator) RunDiscovery() (*models.RunReport, error) {
	return c.run("discover", true, false, nil)
}

// RunDetails 对给定URL执行过滤和详情抓取
func (c *Coordinator) RunDetails(urls []string) (*models.RunReport, error) {
	return c.run("details", false, true, urls)
}

// RunFull 发现后直接抓取详情
func (c *Coordinator) RunFull() (*models.RunReport, error) {
	return c.run("full", true, true, nil)
}

// run 执行一次完整的状态流转
// 返回的error只在非用户中断的停止或不可恢复错误时非空;报告总是返回
func (c *Coordinator) run(command string, discover, dispatch bool, urls []string) (*models.RunReport, error) {
	c.mu.Lock()
	if c.used {
		c.mu.Unlock()
		return nil, models.ErrCoordinatorClosed
	}
	c.used = true
	c.mu.Unlock()

	startTime := time.Now()
	report := &models.RunReport{
		RunID:       models.NewRunID(),
		Command:     command,
		StartTime:   startTime,
		OutputFiles: map[string]string{},
		Config:      c.opts.Config,
	}

	utils.Infof("🚀 开始运行 [%s] run_id=%s", command, report.RunID)

	err := c.execute(report, discover, dispatch, urls)

	c.drain()
	c.setState(models.StateClosed)

	c.stats.Succeeded = int(c.succeeded.Load())
	c.stats.Failed = int(c.failed.Load())
	c.stats.Abandoned = int(c.abandoned.Load())
	c.stats.WriteErrors = int(c.writeErrors.Load())
	if c.pool != nil {
		c.stats.SessionReplacements = c.pool.Replacements()
	}
	c.stats.Duration = time.Since(startTime).Seconds()

	report.EndTime = time.Now()
	report.Duration = c.stats.Duration
	report.FinalState = models.StateClosed
	report.Stats = c.stats
	c.failedMu.Lock()
	report.FailedURLs = append([]models.FailedURLInfo(nil), c.failedURLs...)
	c.failedMu.Unlock()

	if reason := c.stop.Reason(); reason != nil {
		report.StopReason = reason.Error()
		if err == nil && !errors.Is(reason, models.ErrInterrupted) {
			err = reason
		}
	}

	utils.Infof("✅ 运行结束 [%s]: 发现 %d, 已处理 %d, 分发 %d, 成功 %d, 失败 %d, 放弃 %d, 写入错误 %d, 耗时 %.2f秒",
		command, c.stats.Discovered, c.stats.AlreadyProcessed, c.stats.Dispatched,
		c.stats.Succeeded, c.stats.Failed, c.stats.Abandoned, c.stats.WriteErrors, c.stats.Duration)

	return report, err
}

// execute 按阶段执行,任何阶段遇到停止信号都直接返回
func (c *Coordinator) execute(report *models.RunReport, discover, dispatch bool, urls []string) error {
	if discover {
		discovered, err := c.discoverURLs()
		if err != nil {
			return err
		}
		urls = discovered
		report.OutputFiles["urls"] = c.opts.URLsPath
		if c.stop.Stopped() {
			return nil
		}
	}

	if !dispatch {
		return nil
	}
	report.OutputFiles["details"] = c.opts.DetailsPath

	pending, err := c.filter(urls)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		utils.Infof("✅ 没有待抓取的URL,全部已处理")
		return nil
	}
	if c.stop.Stopped() {
		c.abandoned.Add(int64(len(pending)))
		return nil
	}

	return c.dispatch(pending)
}

// discoverURLs 发现阶段,结果整体写入JSON(中断时写入部分结果)
func (c *Coordinator) discoverURLs() ([]string, error) {
	c.setState(models.StateDiscovering)
	if c.discoverer == nil {
		return nil, fmt.Errorf("未配置URL发现器")
	}

	urls, err := c.discoverer.Discover(c.stop, c.opts.ResumeDiscovery)
	if err != nil {
		return nil, fmt.Errorf("发现阶段失败: %w", err)
	}
	c.stats.Discovered = len(urls)
	if reporter, ok := c.discoverer.(interface{ Stats() crawlers.DiscoveryStats }); ok {
		ds := reporter.Stats()
		c.stats.PagesFetched = ds.PagesFetched
		c.stats.PagesFailed = ds.PagesFailed
	}

	if c.opts.URLsPath != "" {
		if err := storage.SaveURLList(c.opts.URLsPath, urls); err != nil {
			return urls, fmt.Errorf("保存URL列表失败: %w", err)
		}
	}
	return urls, nil
}

// filter 去掉已在详情CSV中的URL
func (c *Coordinator) filter(urls []string) ([]string, error) {
	c.setState(models.StateFiltering)

	index := storage.EmptyProcessedIndex()
	if !c.opts.Fresh {
		loaded, err := storage.LoadProcessedIndex(c.opts.DetailsPath)
		if err != nil {
			return nil, fmt.Errorf("读取已处理索引失败: %w", err)
		}
		index = loaded
	}

	pending := index.Pending(urls)
	unique := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		unique[u] = struct{}{}
	}
	c.stats.AlreadyProcessed = len(unique) - len(pending)

	utils.Infof("📋 URL总数 %d, 已处理 %d, 待抓取 %d", len(unique), c.stats.AlreadyProcessed, len(pending))
	return pending, nil
}

// dispatch 创建会话池和输出,用N个worker并发抓取
func (c *Coordinator) dispatch(pending []string) error {
	c.setState(models.StateDispatching)
	ctx := c.stop.Context()

	size := c.opts.Config.MaxWorkers
	if c.opts.Sequential {
		size = 1
	}
	if c.monitor != nil {
		size = c.monitor.MaxSessions(size)
	}
	if size > len(pending) {
		size = len(pending)
	}

	sink, err := storage.OpenCSVSink(c.opts.DetailsPath, !c.opts.Fresh)
	if err != nil {
		return err
	}
	c.sink = sink

	pool, err := crawlers.NewSessionPool(ctx, size, c.factory)
	if err != nil {
		if ctx.Err() != nil {
			c.abandoned.Add(int64(len(pending)))
			return nil
		}
		return err
	}
	c.pool = pool
	workers := pool.Capacity()

	utils.Infof("🧵 开始抓取详情: %d 个URL, %d 个worker", len(pending), workers)
	bar := utils.NewProgressBar(len(pending), "详情页", c.opts.ShowProgress)

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for url := range jobs {
				c.process(ctx, url)
				_ = bar.Add(1)
			}
		}()
	}

	dispatched := 0
feed:
	for _, url := range pending {
		if c.stop.Stopped() {
			break
		}
		select {
		case jobs <- url:
			dispatched++
		case <-c.stop.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	_ = bar.Finish()

	c.stats.Dispatched = dispatched
	if notStarted := len(pending) - dispatched; notStarted > 0 {
		c.abandoned.Add(int64(notStarted))
		utils.Warnf("停止信号已置位,放弃 %d 个未开始的URL", notStarted)
	}
	return nil
}

// process 一个URL: 借会话 → 带重试抓取 → 归还/销毁会话 → 写入
func (c *Coordinator) process(ctx context.Context, url string) {
	listing, err := crawlers.Retry(ctx, c.policy, url, func(ctx context.Context, attempt int) (*models.Listing, error) {
		return crawlers.WithSession(ctx, c.pool, func(s crawlers.Session) (*models.Listing, error) {
			return c.scraper.Scrape(ctx, s, url)
		})
	})

	switch {
	case err == nil:
		if werr := c.sink.Write(listing); werr != nil {
			c.writeErrors.Add(1)
			c.logger.Error().Err(werr).Str("url", url).Msg("写入记录失败,继续")
			return
		}
		c.succeeded.Add(1)
		c.logger.Debug().Str("url", url).Str("property_id", models.Deref(listing.PropertyID)).Msg("记录已写入")

	case errors.Is(err, models.ErrCancelled), errors.Is(err, models.ErrPoolClosed):
		c.abandoned.Add(1)

	case errors.Is(err, models.ErrNoSessions):
		c.failed.Add(1)
		c.recordFailure(url, "no_sessions", err)
		c.stop.Stop(err)

	default:
		c.failed.Add(1)
		c.recordFailure(url, "retries_exhausted", err)
		c.logger.Error().Err(err).Str("url", url).Msg("详情页抓取失败,跳过")
	}
}

func (c *Coordinator) recordFailure(url, errType string, err error) {
	c.failedMu.Lock()
	defer c.failedMu.Unlock()
	c.failedURLs = append(c.failedURLs, models.FailedURLInfo{URL: url, ErrorType: errType, ErrorMsg: err.Error()})
}

// drain 关闭输出和会话池,只执行一次
func (c *Coordinator) drain() {
	c.drainOnce.Do(func() {
		c.setState(models.StateDraining)
		if c.sink != nil {
			if err := c.sink.Close(); err != nil {
				utils.Errorf("关闭输出文件失败: %v", err)
			} else {
				utils.Infof("💾 已写入 %d 条记录: %s", c.sink.Rows(), c.sink.Path())
			}
		}
		if c.pool != nil {
			_ = c.pool.CloseAll()
		}
	})
}
