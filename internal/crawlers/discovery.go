package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// PropertyCardSelector 列表页上指向详情页的卡片链接
const PropertyCardSelector = `a[data-role="property-card"]`

// DiscoveryStats 发现阶段统计
type DiscoveryStats struct {
	PagesFetched int // 成功抓取的列表页数
	PagesFailed  int // 重试耗尽的列表页数
	Discovered   int // 唯一URL数
}

// Discoverer 列表页发现器(使用Colly)
// 按顺序抓取 1..TotalPages 页,收集详情页链接
type Discoverer struct {
	collector      *colly.Collector
	config         models.ScrapeConfig
	checkpointPath string

	// HTTP头部提供者
	headerProvider models.HeaderProvider
	userAgent      models.UserAgentProvider

	// 列表页请求限速
	limiter *rate.Limiter

	policy RetryPolicy

	// ShowProgress 是否显示进度条
	ShowProgress bool

	stats DiscoveryStats
}

// NewDiscoverer 创建列表页发现器
// checkpointPath为空时不保存检查点
func NewDiscoverer(config models.ScrapeConfig, checkpointPath string, headerProvider models.HeaderProvider, userAgent models.UserAgentProvider) *Discoverer {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(config.NavTimeoutDuration())
	c.WithTransport(&http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	})

	limit := rate.Inf
	if config.RequestInterval > 0 {
		limit = rate.Every(time.Duration(config.RequestInterval) * time.Millisecond)
	}

	utils.Debugf("发现器: 超时=%v, 请求间隔=%dms", config.NavTimeoutDuration(), config.RequestInterval)

	return &Discoverer{
		collector:      c,
		config:         config,
		checkpointPath: checkpointPath,
		headerProvider: headerProvider,
		userAgent:      userAgent,
		limiter:        rate.NewLimiter(limit, 1),
		policy:         NewRetryPolicy(config),
	}
}

// SetRetryPolicy 替换重试策略
func (d *Discoverer) SetRetryPolicy(policy RetryPolicy) {
	d.policy = policy
}

// Stats 返回发现统计
func (d *Discoverer) Stats() DiscoveryStats {
	return d.stats
}

// FetchPage 抓取一个列表页并返回其中的详情页链接
// HTTP状态码>=400、响应体为空、页面上没有卡片链接都视为失败
func (d *Discoverer) FetchPage(ctx context.Context, page int) ([]string, error) {
	pageURL := d.config.PageURL(page)

	// 每次抓取克隆collector,回调互不干扰
	c := d.collector.Clone()
	c.Context = ctx

	var (
		links     []string
		status    int
		emptyBody bool
		decodeErr error
	)

	c.OnRequest(func(r *colly.Request) {
		if d.headerProvider != nil {
			headers, err := d.headerProvider.GetHeaders()
			if err != nil {
				utils.Warnf("获取HTTP头部失败: %v", err)
			} else {
				for name, values := range headers {
					if len(values) > 0 {
						r.Headers.Set(name, values[0])
					}
				}
			}
		}
		if d.userAgent != nil {
			r.Headers.Set("User-Agent", d.userAgent.RandomUserAgent())
		}
		utils.Debugf("访问: %s", r.URL.String())
	})

	// 解压在解析HTML之前完成,OnHTML看到的是解压后的body
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		if encoding := r.Headers.Get("Content-Encoding"); encoding != "" {
			decoded, err := DecodeBody(encoding, r.Body)
			if err != nil {
				decodeErr = err
				utils.Warnf("解压响应失败 [%s] (编码=%s): %v", pageURL, encoding, err)
			} else {
				r.Body = decoded
			}
		}
		if len(r.Body) == 0 {
			emptyBody = true
		}
	})

	c.OnHTML(PropertyCardSelector, func(e *colly.HTMLElement) {
		href := e.Attr("href")
		if href == "" {
			return
		}
		if link := e.Request.AbsoluteURL(href); link != "" {
			links = append(links, link)
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(pageURL); err != nil {
		if ctx.Err() != nil {
			return nil, models.ErrCancelled
		}
		if status >= 400 {
			return nil, fmt.Errorf("%w: 第%d页 HTTP %d", models.ErrHTTPStatus, page, status)
		}
		return nil, fmt.Errorf("抓取第%d页失败: %w", page, err)
	}

	if emptyBody {
		return nil, fmt.Errorf("%w: 第%d页响应体为空", models.ErrEmptyPage, page)
	}
	if len(links) == 0 {
		if decodeErr != nil {
			return nil, fmt.Errorf("第%d页解压失败: %w", page, decodeErr)
		}
		return nil, fmt.Errorf("%w: 第%d页没有房源卡片", models.ErrEmptyPage, page)
	}

	utils.Debugf("第%d页提取到 %d 个链接", page, len(links))
	return links, nil
}

// Discover 顺序抓取所有列表页,返回排序后的唯一URL
// 停止信号置位时返回已收集的部分结果;resume为true时从检查点继续
func (d *Discoverer) Discover(stop *StopSignal, resume bool) ([]string, error) {
	ctx := stop.Context()
	startTime := time.Now()

	host := ""
	if parsed, err := url.Parse(d.config.BaseURL); err == nil {
		host = parsed.Hostname()
	}
	set := NewURLSet(host)

	checkpoint := &models.DiscoveryCheckpoint{
		RunID:      models.NewRunID(),
		BaseURL:    d.config.BaseURL,
		NextPage:   1,
		TotalPages: d.config.TotalPages,
	}
	if resume {
		if cp := d.loadCheckpoint(); cp != nil {
			checkpoint = cp
			checkpoint.TotalPages = d.config.TotalPages
			set.AddAll(cp.URLs)
		}
	}

	startPage := checkpoint.NextPage
	utils.Infof("🔍 开始发现详情页链接: 第%d-%d页", startPage, d.config.TotalPages)

	bar := utils.NewProgressBar(d.config.TotalPages, "列表页", d.ShowProgress)
	_ = bar.Set(startPage - 1)

	tracker := NewFailureTracker(d.config.FailureThreshold, stop)
	fetchedSinceSave := 0

	for page := startPage; page <= d.config.TotalPages; page++ {
		if stop.Stopped() {
			break
		}

		label := fmt.Sprintf("列表页 %d", page)
		links, err := Retry(ctx, d.policy, label, func(ctx context.Context, attempt int) ([]string, error) {
			if err := d.limiter.Wait(ctx); err != nil {
				return nil, models.ErrCancelled
			}
			return d.FetchPage(ctx, page)
		})

		if errors.Is(err, models.ErrCancelled) {
			// 本页未完成,检查点保持指向本页
			break
		}

		checkpoint.NextPage = page + 1
		_ = bar.Add(1)

		if err != nil {
			d.stats.PagesFailed++
			checkpoint.FailedPages = append(checkpoint.FailedPages, page)
			utils.Errorf("第%d页重试耗尽,跳过: %v", page, err)
			if tracker.RecordFailure(err) {
				break
			}
			continue
		}

		tracker.RecordSuccess()
		d.stats.PagesFetched++
		added := set.AddAll(links)
		utils.Debugf("第%d页新增 %d 个链接,累计 %d", page, added, set.Len())

		fetchedSinceSave++
		if fetchedSinceSave >= d.config.CheckpointEvery {
			checkpoint.URLs = set.Sorted()
			d.saveCheckpoint(checkpoint)
			fetchedSinceSave = 0
		}
	}
	_ = bar.Finish()

	urls := set.Sorted()
	d.stats.Discovered = len(urls)

	if checkpoint.NextPage > d.config.TotalPages && !stop.Stopped() {
		d.removeCheckpoint()
	} else {
		checkpoint.URLs = urls
		d.saveCheckpoint(checkpoint)
	}

	utils.Infof("✅ 发现完成: %d 个唯一链接, 成功 %d 页, 失败 %d 页, 耗时 %.2f秒",
		len(urls), d.stats.PagesFetched, d.stats.PagesFailed, time.Since(startTime).Seconds())

	return urls, nil
}

// loadCheckpoint 加载检查点,站点不一致或文件不存在时返回nil
func (d *Discoverer) loadCheckpoint() *models.DiscoveryCheckpoint {
	if d.checkpointPath == "" {
		return nil
	}
	cp, err := models.LoadCheckpointFromFile(d.checkpointPath)
	if err != nil {
		if !os.IsNotExist(err) {
			utils.Warnf("读取检查点失败,从第1页开始: %v", err)
		}
		return nil
	}
	if cp.BaseURL != d.config.BaseURL {
		utils.Warnf("检查点站点不一致(%s),从第1页开始", cp.BaseURL)
		return nil
	}
	utils.Infof("📂 从检查点恢复: 第%d页起, 已有 %d 个链接", cp.NextPage, len(cp.URLs))
	return cp
}

func (d *Discoverer) saveCheckpoint(cp *models.DiscoveryCheckpoint) {
	if d.checkpointPath == "" {
		return
	}
	if err := cp.SaveToFile(d.checkpointPath); err != nil {
		utils.Warnf("保存检查点失败: %v", err)
		return
	}
	utils.Debugf("检查点已保存: 下一页=%d, 链接=%d", cp.NextPage, len(cp.URLs))
}

func (d *Discoverer) removeCheckpoint() {
	if d.checkpointPath == "" {
		return
	}
	if err := os.Remove(d.checkpointPath); err != nil && !os.IsNotExist(err) {
		utils.Warnf("删除检查点失败: %v", err)
	}
}
