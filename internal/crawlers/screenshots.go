package crawlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
	"golang.org/x/sync/errgroup"
)

// Uploader 图床上传接口
type Uploader interface {
	// Upload 上传本地文件,返回可公开访问的地址
	Upload(ctx context.Context, filePath string, id string) (string, error)
}

// ImageMapSink 截图映射输出
type ImageMapSink interface {
	Write(entry models.ImageMapEntry) error
}

// unsafeFilename 房源编号中不能出现在文件名里的字符
var unsafeFilename = regexp.MustCompile(`[^\p{L}\p{N}_.-]+`)

// ScreenshotStats 截图上传统计
type ScreenshotStats struct {
	Total     int
	Succeeded int
	Failed    int
	Abandoned int

	// Pending 未开始或被中断放弃的URL,保持输入顺序
	Pending []string
}

// ScreenshotUploader 详情页截图并上传
// 每个URL: 渲染 → 读取房源编号 → 整页截图 → 保存到本地 → 上传 → 删除本地文件 → 写入映射
type ScreenshotUploader struct {
	pool      *SessionPool
	extractor *ListingExtractor
	uploader  Uploader
	dir       string

	concurrency int
	policy      RetryPolicy

	// ShowProgress 是否显示进度条
	ShowProgress bool

	mu       sync.Mutex
	failures []models.ScreenshotFailure
}

// NewScreenshotUploader 创建截图上传器
// concurrency为同时处理的URL数,不超过会话池容量时才有意义
func NewScreenshotUploader(pool *SessionPool, uploader Uploader, dir string, concurrency int, policy RetryPolicy) *ScreenshotUploader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ScreenshotUploader{
		pool:        pool,
		extractor:   NewListingExtractor(),
		uploader:    uploader,
		dir:         dir,
		concurrency: concurrency,
		policy:      policy,
	}
}

// capture 一次截图尝试的结果
type capture struct {
	propertyID string
	data       []byte
}

// Run 处理所有URL,返回统计和失败记录
// 停止信号置位后不再开始新的URL
func (u *ScreenshotUploader) Run(stop *StopSignal, urls []string, sink ImageMapSink) (ScreenshotStats, []models.ScreenshotFailure, error) {
	stats := ScreenshotStats{Total: len(urls)}
	if len(urls) == 0 {
		return stats, nil, nil
	}

	if err := os.MkdirAll(u.dir, 0755); err != nil {
		return stats, nil, fmt.Errorf("创建截图目录失败: %w", err)
	}

	ctx := stop.Context()
	bar := utils.NewProgressBar(len(urls), "截图上传", u.ShowProgress)

	var succeeded, failed atomic.Int64
	// settled[i]为true表示第i个URL已有结果(成功或失败)
	settled := make([]bool, len(urls))
	g := new(errgroup.Group)
	g.SetLimit(u.concurrency)

	dispatched := 0
	for i, url := range urls {
		if stop.Stopped() {
			break
		}
		dispatched++
		g.Go(func() error {
			defer bar.Add(1)
			switch u.processOne(ctx, url, sink) {
			case outcomeSucceeded:
				succeeded.Add(1)
				settled[i] = true
			case outcomeFailed:
				failed.Add(1)
				settled[i] = true
			case outcomeNoSessions:
				failed.Add(1)
				settled[i] = true
				stop.Stop(models.ErrNoSessions)
			}
			return nil
		})
	}
	_ = g.Wait()
	_ = bar.Finish()

	for i, url := range urls {
		if !settled[i] {
			stats.Pending = append(stats.Pending, url)
		}
	}

	stats.Succeeded = int(succeeded.Load())
	stats.Failed = int(failed.Load())
	stats.Abandoned = stats.Total - stats.Succeeded - stats.Failed

	u.mu.Lock()
	failures := append([]models.ScreenshotFailure(nil), u.failures...)
	u.mu.Unlock()

	utils.Infof("📸 截图上传完成: 成功 %d, 失败 %d, 放弃 %d (已分发 %d)",
		stats.Succeeded, stats.Failed, stats.Abandoned, dispatched)
	return stats, failures, nil
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeFailed
	outcomeAbandoned
	outcomeNoSessions
)

// processOne 处理单个URL
func (u *ScreenshotUploader) processOne(ctx context.Context, url string, sink ImageMapSink) outcome {
	shot, err := Retry(ctx, u.policy, url, func(ctx context.Context, attempt int) (capture, error) {
		return WithSession(ctx, u.pool, func(s Session) (capture, error) {
			return u.captureOne(ctx, s, url)
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrCancelled), errors.Is(err, models.ErrPoolClosed):
			return outcomeAbandoned
		case errors.Is(err, models.ErrNoSessions):
			u.recordFailure(url, "", models.ReasonScreenshotFailed)
			return outcomeNoSessions
		}
		utils.Errorf("截图失败 [%s]: %v", url, err)
		u.recordFailure(url, "", models.ReasonScreenshotFailed)
		return outcomeFailed
	}

	localPath := filepath.Join(u.dir, unsafeFilename.ReplaceAllString(shot.propertyID, "_")+".jpeg")
	if err := os.WriteFile(localPath, shot.data, 0644); err != nil {
		utils.Errorf("保存截图失败 [%s]: %v", shot.propertyID, err)
		u.recordFailure(url, shot.propertyID, models.ReasonScreenshotFailed)
		return outcomeFailed
	}

	imageURL, err := Retry(ctx, u.policy, "上传 "+shot.propertyID, func(ctx context.Context, attempt int) (string, error) {
		return u.uploader.Upload(ctx, localPath, shot.propertyID)
	})
	if rmErr := os.Remove(localPath); rmErr != nil && !os.IsNotExist(rmErr) {
		utils.Warnf("删除本地截图失败 [%s]: %v", localPath, rmErr)
	}
	if err != nil {
		if errors.Is(err, models.ErrCancelled) {
			return outcomeAbandoned
		}
		utils.Errorf("上传失败 [%s]: %v", shot.propertyID, err)
		u.recordFailure(url, shot.propertyID, models.ReasonUploadFailed)
		return outcomeFailed
	}

	if err := sink.Write(models.ImageMapEntry{PropertyID: shot.propertyID, ScreenshotURL: imageURL}); err != nil {
		utils.Errorf("写入截图映射失败 [%s]: %v", shot.propertyID, err)
		u.recordFailure(url, shot.propertyID, models.ReasonUploadFailed)
		return outcomeFailed
	}

	utils.Debugf("截图已上传: %s -> %s", shot.propertyID, imageURL)
	return outcomeSucceeded
}

// captureOne 渲染页面,读取房源编号并截图
func (u *ScreenshotUploader) captureOne(ctx context.Context, s Session, url string) (capture, error) {
	html, err := s.Render(ctx, url)
	if err != nil {
		return capture{}, err
	}

	id := u.extractor.PropertyID(html)
	if id == "" {
		return capture{}, fmt.Errorf("%w: 未找到房源编号 [%s]", models.ErrEmptyPage, url)
	}

	data, err := s.Screenshot(ctx)
	if err != nil {
		return capture{}, err
	}
	if len(data) == 0 {
		return capture{}, fmt.Errorf("截图为空 [%s]", url)
	}
	return capture{propertyID: id, data: data}, nil
}

func (u *ScreenshotUploader) recordFailure(url, propertyID, reason string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failures = append(u.failures, models.ScreenshotFailure{URL: url, PropertyID: propertyID, Reason: reason})
}
