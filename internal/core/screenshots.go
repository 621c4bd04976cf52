package core

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/crawlers"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/media"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/storage"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
)

// ScreenshotOptions 截图阶段选项
type ScreenshotOptions struct {
	// FailedCSV 非空时只重试该失败记录中的URL,映射以追加方式写入
	FailedCSV string
}

// RunScreenshots 对URL列表逐个截图上传
// 普通模式读取发现阶段的URL列表并重写映射;重试模式读取失败记录并追加
func RunScreenshots(svc *Services, opts ScreenshotOptions) (*models.RunReport, error) {
	cfg := svc.Config
	startTime := time.Now()
	report := &models.RunReport{
		RunID:       models.NewRunID(),
		Command:     "screenshots",
		StartTime:   startTime,
		OutputFiles: map[string]string{"image_map": cfg.ImageMapPath()},
		Config:      cfg.Scrape,
	}

	if svc.Uploader == nil {
		return nil, media.ErrNotConfigured
	}

	retry := opts.FailedCSV != ""
	var (
		urls []string
		err  error
	)
	if retry {
		urls, err = storage.ReadFailedURLs(opts.FailedCSV)
		if err != nil {
			return nil, fmt.Errorf("读取失败记录失败 [%s]: %w", opts.FailedCSV, err)
		}
		utils.Infof("🔁 重试 %d 个失败的截图", len(urls))
	} else {
		urls, err = storage.LoadURLList(cfg.URLsPath())
		if err != nil {
			return nil, fmt.Errorf("读取URL列表失败: %w", err)
		}
	}

	finish := func() {
		report.EndTime = time.Now()
		report.Duration = time.Since(startTime).Seconds()
		report.Stats.Duration = report.Duration
		report.FinalState = models.StateClosed
		if reason := svc.Stop.Reason(); reason != nil {
			report.StopReason = reason.Error()
		}
	}

	if len(urls) == 0 {
		utils.Infof("没有需要截图的URL")
		finish()
		return report, nil
	}

	size := cfg.Screenshot.Concurrency
	if svc.Monitor != nil {
		size = svc.Monitor.MaxSessions(size)
	}
	if size > len(urls) {
		size = len(urls)
	}

	// 已被中断: 不建会话池,全部URL计为放弃,失败记录保持原样
	abandonAll := func() (*models.RunReport, error) {
		report.Stats.Discovered = len(urls)
		report.Stats.Abandoned = len(urls)
		finish()
		utils.Warnf("⏹️ 截图阶段在开始前被中断,放弃 %d 个URL", len(urls))
		if reason := svc.Stop.Reason(); reason != nil && !errors.Is(reason, models.ErrInterrupted) {
			return report, reason
		}
		return report, nil
	}
	if svc.Stop.Stopped() {
		return abandonAll()
	}

	imageMap, err := storage.OpenImageMap(cfg.ImageMapPath(), retry)
	if err != nil {
		return nil, err
	}

	pool, err := crawlers.NewSessionPool(svc.Stop.Context(), size, svc.ScreenshotSessions)
	if err != nil {
		_ = imageMap.Close()
		if svc.Stop.Stopped() {
			return abandonAll()
		}
		return nil, err
	}

	runner := crawlers.NewScreenshotUploader(pool, svc.Uploader, cfg.ScreenshotDir(), pool.Capacity(), crawlers.NewRetryPolicy(cfg.Scrape))
	runner.ShowProgress = svc.ShowProgress
	stats, failures, runErr := runner.Run(svc.Stop, urls, imageMap)

	if err := imageMap.Close(); err != nil {
		utils.Errorf("关闭截图映射失败: %v", err)
	}
	_ = pool.CloseAll()

	failuresPath := storage.FailuresPath(cfg.ImageMapPath())
	// 中断时未处理的URL也写入失败记录,下次可以用重试模式接着跑
	remaining := append([]models.ScreenshotFailure(nil), failures...)
	for _, url := range stats.Pending {
		remaining = append(remaining, models.ScreenshotFailure{URL: url, Reason: models.ReasonAbandoned})
	}
	if len(remaining) > 0 {
		if err := storage.WriteFailures(failuresPath, remaining); err != nil {
			utils.Errorf("保存失败记录失败: %v", err)
		} else {
			utils.Warnf("%d 个截图失败, %d 个未处理,已保存到: %s", len(failures), len(stats.Pending), failuresPath)
			report.OutputFiles["failures"] = failuresPath
		}
	} else if !svc.Stop.Stopped() && (!retry || opts.FailedCSV == failuresPath) {
		// 没有失败,清除上一次的失败记录
		if err := os.Remove(failuresPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			utils.Warnf("删除失败记录失败: %v", err)
		}
	}

	report.Stats.Discovered = stats.Total
	report.Stats.Dispatched = stats.Succeeded + stats.Failed
	report.Stats.Succeeded = stats.Succeeded
	report.Stats.Failed = stats.Failed
	report.Stats.Abandoned = stats.Abandoned
	report.Stats.SessionReplacements = pool.Replacements()
	for _, f := range failures {
		report.FailedURLs = append(report.FailedURLs, models.FailedURLInfo{URL: f.URL, ErrorType: f.Reason, ErrorMsg: "property_id=" + f.PropertyID})
	}
	finish()

	if runErr != nil {
		return report, runErr
	}
	if reason := svc.Stop.Reason(); reason != nil && !errors.Is(reason, models.ErrInterrupted) {
		return report, reason
	}
	return report, nil
}
