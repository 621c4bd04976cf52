package core

import (
	"errors"
	"time"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/crawlers"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/media"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
)

// Services 各命令共享的依赖
// 测试中可以替换其中任意一项
type Services struct {
	Config  *Config
	Stop    *crawlers.StopSignal
	Headers *HeaderManager

	Discoverer         URLDiscoverer
	DetailSessions     crawlers.SessionFactory
	ScreenshotSessions crawlers.SessionFactory
	Uploader           crawlers.Uploader // 为nil时截图阶段不可用
	Monitor            *crawlers.ResourceMonitor

	ShowProgress bool
}

// NewServices 按配置创建真实依赖
func NewServices(config *Config, stop *crawlers.StopSignal, headers *HeaderManager, showProgress bool) *Services {
	svc := &Services{
		Config:       config,
		Stop:         stop,
		Headers:      headers,
		ShowProgress: showProgress,
		Monitor: crawlers.NewResourceMonitor(crawlers.ResourceMonitorConfig{
			SessionMemoryMB: int64(config.Scrape.SessionMemoryMB),
		}),
	}

	discoverer := crawlers.NewDiscoverer(config.Scrape, config.CheckpointPath(), headers, headers)
	discoverer.ShowProgress = showProgress
	svc.Discoverer = discoverer

	svc.DetailSessions = crawlers.NewRodSessionFactory(config.DetailSessionConfig(), headers)
	svc.ScreenshotSessions = crawlers.NewRodSessionFactory(config.ScreenshotSessionConfig(), headers)

	uploader, err := media.NewCloudinaryUploader(media.CloudinaryConfig{
		CloudName: config.Cloudinary.CloudName,
		APIKey:    config.Cloudinary.APIKey,
		APISecret: config.Cloudinary.APISecret,
		Folder:    config.Cloudinary.Folder,
	})
	switch {
	case err == nil:
		svc.Uploader = uploader
	case errors.Is(err, media.ErrNotConfigured):
		utils.Debugf("Cloudinary未配置,截图阶段不可用")
	default:
		utils.Warnf("初始化图床失败: %v", err)
	}

	return svc
}

// DetailSessionConfig 详情抓取会话配置: 只等待根节点
func (c *Config) DetailSessionConfig() crawlers.RodSessionConfig {
	return crawlers.RodSessionConfig{
		Headless:     c.Scrape.Headless,
		Stealth:      c.Scrape.Stealth,
		NavTimeout:   c.Scrape.NavTimeoutDuration(),
		ReadyTimeout: c.Scrape.WaitDuration(),
	}
}

// ScreenshotSessionConfig 截图会话配置: 额外等待详情主体
func (c *Config) ScreenshotSessionConfig() crawlers.RodSessionConfig {
	return crawlers.RodSessionConfig{
		Headless:        c.Scrape.Headless,
		Stealth:         c.Scrape.Stealth,
		NavTimeout:      c.Scrape.NavTimeoutDuration(),
		ReadyTimeout:    c.Scrape.WaitDuration(),
		ContentSelector: crawlers.DetailContainerSelector,
		ContentWait:     time.Duration(c.Screenshot.ContentWait) * time.Second,
		JPEGQuality:     c.Screenshot.Quality,
	}
}
