package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// DetailContainerSelector 详情页主体容器
const DetailContainerSelector = "#container-property"

// Session 一个可控的无头浏览器会话
// 原始浏览器句柄不会离开实现本身
type Session interface {
	// ID 会话编号(用于日志)
	ID() int

	// Render 导航到url,等待页面就绪后返回渲染后的HTML
	// 根节点等待超时返回ErrNavigationTimeout;会话失联返回ErrSessionCrashed
	Render(ctx context.Context, url string) (string, error)

	// Screenshot 对当前页面整页截图(JPEG)
	Screenshot(ctx context.Context) ([]byte, error)

	// Close 销毁会话,可重复调用
	Close() error
}

// SessionFactory 会话工厂
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// RodSessionConfig rod会话配置
type RodSessionConfig struct {
	Headless        bool          // 无头模式
	Stealth         bool          // 每次导航前注入go-rod/stealth脚本
	NavTimeout      time.Duration // 导航超时
	ReadyTimeout    time.Duration // 根节点等待超时
	ContentSelector string        // 尽力等待的主体选择器,为空则不等待
	ContentWait     time.Duration // 主体等待时间
	JPEGQuality     int           // 截图质量
}

// RodSessionFactory 基于go-rod的会话工厂
// 每个会话独占一个Chromium进程
type RodSessionFactory struct {
	config    RodSessionConfig
	userAgent models.UserAgentProvider
	mu        sync.Mutex
	nextID    int
}

// NewRodSessionFactory 创建rod会话工厂
func NewRodSessionFactory(config RodSessionConfig, userAgent models.UserAgentProvider) *RodSessionFactory {
	if config.NavTimeout <= 0 {
		config.NavTimeout = 30 * time.Second
	}
	if config.ReadyTimeout <= 0 {
		config.ReadyTimeout = 5 * time.Second
	}
	if config.JPEGQuality <= 0 {
		config.JPEGQuality = 70
	}
	return &RodSessionFactory{config: config, userAgent: userAgent}
}

// NewSession 启动浏览器并打开一个标签页
func (f *RodSessionFactory) NewSession(ctx context.Context) (Session, error) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	l := launcher.New().
		Headless(f.config.Headless).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage")

	controlURL, err := l.Context(ctx).Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("创建标签页失败: %w", err)
	}

	if f.config.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			utils.Warnf("会话#%d 注入反检测脚本失败: %v", id, err)
		}
	}

	if f.userAgent != nil {
		ua := f.userAgent.RandomUserAgent()
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			utils.Warnf("会话#%d 设置User-Agent失败: %v", id, err)
		}
	}

	utils.Debugf("会话#%d 浏览器已启动: %s", id, controlURL)
	return &rodSession{
		id:       id,
		config:   f.config,
		launcher: l,
		browser:  browser,
		page:     page,
	}, nil
}

// rodSession 基于go-rod的浏览器会话
type rodSession struct {
	id        int
	config    RodSessionConfig
	launcher  *launcher.Launcher
	browser   *rod.Browser
	page      *rod.Page
	closeOnce sync.Once
	closeErr  error
}

func (s *rodSession) ID() int {
	return s.id
}

// Render 导航并返回渲染后的HTML
func (s *rodSession) Render(ctx context.Context, url string) (html string, err error) {
	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("会话#%d 浏览器操作panic [%s]: %v", s.id, url, r)
			err = fmt.Errorf("%w: %v", models.ErrSessionCrashed, r)
		}
	}()

	page := s.page.Context(ctx)

	if err := page.Timeout(s.config.NavTimeout).Navigate(url); err != nil {
		return "", s.classify(ctx, "导航失败", err)
	}

	// 根节点是硬性就绪条件
	if _, err := page.Timeout(s.config.ReadyTimeout).Element("body"); err != nil {
		if ctx.Err() != nil {
			return "", models.ErrCancelled
		}
		if !s.alive() {
			return "", fmt.Errorf("%w: %v", models.ErrSessionCrashed, err)
		}
		return "", fmt.Errorf("%w [%s]: %v", models.ErrNavigationTimeout, url, err)
	}

	// 主体容器只是尽力等待,字段缺失由提取器处理
	if s.config.ContentSelector != "" && s.config.ContentWait > 0 {
		if _, err := page.Timeout(s.config.ContentWait).Element(s.config.ContentSelector); err != nil {
			utils.Debugf("会话#%d 未等到主体容器 %s [%s]", s.id, s.config.ContentSelector, url)
		}
	}

	html, err = page.HTML()
	if err != nil {
		return "", s.classify(ctx, "读取HTML失败", err)
	}
	return html, nil
}

// Screenshot 整页JPEG截图
func (s *rodSession) Screenshot(ctx context.Context) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", models.ErrSessionCrashed, r)
		}
	}()

	quality := s.config.JPEGQuality
	data, err = s.page.Context(ctx).Timeout(s.config.NavTimeout).Screenshot(true, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: &quality,
	})
	if err != nil {
		return nil, s.classify(ctx, "截图失败", err)
	}
	return data, nil
}

// classify 将rod错误归类为取消、崩溃或普通失败
func (s *rodSession) classify(ctx context.Context, action string, err error) error {
	if ctx.Err() != nil {
		return models.ErrCancelled
	}
	if !s.alive() {
		return fmt.Errorf("%w: %s: %v", models.ErrSessionCrashed, action, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", models.ErrNavigationTimeout, action, err)
	}
	return fmt.Errorf("%s: %w", action, err)
}

// alive 通过CDP查询浏览器版本判断进程是否还活着
func (s *rodSession) alive() bool {
	_, err := proto.BrowserGetVersion{}.Call(s.browser.Timeout(3 * time.Second))
	return err == nil
}

// Close 关闭浏览器进程
func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.browser.Close()
		s.launcher.Kill()
		s.launcher.Cleanup()
		utils.Debugf("会话#%d 浏览器已关闭", s.id)
	})
	return s.closeErr
}
