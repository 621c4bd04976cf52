package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/crawlers"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
)

type stubSession struct {
	id     int
	closed atomic.Bool
}

func (s *stubSession) ID() int { return s.id }

// Render 返回一个带标题和房源编号的最小详情页,编号取URL最后一个字符
func (s *stubSession) Render(ctx context.Context, url string) (string, error) {
	if ctx.Err() != nil {
		return "", models.ErrCancelled
	}
	id := "OH-" + url[len(url)-1:]
	return `<html><body><h1 id="detail_title">Bán nhà mặt phố Kim Mã, Q. Ba Đình</h1>
	<div id="container-property"><div></div><div></div><div></div><div></div>
	<div><div class="flex cursor-pointer"><p>` + id + `</p></div></div></div></body></html>`, nil
}

func (s *stubSession) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("jpeg"), nil
}

func (s *stubSession) Close() error {
	s.closed.Store(true)
	return nil
}

// stubFactory 创建stubSession,broken为true时全部失败
type stubFactory struct {
	broken  bool
	created atomic.Int32
}

func (f *stubFactory) NewSession(ctx context.Context) (crawlers.Session, error) {
	if f.broken {
		return nil, errors.New("chromium not found")
	}
	return &stubSession{id: int(f.created.Add(1))}, nil
}

// scraperFunc 函数适配为PageScraper
type scraperFunc func(ctx context.Context, session crawlers.Session, url string) (*models.Listing, error)

func (f scraperFunc) Scrape(ctx context.Context, session crawlers.Session, url string) (*models.Listing, error) {
	return f(ctx, session, url)
}

// countingScraper 为每个URL生成一条记录并统计调用次数
type countingScraper struct {
	mu    sync.Mutex
	calls map[string]int
}

func (s *countingScraper) Scrape(ctx context.Context, session crawlers.Session, url string) (*models.Listing, error) {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[url]++
	s.mu.Unlock()
	return &models.Listing{
		PropertyURL:  models.StringPtr(url),
		PropertyID:   models.StringPtr("OH-" + url[len(url)-1:]),
		ListingTitle: models.StringPtr("Nhà phố " + url[len(url)-1:]),
	}, nil
}

func (s *countingScraper) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// stubDiscoverer 返回固定URL,stopWith非空时先置位停止信号
type stubDiscoverer struct {
	urls     []string
	stopWith error
	err      error
}

func (d *stubDiscoverer) Discover(stop *crawlers.StopSignal, resume bool) ([]string, error) {
	if d.stopWith != nil {
		stop.Stop(d.stopWith)
	}
	return d.urls, d.err
}

func instantRetry(attempts int) crawlers.RetryPolicy {
	return crawlers.RetryPolicy{
		MaxAttempts: attempts,
		Delay:       time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			return ctx.Err()
		},
	}
}

// stubUploader 上传总是成功,failIDs中的编号失败
type stubUploader struct {
	mu      sync.Mutex
	failIDs map[string]bool
	ids     []string
}

func (u *stubUploader) Upload(ctx context.Context, filePath string, id string) (string, error) {
	if u.failIDs[id] {
		return "", errors.New("upload rejected")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ids = append(u.ids, id)
	return "https://res.cloudinary.com/demo/" + id + ".jpg", nil
}

// stoppingFactory 创建的会话在渲染时置位停止信号,模拟运行中按下Ctrl+C
type stoppingFactory struct {
	stop *crawlers.StopSignal
}

func (f *stoppingFactory) NewSession(ctx context.Context) (crawlers.Session, error) {
	return &stoppingSession{stop: f.stop}, nil
}

type stoppingSession struct {
	stubSession
	stop *crawlers.StopSignal
}

func (s *stoppingSession) Render(ctx context.Context, url string) (string, error) {
	s.stop.Stop(models.ErrInterrupted)
	return "", models.ErrCancelled
}
