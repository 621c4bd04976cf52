package crawlers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
)

// fakeSession 不启动浏览器的会话
type fakeSession struct {
	id     int
	pages  map[string]string
	render func(url string) (string, error)

	mu      sync.Mutex
	current string
	closed  bool
}

func (s *fakeSession) ID() int { return s.id }

func (s *fakeSession) Render(ctx context.Context, url string) (string, error) {
	if ctx.Err() != nil {
		return "", models.ErrCancelled
	}
	s.mu.Lock()
	s.current = url
	s.mu.Unlock()
	if s.render != nil {
		return s.render(url)
	}
	if html, ok := s.pages[url]; ok {
		return html, nil
	}
	return "", models.ErrNavigationTimeout
}

func (s *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return nil, errors.New("no page")
	}
	return []byte("jpeg:" + s.current), nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeFactory 记录创建过的会话
// failAfter>0时从第failAfter+1个起创建失败,小于0时全部失败
type fakeFactory struct {
	pages     map[string]string
	render    func(url string) (string, error)
	failAfter int

	created  atomic.Int32
	mu       sync.Mutex
	sessions []*fakeSession
}

func (f *fakeFactory) NewSession(ctx context.Context) (Session, error) {
	n := int(f.created.Add(1))
	if f.failAfter < 0 || (f.failAfter > 0 && n > f.failAfter) {
		return nil, errors.New("browser launch failed")
	}
	s := &fakeSession{id: n, pages: f.pages, render: f.render}
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeFactory) all() []*fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeSession(nil), f.sessions...)
}
