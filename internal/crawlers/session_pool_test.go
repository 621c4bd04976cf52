package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
)

func TestNewSessionPool(t *testing.T) {
	tests := []struct {
		name         string
		size         int
		failAfter    int
		wantCapacity int
		wantErr      error
	}{
		{"全部成功", 3, 0, 3, nil},
		{"部分失败", 3, 2, 2, nil},
		{"全部失败", 2, -1, 0, models.ErrNoSessions},
		{"size小于1按1处理", 0, 0, 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := &fakeFactory{failAfter: tt.failAfter}
			pool, err := NewSessionPool(context.Background(), tt.size, factory)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSessionPool() error = %v", err)
			}
			defer pool.CloseAll()

			if pool.Capacity() != tt.wantCapacity {
				t.Errorf("Capacity() = %d, want %d", pool.Capacity(), tt.wantCapacity)
			}
		})
	}
}

func TestSessionPool_AcquireRelease(t *testing.T) {
	factory := &fakeFactory{}
	pool, err := NewSessionPool(context.Background(), 2, factory)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.CloseAll()

	a, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	b, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("同一会话不应同时借给两个调用方")
	}

	// 容量用尽时阻塞,直到有会话归还
	got := make(chan Session, 1)
	go func() {
		s, _ := pool.Acquire(context.Background())
		got <- s
	}()

	select {
	case <-got:
		t.Fatal("没有空闲会话时Acquire应阻塞")
	case <-time.After(20 * time.Millisecond):
	}

	pool.Release(a)
	select {
	case s := <-got:
		if s != a {
			t.Errorf("应借出刚归还的会话")
		}
	case <-time.After(time.Second):
		t.Fatal("归还后Acquire应返回")
	}
	pool.Release(b)
}

func TestSessionPool_DiscardReplaces(t *testing.T) {
	factory := &fakeFactory{}
	pool, err := NewSessionPool(context.Background(), 2, factory)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.CloseAll()

	s, _ := pool.Acquire(context.Background())
	crashed := s.(*fakeSession)
	pool.Discard(context.Background(), s)

	if !crashed.isClosed() {
		t.Error("崩溃的会话应被销毁")
	}
	if pool.Capacity() != 2 {
		t.Errorf("替换后容量 = %d, want 2", pool.Capacity())
	}
	if pool.Replacements() != 1 {
		t.Errorf("Replacements() = %d, want 1", pool.Replacements())
	}
	if len(factory.all()) != 3 {
		t.Errorf("应新建一个替换会话, 共创建 %d 个", len(factory.all()))
	}

	// 替换会话可以借出
	for i := 0; i < 2; i++ {
		s, err := pool.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		if s == crashed {
			t.Error("不应再借出已销毁的会话")
		}
	}
}

func TestSessionPool_DiscardShrinksToExhaustion(t *testing.T) {
	factory := &fakeFactory{failAfter: 1}
	pool, err := NewSessionPool(context.Background(), 1, factory)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.CloseAll()

	s, _ := pool.Acquire(context.Background())
	pool.Discard(context.Background(), s)

	if pool.Capacity() != 0 {
		t.Errorf("补充失败后容量 = %d, want 0", pool.Capacity())
	}
	if _, err := pool.Acquire(context.Background()); !errors.Is(err, models.ErrNoSessions) {
		t.Errorf("容量耗尽后Acquire() error = %v, want ErrNoSessions", err)
	}
}

func TestSessionPool_AcquireAfterStop(t *testing.T) {
	pool, err := NewSessionPool(context.Background(), 1, &fakeFactory{})
	if err != nil {
		t.Fatal(err)
	}
	defer pool.CloseAll()

	stop := NewStopSignal(context.Background())
	stop.Stop(models.ErrInterrupted)

	if _, err := pool.Acquire(stop.Context()); !errors.Is(err, models.ErrCancelled) {
		t.Errorf("停止后Acquire() error = %v, want ErrCancelled", err)
	}
}

func TestSessionPool_CloseAll(t *testing.T) {
	factory := &fakeFactory{}
	pool, err := NewSessionPool(context.Background(), 3, factory)
	if err != nil {
		t.Fatal(err)
	}

	// 一个会话仍借出中
	if _, err := pool.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := pool.CloseAll(); err != nil {
		t.Fatalf("CloseAll() error = %v", err)
	}
	if err := pool.CloseAll(); err != nil {
		t.Errorf("重复CloseAll() error = %v", err)
	}

	for _, s := range factory.all() {
		if !s.isClosed() {
			t.Errorf("会话#%d 未被销毁", s.ID())
		}
	}
	if _, err := pool.Acquire(context.Background()); !errors.Is(err, models.ErrPoolClosed) {
		t.Errorf("关闭后Acquire() error = %v, want ErrPoolClosed", err)
	}
}

func TestWithSession(t *testing.T) {
	factory := &fakeFactory{}
	pool, err := NewSessionPool(context.Background(), 1, factory)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.CloseAll()

	// 普通错误: 会话归还
	_, err = WithSession(context.Background(), pool, func(s Session) (int, error) {
		return 0, models.ErrEmptyPage
	})
	if !errors.Is(err, models.ErrEmptyPage) {
		t.Fatalf("error = %v", err)
	}
	if pool.Replacements() != 0 {
		t.Error("普通错误不应替换会话")
	}

	// 崩溃: 会话被替换
	_, err = WithSession(context.Background(), pool, func(s Session) (int, error) {
		return 0, fmt.Errorf("render: %w", models.ErrSessionCrashed)
	})
	if !errors.Is(err, models.ErrSessionCrashed) {
		t.Fatalf("error = %v", err)
	}
	if pool.Replacements() != 1 || pool.Capacity() != 1 {
		t.Errorf("崩溃后 Replacements=%d Capacity=%d, want 1/1", pool.Replacements(), pool.Capacity())
	}

	got, err := WithSession(context.Background(), pool, func(s Session) (int, error) {
		return s.ID(), nil
	})
	if err != nil || got != 2 {
		t.Errorf("WithSession() = %d, %v, want 替换后的会话#2", got, err)
	}
}

func TestSessionPool_ConcurrentUse(t *testing.T) {
	factory := &fakeFactory{}
	pool, err := NewSessionPool(context.Background(), 3, factory)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.CloseAll()

	var (
		mu     sync.Mutex
		inUse  = make(map[Session]bool)
		wg     sync.WaitGroup
		shared bool
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			WithSession(context.Background(), pool, func(s Session) (struct{}, error) {
				mu.Lock()
				if inUse[s] {
					shared = true
				}
				inUse[s] = true
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inUse[s] = false
				mu.Unlock()
				return struct{}{}, nil
			})
		}()
	}
	wg.Wait()

	if shared {
		t.Error("同一会话被并发使用")
	}
}
