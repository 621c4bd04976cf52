package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// closeParallelism 并行关闭会话的上限
const closeParallelism = 4

// SessionPool 固定容量的浏览器会话池
// 职责: 出借/归还会话,崩溃会话销毁后立即补充新会话,关闭时销毁全部会话
type SessionPool struct {
	factory SessionFactory
	logger  zerolog.Logger

	// 空闲会话
	idle chan Session

	// 已借出的会话
	lent map[Session]struct{}

	// 当前容量(补充失败时缩减)
	capacity int

	// 容量耗尽时关闭
	exhausted chan struct{}

	// 关闭时关闭
	closedCh chan struct{}

	mu     sync.Mutex
	closed bool

	// 崩溃后成功替换的次数
	replacements atomic.Int64
}

// NewSessionPool 创建会话池并预先启动size个会话
// 只有一个会话都创建不出来时才返回错误;部分失败时容量等于成功创建的数量
func NewSessionPool(ctx context.Context, size int, factory SessionFactory) (*SessionPool, error) {
	if size < 1 {
		size = 1
	}

	pool := &SessionPool{
		factory:   factory,
		logger:    utils.Component("session_pool"),
		idle:      make(chan Session, size),
		lent:      make(map[Session]struct{}),
		exhausted: make(chan struct{}),
		closedCh:  make(chan struct{}),
	}

	var lastErr error
	for i := 0; i < size; i++ {
		if ctx.Err() != nil {
			break
		}
		s, err := factory.NewSession(ctx)
		if err != nil {
			lastErr = err
			pool.logger.Warn().Err(err).Int("slot", i+1).Msg("创建浏览器会话失败")
			continue
		}
		pool.idle <- s
		pool.capacity++
	}

	if pool.capacity == 0 {
		if lastErr == nil {
			lastErr = ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", models.ErrNoSessions, lastErr)
	}
	if pool.capacity < size {
		pool.logger.Warn().Int("want", size).Int("got", pool.capacity).Msg("会话池容量不足")
	}

	pool.logger.Info().Msgf("🧭 会话池已就绪: %d 个浏览器会话", pool.capacity)
	return pool, nil
}

// Acquire 借出一个会话
// 阻塞直到有空闲会话;ctx取消返回ErrCancelled,池关闭返回ErrPoolClosed,容量耗尽返回ErrNoSessions
func (p *SessionPool) Acquire(ctx context.Context) (Session, error) {
	// 停止信号置位后不再借出
	if ctx.Err() != nil {
		return nil, models.ErrCancelled
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, models.ErrPoolClosed
	}
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, models.ErrCancelled
	case <-p.closedCh:
		return nil, models.ErrPoolClosed
	case <-p.exhausted:
		return nil, models.ErrNoSessions
	case s := <-p.idle:
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			go s.Close()
			return nil, models.ErrPoolClosed
		}
		if ctx.Err() != nil {
			p.idle <- s
			return nil, models.ErrCancelled
		}
		p.lent[s] = struct{}{}
		return s, nil
	}
}

// Release 归还一个健康的会话
// 池已关闭时直接销毁
func (p *SessionPool) Release(s Session) {
	if s == nil {
		return
	}

	p.mu.Lock()
	delete(p.lent, s)
	if p.closed {
		p.mu.Unlock()
		p.destroy(s)
		return
	}
	p.idle <- s
	p.mu.Unlock()
}

// Discard 销毁一个状态未知或已崩溃的会话,并立即补充一个新会话
// 停止信号已置位或池已关闭时不补充;补充失败则容量减一
func (p *SessionPool) Discard(ctx context.Context, s Session) {
	if s == nil {
		return
	}

	p.mu.Lock()
	delete(p.lent, s)
	closed := p.closed
	p.mu.Unlock()

	p.destroy(s)

	if closed || ctx.Err() != nil {
		p.shrink(true)
		return
	}

	replacement, err := p.factory.NewSession(ctx)
	if err != nil {
		p.logger.Error().Err(err).Int("session", s.ID()).Msg("补充会话失败")
		p.shrink(false)
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.destroy(replacement)
		return
	}
	p.idle <- replacement
	p.mu.Unlock()

	p.replacements.Add(1)
	p.logger.Info().Msgf("♻️ 会话#%d 已替换为会话#%d", s.ID(), replacement.ID())
}

// shrink 容量减一,减到0时唤醒所有等待者
// quiet为true表示正在停止,容量耗尽不算错误
func (p *SessionPool) shrink(quiet bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.capacity == 0 {
		return
	}
	p.capacity--
	if p.capacity == 0 {
		close(p.exhausted)
		if !p.closed && !quiet {
			p.logger.Error().Msg("会话池已无可用会话")
		}
	}
}

// Capacity 返回当前容量
func (p *SessionPool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// Replacements 返回崩溃后替换的会话数
func (p *SessionPool) Replacements() int {
	return int(p.replacements.Load())
}

// CloseAll 销毁所有会话(空闲和已借出的),可重复调用
func (p *SessionPool) CloseAll() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closedCh)

	sessions := make([]Session, 0, len(p.idle)+len(p.lent))
	for len(p.idle) > 0 {
		sessions = append(sessions, <-p.idle)
	}
	for s := range p.lent {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(closeParallelism)
	for _, s := range sessions {
		s := s
		g.Go(func() error {
			if err := s.Close(); err != nil {
				return fmt.Errorf("关闭会话#%d失败: %w", s.ID(), err)
			}
			return nil
		})
	}
	err := g.Wait()
	if err != nil {
		p.logger.Warn().Err(err).Msg("关闭会话池时出现错误")
	}

	p.logger.Info().Msgf("会话池已关闭,销毁 %d 个会话", len(sessions))
	return err
}

// destroy 关闭会话并记录错误
func (p *SessionPool) destroy(s Session) {
	if err := s.Close(); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Warn().Err(err).Msgf("关闭会话#%d失败", s.ID())
	}
}

// WithSession 借出一个会话执行fn
// fn返回崩溃或取消时销毁会话(并补充),否则归还
func WithSession[T any](ctx context.Context, pool *SessionPool, fn func(s Session) (T, error)) (T, error) {
	var zero T
	s, err := pool.Acquire(ctx)
	if err != nil {
		return zero, err
	}

	result, err := fn(s)
	if err != nil && (errors.Is(err, models.ErrSessionCrashed) || errors.Is(err, models.ErrCancelled) || ctx.Err() != nil) {
		pool.Discard(ctx, s)
		return zero, err
	}
	pool.Release(s)
	return result, err
}
