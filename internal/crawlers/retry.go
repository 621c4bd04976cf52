package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
)

// RetryPolicy 有界重试策略: 固定次数,固定间隔
type RetryPolicy struct {
	MaxAttempts int           // 最大尝试次数(含第一次)
	Delay       time.Duration // 两次尝试之间的间隔

	// Sleep 可替换的等待函数,ctx取消时应立即返回ctx错误
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy 根据抓取配置创建重试策略
func NewRetryPolicy(cfg models.ScrapeConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxRetries,
		Delay:       cfg.RetryDelayDuration(),
	}
}

// sleep 执行等待
func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isTerminal 判断错误是否不应重试
func isTerminal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, models.ErrCancelled) ||
		errors.Is(err, models.ErrPoolClosed) ||
		errors.Is(err, models.ErrNoSessions)
}

// Retry 带重试地执行op
// 每次尝试前检查ctx;停止信号不重试,直接返回ErrCancelled;
// 所有尝试都失败时返回包装了最后一次错误的ErrRetriesExhausted
func Retry[T any](ctx context.Context, policy RetryPolicy, label string, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return zero, models.ErrCancelled
		}

		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}
		if isTerminal(ctx, err) {
			if errors.Is(err, models.ErrPoolClosed) || errors.Is(err, models.ErrNoSessions) {
				return zero, err
			}
			return zero, models.ErrCancelled
		}

		lastErr = err
		utils.Warnf("第%d/%d次尝试失败 [%s]: %v", attempt, maxAttempts, label, err)

		if attempt < maxAttempts {
			if err := policy.sleep(ctx, policy.Delay); err != nil {
				return zero, models.ErrCancelled
			}
		}
	}

	return zero, fmt.Errorf("%w [%s]: %v", models.ErrRetriesExhausted, label, lastErr)
}

// FailureTracker 连续失败计数器
// 跨整个分页循环计数,连续失败达到阈值时置位停止信号
type FailureTracker struct {
	threshold   int
	consecutive int
	stop        *StopSignal
	mu          sync.Mutex
}

// NewFailureTracker 创建连续失败计数器
func NewFailureTracker(threshold int, stop *StopSignal) *FailureTracker {
	if threshold < 1 {
		threshold = 1
	}
	return &FailureTracker{threshold: threshold, stop: stop}
}

// RecordSuccess 记录一次成功,清零计数
func (t *FailureTracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutive = 0
}

// RecordFailure 记录一次失败
// 达到阈值时以ErrSiteUnavailable置位停止信号并返回true
func (t *FailureTracker) RecordFailure(err error) bool {
	t.mu.Lock()
	t.consecutive++
	count := t.consecutive
	t.mu.Unlock()

	utils.Warnf("连续失败 %d/%d: %v", count, t.threshold, err)
	if count < t.threshold {
		return false
	}

	t.stop.Stop(fmt.Errorf("%w: 连续%d次失败, 最后一次: %v", models.ErrSiteUnavailable, count, err))
	return true
}

// Consecutive 返回当前连续失败次数
func (t *FailureTracker) Consecutive() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consecutive
}
