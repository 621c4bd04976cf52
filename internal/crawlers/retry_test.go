package crawlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
)

// instantPolicy 不真正等待的重试策略,记录每次等待时长
func instantPolicy(attempts int, delay time.Duration, waits *[]time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		Delay:       delay,
		Sleep: func(ctx context.Context, d time.Duration) error {
			if waits != nil {
				*waits = append(*waits, d)
			}
			return ctx.Err()
		},
	}
}

func TestRetry_Bounded(t *testing.T) {
	errFlaky := errors.New("timeout")

	tests := []struct {
		name      string
		failUntil int // 前failUntil次失败
		wantCalls int
		wantErr   error
	}{
		{"第一次成功", 0, 1, nil},
		{"第三次成功", 2, 3, nil},
		{"全部失败", 100, 5, models.ErrRetriesExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var waits []time.Duration
			calls := 0
			got, err := Retry(context.Background(), instantPolicy(5, 2*time.Second, &waits), "page",
				func(ctx context.Context, attempt int) (int, error) {
					calls++
					if attempt != calls {
						t.Errorf("attempt = %d, want %d", attempt, calls)
					}
					if calls <= tt.failUntil {
						return 0, errFlaky
					}
					return 42, nil
				})

			if calls != tt.wantCalls {
				t.Errorf("调用次数 = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != 42 {
				t.Errorf("Retry() = %d, %v", got, err)
			}
			// 两次尝试之间固定等待
			if len(waits) != tt.wantCalls-1 {
				t.Errorf("等待次数 = %d, want %d", len(waits), tt.wantCalls-1)
			}
			for _, w := range waits {
				if w != 2*time.Second {
					t.Errorf("等待时长 = %v, want 2s", w)
				}
			}
		})
	}
}

func TestRetry_CancelledBeforeAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Retry(ctx, instantPolicy(3, 0, nil), "x", func(ctx context.Context, attempt int) (string, error) {
		calls++
		return "", nil
	})
	if !errors.Is(err, models.ErrCancelled) {
		t.Errorf("error = %v, want ErrCancelled", err)
	}
	if calls != 0 {
		t.Errorf("取消后不应再尝试, 调用了 %d 次", calls)
	}
}

func TestRetry_CancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	policy := RetryPolicy{
		MaxAttempts: 5,
		Delay:       time.Hour,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	_, err := Retry(ctx, policy, "x", func(ctx context.Context, attempt int) (string, error) {
		calls++
		return "", errors.New("boom")
	})
	if !errors.Is(err, models.ErrCancelled) {
		t.Errorf("error = %v, want ErrCancelled", err)
	}
	if calls != 1 {
		t.Errorf("调用次数 = %d, want 1", calls)
	}
}

func TestRetry_TerminalErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"池已关闭", models.ErrPoolClosed, models.ErrPoolClosed},
		{"没有会话", models.ErrNoSessions, models.ErrNoSessions},
		{"已取消", models.ErrCancelled, models.ErrCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			_, err := Retry(context.Background(), instantPolicy(5, 0, nil), "x", func(ctx context.Context, attempt int) (int, error) {
				calls++
				return 0, tt.err
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if calls != 1 {
				t.Errorf("终止性错误不应重试, 调用了 %d 次", calls)
			}
		})
	}
}

func TestRetry_RealSleepHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Retry(ctx, RetryPolicy{MaxAttempts: 3, Delay: time.Minute}, "x", func(ctx context.Context, attempt int) (int, error) {
		return 0, errors.New("boom")
	})
	if !errors.Is(err, models.ErrCancelled) {
		t.Errorf("error = %v, want ErrCancelled", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("等待期间取消应立即返回")
	}
}

func TestFailureTracker(t *testing.T) {
	stop := NewStopSignal(context.Background())
	tracker := NewFailureTracker(3, stop)

	errPage := errors.New("page failed")

	tracker.RecordFailure(errPage)
	tracker.RecordFailure(errPage)
	tracker.RecordSuccess()
	if tracker.Consecutive() != 0 {
		t.Fatalf("成功后计数应清零, got %d", tracker.Consecutive())
	}

	if tracker.RecordFailure(errPage) || tracker.RecordFailure(errPage) {
		t.Fatal("未达到阈值时不应触发")
	}
	if stop.Stopped() {
		t.Fatal("未达到阈值时不应置位停止信号")
	}
	if !tracker.RecordFailure(errPage) {
		t.Fatal("第3次连续失败应触发")
	}
	if !errors.Is(stop.Reason(), models.ErrSiteUnavailable) {
		t.Errorf("Reason() = %v, want ErrSiteUnavailable", stop.Reason())
	}
}
