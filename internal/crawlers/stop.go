package crawlers

import (
	"context"
	"sync"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
)

// StopSignal 停止信号
// 只能置位一次,置位后不会复位;第一次置位的原因会被保留
// 通过Context()向下传递,所有阻塞点都观察同一个取消
type StopSignal struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	once   sync.Once
}

// NewStopSignal 创建停止信号
// parent取消时信号也随之置位
func NewStopSignal(parent context.Context) *StopSignal {
	ctx, cancel := context.WithCancelCause(parent)
	return &StopSignal{ctx: ctx, cancel: cancel}
}

// Context 返回随停止信号取消的context
func (s *StopSignal) Context() context.Context {
	return s.ctx
}

// Stop 置位停止信号,重复调用只保留第一次的原因
func (s *StopSignal) Stop(reason error) {
	if reason == nil {
		reason = models.ErrCancelled
	}
	s.once.Do(func() {
		utils.Warnf("🛑 停止信号已置位: %v", reason)
		s.cancel(reason)
	})
}

// Stopped 停止信号是否已置位
func (s *StopSignal) Stopped() bool {
	return s.ctx.Err() != nil
}

// Reason 返回停止原因,未置位时返回nil
func (s *StopSignal) Reason() error {
	if !s.Stopped() {
		return nil
	}
	return context.Cause(s.ctx)
}

// Done 返回停止信号的通道
func (s *StopSignal) Done() <-chan struct{} {
	return s.ctx.Done()
}
