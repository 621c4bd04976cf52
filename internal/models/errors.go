package models

import (
	"errors"
	"fmt"
)

// 抓取流程中的哨兵错误,调用方使用errors.Is判断
var (
	ErrCancelled         = errors.New("操作已取消")
	ErrInterrupted       = errors.New("用户中断")
	ErrSessionCrashed    = errors.New("浏览器会话崩溃")
	ErrNavigationTimeout = errors.New("页面就绪等待超时")
	ErrEmptyPage         = errors.New("页面内容为空")
	ErrHTTPStatus        = errors.New("HTTP状态码异常")
	ErrRetriesExhausted  = errors.New("已达最大重试次数")
	ErrSiteUnavailable   = errors.New("目标站点不可用")
	ErrPoolClosed        = errors.New("会话池已关闭")
	ErrNoSessions        = errors.New("没有可用的浏览器会话")
	ErrSinkClosed        = errors.New("输出文件已关闭")
	ErrCoordinatorClosed = errors.New("协调器已关闭,不可复用")
)

// ValidationError 单个请求头部不合法
type ValidationError struct {
	Field      string // "name" 或 "value"
	HeaderName string
	Reason     string
	Suggestion string
}

func (e *ValidationError) Error() string {
	if e.Suggestion == "" {
		return fmt.Sprintf("头部验证失败 [%s]: %s", e.HeaderName, e.Reason)
	}
	return fmt.Sprintf("头部验证失败 [%s]: %s (建议: %s)", e.HeaderName, e.Reason, e.Suggestion)
}

// ConfigError 配置文件无法解析或校验失败
type ConfigError struct {
	FilePath string
	Cause    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}
