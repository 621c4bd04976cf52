package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// RunState 运行协调器状态
type RunState string

const (
	StateIdle        RunState = "idle"        // 初始状态
	StateDiscovering RunState = "discovering" // 分页发现URL
	StateFiltering   RunState = "filtering"   // 按已处理索引过滤
	StateDispatching RunState = "dispatching" // 并发分发详情抓取
	StateDraining    RunState = "draining"    // 排空:关闭输出与会话池
	StateClosed      RunState = "closed"      // 终态,不可复用
)

// ScrapeConfig 抓取配置
type ScrapeConfig struct {
	BaseURL          string `mapstructure:"base_url" json:"base_url" validate:"required,url"`                     // 站点根地址
	ListingPath      string `mapstructure:"listing_path" json:"listing_path" validate:"required"`                 // 列表页路径 (默认: /nha-dat-ban)
	TotalPages       int    `mapstructure:"total_pages" json:"total_pages" validate:"min=1,max=10000"`            // 列表页总数 (默认:466)
	MaxRetries       int    `mapstructure:"max_retries" json:"max_retries" validate:"min=1,max=20"`               // 单次操作最大尝试次数 (默认:5)
	RetryDelay       int    `mapstructure:"retry_delay" json:"retry_delay" validate:"min=0,max=60"`               // 重试间隔(秒) (默认:2)
	MaxWorkers       int    `mapstructure:"max_workers" json:"max_workers" validate:"min=1,max=32"`               // 详情抓取并发数 (默认:4)
	WaitTime         int    `mapstructure:"wait_time" json:"wait_time" validate:"min=1,max=120"`                  // 页面就绪等待时间(秒) (默认:5)
	NavTimeout       int    `mapstructure:"nav_timeout" json:"nav_timeout" validate:"min=1,max=300"`              // 导航超时(秒) (默认:30)
	Headless         bool   `mapstructure:"headless" json:"headless"`                                             // 无头模式 (默认:true)
	Stealth          bool   `mapstructure:"stealth" json:"stealth"`                                               // 注入反检测脚本 (默认:true)
	FailureThreshold int    `mapstructure:"failure_threshold" json:"failure_threshold" validate:"min=1,max=100"`  // 发现阶段连续失败上限 (默认:3)
	RequestInterval  int    `mapstructure:"request_interval" json:"request_interval" validate:"min=0,max=60000"`  // 列表页请求最小间隔(毫秒)
	CheckpointEvery  int    `mapstructure:"checkpoint_every" json:"checkpoint_every" validate:"min=1,max=1000"`   // 每隔多少页保存一次发现检查点
	SessionMemoryMB  int    `mapstructure:"session_memory_mb" json:"session_memory_mb" validate:"min=50,max=8192"` // 单个浏览器会话估算内存(MB)
}

// DefaultScrapeConfig 返回默认抓取配置
func DefaultScrapeConfig() ScrapeConfig {
	return ScrapeConfig{
		BaseURL:          "https://onehousing.vn",
		ListingPath:      "/nha-dat-ban",
		TotalPages:       466,
		MaxRetries:       5,
		RetryDelay:       2,
		MaxWorkers:       4,
		WaitTime:         5,
		NavTimeout:       30,
		Headless:         true,
		Stealth:          true,
		FailureThreshold: 3,
		RequestInterval:  500,
		CheckpointEvery:  10,
		SessionMemoryMB:  300,
	}
}

// RetryDelayDuration 重试间隔
func (c *ScrapeConfig) RetryDelayDuration() time.Duration {
	return time.Duration(c.RetryDelay) * time.Second
}

// WaitDuration 就绪等待时间
func (c *ScrapeConfig) WaitDuration() time.Duration {
	return time.Duration(c.WaitTime) * time.Second
}

// NavTimeoutDuration 导航超时
func (c *ScrapeConfig) NavTimeoutDuration() time.Duration {
	return time.Duration(c.NavTimeout) * time.Second
}

// PageURL 返回第page页列表页地址
func (c *ScrapeConfig) PageURL(page int) string {
	return fmt.Sprintf("%s%s?page=%d", c.BaseURL, c.ListingPath, page)
}

var structValidator = validator.New()

// Validate 验证配置
func (c *ScrapeConfig) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("抓取配置无效: %w", err)
	}
	return nil
}

// RunStats 运行统计
type RunStats struct {
	Discovered          int     `json:"discovered"`           // 发现的唯一URL数
	PagesFetched        int     `json:"pages_fetched"`        // 成功抓取的列表页数
	PagesFailed         int     `json:"pages_failed"`         // 重试耗尽的列表页数
	AlreadyProcessed    int     `json:"already_processed"`    // 已在输出文件中的URL数
	Dispatched          int     `json:"dispatched"`           // 实际分发的URL数
	Succeeded           int     `json:"succeeded"`            // 成功写入的记录数
	Failed              int     `json:"failed"`               // 重试耗尽而跳过的URL数
	Abandoned           int     `json:"abandoned"`            // 因停止信号而放弃的URL数
	WriteErrors         int     `json:"write_errors"`         // 写入失败数
	SessionReplacements int     `json:"session_replacements"` // 崩溃后替换的会话数
	Duration            float64 `json:"duration"`             // 总耗时(秒)
}
