package models

import (
	"encoding/json"
	"time"
)

// RunReport 运行报告
type RunReport struct {
	// 任务信息
	RunID   string `json:"run_id"`
	Command string `json:"command"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 结果
	FinalState RunState `json:"final_state"`
	StopReason string   `json:"stop_reason,omitempty"`
	Stats      RunStats `json:"stats"`

	// 失败URL
	FailedURLs []FailedURLInfo `json:"failed_urls,omitempty"`

	// 输出路径
	OutputFiles map[string]string `json:"output_files"`

	// 配置快照
	Config ScrapeConfig `json:"config"`
}

// FailedURLInfo 失败URL信息
type FailedURLInfo struct {
	URL       string `json:"url"`
	ErrorType string `json:"error_type"` // retries_exhausted, screenshot_failed, upload_failed等
	ErrorMsg  string `json:"error_msg"`
}

// ToJSON 序列化为JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *RunReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
