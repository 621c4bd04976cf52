package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DiscoveryCheckpoint 发现阶段检查点
type DiscoveryCheckpoint struct {
	// 任务信息
	RunID   string `json:"run_id"`   // 创建检查点的运行ID
	BaseURL string `json:"base_url"` // 站点根地址

	// 进度信息
	NextPage    int      `json:"next_page"`    // 下一个待抓取的页码
	TotalPages  int      `json:"total_pages"`  // 列表页总数
	URLs        []string `json:"urls"`         // 已收集的URL
	FailedPages []int    `json:"failed_pages"` // 重试耗尽的页码

	// 时间戳
	CreatedAt time.Time `json:"created_at"` // 检查点创建时间
	UpdatedAt time.Time `json:"updated_at"` // 最后更新时间
}

// CheckpointFilename 生成检查点文件名
func CheckpointFilename(dataDir string) string {
	return filepath.Join(dataDir, "discovery_checkpoint.json")
}

// ToJSON 序列化为JSON
func (c *DiscoveryCheckpoint) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// FromJSON 从JSON反序列化
func (c *DiscoveryCheckpoint) FromJSON(data []byte) error {
	return json.Unmarshal(data, c)
}

// SaveToFile 原子地保存到文件(临时文件+重命名)
func (c *DiscoveryCheckpoint) SaveToFile(path string) error {
	c.UpdatedAt = time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.UpdatedAt
	}

	data, err := c.ToJSON()
	if err != nil {
		return fmt.Errorf("序列化检查点失败: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建检查点目录失败: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("写入检查点失败: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadCheckpointFromFile 从文件加载
func LoadCheckpointFromFile(path string) (*DiscoveryCheckpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cp DiscoveryCheckpoint
	if err := cp.FromJSON(data); err != nil {
		return nil, fmt.Errorf("解析检查点失败 [%s]: %w", path, err)
	}
	if cp.NextPage < 1 {
		cp.NextPage = 1
	}

	return &cp, nil
}
