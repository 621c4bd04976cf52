package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
)

// SaveURLList 整体写入URL列表JSON
// 写入临时文件后重命名,排序保证多次运行的输出稳定
func SaveURLList(path string, urls []string) error {
	sorted := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok || u == "" {
			continue
		}
		seen[u] = struct{}{}
		sorted = append(sorted, u)
	}
	sort.Strings(sorted)

	data, err := json.MarshalIndent(sorted, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化URL列表失败: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("写入URL列表失败: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("替换URL列表失败: %w", err)
	}

	utils.Infof("💾 已保存 %d 个URL到 %s", len(sorted), path)
	return nil
}

// LoadURLList 读取URL列表
// 支持JSON数组,也支持每行一个URL的纯文本文件
func LoadURLList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取URL列表失败 [%s]: %w", path, err)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var urls []string
		if err := json.Unmarshal(data, &urls); err != nil {
			return nil, fmt.Errorf("URL列表JSON格式无效 [%s]: %w", path, err)
		}
		return urls, nil
	}

	return utils.ReadURLsFromFile(path)
}
