package storage

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
)

// propertyURLColumn property_url在详情CSV中的列下标
const propertyURLColumn = 4

// ProcessedIndex 已处理URL索引
// 由现有输出文件的property_url列重建,不单独存储
type ProcessedIndex struct {
	urls map[string]struct{}
}

// EmptyProcessedIndex 返回空索引(--fresh时使用)
func EmptyProcessedIndex() *ProcessedIndex {
	return &ProcessedIndex{urls: make(map[string]struct{})}
}

// LoadProcessedIndex 读取详情CSV重建已处理索引
// 文件不存在时返回空索引
func LoadProcessedIndex(path string) (*ProcessedIndex, error) {
	idx := EmptyProcessedIndex()

	rows, err := readCompleteRows(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return idx, nil
		}
		return nil, fmt.Errorf("读取已处理索引失败 [%s]: %w", path, err)
	}

	for _, row := range rows {
		if u := strings.TrimSpace(row[propertyURLColumn]); u != "" {
			idx.urls[u] = struct{}{}
		}
	}

	utils.Debugf("已处理索引: %d 个URL (%s)", len(idx.urls), path)
	return idx, nil
}

// Contains 判断URL是否已处理
func (p *ProcessedIndex) Contains(url string) bool {
	_, ok := p.urls[strings.TrimSpace(url)]
	return ok
}

// Len 返回索引大小
func (p *ProcessedIndex) Len() int {
	return len(p.urls)
}

// Pending 返回尚未处理的URL,保持输入顺序并去重
func (p *ProcessedIndex) Pending(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	pending := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" || p.Contains(u) {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		pending = append(pending, u)
	}
	return pending
}
