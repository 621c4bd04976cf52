package crawlers

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// URLSet 发现阶段收集的详情页URL集合
// 职责: 校验、规范化并去重URL,并发安全
type URLSet struct {
	// 已收集URL标记集合
	urls map[string]struct{}

	// 保护urls的读写锁
	mu sync.RWMutex

	// 允许的主机名,为空则不限制
	host string
}

// NewURLSet 创建URL集合,host非空时只接收该主机的链接
func NewURLSet(host string) *URLSet {
	return &URLSet{
		urls: make(map[string]struct{}),
		host: strings.ToLower(host),
	}
}

// Add 添加URL,返回是否为新URL
// 检查URL有效性、协议、主机名;片段(#...)被去掉
func (s *URLSet) Add(raw string) (bool, error) {
	normalized, err := s.normalize(raw)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.urls[normalized]; exists {
		return false, nil
	}
	s.urls[normalized] = struct{}{}
	return true, nil
}

// AddAll 批量添加,返回新增数量,无效URL被忽略
func (s *URLSet) AddAll(urls []string) int {
	added := 0
	for _, u := range urls {
		if ok, err := s.Add(u); err == nil && ok {
			added++
		}
	}
	return added
}

// normalize 校验并规范化URL
func (s *URLSet) normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("URL为空")
	}

	parsedURL, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("URL格式无效: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return "", fmt.Errorf("不支持的协议: %s", parsedURL.Scheme)
	}
	if s.host != "" && strings.ToLower(parsedURL.Hostname()) != s.host {
		return "", fmt.Errorf("跨域链接已过滤: %s (目标域名: %s)", parsedURL.Host, s.host)
	}

	parsedURL.Fragment = ""
	parsedURL.RawFragment = ""
	return parsedURL.String(), nil
}

// Contains 检查URL是否已收集
func (s *URLSet) Contains(raw string) bool {
	normalized, err := s.normalize(raw)
	if err != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.urls[normalized]
	return ok
}

// Len 返回已收集URL数量
func (s *URLSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.urls)
}

// Sorted 返回排序后的URL列表
func (s *URLSet) Sorted() []string {
	s.mu.RLock()
	result := make([]string, 0, len(s.urls))
	for u := range s.urls {
		result = append(result, u)
	}
	s.mu.RUnlock()

	sort.Strings(result)
	return result
}
