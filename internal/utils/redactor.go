package utils

import (
	"net/http"
	"sort"
	"strings"
)

// sensitiveKeywords 头部名称包含这些片段时值需要脱敏
var sensitiveKeywords = []string{"authorization", "token", "key", "secret", "password", "credential", "cookie", "session"}

// HeaderRedactor 在日志和运行报告中隐藏敏感头部
type HeaderRedactor struct{}

// NewHeaderRedactor 创建头部脱敏器
func NewHeaderRedactor() *HeaderRedactor {
	return &HeaderRedactor{}
}

// IsSensitiveHeader 按名称判断是否敏感
func (hr *HeaderRedactor) IsSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// RedactHeaderValue 脱敏单个头部值,非敏感头部原样返回
// Cookie逐项保留名称隐藏值;Bearer只保留前缀;长值保留首尾4位
func (hr *HeaderRedactor) RedactHeaderValue(name, value string) string {
	if !hr.IsSensitiveHeader(name) {
		return value
	}
	if strings.EqualFold(name, "Cookie") {
		return redactCookies(value)
	}
	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer ***"
	}
	return mask(value)
}

func redactCookies(value string) string {
	pairs := strings.Split(value, ";")
	for i, pair := range pairs {
		name, _, found := strings.Cut(strings.TrimSpace(pair), "=")
		if found {
			pairs[i] = name + "=***"
		} else {
			pairs[i] = "***"
		}
	}
	return strings.Join(pairs, "; ")
}

func mask(value string) string {
	if len(value) > 8 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}

// Redact 返回脱敏后的头部,每个头部只取第一个值
func (hr *HeaderRedactor) Redact(headers http.Header) map[string]string {
	result := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		result[name] = hr.RedactHeaderValue(name, values[0])
	}
	return result
}

// RedactToString 按名称排序输出 "Name: value, ..." 供日志使用
func (hr *HeaderRedactor) RedactToString(headers http.Header) string {
	redacted := hr.Redact(headers)
	names := make([]string, 0, len(redacted))
	for name := range redacted {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + redacted[name]
	}
	return strings.Join(parts, ", ")
}
