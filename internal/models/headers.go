package models

import (
	"fmt"
	"net/http"
	"strings"
)

// HeaderConfig configs/headers.yaml 的内容
// 列表页请求和浏览器会话共用同一组头部
type HeaderConfig struct {
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`

	// UserAgents 轮换使用的UA池,为空时使用内置列表
	UserAgents []string `mapstructure:"user_agents" yaml:"user_agents"`
}

// CliHeaders 命令行 -H 传入的 "Name: Value" 列表
type CliHeaders []string

// Parse 解析为http.Header,同名头部后者覆盖前者
func (ch CliHeaders) Parse() (http.Header, error) {
	result := make(http.Header, len(ch))
	for i, raw := range ch {
		name, value, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, fmt.Errorf("参数 --header 第%d项缺少冒号,应为 'Name: Value': %q", i+1, raw)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("参数 --header 第%d项头部名称为空: %q", i+1, raw)
		}
		result.Set(name, strings.TrimSpace(value))
	}
	return result, nil
}

// HeaderProvider 提供合并后的请求头部 (默认 < 配置文件 < 命令行)
type HeaderProvider interface {
	GetHeaders() (http.Header, error)
}

// UserAgentProvider 提供User-Agent
// 浏览器会话启动时取一次,列表页每次请求取一次
type UserAgentProvider interface {
	// RandomUserAgent 命令行显式指定User-Agent时始终返回该值
	RandomUserAgent() string
}
