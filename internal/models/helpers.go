package models

import (
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

// ValidateURL 检查绝对http(s)地址,用于站点地址和URL文件中的每一行
func ValidateURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("无效的URL %q: %w", raw, err)
	}
	switch {
	case u.Scheme != "http" && u.Scheme != "https":
		return fmt.Errorf("URL必须是http或https协议: %q", raw)
	case u.Host == "":
		return fmt.Errorf("URL缺少主机名: %q", raw)
	}
	return nil
}

// NewRunID 运行报告和检查点使用的唯一ID
func NewRunID() string {
	return uuid.NewString()
}
