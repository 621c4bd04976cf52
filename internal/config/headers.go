// Package config 管理 configs/headers.yaml: 首次运行时生成模板,之后读取自定义头部和UA池
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
	"github.com/spf13/viper"
)

const (
	// DefaultConfigFile 默认头部配置路径
	DefaultConfigFile = "configs/headers.yaml"

	// MaxConfigFileSize 头部配置文件上限 (1MB)
	MaxConfigFileSize = 1 << 20
)

//go:embed headers_template.yaml
var defaultHeaderTemplate string

// HeaderConfigLoader 头部配置加载器
type HeaderConfigLoader struct {
	configPath string
}

// NewHeaderConfigLoader 路径为空时使用 DefaultConfigFile
func NewHeaderConfigLoader(configPath string) *HeaderConfigLoader {
	if configPath == "" {
		configPath = DefaultConfigFile
	}
	return &HeaderConfigLoader{configPath: configPath}
}

// Path 配置文件路径
func (hcl *HeaderConfigLoader) Path() string {
	return hcl.configPath
}

// EnsureConfigExists 文件不存在时写入内置模板
func (hcl *HeaderConfigLoader) EnsureConfigExists() error {
	_, err := os.Stat(hcl.configPath)
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(hcl.configPath), 0755); err != nil {
		return fmt.Errorf("无法创建配置目录 [%s]: %w", filepath.Dir(hcl.configPath), err)
	}
	if err := os.WriteFile(hcl.configPath, []byte(defaultHeaderTemplate), 0644); err != nil {
		return fmt.Errorf("无法生成头部配置 [%s]: %w", hcl.configPath, err)
	}
	utils.Infof("📝 已生成头部配置模板: %s", hcl.configPath)
	return nil
}

// LoadConfig 读取头部配置
// 文件被其他进程锁定时退回空配置,其余读取或解析错误返回 ConfigError
func (hcl *HeaderConfigLoader) LoadConfig() (*models.HeaderConfig, error) {
	if err := hcl.EnsureConfigExists(); err != nil {
		return nil, err
	}

	info, err := os.Stat(hcl.configPath)
	if err != nil {
		return nil, &models.ConfigError{FilePath: hcl.configPath, Cause: err}
	}
	if info.Size() > MaxConfigFileSize {
		return nil, &models.ConfigError{
			FilePath: hcl.configPath,
			Cause:    fmt.Errorf("文件过大: %d 字节 (最大 %d)", info.Size(), MaxConfigFileSize),
		}
	}

	v := viper.New()
	v.SetConfigFile(hcl.configPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
			utils.Warnf("头部配置被锁定 [%s], 使用内置头部", hcl.configPath)
			return &models.HeaderConfig{Headers: map[string]string{}}, nil
		}
		return nil, &models.ConfigError{FilePath: hcl.configPath, Cause: err}
	}

	var cfg models.HeaderConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &models.ConfigError{FilePath: hcl.configPath, Cause: fmt.Errorf("配置绑定失败: %w", err)}
	}
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	cfg.UserAgents = cleanUserAgents(cfg.UserAgents)
	return &cfg, nil
}

// cleanUserAgents 去掉空白项和重复项,保持原有顺序
func cleanUserAgents(agents []string) []string {
	seen := make(map[string]struct{}, len(agents))
	result := make([]string, 0, len(agents))
	for _, ua := range agents {
		ua = strings.TrimSpace(ua)
		if ua == "" {
			continue
		}
		if _, ok := seen[ua]; ok {
			continue
		}
		seen[ua] = struct{}{}
		result = append(result, ua)
	}
	return result
}
