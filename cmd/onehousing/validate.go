package main

import (
	"fmt"
	"os"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/core"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"github.com/spf13/cobra"
)

// ValidateURL 验证URL格式
func ValidateURL(urlStr string) error {
	return models.ValidateURL(urlStr)
}

// ValidateFlags 验证命令行标志
// 0或空值表示沿用配置文件,不做检查
func ValidateFlags(
	baseURL string,
	totalPages int,
	maxWorkers int,
	waitTime int,
	concurrency int,
) error {
	// 验证站点地址
	if baseURL != "" {
		if err := ValidateURL(baseURL); err != nil {
			return fmt.Errorf("无效的站点地址: %w", err)
		}
	}

	// 验证页数
	if totalPages < 0 || totalPages > 10000 {
		return fmt.Errorf("列表页总数必须在1-10000之间,当前值: %d", totalPages)
	}

	// 验证并发数
	if maxWorkers < 0 || maxWorkers > 32 {
		return fmt.Errorf("并发会话数必须在1-32之间,当前值: %d", maxWorkers)
	}

	// 验证等待时间
	if waitTime < 0 || waitTime > 120 {
		return fmt.Errorf("等待时间必须在1-120秒之间,当前值: %d", waitTime)
	}

	// 验证截图并发数
	if concurrency < 0 || concurrency > 32 {
		return fmt.Errorf("截图并发数必须在1-32之间,当前值: %d", concurrency)
	}

	return nil
}

// ValidateURLFile 验证输入文件路径
func ValidateURLFile(path string) error {
	if path == "" {
		return fmt.Errorf("文件路径不能为空")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("文件不可读 [%s]: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("路径是目录而不是文件: %s", path)
	}
	return nil
}

// applyOverrides 把命令行参数合并到配置,之后重新校验
func applyOverrides(cmd *cobra.Command, config *core.Config) error {
	if err := ValidateFlags(baseURL, totalPages, maxWorkers, waitTime, concurrency); err != nil {
		return err
	}

	config.SetDataDir(dataDir)
	if baseURL != "" {
		config.Scrape.BaseURL = baseURL
	}
	if totalPages > 0 {
		config.Scrape.TotalPages = totalPages
	}
	if maxWorkers > 0 {
		config.Scrape.MaxWorkers = maxWorkers
	}
	if waitTime > 0 {
		config.Scrape.WaitTime = waitTime
	}
	if concurrency > 0 {
		config.Screenshot.Concurrency = concurrency
	}
	if f := cmd.Flags().Lookup("headless"); f != nil && f.Changed {
		config.Scrape.Headless = headless
	}

	return config.Validate()
}
