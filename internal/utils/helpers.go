package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
)

// ReadURLsFromFile 读取每行一个URL的纯文本列表
// 跳过空行和#注释,无效URL记录警告后跳过,重复URL只保留第一次出现
func ReadURLsFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开URL文件失败: %w", err)
	}
	defer file.Close()

	var (
		urls    []string
		seen    = make(map[string]struct{})
		skipped int
	)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := models.ValidateURL(line); err != nil {
			Warnf("跳过无效URL (行 %d): %s - %v", lineNum, line, err)
			skipped++
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取URL文件失败: %w", err)
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("URL文件中没有有效的URL: %s", path)
	}

	if skipped > 0 {
		Infof("📄 从文件加载了 %d 个URL (跳过 %d 个无效行)", len(urls), skipped)
	} else {
		Infof("📄 从文件加载了 %d 个URL", len(urls))
	}
	return urls, nil
}
