package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"github.com/schollz/progressbar/v3"
)

// Reporter 运行报告生成器
type Reporter struct {
	reportDir string
}

// NewReporter 创建报告生成器
func NewReporter(reportDir string) *Reporter {
	return &Reporter{reportDir: reportDir}
}

// GenerateReport 生成运行报告
// 主报告为 <command>_<run_id>.json,失败URL单独保存为 failed_urls_<run_id>.json
func (r *Reporter) GenerateReport(report *models.RunReport) (string, error) {
	if err := os.MkdirAll(r.reportDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	command := report.Command
	if command == "" {
		command = "run"
	}

	mainPath := filepath.Join(r.reportDir, fmt.Sprintf("%s_%s.json", command, report.RunID))
	if err := r.saveJSONReport(mainPath, report); err != nil {
		return "", err
	}

	if len(report.FailedURLs) > 0 {
		failedPath := filepath.Join(r.reportDir, fmt.Sprintf("failed_urls_%s.json", report.RunID))
		if err := r.saveJSONReport(failedPath, report.FailedURLs); err != nil {
			return "", err
		}
	}

	Infof("✅ 报告已生成: %s", mainPath)
	return mainPath, nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return nil
}

// NewProgressBar 创建进度条
// visible为false时进度条不输出(日志级别为debug或输出不是终端时)
func NewProgressBar(max int, description string, visible bool) *progressbar.ProgressBar {
	var out io.Writer = os.Stdout
	if !visible {
		out = io.Discard
	}
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetVisibility(visible),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(out)
		}),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
