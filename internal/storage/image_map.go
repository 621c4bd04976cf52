package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
)

// ImageMapWriter 截图映射CSV写入器
type ImageMapWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
	closed bool
}

// OpenImageMap 打开截图映射文件
// appendMode为false时截断重写;表头在新文件或空文件时写入
func OpenImageMap(path string, appendMode bool) (*ImageMapWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开截图映射文件失败 [%s]: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	w := &ImageMapWriter{file: f, writer: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := w.writeRow(models.ImageMapColumns); err != nil {
			f.Close()
			return nil, err
		}
	}
	return w, nil
}

// Write 写入一条映射
func (w *ImageMapWriter) Write(entry models.ImageMapEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return models.ErrSinkClosed
	}
	return w.writeRow([]string{entry.PropertyID, entry.ScreenshotURL})
}

func (w *ImageMapWriter) writeRow(row []string) error {
	if err := w.writer.Write(row); err != nil {
		return err
	}
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close 关闭文件,可重复调用
func (w *ImageMapWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.writer.Flush()
	return w.file.Close()
}

// FailuresPath 返回截图映射对应的失败记录文件路径
func FailuresPath(imageMapPath string) string {
	ext := filepath.Ext(imageMapPath)
	return strings.TrimSuffix(imageMapPath, ext) + "_failures.csv"
}

// WriteFailures 整体写入截图失败记录
func WriteFailures(path string, failures []models.ScreenshotFailure) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建失败记录文件失败 [%s]: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(models.FailureColumns); err != nil {
		return err
	}
	for _, failure := range failures {
		if err := w.Write([]string{failure.URL, failure.PropertyID, failure.Reason}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadFailedURLs 读取失败记录中的URL
func ReadFailedURLs(path string) ([]string, error) {
	records, err := readCSVWithHeader(path)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(records))
	for _, rec := range records {
		if u := strings.TrimSpace(rec["url"]); u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

// LoadImageMap 读取截图映射,同一property_id保留第一条
func LoadImageMap(path string) (map[string]string, error) {
	records, err := readCSVWithHeader(path)
	if err != nil {
		return nil, err
	}

	m := make(map[string]string, len(records))
	for _, rec := range records {
		id := strings.TrimSpace(rec["property_id"])
		if id == "" {
			continue
		}
		if _, exists := m[id]; !exists {
			m[id] = strings.TrimSpace(rec["screenshot_url"])
		}
	}
	utils.Debugf("截图映射: %d 条 (%s)", len(m), path)
	return m, nil
}

// readCSVWithHeader 按表头把每行读成map
func readCSVWithHeader(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取表头失败 [%s]: %w", path, err)
	}

	var records []map[string]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			utils.Warnf("跳过无法解析的行 [%s]: %v", path, err)
			continue
		}
		rec := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				rec[strings.TrimSpace(name)] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
