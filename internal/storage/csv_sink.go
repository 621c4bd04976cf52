package storage

import (
	"bytes"
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

const (
	// FeatureDelimiter features列的元素分隔符
	// 特征文本形如 "Số tầng: 4",含冒号,所以不能用 ": " 作分隔符
	FeatureDelimiter = "; "

	// DescriptionDelimiter property_description列的元素分隔符
	// 描述片段常含句号,所以不能用 ". " 作分隔符
	DescriptionDelimiter = " | "
)

// CSVSink 增量CSV输出
// 每写一行都flush并fsync,崩溃最多丢失正在写的一条记录
type CSVSink struct {
	path   string
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
	rows   int
	closed bool
}

// OpenCSVSink 打开详情输出文件
// resume为true时以追加模式打开,否则截断重写;表头仅在文件为空时写入一次
func OpenCSVSink(path string, resume bool) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if resume {
		if err := repairTrailingPartialRow(path); err != nil {
			return nil, err
		}
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开输出文件失败 [%s]: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("读取输出文件信息失败: %w", err)
	}

	sink := &CSVSink{
		path:   path,
		file:   f,
		writer: csv.NewWriter(f),
	}

	if info.Size() == 0 {
		if err := sink.writeRow(models.DetailColumns); err != nil {
			f.Close()
			return nil, fmt.Errorf("写入表头失败: %w", err)
		}
	}

	utils.Debugf("输出文件已打开: %s (续写=%v, 原大小=%d)", path, resume, info.Size())
	return sink, nil
}

// repairTrailingPartialRow 截掉上次崩溃留下的不完整末行
// 行内不允许出现换行符,因此最后一个换行符之后的内容就是不完整的记录
func repairTrailingPartialRow(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("读取输出文件失败 [%s]: %w", path, err)
	}
	if len(data) == 0 || data[len(data)-1] == '\n' {
		return nil
	}

	keep := bytes.LastIndexByte(data, '\n') + 1
	utils.Warnf("检测到不完整的末行,截断 %d 字节: %s", len(data)-keep, path)
	if err := os.Truncate(path, int64(keep)); err != nil {
		return fmt.Errorf("修复输出文件失败 [%s]: %w", path, err)
	}
	return nil
}

// Write 写入一条记录并落盘
// 并发安全,行之间不会交错
func (s *CSVSink) Write(listing *models.Listing) error {
	if listing == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return models.ErrSinkClosed
	}
	if err := s.writeRow(ListingToRow(listing)); err != nil {
		return fmt.Errorf("写入记录失败 [%s]: %w", models.Deref(listing.PropertyURL), err)
	}
	s.rows++
	return nil
}

// writeRow 写一行,flush后fsync
func (s *CSVSink) writeRow(row []string) error {
	if err := s.writer.Write(row); err != nil {
		return err
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return err
	}
	return s.file.Sync()
}

// Rows 返回本次打开后写入的记录数
func (s *CSVSink) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}

// Path 返回输出文件路径
func (s *CSVSink) Path() string {
	return s.path
}

// Close 关闭输出文件,可重复调用
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.writer.Flush()
	flushErr := s.writer.Error()
	closeErr := s.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// ListingToRow 将记录序列化为CSV行,列顺序见models.DetailColumns
func ListingToRow(l *models.Listing) []string {
	return []string{
		cell(l.ListingTitle),
		cell(l.PropertyID),
		cell(l.TotalPrice),
		cell(l.UnitPrice),
		cell(l.PropertyURL),
		cell(l.ImageURL),
		cell(l.City),
		cell(l.District),
		cell(l.AlleyWidth),
		JoinList(l.Features, FeatureDelimiter),
		JoinList(l.PropertyDescription, DescriptionDelimiter),
	}
}

// RowToListing 将CSV行还原为记录,空单元格还原为nil
func RowToListing(row []string) (*models.Listing, error) {
	if len(row) != len(models.DetailColumns) {
		return nil, fmt.Errorf("列数不匹配: 期望%d列,实际%d列", len(models.DetailColumns), len(row))
	}
	return &models.Listing{
		ListingTitle:        models.StringPtr(row[0]),
		PropertyID:          models.StringPtr(row[1]),
		TotalPrice:          models.StringPtr(row[2]),
		UnitPrice:           models.StringPtr(row[3]),
		PropertyURL:         models.StringPtr(row[4]),
		ImageURL:            models.StringPtr(row[5]),
		City:                models.StringPtr(row[6]),
		District:            models.StringPtr(row[7]),
		AlleyWidth:          models.StringPtr(row[8]),
		Features:            SplitList(row[9], FeatureDelimiter),
		PropertyDescription: SplitList(row[10], DescriptionDelimiter),
	}, nil
}

func cell(v *string) string {
	return singleLine(models.Deref(v))
}

// singleLine 把换行折叠为空格
func singleLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.Join(strings.Fields(s), " ")
}

// JoinList 用分隔符拼接列表
// 元素中出现的分隔符核心字符会被替换,保证可以无歧义地拆回
func JoinList(items []string, delim string) string {
	core := strings.TrimSpace(delim)
	replacement := ","
	if core == "," {
		replacement = ";"
	}

	parts := make([]string, 0, len(items))
	for _, item := range items {
		item = singleLine(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		parts = append(parts, strings.ReplaceAll(item, core, replacement))
	}
	return strings.Join(parts, delim)
}

// SplitList 按分隔符拆分,JoinList的逆操作
func SplitList(s string, delim string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, delim)
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, p)
		}
	}
	return items
}

// ReadListings 读取详情CSV中所有完整的记录
// 列数不符或文件末尾缺少换行的行会被跳过
func ReadListings(path string) ([]*models.Listing, error) {
	rows, err := readCompleteRows(path)
	if err != nil {
		return nil, err
	}

	listings := make([]*models.Listing, 0, len(rows))
	for _, row := range rows {
		l, err := RowToListing(row)
		if err != nil {
			continue
		}
		listings = append(listings, l)
	}
	return listings, nil
}

// readCompleteRows 读取表头之后所有完整的行
func readCompleteRows(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	// 没有以换行结尾说明最后一行是崩溃时写了一半的
	if data[len(data)-1] != '\n' {
		data = data[:bytes.LastIndexByte(data, '\n')+1]
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	header := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			utils.Warnf("跳过无法解析的行 [%s]: %v", path, err)
			continue
		}
		if header {
			header = false
			if len(row) > 0 && strings.TrimPrefix(row[0], "\ufeff") == models.DetailColumns[0] {
				continue
			}
		}
		if len(row) != len(models.DetailColumns) {
			utils.Warnf("跳过列数不匹配的行 [%s]: %d列", path, len(row))
			continue
		}
		rows = append(rows, row)
	}

	return rows, nil
}
