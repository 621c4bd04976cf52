package cleaning

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// SheetName 工作表名称
const SheetName = "Sheet1"

// WriteWorkbook 用流式写入生成xlsx,第一行为表头
func WriteWorkbook(path string, header []string, rows [][]any) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建输出目录失败: %w", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("创建工作表失败: %w", err)
	}
	if err := sw.SetColWidth(1, len(header), 20); err != nil {
		return err
	}

	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := sw.SetRow("A1", headerRow); err != nil {
		return fmt.Errorf("写入表头失败: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("写入第%d行失败: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("写入工作表失败: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("保存工作簿失败 [%s]: %w", path, err)
	}
	return nil
}

// ReadWorkbook 读取工作簿所有行(含表头)
func ReadWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("打开工作簿失败 [%s]: %w", path, err)
	}
	defer f.Close()
	return f.GetRows(SheetName)
}
