// Package cleaning 把原始详情CSV整理成估价用的工作簿
package cleaning

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/storage"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
)

// Columns 输出工作簿的列,顺序固定
var Columns = []string{
	"Tỉnh/Thành phố",
	"Quận/Huyện/Thị xã",
	"Xã/Phường/Thị trấn",
	"Đường phố",
	"Địa chỉ chi tiết",
	"Nguồn thông tin",
	"Tình trạng giao dịch",
	"Thời điểm giao dịch/rao bán",
	"Thông tin liên hệ",
	"Giá rao bán/giao dịch",
	"Giá ước tính",
	"Loại đơn giá (đ/m2 hoặc đ/m ngang)",
	"Đơn giá đất",
	"Số tầng công trình",
	"Chất lượng còn lại",
	"Giá trị công trình xây dựng",
	"Đơn giá xây dựng",
	"Diện tích đất (m2)",
	"Tổng diện tích sàn",
	"Kích thước mặt tiền (m)",
	"Kích thước chiều dài",
	"Số mặt tiền tiếp giáp",
	"Hình dạng",
	"Độ rộng ngõ/ngách nhỏ nhất (m)",
	"Khoảng cách tới trục đường chính (m)",
	"Mục đích sử dụng đất",
	"Hình ảnh của bài đăng",
	"Ảnh chụp màn hình thông tin thu thập",
	"Yếu tố khác",
}

// 常量列
const (
	TransactionStatus = "Chưa giao dịch"
	PriceUnitType     = "đ/m2"
	LandShape         = "Chữ nhật"
	LandUse           = "Đất ở"
)

// Result 清洗结果
type Result struct {
	Loaded             int  // 读取的记录数
	Duplicates         int  // 去重删除的记录数
	Written            int  // 写入工作簿的行数
	ImageMapFound      bool // 截图映射是否存在
	MissingScreenshots int  // 没有截图地址的行数
}

// Cleaner 数据清洗器
type Cleaner struct {
	detailsPath  string
	imageMapPath string
	outputPath   string
}

// NewCleaner 创建清洗器
func NewCleaner(detailsPath, imageMapPath, outputPath string) *Cleaner {
	return &Cleaner{
		detailsPath:  detailsPath,
		imageMapPath: imageMapPath,
		outputPath:   outputPath,
	}
}

// Run 读取详情CSV,合并截图映射,去重,派生字段并写出工作簿
func (c *Cleaner) Run() (*Result, error) {
	if _, err := os.Stat(c.detailsPath); err != nil {
		return nil, fmt.Errorf("详情文件不存在 [%s]: %w", c.detailsPath, err)
	}

	listings, err := storage.ReadListings(c.detailsPath)
	if err != nil {
		return nil, fmt.Errorf("读取详情文件失败: %w", err)
	}
	result := &Result{Loaded: len(listings)}

	images, err := storage.LoadImageMap(c.imageMapPath)
	switch {
	case err == nil:
		result.ImageMapFound = true
		utils.Infof("🖼️  已合并截图映射: %d 条", len(images))
	case errors.Is(err, os.ErrNotExist):
		utils.Warnf("截图映射不存在 [%s],截图列留空", c.imageMapPath)
	default:
		return nil, fmt.Errorf("读取截图映射失败: %w", err)
	}

	unique, dropped := Dedupe(listings)
	result.Duplicates = dropped
	if dropped > 0 {
		utils.Infof("按property_id去重: 删除 %d 条", dropped)
	}

	rows := make([][]any, 0, len(unique))
	for _, l := range unique {
		screenshot := images[models.Deref(l.PropertyID)]
		if screenshot == "" {
			result.MissingScreenshots++
		}
		rows = append(rows, CleanRow(l, screenshot))
	}

	if err := WriteWorkbook(c.outputPath, Columns, rows); err != nil {
		return nil, err
	}
	result.Written = len(rows)

	utils.Infof("✅ 清洗完成: 读取 %d, 去重 %d, 写入 %d -> %s",
		result.Loaded, result.Duplicates, result.Written, c.outputPath)
	return result, nil
}

// Dedupe 按property_id去重保留第一条;没有编号的按URL去重
func Dedupe(listings []*models.Listing) ([]*models.Listing, int) {
	seen := make(map[string]struct{}, len(listings))
	unique := make([]*models.Listing, 0, len(listings))
	for _, l := range listings {
		key := l.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, l)
	}
	return unique, len(listings) - len(unique)
}

// CleanRow 把一条原始记录转换为工作簿的一行,顺序同Columns
func CleanRow(l *models.Listing, screenshotURL string) []any {
	title := models.Deref(l.ListingTitle)
	rawDistrict := models.Deref(l.District)
	features := storage.JoinList(l.Features, storage.FeatureDelimiter)
	description := storage.JoinList(l.PropertyDescription, storage.DescriptionDelimiter)
	text := strings.TrimSpace(features + " " + description)

	price := Price(models.Deref(l.TotalPrice))
	floors := Floors(title, text)
	area := LandArea(text)
	width := FrontWidth(features, description)

	return []any{
		str(City(models.Deref(l.City), title)),
		str(District(rawDistrict, title)),
		str(Ward(title, rawDistrict)),
		str(Street(title)),
		PropertyType(title),
		str(models.Deref(l.PropertyURL)),
		TransactionStatus,
		nil,
		"",
		num(price),
		num(EstimatedPrice(price)),
		PriceUnitType,
		"",
		num(floors),
		num(RemainingQualityFor(title)),
		"",
		num(ConstructionUnitPrice(text)),
		num(area),
		num(TotalFloorArea(floors, area)),
		num(width),
		num(Length(area, width)),
		Frontages(description),
		LandShape,
		num(AlleyWidth(models.Deref(l.AlleyWidth), description)),
		DistanceToMainRoad(title, description),
		LandUse,
		str(models.Deref(l.ImageURL)),
		str(screenshotURL),
		"",
	}
}

// num nil保持为空单元格
func num(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// str 空字符串写为空单元格
func str(s string) any {
	if s == "" {
		return nil
	}
	return s
}
