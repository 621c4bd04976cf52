package cleaning

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// 建筑单价(đ/m2)
const (
	UnitPriceSingleFloor = 6275876 // 一层
	UnitPriceBasement    = 9504604 // 有地下室
	UnitPriceMultiFloor  = 8221171 // 多层

	// RemainingQuality 有建筑时的剩余质量
	RemainingQuality = 0.85

	// EstimateRatio 估价 = 挂牌价 × EstimateRatio
	EstimateRatio = 0.98
)

var (
	cityPattern     = regexp.MustCompile(`(?i)(TP\.|Thành phố)\s*([^.,\n]+)`)
	districtPattern = regexp.MustCompile(`(?i)\b(Q\.|H\.|TX\.)\s*([^.,\n]+)`)

	streetNearPattern  = regexp.MustCompile(`(?i)(?:Nhà mặt ngõ|Đất nền|Nhà trong ngõ).*?cách\s+(.*?)\s*\d+(?:\.\d+)?m`)
	streetFrontPattern = regexp.MustCompile(`(?i)(?:Nhà mặt phố|Mặt đường)\s+([^,]+?)\s*,`)
	landPrefixPattern  = regexp.MustCompile(`(?i)Đất nền\s+`)
	landStreetPattern  = regexp.MustCompile(`^([^,]+?)\s*,`)
	trailingParen      = regexp.MustCompile(`\s*\(.*\)\s*$`)

	floorPattern    = regexp.MustCompile(`(?i)Số tầng:\s*(\d+(?:\.\d+)?)`)
	basementPattern = regexp.MustCompile(`(?i)Số tầng hầm:\s*(\d+(?:\.\d+)?)`)
	frontagePattern = regexp.MustCompile(`(?i)(\d+)\s*mặt tiền`)
	numberPattern   = regexp.MustCompile(`\d+(?:\.\d+)?`)

	landAreaPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Diện tích:\s*(\d+(?:\.\d+)?)`),
		regexp.MustCompile(`(?i)diện tích đất thực tế là\s*([\d.]+)m²`),
	}
	frontWidthPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Hướng mặt tiền\s*:[^;-]+?-\s*(\d+(?:\.\d+)?)\s*m`),
		regexp.MustCompile(`(?i)Nhà mặt tiền\s+(\d+(?:\.\d+)?)\s*m`),
	}
	mainRoadDescPattern  = regexp.MustCompile(`(?i)khoảng cách ra trục đường chính\s*(\d+(?:\.\d+)?)\s*m`)
	mainRoadTitlePattern = regexp.MustCompile(`(?i)cách\s+.*?\s+(\d+(?:\.\d+)?)\s*m`)
)

// City 省/市: 优先面包屑,否则从标题提取
func City(raw, title string) string {
	if raw = strings.TrimSpace(raw); raw != "" {
		return strings.TrimSpace(strings.ReplaceAll(raw, "TP.", "Thành phố"))
	}
	if m := cityPattern.FindStringSubmatch(title); m != nil {
		return "Thành phố " + strings.TrimSpace(m[2])
	}
	return ""
}

// District 区/县/市镇: 优先面包屑,否则从标题提取
func District(raw, title string) string {
	if raw = strings.TrimSpace(raw); raw != "" {
		r := strings.NewReplacer("Q.", "Quận", "H.", "Huyện", "TX.", "Thị xã")
		return strings.TrimSpace(r.Replace(raw))
	}
	m := districtPattern.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	name := strings.TrimSpace(m[2])
	switch strings.ToUpper(m[1]) {
	case "Q.":
		return "Quận " + name
	case "H.":
		return "Huyện " + name
	case "TX.":
		return "Thị xã " + name
	}
	return ""
}

// Ward 坊/社/市镇: 标题中紧挨在原始区名之前的P./X./TT.段
func Ward(title, rawDistrict string) string {
	rawDistrict = strings.TrimSpace(rawDistrict)
	if title == "" || rawDistrict == "" {
		return ""
	}

	pattern := regexp.MustCompile(`,\s*((?:P|X|TT)\.\s*[^,]+?)\s*,\s*` + regexp.QuoteMeta(rawDistrict))
	if m := pattern.FindStringSubmatch(title); m != nil {
		return standardizeWard(m[1])
	}

	parts := strings.Split(title, ",")
	for i, part := range parts {
		if strings.TrimSpace(part) != rawDistrict {
			continue
		}
		if i > 0 {
			prev := strings.TrimSpace(parts[i-1])
			upper := strings.ToUpper(prev)
			if strings.HasPrefix(upper, "P.") || strings.HasPrefix(upper, "X.") || strings.HasPrefix(upper, "TT.") {
				return standardizeWard(prev)
			}
		}
		break
	}
	return ""
}

func standardizeWard(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "P."):
		return strings.TrimSpace("Phường" + s[len("P."):])
	case strings.HasPrefix(s, "X."):
		return strings.TrimSpace("Xã" + s[len("X."):])
	case strings.HasPrefix(s, "TT."):
		return strings.TrimSpace("Thị trấn" + s[len("TT."):])
	}
	return s
}

// Street 街道名
func Street(title string) string {
	if title == "" {
		return ""
	}
	for _, extract := range []func(string) (string, bool){streetNear, streetFront, streetLand} {
		if name, ok := extract(title); ok {
			return strings.TrimSpace(trailingParen.ReplaceAllString(strings.TrimSpace(name), ""))
		}
	}
	return ""
}

func streetNear(title string) (string, bool) {
	if m := streetNearPattern.FindStringSubmatch(title); m != nil {
		return m[1], true
	}
	return "", false
}

func streetFront(title string) (string, bool) {
	if m := streetFrontPattern.FindStringSubmatch(title); m != nil {
		return m[1], true
	}
	return "", false
}

// streetLand "Đất nền <街道>," 且其后同一行不出现"cách"
func streetLand(title string) (string, bool) {
	for _, loc := range landPrefixPattern.FindAllStringIndex(title, -1) {
		rest := title[loc[1]:]
		line := rest
		if i := strings.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
		}
		if strings.Contains(strings.ToLower(line), "cách") {
			continue
		}
		if m := landStreetPattern.FindStringSubmatch(rest); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// PropertyType 标题含"cách"为巷内,否则临街
func PropertyType(title string) string {
	if title == "" {
		return ""
	}
	if strings.Contains(title, "cách") {
		return "Mặt ngõ"
	}
	return "Mặt phố"
}

// Price 把"2,5 tỷ"、"800 triệu"之类的价格转为数值
func Price(raw string) *float64 {
	s := strings.TrimSpace(strings.ReplaceAll(strings.ToLower(raw), ",", "."))
	if s == "" {
		return nil
	}
	multiplier := 1.0
	switch {
	case strings.Contains(s, "tỷ"):
		s = strings.ReplaceAll(s, "tỷ", "")
		multiplier = 1e9
	case strings.Contains(s, "triệu"):
		s = strings.ReplaceAll(s, "triệu", "")
		multiplier = 1e6
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return ptr(v * multiplier)
}

// EstimatedPrice 估价
func EstimatedPrice(price *float64) *float64 {
	if price == nil {
		return nil
	}
	return ptr(round2(*price * EstimateRatio))
}

func isLand(title string) bool {
	return strings.Contains(strings.ToLower(title), "đất nền")
}

// Floors 楼层数(地上+地下);土地为0,没有信息为nil
func Floors(title, text string) *float64 {
	if isLand(title) {
		return ptr(0)
	}
	floor, hasFloor := firstNumber(floorPattern, text)
	basement, hasBasement := firstNumber(basementPattern, text)
	if !hasFloor && !hasBasement {
		return nil
	}
	return ptr(floor + basement)
}

// Frontages 临街面数,默认1
func Frontages(description string) int {
	if m := frontagePattern.FindStringSubmatch(description); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 1
}

// LandArea 土地面积
func LandArea(text string) *float64 {
	for _, p := range landAreaPatterns {
		if v, ok := firstNumber(p, text); ok {
			return ptr(v)
		}
	}
	return nil
}

// FrontWidth 面宽,依次在特征和描述中查找
func FrontWidth(features, description string) *float64 {
	for _, text := range []string{features, description} {
		if text == "" {
			continue
		}
		for _, p := range frontWidthPatterns {
			if v, ok := firstNumber(p, text); ok {
				return ptr(v)
			}
		}
	}
	return nil
}

// RemainingQualityFor 剩余质量;土地返回nil
func RemainingQualityFor(title string) *float64 {
	if isLand(title) {
		return nil
	}
	return ptr(RemainingQuality)
}

// ConstructionUnitPrice 建筑单价
// 按"đất nền"是否出现在特征和描述中判断土地
func ConstructionUnitPrice(text string) *float64 {
	if strings.Contains(text, "đất nền") {
		return nil
	}
	floor, _ := firstNumber(floorPattern, text)
	basement, hasBasement := firstNumber(basementPattern, text)
	total := floor + basement

	switch {
	case total == 1:
		return ptr(UnitPriceSingleFloor)
	case hasBasement && basement > 0:
		return ptr(UnitPriceBasement)
	case total > 1:
		return ptr(UnitPriceMultiFloor)
	}
	return nil
}

// TotalFloorArea 总建筑面积 = 楼层数(未知按1) × 土地面积
func TotalFloorArea(floors, area *float64) *float64 {
	if area == nil {
		return nil
	}
	f := 1.0
	if floors != nil {
		f = *floors
	}
	return ptr(round2(f * *area))
}

// Length 进深 = 面积 / 面宽
func Length(area, width *float64) *float64 {
	if area == nil || width == nil || *width == 0 {
		return nil
	}
	return ptr(round2(*area / *width))
}

// AlleyWidth 最窄巷宽: 巷宽字段中的最小数值,没有时看描述
func AlleyWidth(alley, description string) *float64 {
	for _, text := range []string{alley, description} {
		nums := numberPattern.FindAllString(text, -1)
		if len(nums) == 0 {
			continue
		}
		lowest := math.Inf(1)
		for _, n := range nums {
			if v, err := strconv.ParseFloat(n, 64); err == nil && v < lowest {
				lowest = v
			}
		}
		if !math.IsInf(lowest, 1) {
			return ptr(lowest)
		}
	}
	return nil
}

// DistanceToMainRoad 到主路距离;临街为0
func DistanceToMainRoad(title, description string) float64 {
	if strings.Contains(strings.ToLower(title), "mặt phố") {
		return 0
	}
	if v, ok := firstNumber(mainRoadDescPattern, description); ok {
		return v
	}
	if v, ok := firstNumber(mainRoadTitlePattern, title); ok {
		return v
	}
	return 0
}

func firstNumber(p *regexp.Regexp, text string) (float64, bool) {
	m := p.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr(v float64) *float64 {
	return &v
}
