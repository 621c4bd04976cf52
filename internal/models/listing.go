package models

// DetailColumns 详情CSV的固定列顺序
var DetailColumns = []string{
	"listing_title",
	"property_id",
	"total_price",
	"unit_price",
	"property_url",
	"image_url",
	"city",
	"district",
	"alley_width",
	"features",
	"property_description",
}

// Listing 房源详情记录
// 每个字段都可能缺失(nil),彼此独立
type Listing struct {
	ListingTitle        *string  `json:"listing_title"`
	PropertyID          *string  `json:"property_id"`
	TotalPrice          *string  `json:"total_price"`
	UnitPrice           *string  `json:"unit_price"`
	PropertyURL         *string  `json:"property_url"`
	ImageURL            *string  `json:"image_url"`
	City                *string  `json:"city"`
	District            *string  `json:"district"`
	AlleyWidth          *string  `json:"alley_width"`
	Features            []string `json:"features"`
	PropertyDescription []string `json:"property_description"`
}

// StringPtr 返回非空字符串的指针,空字符串返回nil
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref 解引用,nil返回空字符串
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// HasContent 判断记录是否至少提取到一个页面字段
// property_url来自分发的URL,不计入
func (l *Listing) HasContent() bool {
	if l == nil {
		return false
	}
	for _, f := range []*string{
		l.ListingTitle, l.PropertyID, l.TotalPrice, l.UnitPrice,
		l.ImageURL, l.City, l.District, l.AlleyWidth,
	} {
		if f != nil {
			return true
		}
	}
	return len(l.Features) > 0 || len(l.PropertyDescription) > 0
}

// Key 返回记录的自然键: 优先property_id,否则property_url
func (l *Listing) Key() string {
	if id := Deref(l.PropertyID); id != "" {
		return "id:" + id
	}
	return "url:" + Deref(l.PropertyURL)
}
