package crawlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// 详情页定位器
const (
	selTitle       = "#detail_title"
	selPropertyID  = "#container-property div:nth-child(5) div.flex.cursor-pointer p"
	selTotalPrice  = "#total-price"
	selUnitPrice   = "#unit-price"
	selCanonical   = `link[rel="canonical"]`
	selLDJSON      = `script[type="application/ld+json"]`
	selFeatureItem = `[id="key-feature-item"]`
	selFeatureName = `[id="item_title"]`
	selFeatureText = `[id="key-feature-text"]`
	selDescription = `ul[aria-label="description-heading"].relative li`

	xpathAlleyWidth   = `//*[@id="overview_content"]//div[@data-impression-index="1"]`
	xpathPreloadImage = `//link[@rel="preload" and @as="image"]`
)

// ListingExtractor 详情页字段提取器
// 每个字段独立提取,任一字段失败只影响该字段
type ListingExtractor struct{}

// NewListingExtractor 创建提取器
func NewListingExtractor() *ListingExtractor {
	return &ListingExtractor{}
}

// Scrape 用会话渲染url并提取记录
// 页面上一个字段都没有时返回ErrEmptyPage,由重试策略决定是否再试
func (e *ListingExtractor) Scrape(ctx context.Context, session Session, url string) (*models.Listing, error) {
	content, err := session.Render(ctx, url)
	if err != nil {
		return nil, err
	}

	listing, err := e.Extract(content, url)
	if err != nil {
		return nil, err
	}
	if !listing.HasContent() {
		return nil, fmt.Errorf("%w: %s", models.ErrEmptyPage, url)
	}
	return listing, nil
}

// Extract 从渲染后的HTML中提取记录
// property_url始终取分发的URL
func (e *ListingExtractor) Extract(content string, url string) (*models.Listing, error) {
	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败 [%s]: %w", url, err)
	}
	doc := goquery.NewDocumentFromNode(root)

	listing := &models.Listing{PropertyURL: models.StringPtr(url)}

	guard(url, "listing_title", func() { listing.ListingTitle = selectText(doc, selTitle) })
	guard(url, "property_id", func() { listing.PropertyID = selectText(doc, selPropertyID) })
	guard(url, "total_price", func() { listing.TotalPrice = selectText(doc, selTotalPrice) })
	guard(url, "unit_price", func() { listing.UnitPrice = selectText(doc, selUnitPrice) })
	guard(url, "alley_width", func() { listing.AlleyWidth = xpathText(root, xpathAlleyWidth) })
	guard(url, "image_url", func() { listing.ImageURL = preloadImage(root) })
	guard(url, "breadcrumb", func() { listing.City, listing.District = breadcrumb(doc) })
	guard(url, "features", func() { listing.Features = features(doc) })
	guard(url, "property_description", func() { listing.PropertyDescription = descriptions(doc) })

	if canonical, ok := doc.Find(selCanonical).First().Attr("href"); ok && canonical != "" && canonical != url {
		utils.Debugf("canonical与分发URL不一致,以分发URL为准: %s -> %s", url, canonical)
	}

	return listing, nil
}

// PropertyID 只提取房源编号
func (e *ListingExtractor) PropertyID(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}
	if id := selectText(doc, selPropertyID); id != nil {
		return *id
	}
	// 部分页面编号容器没有flex类
	return models.Deref(selectText(doc, "#container-property div:nth-child(5) div.cursor-pointer p"))
}

// guard 隔离单个字段的提取,panic只影响该字段
func guard(url, field string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			utils.Debugf("字段提取失败 [%s] %s: %v", url, field, r)
		}
	}()
	fn()
}

// normalizeText 折叠空白,与浏览器可见文本一致
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func selectText(doc *goquery.Document, selector string) *string {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil
	}
	return models.StringPtr(normalizeText(sel.Text()))
}

func xpathText(root *html.Node, expr string) *string {
	node, err := htmlquery.Query(root, expr)
	if err != nil || node == nil {
		return nil
	}
	return models.StringPtr(normalizeText(htmlquery.InnerText(node)))
}

// preloadImage 取预加载主图srcset的第一个候选地址
func preloadImage(root *html.Node) *string {
	node, err := htmlquery.Query(root, xpathPreloadImage)
	if err != nil || node == nil {
		return nil
	}
	srcset := strings.TrimSpace(htmlquery.SelectAttr(node, "imagesrcset"))
	if srcset == "" {
		return nil
	}
	fields := strings.Fields(strings.Split(srcset, ",")[0])
	if len(fields) == 0 {
		return nil
	}
	return models.StringPtr(fields[0])
}

// breadcrumbList 结构化数据中的面包屑
type breadcrumbList struct {
	Type            any              `json:"@type"`
	ItemListElement []breadcrumbItem `json:"itemListElement"`
}

type breadcrumbItem struct {
	Position json.RawMessage `json:"position"`
	Name     string          `json:"name"`
	Item     json.RawMessage `json:"item"`
}

// position 兼容数字和字符串两种写法
func (b breadcrumbItem) position() int {
	raw := strings.Trim(string(b.Position), `"`)
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}

// name 优先取name,其次取item.name
func (b breadcrumbItem) name() string {
	if b.Name != "" {
		return b.Name
	}
	var item struct {
		Name string `json:"name"`
	}
	if len(b.Item) > 0 && json.Unmarshal(b.Item, &item) == nil {
		return item.Name
	}
	return ""
}

// breadcrumb 从面包屑中取城市(第2级)和区县(第3级)
func breadcrumb(doc *goquery.Document) (city, district *string) {
	doc.Find(selLDJSON).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, list := range parseBreadcrumbs(s.Text()) {
			for _, item := range list.ItemListElement {
				switch item.position() {
				case 2:
					city = models.StringPtr(normalizeText(item.name()))
				case 3:
					district = models.StringPtr(normalizeText(item.name()))
				}
			}
			if city != nil || district != nil {
				return false
			}
		}
		return true
	})
	return city, district
}

// parseBreadcrumbs 解析ld+json块,支持单个对象、数组和@graph
func parseBreadcrumbs(raw string) []breadcrumbList {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var candidates []json.RawMessage
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
			return nil
		}
	} else {
		var graph struct {
			Graph []json.RawMessage `json:"@graph"`
		}
		if err := json.Unmarshal([]byte(raw), &graph); err != nil {
			return nil
		}
		candidates = append(graph.Graph, json.RawMessage(raw))
	}

	var lists []breadcrumbList
	for _, c := range candidates {
		var list breadcrumbList
		if err := json.Unmarshal(c, &list); err != nil {
			continue
		}
		if t, _ := list.Type.(string); t == "BreadcrumbList" && len(list.ItemListElement) > 0 {
			lists = append(lists, list)
		}
	}
	return lists
}

// features 每个特征行格式化为 "标题: 内容"
func features(doc *goquery.Document) []string {
	var items []string
	doc.Find(selFeatureItem).Each(func(_ int, s *goquery.Selection) {
		title := normalizeText(s.Find(selFeatureName).First().Text())
		text := normalizeText(s.Find(selFeatureText).First().Text())
		if title != "" && text != "" {
			items = append(items, title+": "+text)
		}
	})
	return items
}

// descriptions 描述片段取自li的data-testid属性
func descriptions(doc *goquery.Document) []string {
	var items []string
	doc.Find(selDescription).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("data-testid"); ok {
			if v = normalizeText(v); v != "" {
				items = append(items, v)
			}
		}
	})
	return items
}
