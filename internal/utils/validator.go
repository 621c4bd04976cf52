package utils

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"golang.org/x/net/http/httpguts"
)

// MaxHeaderValueLength 头部值最大长度 (8KB)
const MaxHeaderValueLength = 8192

// hopByHopHeaders 由colly传输层或Chromium网络栈自行管理的头部
var hopByHopHeaders = []string{
	"Host",
	"Content-Length",
	"Transfer-Encoding",
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Upgrade",
}

// HeaderValidator 校验将同时发给列表页请求和浏览器会话的头部
//
// 名称必须是RFC 7230 token且不含下划线(站点前的nginx会丢弃带下划线的头部);
// 值只允许可打印ASCII,因为Chromium的extraHTTPHeaders会拒绝其他字节。
type HeaderValidator struct {
	maxValueLength int
	managed        map[string]struct{}
}

// NewHeaderValidator 创建验证器
func NewHeaderValidator() *HeaderValidator {
	managed := make(map[string]struct{}, len(hopByHopHeaders))
	for _, h := range hopByHopHeaders {
		managed[http.CanonicalHeaderKey(h)] = struct{}{}
	}
	return &HeaderValidator{maxValueLength: MaxHeaderValueLength, managed: managed}
}

// ValidateName 验证头部名称
func (hv *HeaderValidator) ValidateName(name string) error {
	switch {
	case name == "":
		return &models.ValidationError{Field: "name", Reason: "头部名称不能为空"}
	case !httpguts.ValidHeaderFieldName(name):
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "头部名称不是合法的token",
			Suggestion: "只使用字母、数字和连字符,如 'Accept-Language'",
		}
	case strings.Contains(name, "_"):
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "头部名称包含下划线,会被反向代理丢弃",
			Suggestion: fmt.Sprintf("改为 '%s'", strings.ReplaceAll(name, "_", "-")),
		}
	}
	return nil
}

// ValidateValue 验证头部值
func (hv *HeaderValidator) ValidateValue(name, value string) error {
	if len(value) > hv.maxValueLength {
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     fmt.Sprintf("头部值过长: %d 字节 (最大 %d)", len(value), hv.maxValueLength),
		}
	}
	if !httpguts.ValidHeaderFieldValue(value) || !isASCII(value) {
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     "头部值包含控制字符或非ASCII字符",
			Suggestion: "越南语等文本需先做百分号编码",
		}
	}
	return nil
}

// ValidateHeader 验证单个头部
func (hv *HeaderValidator) ValidateHeader(name, value string) error {
	if hv.IsForbidden(name) {
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "该头部由传输层管理,不允许自定义",
			Suggestion: fmt.Sprintf("从配置中移除 '%s'", name),
		}
	}
	if err := hv.ValidateName(name); err != nil {
		return err
	}
	return hv.ValidateValue(name, value)
}

// IsForbidden 是否为传输层管理的头部,不区分大小写
func (hv *HeaderValidator) IsForbidden(name string) bool {
	_, ok := hv.managed[http.CanonicalHeaderKey(name)]
	return ok
}

// Validate 验证全部头部,按名称顺序汇总所有错误
func (hv *HeaderValidator) Validate(headers http.Header) error {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		for _, value := range headers[name] {
			if err := hv.ValidateHeader(name, value); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
