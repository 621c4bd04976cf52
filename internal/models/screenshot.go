package models

// 截图失败原因
const (
	ReasonScreenshotFailed = "screenshot_failed"
	ReasonUploadFailed     = "upload_failed"
	// ReasonAbandoned 运行被中断,URL尚未处理完
	ReasonAbandoned = "abandoned"
)

// ImageMapColumns 截图映射CSV列
var ImageMapColumns = []string{"property_id", "screenshot_url"}

// FailureColumns 截图失败CSV列
var FailureColumns = []string{"url", "property_id", "reason"}

// ImageMapEntry 房源编号与截图地址的映射
type ImageMapEntry struct {
	PropertyID    string `json:"property_id"`
	ScreenshotURL string `json:"screenshot_url"`
}

// ScreenshotFailure 截图或上传失败记录
type ScreenshotFailure struct {
	URL        string `json:"url"`
	PropertyID string `json:"property_id"`
	Reason     string `json:"reason"`
}
