package core

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/config"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
)

// DefaultUserAgent 默认User-Agent
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) " +
	"Chrome/124.0.0.0 Safari/537.36"

// builtinUserAgents 配置文件没有提供UA池时使用的桌面浏览器列表
var builtinUserAgents = []string{
	DefaultUserAgent,
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// headerLayer 一层头部来源,后面的层覆盖前面的层
type headerLayer struct {
	name    string
	headers http.Header
}

// HeaderManager 合并内置、配置文件和命令行三层头部,并提供UA轮换
// 列表页请求和浏览器会话共用同一个实例
type HeaderManager struct {
	builtin headerLayer
	file    headerLayer
	cli     headerLayer

	userAgents []string

	validator *utils.HeaderValidator
	redactor  *utils.HeaderRedactor
	loader    *config.HeaderConfigLoader

	mu        sync.Mutex
	loaded    bool
	validated bool
	validErr  error
}

// NewHeaderManager configFile为空时使用 configs/headers.yaml
// cliHeaders格式错误时立即返回错误,配置文件延迟到LoadConfig读取
func NewHeaderManager(configFile string, cliHeaders []string) (*HeaderManager, error) {
	cli, err := models.CliHeaders(cliHeaders).Parse()
	if err != nil {
		return nil, err
	}

	return &HeaderManager{
		builtin: headerLayer{name: "内置", headers: http.Header{
			"User-Agent":      {DefaultUserAgent},
			"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
			"Accept-Language": {"vi-VN,vi;q=0.9,en;q=0.8"},
			"Accept-Encoding": {"gzip, deflate, br"},
		}},
		file:       headerLayer{name: "配置文件", headers: http.Header{}},
		cli:        headerLayer{name: "命令行", headers: cli},
		userAgents: builtinUserAgents,
		validator:  utils.NewHeaderValidator(),
		redactor:   utils.NewHeaderRedactor(),
		loader:     config.NewHeaderConfigLoader(configFile),
	}, nil
}

// LoadConfig 读取配置文件中的头部和UA池,只读取一次
func (hm *HeaderManager) LoadConfig() error {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.loadLocked()
}

func (hm *HeaderManager) loadLocked() error {
	if hm.loaded {
		return nil
	}

	cfg, err := hm.loader.LoadConfig()
	if err != nil {
		utils.Errorf("加载HTTP头部配置失败: %v", err)
		return err
	}

	file := make(http.Header, len(cfg.Headers))
	for name, value := range cfg.Headers {
		file.Set(name, value)
	}
	hm.file.headers = file
	if len(cfg.UserAgents) > 0 {
		hm.userAgents = cfg.UserAgents
	}
	hm.loaded = true

	if len(file) > 0 {
		utils.Debugf("从 %s 加载了 %d 个头部: %s", hm.loader.Path(), len(file), hm.redactor.RedactToString(file))
	}
	utils.Debugf("User-Agent池大小: %d", len(hm.userAgents))
	return nil
}

// Validate 逐层校验头部和UA池,结果缓存
func (hm *HeaderManager) Validate() error {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	return hm.validateLocked()
}

func (hm *HeaderManager) validateLocked() error {
	if hm.validated {
		return hm.validErr
	}
	hm.validated = true

	for _, layer := range []headerLayer{hm.builtin, hm.file, hm.cli} {
		if err := hm.validator.Validate(layer.headers); err != nil {
			hm.validErr = fmt.Errorf("%s头部无效: %w", layer.name, err)
			utils.Errorf("%v", hm.validErr)
			return hm.validErr
		}
	}
	for i, ua := range hm.userAgents {
		if err := hm.validator.ValidateHeader("User-Agent", ua); err != nil {
			hm.validErr = fmt.Errorf("User-Agent池第%d项无效: %w", i+1, err)
			utils.Errorf("%v", hm.validErr)
			return hm.validErr
		}
	}
	return nil
}

// GetMergedHeaders 按 内置 < 配置文件 < 命令行 合并,返回副本
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	merged := make(http.Header)
	for _, layer := range []headerLayer{hm.builtin, hm.file, hm.cli} {
		for name, values := range layer.headers {
			merged[name] = append([]string(nil), values...)
		}
	}
	return merged
}

// GetSafeHeaders 脱敏后的合并头部,用于日志和doctor输出
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	return hm.redactor.Redact(hm.GetMergedHeaders())
}

// RandomUserAgent 命令行指定了User-Agent时始终返回该值,否则从UA池随机选择
func (hm *HeaderManager) RandomUserAgent() string {
	if ua := hm.cli.headers.Get("User-Agent"); ua != "" {
		return ua
	}
	if len(hm.userAgents) == 0 {
		return DefaultUserAgent
	}
	return hm.userAgents[rand.IntN(len(hm.userAgents))]
}

// GetHeaders 每次调用轮换一次User-Agent
// 首次调用时加载并校验配置,之后复用结果
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	hm.mu.Lock()
	err := hm.loadLocked()
	if err == nil {
		err = hm.validateLocked()
	}
	hm.mu.Unlock()
	if err != nil {
		return nil, err
	}

	headers := hm.GetMergedHeaders()
	headers.Set("User-Agent", hm.RandomUserAgent())
	return headers, nil
}
