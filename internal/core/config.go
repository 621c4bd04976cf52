package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀,如 ONEHOUSING_SCRAPE_MAX_WORKERS
const EnvPrefix = "ONEHOUSING"

// Config 应用程序配置
type Config struct {
	Scrape     models.ScrapeConfig `mapstructure:"scrape"`
	Output     OutputConfig        `mapstructure:"output"`
	Screenshot ScreenshotConfig    `mapstructure:"screenshot"`
	Cloudinary CloudinaryConfig    `mapstructure:"cloudinary"`
	Logging    LoggingConfig       `mapstructure:"logging"`

	// 实际读取的配置文件,未找到时为空
	ConfigFile string `mapstructure:"-"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
// 相对文件名都位于DataDir下
type OutputConfig struct {
	DataDir       string `mapstructure:"data_dir" validate:"required"`
	URLsFile      string `mapstructure:"urls_file" validate:"required"`
	DetailsFile   string `mapstructure:"details_file" validate:"required"`
	CleanedFile   string `mapstructure:"cleaned_file" validate:"required"`
	ImageMapFile  string `mapstructure:"image_map_file" validate:"required"`
	ScreenshotDir string `mapstructure:"screenshot_dir" validate:"required"`
	ReportDir     string `mapstructure:"report_dir" validate:"required"`
}

// ScreenshotConfig 截图上传配置
type ScreenshotConfig struct {
	Concurrency int `mapstructure:"concurrency" validate:"min=1,max=32"`
	Quality     int `mapstructure:"quality" validate:"min=1,max=100"`
	ContentWait int `mapstructure:"content_wait" validate:"min=0,max=120"` // 等待#container-property的秒数
}

// CloudinaryConfig 图床配置,凭据通常来自.env
type CloudinaryConfig struct {
	CloudName string `mapstructure:"cloud_name"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Folder    string `mapstructure:"folder"`
}

// Configured 凭据是否齐全
func (c CloudinaryConfig) Configured() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

var configValidator = validator.New()

// LoadConfig 加载配置文件
// 顺序: .env → 默认值 → 配置文件 → ONEHOUSING_* 环境变量
func LoadConfig(configPath string) (*Config, error) {
	// .env 只补充尚未设置的环境变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		utils.Warnf("读取.env失败: %v", err)
	}

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".onehousing"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Cloudinary凭据沿用通用环境变量名
	_ = v.BindEnv("cloudinary.cloud_name", EnvPrefix+"_CLOUDINARY_CLOUD_NAME", "CLOUDINARY_CLOUD_NAME")
	_ = v.BindEnv("cloudinary.api_key", EnvPrefix+"_CLOUDINARY_API_KEY", "CLOUDINARY_API_KEY")
	_ = v.BindEnv("cloudinary.api_secret", EnvPrefix+"_CLOUDINARY_API_SECRET", "CLOUDINARY_API_SECRET")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: err}
		}
		// 配置文件不存在,使用默认值
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: fmt.Errorf("解析配置失败: %w", err)}
	}
	config.ConfigFile = v.ConfigFileUsed()

	if err := config.Validate(); err != nil {
		return nil, &models.ConfigError{FilePath: config.ConfigFile, Cause: err}
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	d := models.DefaultScrapeConfig()
	v.SetDefault("scrape.base_url", d.BaseURL)
	v.SetDefault("scrape.listing_path", d.ListingPath)
	v.SetDefault("scrape.total_pages", d.TotalPages)
	v.SetDefault("scrape.max_retries", d.MaxRetries)
	v.SetDefault("scrape.retry_delay", d.RetryDelay)
	v.SetDefault("scrape.max_workers", d.MaxWorkers)
	v.SetDefault("scrape.wait_time", d.WaitTime)
	v.SetDefault("scrape.nav_timeout", d.NavTimeout)
	v.SetDefault("scrape.headless", d.Headless)
	v.SetDefault("scrape.stealth", d.Stealth)
	v.SetDefault("scrape.failure_threshold", d.FailureThreshold)
	v.SetDefault("scrape.request_interval", d.RequestInterval)
	v.SetDefault("scrape.checkpoint_every", d.CheckpointEvery)
	v.SetDefault("scrape.session_memory_mb", d.SessionMemoryMB)

	v.SetDefault("output.data_dir", "data")
	v.SetDefault("output.urls_file", "listing_urls.json")
	v.SetDefault("output.details_file", "listing_details.csv")
	v.SetDefault("output.cleaned_file", "listing_details_cleaned.xlsx")
	v.SetDefault("output.image_map_file", "image_map.csv")
	v.SetDefault("output.screenshot_dir", "screenshots")
	v.SetDefault("output.report_dir", "reports")

	v.SetDefault("screenshot.concurrency", 5)
	v.SetDefault("screenshot.quality", 70)
	v.SetDefault("screenshot.content_wait", 10)

	v.SetDefault("cloudinary.folder", "listings")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}
	return nil
}

// LogConfig 转换为日志系统配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}

// SetDataDir 替换数据目录(命令行 -o)
func (c *Config) SetDataDir(dir string) {
	if dir != "" {
		c.Output.DataDir = dir
	}
}

// resolve 把相对文件名解析到数据目录下
func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Output.DataDir, name)
}

// URLsPath 发现阶段输出的URL列表
func (c *Config) URLsPath() string { return c.resolve(c.Output.URLsFile) }

// DetailsPath 详情CSV
func (c *Config) DetailsPath() string { return c.resolve(c.Output.DetailsFile) }

// CleanedPath 清洗后的工作簿
func (c *Config) CleanedPath() string { return c.resolve(c.Output.CleanedFile) }

// ImageMapPath 截图映射CSV
func (c *Config) ImageMapPath() string { return c.resolve(c.Output.ImageMapFile) }

// ScreenshotDir 截图临时目录
func (c *Config) ScreenshotDir() string { return c.resolve(c.Output.ScreenshotDir) }

// ReportDir 运行报告目录
func (c *Config) ReportDir() string { return c.resolve(c.Output.ReportDir) }

// CheckpointPath 发现检查点
func (c *Config) CheckpointPath() string { return models.CheckpointFilename(c.Output.DataDir) }
