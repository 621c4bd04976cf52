package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/core"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/crawlers"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/models"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string
	dataDir    string
	noProgress bool

	// HTTP头部参数
	headers        []string // 自定义HTTP请求头
	validateConfig bool     // 验证配置文件

	// 抓取参数(0表示使用配置文件中的值)
	baseURL    string
	totalPages int
	maxWorkers int
	waitTime   int
	headless   bool

	// discover
	resume bool

	// details
	urlsFile   string
	sequential bool
	fresh      bool

	// screenshots
	failedCSV   string
	concurrency int
)

// appConfig PersistentPreRunE中加载,命令行参数已合并
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "onehousing",
	Short: "onehousing.vn 房源数据采集工具",
	Long: `onehousing - onehousing.vn 二手房源采集工具 (Go版本)

流程:
  • discover     抓取列表页,收集详情页URL
  • details      并发渲染详情页,增量写入CSV (默认断点续抓)
  • screenshots  详情页截图并上传到Cloudinary
  • clean        清洗为估价用的Excel工作簿
  • pipeline     依次执行以上全部阶段

HTTP头部配置示例:
  # 通过配置文件 (configs/headers.yaml)
  onehousing discover

  # 通过命令行参数
  onehousing discover -H "Accept-Language: vi-VN" -H "User-Agent: MyBot/1.0"

  # 验证配置文件
  onehousing --validate-config

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 加载配置
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 命令行参数覆盖配置文件
		if err := applyOverrides(cmd, config); err != nil {
			return err
		}

		logConfig := config.LogConfig()
		if logLevel != "" {
			logConfig.Level = logLevel
		}
		if verbose {
			logConfig.Level = "debug"
		}

		// 初始化日志系统
		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if verbose {
			utils.Info("详细模式已启用")
		}
		if config.ConfigFile != "" {
			utils.Debugf("配置文件: %s", config.ConfigFile)
		}

		appConfig = config
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// 如果用户请求验证配置
		if validateConfig {
			headerManager, err := core.NewHeaderManager("", headers)
			if err != nil {
				return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
			}

			utils.Info("🔍 验证HTTP头部配置...")
			if err := headerManager.LoadConfig(); err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}
			if err := headerManager.Validate(); err != nil {
				return fmt.Errorf("配置验证失败: %w", err)
			}

			// 显示合并后的头部(脱敏)
			safeHeaders := headerManager.GetSafeHeaders()
			utils.Info("✅ 配置验证通过!")
			utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
			for name, value := range safeHeaders {
				utils.Infof("  %s: %s", name, value)
			}
			return nil
		}

		return cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	// 不需要加载配置
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("onehousing %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
		fmt.Println("Go实现版本 - onehousing.vn 房源采集工具")
	},
}

// setupStop 创建停止信号并注册Ctrl+C处理
// 第一次中断置位停止信号并等待排空,第二次中断直接退出
func setupStop() (*crawlers.StopSignal, func()) {
	stop := crawlers.NewStopSignal(context.Background())

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig, ok := <-sigChan
		if !ok {
			return
		}
		utils.Warnf("\n收到中断信号: %v, 正在保存进度并关闭浏览器...", sig)
		stop.Stop(models.ErrInterrupted)

		if _, ok := <-sigChan; ok {
			utils.Error("再次收到中断信号,强制退出")
			_ = utils.CloseLogger()
			os.Exit(130)
		}
	}()

	return stop, func() {
		signal.Stop(sigChan)
		close(sigChan)
	}
}

// newServices 创建运行依赖
func newServices(stop *crawlers.StopSignal) (*core.Services, error) {
	headerManager, err := core.NewHeaderManager("", headers)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	if err := headerManager.LoadConfig(); err != nil {
		return nil, fmt.Errorf("加载HTTP头部配置失败: %w", err)
	}
	if err := headerManager.Validate(); err != nil {
		return nil, fmt.Errorf("HTTP头部配置无效: %w", err)
	}
	return core.NewServices(appConfig, stop, headerManager, !noProgress), nil
}

// saveReports 保存运行报告,失败只记录日志
func saveReports(reports ...*models.RunReport) {
	reporter := utils.NewReporter(appConfig.ReportDir())
	for _, report := range reports {
		if report == nil {
			continue
		}
		if _, err := reporter.GenerateReport(report); err != nil {
			utils.Warnf("保存运行报告失败: %v", err)
		}
	}
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "output", "o", "", "数据目录 (默认: data)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "不显示进度条")

	// HTTP头部参数
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")

	// 添加子命令
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(discoverCmd, detailsCmd, screenshotsCmd, cleanCmd, pipelineCmd, doctorCmd)
}

func main() {
	err := rootCmd.Execute()
	_ = utils.CloseLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
