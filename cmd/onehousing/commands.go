package main

import (
	"fmt"

	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/cleaning"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/core"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/storage"
	"github.com/VYANHTRAN/estates-scraping-onehousing/internal/utils"
	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "抓取列表页,收集详情页URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		stop, cleanup := setupStop()
		defer cleanup()

		svc, err := newServices(stop)
		if err != nil {
			return err
		}

		coordinator := core.NewCoordinator(coordinatorOptions(), stop, svc.Discoverer, svc.DetailSessions)
		report, err := coordinator.RunDiscovery()
		saveReports(report)
		if err != nil {
			return fmt.Errorf("发现阶段中止: %w", err)
		}

		utils.Infof("✨ URL列表已保存: %s", appConfig.URLsPath())
		return nil
	},
}

var detailsCmd = &cobra.Command{
	Use:   "details",
	Short: "抓取详情页并增量写入CSV",
	Long: `从URL列表抓取详情页,每条记录写入后立即落盘。

默认断点续抓: 已在输出CSV中的property_url不会再抓取。
--fresh 清空输出文件从头开始。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := appConfig.URLsPath()
		if urlsFile != "" {
			if err := ValidateURLFile(urlsFile); err != nil {
				return err
			}
			path = urlsFile
		}

		urls, err := storage.LoadURLList(path)
		if err != nil {
			return fmt.Errorf("读取URL列表失败: %w", err)
		}
		utils.Infof("📂 读取URL列表: %d 个 (%s)", len(urls), path)

		stop, cleanup := setupStop()
		defer cleanup()

		svc, err := newServices(stop)
		if err != nil {
			return err
		}

		coordinator := core.NewCoordinator(coordinatorOptions(), stop, nil, svc.DetailSessions)
		coordinator.SetResourceMonitor(svc.Monitor)
		report, err := coordinator.RunDetails(urls)
		saveReports(report)
		if err != nil {
			return fmt.Errorf("详情抓取中止: %w", err)
		}

		utils.Info("✨ 详情抓取任务完成!")
		return nil
	},
}

var screenshotsCmd = &cobra.Command{
	Use:   "screenshots",
	Short: "详情页截图并上传到Cloudinary",
	RunE: func(cmd *cobra.Command, args []string) error {
		if failedCSV != "" {
			if err := ValidateURLFile(failedCSV); err != nil {
				return err
			}
		}

		stop, cleanup := setupStop()
		defer cleanup()

		svc, err := newServices(stop)
		if err != nil {
			return err
		}

		report, err := core.RunScreenshots(svc, core.ScreenshotOptions{FailedCSV: failedCSV})
		saveReports(report)
		if err != nil {
			return fmt.Errorf("截图上传中止: %w", err)
		}

		utils.Info("✨ 截图上传任务完成!")
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "清洗详情CSV并生成Excel工作簿",
	RunE: func(cmd *cobra.Command, args []string) error {
		cleaner := cleaning.NewCleaner(appConfig.DetailsPath(), appConfig.ImageMapPath(), appConfig.CleanedPath())
		if _, err := cleaner.Run(); err != nil {
			return fmt.Errorf("数据清洗失败: %w", err)
		}
		return nil
	},
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "完整流程: 发现 → 详情 → 截图上传 → 清洗",
	RunE: func(cmd *cobra.Command, args []string) error {
		stop, cleanup := setupStop()
		defer cleanup()

		svc, err := newServices(stop)
		if err != nil {
			return err
		}

		summary, err := core.NewPipeline(svc, core.PipelineOptions{
			ResumeDiscovery: resume,
			Sequential:      sequential,
			Fresh:           fresh,
		}).Run()
		if summary != nil {
			saveReports(summary.Reports()...)
		}
		if err != nil {
			return err
		}

		utils.Info("✨ 完整流程结束!")
		return nil
	},
}

// coordinatorOptions 由配置和命令行参数生成协调器选项
func coordinatorOptions() core.CoordinatorOptions {
	return core.CoordinatorOptions{
		Config:          appConfig.Scrape,
		URLsPath:        appConfig.URLsPath(),
		DetailsPath:     appConfig.DetailsPath(),
		Sequential:      sequential,
		Fresh:           fresh,
		ResumeDiscovery: resume,
		ShowProgress:    !noProgress,
	}
}

// addScrapeFlags 抓取相关的公共参数
func addScrapeFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&waitTime, "wait", "w", 0, "页面就绪等待时间(秒)")
	cmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
}

func init() {
	addScrapeFlags(discoverCmd)
	discoverCmd.Flags().StringVar(&baseURL, "base-url", "", "站点根地址")
	discoverCmd.Flags().IntVarP(&totalPages, "pages", "p", 0, "列表页总数")
	discoverCmd.Flags().BoolVar(&resume, "resume", false, "从检查点恢复")

	addScrapeFlags(detailsCmd)
	detailsCmd.Flags().StringVar(&urlsFile, "urls", "", "URL列表JSON (默认: <output>/listing_urls.json)")
	detailsCmd.Flags().IntVar(&maxWorkers, "workers", 0, "并发会话数")
	detailsCmd.Flags().BoolVar(&sequential, "sequential", false, "单会话顺序抓取")
	detailsCmd.Flags().BoolVar(&fresh, "fresh", false, "忽略已有输出,从头抓取")

	addScrapeFlags(screenshotsCmd)
	screenshotsCmd.Flags().StringVar(&failedCSV, "failed-csv", "", "只重试失败记录中的URL")
	screenshotsCmd.Flags().IntVar(&concurrency, "concurrency", 0, "同时截图的会话数")

	addScrapeFlags(pipelineCmd)
	pipelineCmd.Flags().StringVar(&baseURL, "base-url", "", "站点根地址")
	pipelineCmd.Flags().IntVarP(&totalPages, "pages", "p", 0, "列表页总数")
	pipelineCmd.Flags().IntVar(&maxWorkers, "workers", 0, "并发会话数")
	pipelineCmd.Flags().BoolVar(&resume, "resume", false, "发现阶段从检查点恢复")
	pipelineCmd.Flags().BoolVar(&sequential, "sequential", false, "单会话顺序抓取")
	pipelineCmd.Flags().BoolVar(&fresh, "fresh", false, "忽略已有输出,从头抓取")
	pipelineCmd.Flags().IntVar(&concurrency, "concurrency", 0, "同时截图的会话数")
}
